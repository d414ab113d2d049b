package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	DevModuleID    = "door-001"
	DevAdminUserID = "dev-admin"
	devAdminPhone  = "+10000000000"
)

type SeedDevOptions struct {
	// KnownModules are commissioned alongside the dev module.
	KnownModules []string
}

// SeedDev commissions the dev module and any configured modules, and
// creates an admin user so a dev token has a face profile to enroll
// against. It is idempotent.
func SeedDev(ctx context.Context, w *Worker, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	modules := []string{DevModuleID}
	for _, mid := range opt.KnownModules {
		if mid = strings.TrimSpace(mid); mid != "" && mid != DevModuleID {
			modules = append(modules, mid)
		}
	}

	return w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, mid := range modules {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO modules(
  module_id, display_name, enabled, commissioned_at_ms, created_at_ms, updated_at_ms
) VALUES (?, ?, 1, ?, ?, ?)
ON CONFLICT(module_id) DO UPDATE SET
  enabled = 1,
  commissioned_at_ms = COALESCE(modules.commissioned_at_ms, excluded.commissioned_at_ms),
  updated_at_ms = excluded.updated_at_ms;
`, mid, mid, now, now, now); err != nil {
				return fmt.Errorf("seed module %s: %w", mid, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO users(
  user_id, name, phone, category, is_admin, created_at_ms, updated_at_ms
) VALUES (?, 'Dev Admin', ?, 'family', 1, ?, ?);
`, DevAdminUserID, devAdminPhone, now, now); err != nil {
			return fmt.Errorf("seed admin user: %w", err)
		}
		return nil
	})
}
