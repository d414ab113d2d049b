package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

// IsKnown treats a module as known when it is commissioned, enabled and
// not revoked.
func (s *DeviceStore) IsKnown(ctx context.Context, moduleID string) (bool, error) {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return false, nil
	}

	var enabled int
	var commissioned, revoked sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT enabled, commissioned_at_ms, revoked_at_ms
FROM modules
WHERE module_id = ?;
`, moduleID).Scan(&enabled, &commissioned, &revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}
	return enabled == 1 && commissioned.Valid && !revoked.Valid, nil
}

// MarkSeen records that a module reported in, creating an uncommissioned
// row for modules the gate has never heard of.
func (s *DeviceStore) MarkSeen(ctx context.Context, moduleID string, _ bool, t time.Time) error {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := toMs(t)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureModule(ctx, tx, moduleID, ms); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE modules
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE module_id = ?;
`, ms, ms, moduleID); err != nil {
			return fmt.Errorf("MarkSeen update module: %w", err)
		}
		return nil
	})
}

// Commission enables a module so it is known to the gate. Re-commissioning
// clears a revocation but keeps the original commission time.
func (s *DeviceStore) Commission(ctx context.Context, moduleID, displayName string, t time.Time) error {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return fmt.Errorf("Commission: empty module id")
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := toMs(t)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO modules(
  module_id, display_name, enabled, commissioned_at_ms, created_at_ms, updated_at_ms
) VALUES (?, ?, 1, ?, ?, ?)
ON CONFLICT(module_id) DO UPDATE SET
  display_name       = COALESCE(excluded.display_name, modules.display_name),
  enabled            = 1,
  commissioned_at_ms = COALESCE(modules.commissioned_at_ms, excluded.commissioned_at_ms),
  revoked_at_ms      = NULL,
  updated_at_ms      = excluded.updated_at_ms;
`, moduleID, nullString(strings.TrimSpace(displayName)), ms, ms, ms); err != nil {
			return fmt.Errorf("Commission %s: %w", moduleID, err)
		}
		return nil
	})
}

// Revoke stops a module from being known without deleting its history.
func (s *DeviceStore) Revoke(ctx context.Context, moduleID string, t time.Time) error {
	moduleID = strings.TrimSpace(moduleID)
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := toMs(t)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE modules
SET revoked_at_ms = ?,
    updated_at_ms = ?
WHERE module_id = ?;
`, ms, ms, moduleID); err != nil {
			return fmt.Errorf("Revoke %s: %w", moduleID, err)
		}
		return nil
	})
}
