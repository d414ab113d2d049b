// Package sqlite implements the gate stores on SQLite. Reads go straight to
// the pool; every write is funnelled through the single db.Worker so a
// transaction never contends with another writer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ensureModule guarantees a modules row exists for moduleID so foreign keys
// from heartbeats are satisfied. New rows start disabled and uncommissioned.
//
// Must be called inside an existing transaction.
func ensureModule(ctx context.Context, tx *sql.Tx, moduleID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO modules(
  module_id, enabled, created_at_ms, updated_at_ms
) VALUES (?, 0, ?, ?);
`, moduleID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureModule %s: %w", moduleID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func toMs(t time.Time) int64 { return t.UTC().UnixMilli() }

// nullMs maps a zero time to NULL.
func nullMs(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return toMs(t)
}

func nullMsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMs(*t)
}

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMs(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return fromMs(v.Int64)
}

func fromNullMsPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMs(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
