package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/db"
)

// openTestDB opens a fresh database file through db.Open, so tests run
// against the production PRAGMAs and migrations.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.db")
	conn, err := db.Open(context.Background(), db.Config{Path: path, Env: "test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}

// seedModule adds a modules row that was never commissioned.
func seedModule(t *testing.T, conn *sql.DB, moduleID string) {
	t.Helper()
	ms := time.Now().UTC().UnixMilli()
	if _, err := conn.ExecContext(context.Background(),
		`INSERT OR IGNORE INTO modules(module_id, enabled, created_at_ms, updated_at_ms) VALUES (?, 0, ?, ?)`,
		moduleID, ms, ms); err != nil {
		t.Fatalf("seedModule %s: %v", moduleID, err)
	}
}
