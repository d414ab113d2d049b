package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"testing/fstest"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:db_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name()))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// ── parseVersion ─────────────────────────────────────────────────────

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0001_init.sql")
	if err != nil || v != 1 {
		t.Fatalf("expected 1, got %d (%v)", v, err)
	}
	v, err = parseVersion("0042_add_index.sql")
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %d (%v)", v, err)
	}
	for _, bad := range []string{"init.sql", "abc_init.sql", "0000_zero.sql"} {
		if _, err := parseVersion(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestLoadMigrations_SortsAndRejectsDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.sql": {Data: []byte("SELECT 2;")},
		"migrations/0001_a.sql": {Data: []byte("SELECT 1;")},
	}
	ms, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(ms) != 2 || ms[0].version != 1 || ms[1].version != 2 {
		t.Fatalf("expected versions [1 2], got %+v", ms)
	}

	fsys["migrations/0002_c.sql"] = &fstest.MapFile{Data: []byte("SELECT 3;")}
	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

// ── Migrate ──────────────────────────────────────────────────────────

func TestMigrate_Idempotent(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()

	applied, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected at least one migration applied")
	}
	applied, err = Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected nothing applied on rerun, got %v", applied)
	}
}

// ── Worker ───────────────────────────────────────────────────────────

func TestWorker_RollsBackOnError(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	if _, err := Migrate(ctx, conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	w := NewWorker(conn)
	defer w.Close()

	boom := fmt.Errorf("boom")
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO modules(module_id, created_at_ms, updated_at_ms) VALUES ('m1', 0, 0);`); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules;`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected rollback, got %d rows", n)
	}
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openMemory(t)
	w := NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	if err != ErrWorkerClosed {
		t.Fatalf("expected ErrWorkerClosed, got %v", err)
	}
}

// ── SeedDev ──────────────────────────────────────────────────────────

func TestSeedDev_CommissionsModulesAndAdmin(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	if _, err := Migrate(ctx, conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	w := NewWorker(conn)
	defer w.Close()

	opt := SeedDevOptions{KnownModules: []string{" door-002 ", "", DevModuleID}}
	for i := 0; i < 2; i++ {
		if err := SeedDev(ctx, w, opt); err != nil {
			t.Fatalf("SeedDev run %d: %v", i, err)
		}
	}

	var modules int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM modules WHERE enabled = 1 AND commissioned_at_ms IS NOT NULL;`,
	).Scan(&modules); err != nil {
		t.Fatalf("count modules: %v", err)
	}
	if modules != 2 {
		t.Errorf("expected 2 commissioned modules, got %d", modules)
	}

	var admin int
	if err := conn.QueryRowContext(ctx,
		`SELECT is_admin FROM users WHERE user_id = ?;`, DevAdminUserID,
	).Scan(&admin); err != nil {
		t.Fatalf("query admin: %v", err)
	}
	if admin != 1 {
		t.Errorf("expected dev admin flagged, got %d", admin)
	}
}
