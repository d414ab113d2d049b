package sqlite_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/audit"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// RecordEvent / ListEvents
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessEventStore_RecordAndList(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewAccessEventStore(conn, newTestWriter(t, conn))
	ctx := context.Background()
	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	conf := 0.75
	sim := true
	hash := audit.HashPhone("+15550001111")
	events := []store.AccessEventRecord{
		{ID: "e1", RequestID: "r1", ModuleID: "door-001", Action: "request.otp_issued",
			Category: types.CategoryGuest, PhoneHash: hash, DecidedAt: base},
		{ID: "e2", RequestID: "r1", ModuleID: "door-001", Action: "request.access_granted",
			Category: types.CategoryGuest, Granted: true, Reason: "verified", Confidence: &conf, DecidedAt: base.Add(time.Second)},
		{ID: "e3", RequestID: "r1", ModuleID: "door-001", Action: "door.unlock",
			Granted: true, Simulated: &sim, DecidedAt: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := es.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent %s: %v", ev.ID, err)
		}
	}

	got, err := es.ListEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 3 || got[0].ID != "e3" || got[2].ID != "e1" {
		t.Fatalf("expected newest first e3..e1, got %d events", len(got))
	}
	if got[0].Simulated == nil || !*got[0].Simulated {
		t.Errorf("expected simulated=true on e3, got %v", got[0].Simulated)
	}
	if got[1].Confidence == nil || *got[1].Confidence != 0.75 || !got[1].Granted {
		t.Errorf("expected granted e2 with confidence 0.75, got %+v", got[1])
	}
	if got[1].Simulated != nil {
		t.Errorf("expected nil simulated on e2, got %v", *got[1].Simulated)
	}
	if !bytes.Equal(got[2].PhoneHash, hash) {
		t.Errorf("expected phone hash preserved on e1")
	}
	if !got[2].DecidedAt.Equal(base) {
		t.Errorf("expected decided_at=%v, got %v", base, got[2].DecidedAt)
	}

	two, _ := es.ListEvents(ctx, 2)
	if len(two) != 2 || two[0].ID != "e3" {
		t.Errorf("expected 2 newest events, got %d", len(two))
	}
}

func TestAccessEventStore_NeverStoresPhone(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewAccessEventStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if err := es.RecordEvent(ctx, store.AccessEventRecord{
		Action:    "request.denied",
		PhoneHash: audit.HashPhone("+15550001111"),
	}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	var n int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_events WHERE CAST(phone_hash AS TEXT) LIKE '%5550001111%'`,
	).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no plaintext phone in audit rows, got %d", n)
	}

	got, _ := es.ListEvents(ctx, 1)
	if len(got) != 1 || got[0].ID == "" || got[0].DecidedAt.IsZero() {
		t.Errorf("expected generated id and decided_at, got %+v", got)
	}
}

func TestAccessEventStore_BehindAuditLogger(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewAccessEventStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	lg := audit.NewSync(nil, audit.StoreSink{Store: es})
	lg.Append(store.AccessEventRecord{RequestID: "r9", Action: "request.expired", Reason: "expired"})

	got, err := es.ListEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 1 || got[0].RequestID != "r9" || got[0].Reason != "expired" {
		t.Fatalf("expected the appended event, got %+v", got)
	}
}
