package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

// AccessEventStore keeps the audit log in a slice, in arrival order.
type AccessEventStore struct {
	mu  sync.Mutex
	log []store.AccessEventRecord
}

func NewAccessEventStore() *AccessEventStore {
	return &AccessEventStore{}
}

func (s *AccessEventStore) RecordEvent(_ context.Context, rec store.AccessEventRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	rec.PhoneHash = slices.Clone(rec.PhoneHash)

	s.mu.Lock()
	s.log = append(s.log, rec)
	s.mu.Unlock()
	return nil
}

// ListEvents orders by decision time, newest first; events decided at the
// same instant come back in reverse arrival order.
func (s *AccessEventStore) ListEvents(_ context.Context, limit int) ([]store.AccessEventRecord, error) {
	s.mu.Lock()
	out := slices.Clone(s.log)
	s.mu.Unlock()

	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b store.AccessEventRecord) int {
		return b.DecidedAt.Compare(a.DecidedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Events returns every recorded event in arrival order. Test-only helper.
func (s *AccessEventStore) Events() []store.AccessEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}
