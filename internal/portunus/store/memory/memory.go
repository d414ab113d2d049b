// Package memory holds in-process implementations of every store. They are
// used by the memory backend in dev and as fixtures in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

// Store is the in-memory heartbeat store. It keeps every heartbeat so the
// pruner has something to prune; LatestHeartbeat reads the newest.
type Store struct {
	mu   sync.RWMutex
	data map[string][]store.HeartbeatRecord
}

func New() *Store {
	return &Store{
		data: make(map[string][]store.HeartbeatRecord),
	}
}

func (s *Store) UpsertHeartbeat(_ context.Context, moduleID string, rec store.HeartbeatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	s.data[moduleID] = append(s.data[moduleID], rec)
	return nil
}

func (s *Store) LatestHeartbeat(_ context.Context, moduleID string) (store.HeartbeatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest store.HeartbeatRecord
	found := false
	for _, rec := range s.data[moduleID] {
		if !found || rec.ReceivedAt.After(latest.ReceivedAt) {
			latest, found = rec, true
		}
	}
	if !found {
		return store.HeartbeatRecord{}, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, recs := range s.data {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.ReceivedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.data, id)
		} else {
			s.data[id] = kept
		}
	}
	return deleted, nil
}
