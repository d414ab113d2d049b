package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

type AccessRequestStore struct {
	mu       sync.RWMutex
	requests map[string]store.AccessRequestRecord
	// used remembers every id ever created, so pruning never frees an id
	// for reuse.
	used map[string]struct{}
}

func NewAccessRequestStore() *AccessRequestStore {
	return &AccessRequestStore{
		requests: make(map[string]store.AccessRequestRecord),
		used:     make(map[string]struct{}),
	}
}

func (s *AccessRequestStore) CreateRequest(_ context.Context, rec store.AccessRequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.used[rec.ID]; ok {
		return store.ErrExists
	}
	s.used[rec.ID] = struct{}{}
	s.requests[rec.ID] = rec
	return nil
}

func (s *AccessRequestStore) GetRequest(_ context.Context, id string) (store.AccessRequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return store.AccessRequestRecord{}, store.ErrNotFound
	}
	return r, nil
}

func (s *AccessRequestStore) SwapRequest(_ context.Context, prev, next store.AccessRequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[prev.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != prev.Status || cur.Version != prev.Version {
		return store.ErrStale
	}
	next.ID = prev.ID
	next.Version = prev.Version + 1
	s.requests[prev.ID] = next
	return nil
}

func (s *AccessRequestStore) ListRequests(_ context.Context, match func(store.AccessRequestRecord) bool) ([]store.AccessRequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.AccessRequestRecord
	for _, r := range s.requests {
		if match == nil || match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *AccessRequestStore) PruneRequests(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, r := range s.requests {
		if r.Status.Terminal() && r.UpdatedAt.Before(cutoff) {
			delete(s.requests, id)
			deleted++
		}
	}
	return deleted, nil
}
