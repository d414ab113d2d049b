package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

type OTPStore struct {
	mu      sync.Mutex
	records map[string]store.OTPRecord
}

func NewOTPStore() *OTPStore {
	return &OTPStore{records: make(map[string]store.OTPRecord)}
}

func (s *OTPStore) UpdateOTP(_ context.Context, key string, fn store.OTPUpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.records[key]
	if !found {
		rec = store.OTPRecord{SubjectKey: key}
	}
	if err := fn(&rec, found); err != nil {
		return err
	}
	rec.SubjectKey = key
	s.records[key] = rec
	return nil
}

func (s *OTPStore) GetOTP(_ context.Context, key string) (store.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return store.OTPRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *OTPStore) PruneOTPs(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for k, rec := range s.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.records, k)
			deleted++
		}
	}
	return deleted, nil
}
