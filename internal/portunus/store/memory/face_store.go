package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

type FaceProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]store.FaceProfileRecord
}

func NewFaceProfileStore() *FaceProfileStore {
	return &FaceProfileStore{profiles: make(map[string]store.FaceProfileRecord)}
}

func (s *FaceProfileStore) GetProfile(_ context.Context, id string) (store.FaceProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return store.FaceProfileRecord{}, store.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *FaceProfileStore) CreateProfile(_ context.Context, rec store.FaceProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[rec.ID]; ok {
		return store.ErrExists
	}
	s.profiles[rec.ID] = cloneProfile(rec)
	return nil
}

func (s *FaceProfileStore) DeleteProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.profiles, id)
	return nil
}

func (s *FaceProfileStore) ListProfiles(_ context.Context, match func(store.FaceProfileRecord) bool) ([]store.FaceProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.FaceProfileRecord
	for _, p := range s.profiles {
		if match == nil || match(p) {
			out = append(out, cloneProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// cloneProfile copies the sample slices so callers can never mutate what
// the store holds.
func cloneProfile(p store.FaceProfileRecord) store.FaceProfileRecord {
	samples := make([]store.FaceSampleRecord, len(p.Samples))
	for i, s := range p.Samples {
		samples[i] = store.FaceSampleRecord{CapturedAt: s.CapturedAt}
		if s.Landmarks != nil {
			samples[i].Landmarks = append(face.Landmarks(nil), s.Landmarks...)
		}
		if s.Embedding != nil {
			samples[i].Embedding = append([]float64(nil), s.Embedding...)
		}
	}
	p.Samples = samples
	return p
}
