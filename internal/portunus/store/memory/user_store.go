package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

type UserStore struct {
	mu      sync.RWMutex
	users   map[string]store.UserRecord
	byPhone map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[string]store.UserRecord),
		byPhone: make(map[string]string),
	}
}

func (s *UserStore) GetUser(_ context.Context, id string) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return u, nil
}

func (s *UserStore) FindUserByPhone(_ context.Context, phone string) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok || phone == "" {
		return store.UserRecord{}, store.ErrNotFound
	}
	return s.users[id], nil
}

func (s *UserStore) PutUser(_ context.Context, rec store.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byPhone[rec.Phone]; ok && rec.Phone != "" && owner != rec.ID {
		return store.ErrExists
	}
	if prev, ok := s.users[rec.ID]; ok && prev.Phone != rec.Phone {
		delete(s.byPhone, prev.Phone)
	}
	s.users[rec.ID] = rec
	if rec.Phone != "" {
		s.byPhone[rec.Phone] = rec.ID
	}
	return nil
}

func (s *UserStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	if s.byPhone[u.Phone] == id {
		delete(s.byPhone, u.Phone)
	}
	return nil
}

func (s *UserStore) ListUsers(_ context.Context, match func(store.UserRecord) bool) ([]store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.UserRecord
	for _, u := range s.users {
		if match == nil || match(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
