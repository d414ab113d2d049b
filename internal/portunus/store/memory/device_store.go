package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type module struct {
	name         string
	commissioned bool
	revokedAt    *time.Time
	lastSeen     time.Time
}

// DeviceStore keeps door modules in a map. Modules passed to the
// constructor start commissioned.
type DeviceStore struct {
	mu      sync.RWMutex
	modules map[string]*module
}

func NewDeviceStore(knownModules []string) *DeviceStore {
	s := &DeviceStore{modules: make(map[string]*module, len(knownModules))}
	for _, id := range knownModules {
		if id = strings.TrimSpace(id); id != "" {
			s.modules[id] = &module{name: id, commissioned: true}
		}
	}
	return s
}

func (s *DeviceStore) IsKnown(_ context.Context, moduleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[moduleID]
	return ok && m.commissioned && m.revokedAt == nil, nil
}

func (s *DeviceStore) MarkSeen(_ context.Context, moduleID string, _ bool, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(moduleID).lastSeen = t
	return nil
}

func (s *DeviceStore) Commission(_ context.Context, moduleID, displayName string, _ time.Time) error {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return errors.New("commission: empty module id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.get(moduleID)
	m.commissioned = true
	m.revokedAt = nil
	if name := strings.TrimSpace(displayName); name != "" {
		m.name = name
	}
	return nil
}

func (s *DeviceStore) Revoke(_ context.Context, moduleID string, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modules[moduleID]; ok {
		m.revokedAt = &t
	}
	return nil
}

// get returns the module, adding an uncommissioned entry if needed.
// Callers hold mu.
func (s *DeviceStore) get(id string) *module {
	m, ok := s.modules[id]
	if !ok {
		m = &module{name: id}
		s.modules[id] = m
	}
	return m
}

// LastSeen reports when a module was last marked seen. Test-only helper.
func (s *DeviceStore) LastSeen(moduleID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[moduleID]
	if !ok || m.lastSeen.IsZero() {
		return time.Time{}, false
	}
	return m.lastSeen, true
}
