package service

import (
	"errors"
	"sync"
	"time"
)

var ErrKeypadLocked = errors.New("keypad locked after repeated failures")

const (
	defaultKeypadMaxFailures = 5
	defaultKeypadLockout     = 5 * time.Minute
)

type keypadState struct {
	failures    int
	lockedUntil time.Time
}

// keypadGuard counts consecutive wrong codes per module and refuses every
// attempt, right or wrong, while a module is locked. An attempt is counted
// when admitted, so concurrent guesses cannot overshoot the cap.
type keypadGuard struct {
	mu      sync.Mutex
	max     int
	lockout time.Duration
	now     func() time.Time
	modules map[string]*keypadState
}

func newKeypadGuard(max int, lockout time.Duration, now func() time.Time) *keypadGuard {
	if max <= 0 {
		max = defaultKeypadMaxFailures
	}
	if lockout <= 0 {
		lockout = defaultKeypadLockout
	}
	return &keypadGuard{max: max, lockout: lockout, now: now, modules: make(map[string]*keypadState)}
}

// admit reserves an attempt for moduleID, or reports when the lock lifts.
func (g *keypadGuard) admit(moduleID string) (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.modules[moduleID]
	if !ok {
		st = &keypadState{}
		g.modules[moduleID] = st
	}
	now := g.now()
	if !st.lockedUntil.IsZero() {
		if now.Before(st.lockedUntil) {
			return st.lockedUntil, ErrKeypadLocked
		}
		st.lockedUntil = time.Time{}
	}
	if st.failures >= g.max {
		// Attempts already in flight fill the cap.
		return now, ErrKeypadLocked
	}
	st.failures++
	return time.Time{}, nil
}

// settle records the outcome of an admitted attempt and reports whether
// it locked the module.
func (g *keypadGuard) settle(moduleID string, matched bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.modules[moduleID]
	if !ok {
		return false
	}
	if matched {
		delete(g.modules, moduleID)
		return false
	}
	if st.failures < g.max || !st.lockedUntil.IsZero() {
		return false
	}
	st.failures = 0
	st.lockedUntil = g.now().Add(g.lockout)
	return true
}

// release returns an admitted attempt that never reached a verdict.
func (g *keypadGuard) release(moduleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.modules[moduleID]; ok && st.failures > 0 {
		st.failures--
	}
}
