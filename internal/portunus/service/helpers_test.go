package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/audit"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/otp"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingDoor is an actuator that remembers every unlock.
type recordingDoor struct {
	mu      sync.Mutex
	unlocks []string
	result  actuator.Result
}

func (d *recordingDoor) Unlock(_ context.Context, moduleID string, _ int) actuator.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unlocks = append(d.unlocks, moduleID)
	return d.result
}

func (d *recordingDoor) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.unlocks)
}

type harness struct {
	clock      *fakeClock
	users      *memory.UserStore
	profiles   *memory.FaceProfileStore
	requests   *memory.AccessRequestStore
	otps       *memory.OTPStore
	events     *memory.AccessEventStore
	authority  *otp.Authority
	machine    *service.RequestMachine
	coord      *service.Coordinator
	enrollment *service.Enrollment
	codes      *service.Codes
	door       *recordingDoor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:    &fakeClock{now: time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)},
		users:    memory.NewUserStore(),
		profiles: memory.NewFaceProfileStore(),
		requests: memory.NewAccessRequestStore(),
		otps:     memory.NewOTPStore(),
		events:   memory.NewAccessEventStore(),
		door:     &recordingDoor{result: actuator.Result{OK: true, Message: "door unlocked"}},
	}

	groups := otp.NewGroupCodes(bcrypt.MinCost)
	if err := groups.Set(types.CategoryFamily, "123456"); err != nil {
		t.Fatalf("set family code: %v", err)
	}
	h.authority = otp.NewAuthority(h.otps, groups, otp.WithClock(h.clock.Now))

	log := zap.NewNop()
	app := audit.NewSync(log, audit.StoreSink{Store: h.events})
	h.machine = service.NewRequestMachine(h.requests, h.users, h.authority, app,
		service.DefaultMachineConfig(), log, service.WithClock(h.clock.Now))
	h.coord = service.NewCoordinator(h.machine, h.users, h.profiles, h.authority, h.door, app, 3000, log,
		service.WithCoordinatorClock(h.clock.Now))
	h.enrollment = service.NewEnrollment(h.users, h.profiles, app, log)
	h.codes = service.NewCodes(h.authority, app, 5*time.Minute, log)
	return h
}

func (h *harness) registerUser(t *testing.T, name, phone string, cat types.Category) store.UserRecord {
	t.Helper()
	u, err := h.enrollment.RegisterUser(context.Background(), service.UserDetails{Name: name, Phone: phone, Category: cat})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	return u
}

func (h *harness) enroll(t *testing.T, userID string, sets ...face.Landmarks) store.FaceProfileRecord {
	t.Helper()
	p, err := h.enrollment.EnrollFace(context.Background(), userID, face.KindLandmarks, landmarkSamples(sets...))
	if err != nil {
		t.Fatalf("EnrollFace: %v", err)
	}
	return p
}

func landmarkSamples(sets ...face.Landmarks) []store.FaceSampleRecord {
	out := make([]store.FaceSampleRecord, len(sets))
	for i, l := range sets {
		out[i] = store.FaceSampleRecord{Landmarks: l}
	}
	return out
}

func embeddingSamples(vs ...[]float64) []store.FaceSampleRecord {
	out := make([]store.FaceSampleRecord, len(vs))
	for i, v := range vs {
		out[i] = store.FaceSampleRecord{Embedding: v}
	}
	return out
}

func (h *harness) actions() []string {
	var out []string
	for _, ev := range h.events.Events() {
		out = append(out, ev.Action)
	}
	return out
}

func (h *harness) hasAction(action string) bool {
	for _, a := range h.actions() {
		if a == action {
			return true
		}
	}
	return false
}
