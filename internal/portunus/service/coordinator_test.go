package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face/facetest"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// verifiedRequest walks a registered user's request to OTP_VERIFIED.
func (h *harness) verifiedRequest(t *testing.T, phone string, cat types.Category) store.AccessRequestRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := h.machine.Create(ctx, "front-door", service.VisitorDetails{Category: cat, Phone: phone})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Status == types.StatusPendingAdminApproval {
		if rec, err = h.machine.Approve(ctx, rec.ID); err != nil {
			t.Fatalf("Approve: %v", err)
		}
	}
	rec, err = h.machine.VerifyOTP(ctx, rec.ID, rec.OTPCode)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	return rec
}

// ── Face stage ───────────────────────────────────────────────────────

func TestVerifyFace_UsesRequestUsersProfile(t *testing.T) {
	h := newHarness(t)
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, u.ID, facetest.Genuine()...)

	// Another profile that would also match must not be consulted.
	other := h.registerUser(t, "Bo", "+15550003", types.CategoryFamily)
	h.enroll(t, other.ID, facetest.ZigzagProfile()...)

	rec := h.verifiedRequest(t, "+15550003", types.CategoryFamily)
	dec, err := h.coord.VerifyFace(context.Background(), rec.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Request.Status != types.StatusFaceVerificationFailed {
		t.Fatalf("expected FACE_VERIFICATION_FAILED against Bo's profile, got %s", dec.Request.Status)
	}
	if dec.Unlock != nil || h.door.Count() != 0 {
		t.Fatalf("expected no unlock on failure")
	}
}

func TestVerifyFace_IsSingleShot(t *testing.T) {
	h := newHarness(t)
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, u.ID, facetest.ZigzagProfile()...)

	rec := h.verifiedRequest(t, "+15550002", types.CategoryFamily)
	ctx := context.Background()
	dec, err := h.coord.VerifyFace(ctx, rec.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Request.Status != types.StatusFaceVerificationFailed || dec.Request.Reason != string(face.ReasonLowConfidence) {
		t.Fatalf("expected low-confidence failure, got %s/%s", dec.Request.Status, dec.Request.Reason)
	}

	if _, err := h.coord.VerifyFace(ctx, rec.ID, face.Probe{Landmarks: facetest.Zigzag()}); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on retry, got %v", err)
	}
}

func TestVerifyFace_FourOfFiveIsInsufficientMatches(t *testing.T) {
	h := newHarness(t)
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, u.ID, facetest.Face(), facetest.Scaled(), facetest.Rot90(), facetest.Rot180(), facetest.Zigzag())

	rec := h.verifiedRequest(t, "+15550002", types.CategoryFamily)
	dec, err := h.coord.VerifyFace(context.Background(), rec.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Verification.Verified || dec.Verification.MatchCount != 4 {
		t.Fatalf("expected 4 matches and no verification, got %+v", dec.Verification)
	}
	if dec.Verification.Confidence < 0.99 {
		t.Errorf("expected max similarity to clear the threshold, got %.3f", dec.Verification.Confidence)
	}
	if dec.Request.Reason != string(face.ReasonInsufficientMatches) {
		t.Errorf("expected insufficient_matches, got %q", dec.Request.Reason)
	}
}

func TestVerifyFace_NoProfilesIsInsufficientEnrollment(t *testing.T) {
	h := newHarness(t)
	rec := h.verifiedRequest(t, "+15550999", types.CategoryGuest)

	dec, err := h.coord.VerifyFace(context.Background(), rec.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Request.Status != types.StatusFaceVerificationFailed {
		t.Fatalf("expected FACE_VERIFICATION_FAILED, got %s", dec.Request.Status)
	}
	if dec.Request.Reason != string(face.ReasonInsufficientEnrollment) {
		t.Errorf("expected insufficient_enrollment, got %q", dec.Request.Reason)
	}
}

func TestVerifyFace_BadProbeDoesNotConsumeStage(t *testing.T) {
	h := newHarness(t)
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, u.ID, facetest.Genuine()...)
	rec := h.verifiedRequest(t, "+15550002", types.CategoryFamily)
	ctx := context.Background()

	flat := face.Landmarks{{X: 0, Y: 1}, {X: 5, Y: 1}, {X: 9, Y: 1}}
	if _, err := h.coord.VerifyFace(ctx, rec.ID, face.Probe{Landmarks: flat}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for degenerate probe, got %v", err)
	}
	if _, err := h.coord.VerifyFace(ctx, rec.ID, face.Probe{Embedding: facetest.Embedding()}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for wrong probe kind, got %v", err)
	}

	dec, err := h.coord.VerifyFace(ctx, rec.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Request.Status != types.StatusAccessGranted {
		t.Fatalf("expected ACCESS_GRANTED, got %s", dec.Request.Status)
	}
}

func TestVerifyFace_ActuatorFailureKeepsDecision(t *testing.T) {
	h := newHarness(t)
	h.door.result = actuator.Result{OK: true, Simulated: true, Message: "door unreachable"}
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, u.ID, facetest.Genuine()...)
	rec := h.verifiedRequest(t, "+15550002", types.CategoryFamily)

	dec, err := h.coord.VerifyFace(context.Background(), rec.ID, face.Probe{Landmarks: facetest.Jitter()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Request.Status != types.StatusAccessGranted {
		t.Fatalf("expected ACCESS_GRANTED, got %s", dec.Request.Status)
	}
	if dec.Unlock == nil || !dec.Unlock.Simulated {
		t.Fatalf("expected simulated unlock, got %+v", dec.Unlock)
	}

	var sawSimulated bool
	for _, ev := range h.events.Events() {
		if ev.Action == "door.unlock" && ev.Simulated != nil && *ev.Simulated {
			sawSimulated = true
		}
	}
	if !sawSimulated {
		t.Error("expected simulated unlock to be audited")
	}
}

func TestVerifyFace_DanglingRefIsInsufficientEnrollment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	p := h.enroll(t, u.ID, facetest.Genuine()...)
	_ = h.profiles.DeleteProfile(ctx, p.ID)
	twin := h.registerUser(t, "Twin", "+15550005", types.CategoryFamily)
	h.enroll(t, twin.ID, facetest.Genuine()...)

	rec := h.verifiedRequest(t, "+15550002", types.CategoryFamily)
	dec, err := h.coord.VerifyFace(ctx, rec.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Request.AccessGranted || dec.Request.Reason != string(face.ReasonInsufficientEnrollment) {
		t.Fatalf("expected insufficient_enrollment once the profile is gone, got %+v", dec.Request)
	}
}

func TestVerifyFace_RegisteredUserNeverMatchesAnotherProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	bo := h.registerUser(t, "Bo", "+15550003", types.CategoryFamily)
	h.enroll(t, bo.ID, facetest.Genuine()...)

	rec := h.verifiedRequest(t, "+15550002", types.CategoryFamily)
	dec, err := h.coord.VerifyFace(ctx, rec.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if dec.Request.AccessGranted || dec.Unlock != nil {
		t.Fatalf("expected Ana's request to be refused on Bo's face, got %+v", dec.Request)
	}
	if dec.Request.Status != types.StatusFaceVerificationFailed || dec.Request.Reason != string(face.ReasonInsufficientEnrollment) {
		t.Fatalf("expected FACE_VERIFICATION_FAILED/insufficient_enrollment, got %s/%s", dec.Request.Status, dec.Request.Reason)
	}
	if h.door.Count() != 0 {
		t.Fatalf("expected no unlock, got %d", h.door.Count())
	}
}

// ── Identify ─────────────────────────────────────────────────────────

func TestIdentify_UnlocksOnMatch(t *testing.T) {
	h := newHarness(t)
	ana := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, ana.ID, facetest.Genuine()...)
	bo := h.registerUser(t, "Bo", "+15550003", types.CategoryServants)
	h.enroll(t, bo.ID, facetest.ZigzagProfile()...)

	res, err := h.coord.Identify(context.Background(), "side-door", face.Probe{Landmarks: facetest.Zigzag()})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if !res.Identified || res.User.ID != bo.ID {
		t.Fatalf("expected Bo identified, got %+v", res)
	}
	if res.Unlock == nil || h.door.Count() != 1 {
		t.Fatalf("expected one unlock, got %d", h.door.Count())
	}
	if !h.hasAction("door.identify") {
		t.Errorf("expected door.identify audit, got %v", h.actions())
	}
}

func TestIdentify_UnidentifiedDoesNotUnlock(t *testing.T) {
	h := newHarness(t)
	ana := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, ana.ID, facetest.Genuine()...)

	res, err := h.coord.Identify(context.Background(), "side-door", face.Probe{Landmarks: facetest.Reversed()})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Identified || res.Unlock != nil || h.door.Count() != 0 {
		t.Fatalf("expected no identification and no unlock, got %+v", res)
	}
}

func TestIdentify_EmbeddingProfiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	if _, err := h.enrollment.EnrollFace(ctx, u.ID, face.KindEmbedding, embeddingSamples(facetest.Embeddings(10, 5)...)); err != nil {
		t.Fatalf("EnrollFace: %v", err)
	}

	res, err := h.coord.Identify(ctx, "", face.Probe{Embedding: facetest.Embedding()})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if !res.Identified || res.Verification.MatchCount != 10 {
		t.Fatalf("expected identification with 10 matches, got %+v", res.Verification)
	}
}

// ── Keypad and direct unlock ─────────────────────────────────────────

func TestKeypad_GroupCodeUnlocksRepeatedly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := h.coord.Keypad(ctx, "front-door", "123456")
		if err != nil {
			t.Fatalf("Keypad: %v", err)
		}
		if !res.Verified || res.Scope != "family" {
			t.Fatalf("expected family match, got %+v", res)
		}
	}
	if h.door.Count() != 3 {
		t.Fatalf("expected 3 unlocks, got %d", h.door.Count())
	}
}

func TestKeypad_TempCodeOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	iss, err := h.authority.IssueTemp(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("IssueTemp: %v", err)
	}
	if iss.Code == "123456" {
		t.Skip("temp code collided with the family code")
	}

	res, err := h.coord.Keypad(ctx, "front-door", iss.Code)
	if err != nil || !res.Verified || res.Scope != "temp" {
		t.Fatalf("expected temp match, got %+v, %v", res, err)
	}
	res, err = h.coord.Keypad(ctx, "front-door", iss.Code)
	if err != nil {
		t.Fatalf("Keypad: %v", err)
	}
	if res.Verified {
		t.Fatal("expected reused temp code to be rejected")
	}
	if h.door.Count() != 1 {
		t.Fatalf("expected 1 unlock, got %d", h.door.Count())
	}
}

func TestKeypad_WrongAndMalformedCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.coord.Keypad(ctx, "front-door", "654321")
	if err != nil {
		t.Fatalf("Keypad: %v", err)
	}
	if res.Verified || h.door.Count() != 0 {
		t.Fatalf("expected rejection without unlock, got %+v", res)
	}
	if _, err := h.coord.Keypad(ctx, "front-door", "12ab"); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestKeypad_LocksAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := h.coord.Keypad(ctx, "front-door", "654321")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if res.Verified {
			t.Fatalf("attempt %d: expected rejection", i)
		}
	}

	// Locked: even the right code is refused.
	if _, err := h.coord.Keypad(ctx, "front-door", "123456"); !errors.Is(err, service.ErrKeypadLocked) {
		t.Fatalf("expected ErrKeypadLocked, got %v", err)
	}
	if h.door.Count() != 0 {
		t.Fatalf("expected no unlock while locked, got %d", h.door.Count())
	}
	if !h.hasAction("door.keypad") {
		t.Fatalf("expected keypad audit events, got %v", h.actions())
	}
	last := h.events.Events()[len(h.events.Events())-1]
	if last.Reason != "locked_out" || last.Granted {
		t.Fatalf("expected a locked_out denial, got %+v", last)
	}

	// Other modules keep their own count.
	if res, err := h.coord.Keypad(ctx, "back-door", "123456"); err != nil || !res.Verified {
		t.Fatalf("expected back-door unaffected, got %+v, %v", res, err)
	}

	h.clock.Advance(4 * time.Minute)
	if _, err := h.coord.Keypad(ctx, "front-door", "123456"); !errors.Is(err, service.ErrKeypadLocked) {
		t.Fatalf("expected lock to hold for the full window, got %v", err)
	}
	h.clock.Advance(time.Minute + time.Second)
	if res, err := h.coord.Keypad(ctx, "front-door", "123456"); err != nil || !res.Verified {
		t.Fatalf("expected unlock after the lockout, got %+v, %v", res, err)
	}
}

func TestKeypad_MatchResetsFailureCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	guess := func(code string) service.KeypadResult {
		t.Helper()
		res, err := h.coord.Keypad(ctx, "front-door", code)
		if err != nil {
			t.Fatalf("Keypad(%s): %v", code, err)
		}
		return res
	}
	for i := 0; i < 4; i++ {
		guess("654321")
	}
	if !guess("123456").Verified {
		t.Fatal("expected family match")
	}
	for i := 0; i < 4; i++ {
		guess("654321")
	}
	if !guess("123456").Verified {
		t.Fatal("expected count to reset after a match")
	}
}

func TestKeypad_ConcurrentGuessesRespectCap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		judged int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.coord.Keypad(ctx, "front-door", "654321"); err == nil {
				mu.Lock()
				judged++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if judged > 5 {
		t.Fatalf("expected at most 5 codes checked, got %d", judged)
	}
}

func TestUnlock_Audited(t *testing.T) {
	h := newHarness(t)
	res := h.coord.Unlock(context.Background(), "garage", 0)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	evs := h.events.Events()
	if len(evs) != 1 || evs[0].Action != "door.unlock" || evs[0].ModuleID != "garage" {
		t.Fatalf("expected one door.unlock event for garage, got %+v", evs)
	}
}
