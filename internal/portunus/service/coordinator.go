package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/audit"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/otp"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

const defaultUnlockMs = 5000

// FaceDecision is the outcome of a request's face stage. Unlock is set
// only when access was granted.
type FaceDecision struct {
	Request      store.AccessRequestRecord
	Verification face.Verification
	Unlock       *actuator.Result
}

// IdentifyResult is the outcome of an anonymous door identification.
type IdentifyResult struct {
	Identified   bool
	User         store.UserRecord
	Verification face.Verification
	Unlock       *actuator.Result
}

// KeypadResult is the outcome of a code typed at a door keypad. Scope is
// "temp" or the matching category.
type KeypadResult struct {
	Verified bool
	Scope    string
	Unlock   *actuator.Result
}

// Coordinator drives the face stage of requests and the door-side flows
// that end in an unlock. The access decision and its audit record stand
// regardless of what the actuator reports.
type Coordinator struct {
	machine  *RequestMachine
	users    store.UserStore
	profiles store.FaceProfileStore
	otp      *otp.Authority
	door     actuator.Actuator
	audit    audit.Appender
	unlockMs int
	keypad   *keypadGuard
	logger   *zap.Logger

	keypadMax     int
	keypadLockout time.Duration
	now           func() time.Time
}

type CoordinatorOption func(*Coordinator)

// WithKeypadLockout locks a module's keypad for lockout after maxFailures
// consecutive wrong codes.
func WithKeypadLockout(maxFailures int, lockout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.keypadMax = maxFailures
		c.keypadLockout = lockout
	}
}

// WithCoordinatorClock overrides time.Now, for tests.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(
	m *RequestMachine,
	us store.UserStore,
	ps store.FaceProfileStore,
	auth *otp.Authority,
	door actuator.Actuator,
	app audit.Appender,
	unlockMs int,
	logger *zap.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	if door == nil {
		door = actuator.Simulated{}
	}
	if app == nil {
		app = audit.NewSync(logger)
	}
	if unlockMs <= 0 {
		unlockMs = defaultUnlockMs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		machine:  m,
		users:    us,
		profiles: ps,
		otp:      auth,
		door:     door,
		audit:    app,
		unlockMs: unlockMs,
		logger:   logger,
		now:      utcNow,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.keypad = newKeypadGuard(c.keypadMax, c.keypadLockout, c.now)
	return c
}

// VerifyFace runs the single-shot face stage of an OTP_VERIFIED request.
// A request tied to a registered user is checked against that user's
// profile only, and fails with insufficient_enrollment when there is none.
// A visitor with no user record is identified against every enrolled
// profile. A malformed probe is rejected without consuming the stage.
func (c *Coordinator) VerifyFace(ctx context.Context, id string, probe face.Probe) (FaceDecision, error) {
	rec, err := c.machine.Get(ctx, id)
	if err != nil {
		return FaceDecision{Request: rec}, err
	}
	if err := requireStatus(rec, types.StatusOTPVerified); err != nil {
		return FaceDecision{Request: rec}, err
	}

	v, userID, err := c.match(ctx, rec, probe)
	switch {
	case errors.Is(err, face.ErrProbeKind), errors.Is(err, face.ErrDegenerateInput):
		return FaceDecision{Request: rec}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case err != nil && !errors.Is(err, face.ErrInsufficientEnrollment):
		return FaceDecision{Request: rec}, err
	}

	out := faceOutcome{
		granted:    v.Verified,
		confidence: v.Confidence,
		reason:     string(v.Reason),
	}
	if v.Verified {
		out.matchedUserID = userID
	}

	next, err := c.machine.finishFace(ctx, rec, out)
	if err != nil {
		return FaceDecision{Request: next, Verification: v}, err
	}

	dec := FaceDecision{Request: next, Verification: v}
	if next.AccessGranted {
		res := c.unlock(ctx, next.ModuleID, c.unlockMs, next.ID, next.Category)
		dec.Unlock = &res
	} else {
		c.logger.Info("face verification failed",
			zap.String("request_id", next.ID),
			zap.String("reason", next.Reason),
			zap.Float64("confidence", v.Confidence))
	}
	return dec, nil
}

// match resolves which profile the probe is checked against.
func (c *Coordinator) match(ctx context.Context, rec store.AccessRequestRecord, probe face.Probe) (face.Verification, string, error) {
	if err := validateProbe(probe); err != nil {
		return face.Verification{}, "", err
	}

	u, ok, err := c.requestUser(ctx, rec)
	if err != nil {
		return face.Verification{}, "", err
	}
	if ok {
		return c.matchUser(ctx, u, probe)
	}

	id, user, err := c.identify(ctx, probe)
	if err != nil {
		return face.Verification{}, "", err
	}
	if id.Evaluated == 0 {
		v := face.Verification{Reason: face.ReasonInsufficientEnrollment}
		return v, "", face.ErrInsufficientEnrollment
	}
	return id.Verification, user.ID, nil
}

// matchUser verifies probe against u's own profile and nobody else's.
func (c *Coordinator) matchUser(ctx context.Context, u store.UserRecord, probe face.Probe) (face.Verification, string, error) {
	insufficient := face.Verification{Reason: face.ReasonInsufficientEnrollment}
	if u.FaceProfileRef == "" {
		return insufficient, "", face.ErrInsufficientEnrollment
	}
	p, err := c.profiles.GetProfile(ctx, u.FaceProfileRef)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.logger.Warn("dangling face profile ref",
			zap.String("user_id", u.ID), zap.String("face_id", u.FaceProfileRef))
		return insufficient, "", face.ErrInsufficientEnrollment
	case err != nil:
		return face.Verification{}, "", fmt.Errorf("face: load profile: %w", err)
	}
	v, verr := face.Verify(probe, p.Template())
	return v, u.ID, verr
}

func (c *Coordinator) requestUser(ctx context.Context, rec store.AccessRequestRecord) (store.UserRecord, bool, error) {
	var (
		u   store.UserRecord
		err error
	)
	switch {
	case rec.UserID != "":
		u, err = c.users.GetUser(ctx, rec.UserID)
	case rec.Phone != "":
		u, err = c.users.FindUserByPhone(ctx, rec.Phone)
	default:
		return u, false, nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return u, false, nil
	case err != nil:
		return u, false, fmt.Errorf("face: lookup user: %w", err)
	}
	return u, true, nil
}

// identify runs best-match search across every enrolled profile.
func (c *Coordinator) identify(ctx context.Context, probe face.Probe) (face.Identification, store.UserRecord, error) {
	profiles, err := c.profiles.ListProfiles(ctx, nil)
	if err != nil {
		return face.Identification{}, store.UserRecord{}, fmt.Errorf("face: list profiles: %w", err)
	}
	templates := make([]face.Template, len(profiles))
	owners := make(map[string]string, len(profiles))
	for i, p := range profiles {
		templates[i] = p.Template()
		owners[p.ID] = p.OwnerUserID
	}

	id := face.Identify(probe, templates)
	if !id.Identified {
		return id, store.UserRecord{}, nil
	}
	u, err := c.users.GetUser(ctx, owners[id.TemplateID])
	if err != nil {
		// An orphaned profile cannot open the door.
		c.logger.Warn("identified profile has no owner",
			zap.String("face_id", id.TemplateID), zap.Error(err))
		id.Identified = false
		id.Verification.Verified = false
		id.Verification.Reason = face.ReasonLowConfidence
		return id, store.UserRecord{}, nil
	}
	return id, u, nil
}

// Identify matches an anonymous probe at a door against every enrolled
// profile and unlocks on a match.
func (c *Coordinator) Identify(ctx context.Context, moduleID string, probe face.Probe) (IdentifyResult, error) {
	if err := validateProbe(probe); err != nil {
		return IdentifyResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	id, user, err := c.identify(ctx, probe)
	if err != nil {
		return IdentifyResult{}, err
	}

	res := IdentifyResult{Identified: id.Identified, User: user, Verification: id.Verification}
	if id.Evaluated == 0 {
		res.Verification.Reason = face.ReasonInsufficientEnrollment
	}

	conf := res.Verification.Confidence
	c.audit.Append(store.AccessEventRecord{
		ModuleID:   strings.TrimSpace(moduleID),
		Action:     "door.identify",
		Category:   user.Category,
		PhoneHash:  audit.HashPhone(user.Phone),
		Granted:    id.Identified,
		Reason:     string(res.Verification.Reason),
		Confidence: &conf,
	})

	if id.Identified {
		u := c.unlock(ctx, moduleID, c.unlockMs, "", user.Category)
		res.Unlock = &u
	}
	return res, nil
}

// Keypad checks a code typed at a door: the admin temp code, then the
// group codes. A match unlocks the door. Repeated wrong codes lock the
// module's keypad; while locked every code is refused with
// ErrKeypadLocked.
func (c *Coordinator) Keypad(ctx context.Context, moduleID, code string) (KeypadResult, error) {
	moduleID = strings.TrimSpace(moduleID)
	code = strings.TrimSpace(code)
	if !otp.ValidCode(code) {
		return KeypadResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, otp.ErrInvalidCode)
	}

	if until, err := c.keypad.admit(moduleID); err != nil {
		c.audit.Append(store.AccessEventRecord{
			ModuleID: moduleID,
			Action:   "door.keypad",
			Reason:   "locked_out",
		})
		return KeypadResult{}, fmt.Errorf("module %q until %s: %w", moduleID, until.Format(time.RFC3339), err)
	}

	res, err := c.otp.VerifyKeypad(ctx, code)
	if err != nil && res.Reason == "" {
		c.keypad.release(moduleID)
		return KeypadResult{}, err
	}
	if c.keypad.settle(moduleID, res.Matched) {
		c.logger.Warn("keypad locked", zap.String("module_id", moduleID))
	}

	out := KeypadResult{Verified: res.Matched}
	var cat types.Category
	switch {
	case !res.Matched:
	case res.Subject.Kind == otp.KindGroup:
		cat = res.Subject.Category
		out.Scope = string(cat)
	default:
		out.Scope = "temp"
	}

	c.audit.Append(store.AccessEventRecord{
		ModuleID: moduleID,
		Action:   "door.keypad",
		Category: cat,
		Granted:  res.Matched,
		Reason:   string(res.Reason),
	})
	if !res.Matched {
		c.logger.Info("keypad code rejected", zap.String("module_id", moduleID))
		return out, nil
	}

	u := c.unlock(ctx, moduleID, c.unlockMs, "", cat)
	out.Unlock = &u
	return out, nil
}

// Unlock opens a door on an administrator's direct order.
func (c *Coordinator) Unlock(ctx context.Context, moduleID string, durationMs int) actuator.Result {
	if durationMs <= 0 {
		durationMs = c.unlockMs
	}
	return c.unlock(ctx, moduleID, durationMs, "", "")
}

func (c *Coordinator) unlock(ctx context.Context, moduleID string, durationMs int, requestID string, cat types.Category) actuator.Result {
	moduleID = strings.TrimSpace(moduleID)
	res := c.door.Unlock(ctx, moduleID, durationMs)
	simulated := res.Simulated
	c.audit.Append(store.AccessEventRecord{
		RequestID: requestID,
		ModuleID:  moduleID,
		Action:    "door.unlock",
		Category:  cat,
		Granted:   res.OK,
		Reason:    res.Message,
		Simulated: &simulated,
	})
	return res
}

func validateProbe(p face.Probe) error {
	switch {
	case len(p.Landmarks) > 0 && len(p.Embedding) > 0:
		return face.ErrProbeKind
	case len(p.Landmarks) > 0:
		return face.Validate(p.Landmarks)
	case len(p.Embedding) > 0:
		return face.ValidateEmbedding(p.Embedding)
	}
	return face.ErrProbeKind
}
