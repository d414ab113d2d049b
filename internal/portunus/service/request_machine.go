package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/audit"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/otp"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// Reasons recorded on requests that leave the happy path.
const (
	ReasonExpired          = "expired"
	ReasonOTPExpired       = "otp_expired"
	ReasonRejected         = "rejected_by_admin"
	ReasonTooManyAttempts  = "too_many_otp_attempts"
	ReasonAwaitingApproval = "awaiting_admin_approval"
	ReasonRegistered       = "registered_user"
)

type MachineConfig struct {
	RegisteredOTPTTL time.Duration
	GuestOTPTTL      time.Duration
	// ApprovalTTL bounds how long a request may sit INITIATED or
	// PENDING_ADMIN_APPROVAL.
	ApprovalTTL time.Duration
	// FaceWindow bounds the time between OTP verification and the face
	// sample.
	FaceWindow     time.Duration
	MaxOTPAttempts int
}

func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		RegisteredOTPTTL: 5 * time.Minute,
		GuestOTPTTL:      10 * time.Minute,
		ApprovalTTL:      30 * time.Minute,
		FaceWindow:       5 * time.Minute,
		MaxOTPAttempts:   5,
	}
}

func (c MachineConfig) withDefaults() MachineConfig {
	d := DefaultMachineConfig()
	if c.RegisteredOTPTTL <= 0 {
		c.RegisteredOTPTTL = d.RegisteredOTPTTL
	}
	if c.GuestOTPTTL <= 0 {
		c.GuestOTPTTL = d.GuestOTPTTL
	}
	if c.ApprovalTTL <= 0 {
		c.ApprovalTTL = d.ApprovalTTL
	}
	if c.FaceWindow <= 0 {
		c.FaceWindow = d.FaceWindow
	}
	if c.MaxOTPAttempts <= 0 {
		c.MaxOTPAttempts = d.MaxOTPAttempts
	}
	return c
}

// VisitorDetails is what a visitor supplies when submitting a request.
type VisitorDetails struct {
	Category    types.Category
	Phone       string
	VisitorName string
}

// RequestMachine owns the lifecycle of access requests. Every transition
// is a compare-and-set on the request's (status, version), so two callers
// racing on one request cannot both win. Expiry is evaluated lazily
// whenever a request is read.
type RequestMachine struct {
	requests store.AccessRequestStore
	users    store.UserStore
	otp      *otp.Authority
	audit    audit.Appender
	cfg      MachineConfig
	logger   *zap.Logger
	now      func() time.Time
}

type MachineOption func(*RequestMachine)

// WithClock overrides time.Now, for tests. The OTP authority should share
// the same clock.
func WithClock(now func() time.Time) MachineOption {
	return func(m *RequestMachine) { m.now = now }
}

func NewRequestMachine(
	rs store.AccessRequestStore,
	us store.UserStore,
	auth *otp.Authority,
	app audit.Appender,
	cfg MachineConfig,
	logger *zap.Logger,
	opts ...MachineOption,
) *RequestMachine {
	if app == nil {
		app = audit.NewSync(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &RequestMachine{
		requests: rs,
		users:    us,
		otp:      auth,
		audit:    app,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      utcNow,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ── Creation ─────────────────────────────────────────────────────────

// Open starts a request from a door module's QR scan. The request waits
// INITIATED until the visitor submits their details.
func (m *RequestMachine) Open(ctx context.Context, moduleID string) (store.AccessRequestRecord, error) {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return store.AccessRequestRecord{}, ErrInvalidModuleID
	}
	return m.create(ctx, moduleID)
}

// Submit supplies visitor details for an INITIATED request and routes it
// to the registered or the admin-approval path.
func (m *RequestMachine) Submit(ctx context.Context, id string, d VisitorDetails) (store.AccessRequestRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if err := requireStatus(rec, types.StatusInitiated); err != nil {
		return rec, err
	}
	return m.submit(ctx, rec, d)
}

// Create is Open and Submit in one step. moduleID may be empty for
// requests that do not start at a door.
func (m *RequestMachine) Create(ctx context.Context, moduleID string, d VisitorDetails) (store.AccessRequestRecord, error) {
	rec, err := m.create(ctx, strings.TrimSpace(moduleID))
	if err != nil {
		return rec, err
	}
	return m.submit(ctx, rec, d)
}

func (m *RequestMachine) create(ctx context.Context, moduleID string) (store.AccessRequestRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return store.AccessRequestRecord{}, fmt.Errorf("request: new id: %w", err)
	}

	now := m.now()
	rec := store.AccessRequestRecord{
		ID:        id.String(),
		ModuleID:  moduleID,
		Category:  types.CategoryUnknown,
		Status:    types.StatusInitiated,
		ExpiresAt: now.Add(m.cfg.ApprovalTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.requests.CreateRequest(ctx, rec); err != nil {
		return store.AccessRequestRecord{}, fmt.Errorf("request: create: %w", err)
	}
	m.emit(rec)
	return rec, nil
}

func (m *RequestMachine) submit(ctx context.Context, rec store.AccessRequestRecord, d VisitorDetails) (store.AccessRequestRecord, error) {
	if d.Category == "" {
		d.Category = types.CategoryUnknown
	}
	if _, err := types.ParseCategory(string(d.Category)); err != nil {
		return rec, invalid("category %q", d.Category)
	}

	next := rec
	next.Category = d.Category
	next.Phone = strings.TrimSpace(d.Phone)
	next.VisitorName = strings.TrimSpace(d.VisitorName)

	user, registered, err := m.registeredUser(ctx, next.Phone, d.Category)
	if err != nil {
		return rec, err
	}
	if registered {
		next.UserID = user.ID
		next.Reason = ReasonRegistered
		return m.issueOTP(ctx, rec, next, m.cfg.RegisteredOTPTTL)
	}

	next.Status = types.StatusPendingAdminApproval
	next.Reason = ReasonAwaitingApproval
	next.ExpiresAt = m.now().Add(m.cfg.ApprovalTTL)
	return m.transition(ctx, rec, next)
}

// registeredUser reports whether phone belongs to a user registered under
// cat. A phone registered under another category is not registered for
// this request, and only categories with a group code skip approval.
func (m *RequestMachine) registeredUser(ctx context.Context, phone string, cat types.Category) (store.UserRecord, bool, error) {
	if phone == "" {
		return store.UserRecord{}, false, nil
	}
	u, err := m.users.FindUserByPhone(ctx, phone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.UserRecord{}, false, nil
	case err != nil:
		return store.UserRecord{}, false, fmt.Errorf("request: lookup phone: %w", err)
	}
	return u, u.Category == cat && cat.HasGroupCode(), nil
}

// ── Admin decisions ──────────────────────────────────────────────────

// Approve mints a guest OTP for a request waiting on an administrator.
func (m *RequestMachine) Approve(ctx context.Context, id string) (store.AccessRequestRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if err := requireStatus(rec, types.StatusPendingAdminApproval); err != nil {
		return rec, err
	}
	next := rec
	next.Reason = ""
	return m.issueOTP(ctx, rec, next, m.cfg.GuestOTPTTL)
}

// Reject ends a live request. A request still awaiting approval becomes
// DENIED; one already past approval becomes REJECTED and its OTP is
// revoked.
func (m *RequestMachine) Reject(ctx context.Context, id, reason string) (store.AccessRequestRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if err := requireLive(rec); err != nil {
		return rec, err
	}

	next := rec
	next.Status = types.StatusRejected
	if rec.Status == types.StatusPendingAdminApproval {
		next.Status = types.StatusDenied
	}
	next.Reason = strings.TrimSpace(reason)
	if next.Reason == "" {
		next.Reason = ReasonRejected
	}
	out, err := m.transition(ctx, rec, closeOut(next))
	if err == nil {
		m.revoke(ctx, rec)
	}
	return out, err
}

// ── OTP stage ────────────────────────────────────────────────────────

// VerifyOTP checks code against the request's live OTP. A mismatch leaves
// the request in OTP_ISSUED for a retry, until MaxOTPAttempts mismatches
// deny it. The returned error carries the otp package sentinel.
func (m *RequestMachine) VerifyOTP(ctx context.Context, id, code string) (store.AccessRequestRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if err := requireStatus(rec, types.StatusOTPIssued); err != nil {
		return rec, err
	}

	_, verr := m.otp.Verify(ctx, otp.Scoped(rec.OTPSubject), strings.TrimSpace(code))
	next := rec
	switch {
	case verr == nil:
		next.Status = types.StatusOTPVerified
		next.OTPVerified = true
		next.OTPCode = ""
		next.Reason = ""
		next.ExpiresAt = m.now().Add(m.cfg.FaceWindow)
		return m.transition(ctx, rec, next)

	case errors.Is(verr, otp.ErrMismatch):
		next.OTPAttempts++
		m.logger.Info("otp mismatch",
			zap.String("request_id", rec.ID),
			zap.Int("attempts", next.OTPAttempts))
		if next.OTPAttempts >= m.cfg.MaxOTPAttempts {
			next.Status = types.StatusDenied
			next.Reason = ReasonTooManyAttempts
			next = closeOut(next)
		}
		out, err := m.transition(ctx, rec, next)
		if err != nil {
			return out, err
		}
		if out.Status == types.StatusDenied {
			m.revoke(ctx, rec)
		}
		return out, verr

	case errors.Is(verr, otp.ErrExpired):
		next.Status = types.StatusExpired
		next.Reason = ReasonOTPExpired
		out, err := m.transition(ctx, rec, closeOut(next))
		if err != nil {
			return out, err
		}
		return out, verr

	case errors.Is(verr, otp.ErrAlreadyUsed), errors.Is(verr, otp.ErrNotFound):
		return rec, verr
	}
	return rec, fmt.Errorf("request: verify otp: %w", verr)
}

func (m *RequestMachine) issueOTP(ctx context.Context, prev, next store.AccessRequestRecord, ttl time.Duration) (store.AccessRequestRecord, error) {
	subject := otpSubject(next)
	iss, err := m.otp.Issue(ctx, subject, ttl)
	if err != nil {
		return prev, fmt.Errorf("request: issue otp: %w", err)
	}

	next.Status = types.StatusOTPIssued
	next.OTPSubject = subject
	next.OTPCode = iss.Code
	next.OTPAttempts = 0
	next.ExpiresAt = iss.ExpiresAt

	out, err := m.transition(ctx, prev, next)
	if err != nil {
		m.revoke(ctx, next)
	}
	return out, err
}

// otpSubject binds a request's OTP to that request alone. Two live
// requests for one phone each hold their own code; verifying, expiring or
// revoking one never touches the other.
func otpSubject(rec store.AccessRequestRecord) string {
	if rec.Phone != "" {
		return rec.Phone + "/" + rec.ID
	}
	return "request:" + rec.ID
}

func (m *RequestMachine) revoke(ctx context.Context, rec store.AccessRequestRecord) {
	if rec.OTPSubject == "" || rec.OTPVerified {
		return
	}
	if err := m.otp.Revoke(ctx, rec.OTPSubject); err != nil {
		m.logger.Warn("otp revoke failed", zap.String("request_id", rec.ID), zap.Error(err))
	}
}

// ── Face stage ───────────────────────────────────────────────────────

type faceOutcome struct {
	granted       bool
	matchedUserID string
	confidence    float64
	reason        string
}

// finishFace moves an OTP_VERIFIED request to its terminal face state.
func (m *RequestMachine) finishFace(ctx context.Context, prev store.AccessRequestRecord, o faceOutcome) (store.AccessRequestRecord, error) {
	if err := requireStatus(prev, types.StatusOTPVerified); err != nil {
		return prev, err
	}

	next := prev
	next.MatchedUserID = o.matchedUserID
	next.Confidence = o.confidence
	next.Reason = o.reason
	if o.granted {
		now := m.now()
		next.Status = types.StatusAccessGranted
		next.FaceVerified = true
		next.AccessGranted = true
		next.AccessTime = &now
	} else {
		next.Status = types.StatusFaceVerificationFailed
	}
	return m.transition(ctx, prev, closeOut(next))
}

// ── Reads ────────────────────────────────────────────────────────────

// Get returns the request, first expiring it if its stage deadline has
// passed.
func (m *RequestMachine) Get(ctx context.Context, id string) (store.AccessRequestRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.AccessRequestRecord{}, fmt.Errorf("request: %w", ErrNotFound)
	}
	rec, err := m.requests.GetRequest(ctx, id)
	if err != nil {
		return rec, storeErr("request: get "+id, err)
	}
	return m.refresh(ctx, rec)
}

// List returns requests in creation order, optionally filtered by status.
// Filtering happens after lazy expiry, so a lapsed pending request is not
// listed as pending.
func (m *RequestMachine) List(ctx context.Context, status types.RequestStatus) ([]store.AccessRequestRecord, error) {
	recs, err := m.requests.ListRequests(ctx, func(r store.AccessRequestRecord) bool {
		return status == "" || r.Status == status
	})
	if err != nil {
		return nil, fmt.Errorf("request: list: %w", err)
	}

	out := recs[:0]
	for _, r := range recs {
		r, err = m.refresh(ctx, r)
		if err != nil {
			return nil, err
		}
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListPending returns requests awaiting an administrator.
func (m *RequestMachine) ListPending(ctx context.Context) ([]store.AccessRequestRecord, error) {
	return m.List(ctx, types.StatusPendingAdminApproval)
}

func (m *RequestMachine) expired(rec store.AccessRequestRecord) bool {
	return !rec.Status.Terminal() && !rec.ExpiresAt.IsZero() && m.now().After(rec.ExpiresAt)
}

func (m *RequestMachine) refresh(ctx context.Context, rec store.AccessRequestRecord) (store.AccessRequestRecord, error) {
	if !m.expired(rec) {
		return rec, nil
	}

	next := rec
	next.Status = types.StatusExpired
	next.Reason = ReasonExpired
	out, err := m.transition(ctx, rec, closeOut(next))
	if errors.Is(err, ErrConflict) {
		// Someone else moved it first; report whatever they left.
		cur, gerr := m.requests.GetRequest(ctx, rec.ID)
		if gerr != nil {
			return rec, storeErr("request: get "+rec.ID, gerr)
		}
		return cur, nil
	}
	if err != nil {
		return rec, err
	}
	m.revoke(ctx, rec)
	return out, nil
}

// ── Transitions ──────────────────────────────────────────────────────

func (m *RequestMachine) transition(ctx context.Context, prev, next store.AccessRequestRecord) (store.AccessRequestRecord, error) {
	next.UpdatedAt = m.now()
	if err := m.requests.SwapRequest(ctx, prev, next); err != nil {
		if !errors.Is(err, store.ErrStale) && !errors.Is(err, store.ErrNotFound) {
			m.logger.Error("request swap failed", zap.String("request_id", prev.ID), zap.Error(err))
		}
		return prev, storeErr("request: update "+prev.ID, err)
	}
	next.Version = prev.Version + 1
	if next.Status != prev.Status {
		m.emit(next)
	}
	return next, nil
}

func (m *RequestMachine) emit(rec store.AccessRequestRecord) {
	ev := store.AccessEventRecord{
		RequestID: rec.ID,
		ModuleID:  rec.ModuleID,
		Action:    "request." + strings.ToLower(string(rec.Status)),
		Category:  rec.Category,
		PhoneHash: audit.HashPhone(rec.Phone),
		Granted:   rec.AccessGranted,
		Reason:    rec.Reason,
		DecidedAt: rec.UpdatedAt,
	}
	if rec.Status == types.StatusAccessGranted || rec.Status == types.StatusFaceVerificationFailed {
		c := rec.Confidence
		ev.Confidence = &c
	}
	m.audit.Append(ev)
}

// closeOut clears the fields that only mean something on a live request.
func closeOut(rec store.AccessRequestRecord) store.AccessRequestRecord {
	rec.OTPCode = ""
	rec.ExpiresAt = time.Time{}
	return rec
}

func requireStatus(rec store.AccessRequestRecord, want types.RequestStatus) error {
	if rec.Status == want {
		return nil
	}
	if rec.Status == types.StatusExpired {
		return fmt.Errorf("request %s: %w", rec.ID, ErrRequestExpired)
	}
	return fmt.Errorf("request %s is %s, want %s: %w", rec.ID, rec.Status, want, ErrInvalidState)
}

func requireLive(rec store.AccessRequestRecord) error {
	if !rec.Status.Terminal() {
		return nil
	}
	if rec.Status == types.StatusExpired {
		return fmt.Errorf("request %s: %w", rec.ID, ErrRequestExpired)
	}
	return fmt.Errorf("request %s is %s: %w", rec.ID, rec.Status, ErrInvalidState)
}
