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
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/lockmap"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// UserDetails registers a new user.
type UserDetails struct {
	Name     string
	Phone    string
	Category types.Category
}

// UserPatch edits a user; nil fields are left alone.
type UserPatch struct {
	Name     *string
	Phone    *string
	Category *types.Category
	IsAdmin  *bool
}

// Enrollment manages users and their face profiles. Operations on one
// user are serialised so a re-enrollment racing a delete cannot leave a
// user pointing at a profile that no longer exists.
type Enrollment struct {
	users    store.UserStore
	profiles store.FaceProfileStore
	audit    audit.Appender
	locks    *lockmap.Map
	logger   *zap.Logger
	now      func() time.Time
}

func NewEnrollment(us store.UserStore, ps store.FaceProfileStore, app audit.Appender, logger *zap.Logger) *Enrollment {
	if app == nil {
		app = audit.NewSync(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enrollment{
		users:    us,
		profiles: ps,
		audit:    app,
		locks:    lockmap.New(),
		logger:   logger,
		now:      utcNow,
	}
}

// ── Users ────────────────────────────────────────────────────────────

func (e *Enrollment) RegisterUser(ctx context.Context, d UserDetails) (store.UserRecord, error) {
	name := strings.TrimSpace(d.Name)
	phone := strings.TrimSpace(d.Phone)
	if name == "" {
		return store.UserRecord{}, invalid("name is required")
	}
	if phone == "" {
		return store.UserRecord{}, invalid("phone is required")
	}
	if _, err := types.ParseCategory(string(d.Category)); err != nil || d.Category == "" {
		return store.UserRecord{}, invalid("category %q", d.Category)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("user: new id: %w", err)
	}
	now := e.now()
	rec := store.UserRecord{
		ID:        id.String(),
		Name:      name,
		Phone:     phone,
		Category:  d.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.users.PutUser(ctx, rec); err != nil {
		return store.UserRecord{}, userErr("user: register", err)
	}
	return rec, nil
}

func (e *Enrollment) GetUser(ctx context.Context, id string) (store.UserRecord, error) {
	u, err := e.users.GetUser(ctx, strings.TrimSpace(id))
	if err != nil {
		return u, storeErr("user: get", err)
	}
	return u, nil
}

// ListUsers returns every user, optionally only those in cat.
func (e *Enrollment) ListUsers(ctx context.Context, cat types.Category) ([]store.UserRecord, error) {
	us, err := e.users.ListUsers(ctx, func(u store.UserRecord) bool {
		return cat == "" || u.Category == cat
	})
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	return us, nil
}

func (e *Enrollment) UpdateUser(ctx context.Context, id string, p UserPatch) (store.UserRecord, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	u, err := e.users.GetUser(ctx, id)
	if err != nil {
		return u, storeErr("user: update", err)
	}

	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return u, invalid("name must not be empty")
		}
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		if strings.TrimSpace(*p.Phone) == "" {
			return u, invalid("phone must not be empty")
		}
		u.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Category != nil {
		if _, err := types.ParseCategory(string(*p.Category)); err != nil || *p.Category == "" {
			return u, invalid("category %q", *p.Category)
		}
		u.Category = *p.Category
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
	u.UpdatedAt = e.now()

	if err := e.users.PutUser(ctx, u); err != nil {
		return u, userErr("user: update", err)
	}
	return u, nil
}

// DeleteUser removes a user and the face profile they own.
func (e *Enrollment) DeleteUser(ctx context.Context, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	u, err := e.users.GetUser(ctx, id)
	if err != nil {
		return storeErr("user: delete", err)
	}
	if err := e.deleteProfile(ctx, u.FaceProfileRef); err != nil {
		return err
	}
	if err := e.users.DeleteUser(ctx, id); err != nil {
		return storeErr("user: delete", err)
	}

	e.audit.Append(store.AccessEventRecord{
		Action:    "user.deleted",
		Category:  u.Category,
		PhoneHash: audit.HashPhone(u.Phone),
		Reason:    "deleted_by_admin",
	})
	return nil
}

// ── Face profiles ────────────────────────────────────────────────────

// EnrollFace creates a profile for the user from samples, replacing and
// deleting any profile they had before.
func (e *Enrollment) EnrollFace(ctx context.Context, userID string, kind face.Kind, samples []store.FaceSampleRecord) (store.FaceProfileRecord, error) {
	if kind == "" {
		kind = face.KindLandmarks
	}
	if !kind.Valid() {
		return store.FaceProfileRecord{}, invalid("face kind %q", kind)
	}
	if err := validateSamples(kind, samples); err != nil {
		return store.FaceProfileRecord{}, err
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	u, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return store.FaceProfileRecord{}, storeErr("face: enroll", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return store.FaceProfileRecord{}, fmt.Errorf("face: new id: %w", err)
	}
	now := e.now()
	prof := store.FaceProfileRecord{
		ID:          id.String(),
		OwnerUserID: u.ID,
		Kind:        kind,
		Samples:     make([]store.FaceSampleRecord, len(samples)),
		CreatedAt:   now,
	}
	for i, s := range samples {
		if s.CapturedAt.IsZero() {
			s.CapturedAt = now
		}
		prof.Samples[i] = s
	}

	if err := e.profiles.CreateProfile(ctx, prof); err != nil {
		return store.FaceProfileRecord{}, fmt.Errorf("face: create profile: %w", err)
	}

	old := u.FaceProfileRef
	u.FaceProfileRef = prof.ID
	u.UpdatedAt = now
	if err := e.users.PutUser(ctx, u); err != nil {
		_ = e.profiles.DeleteProfile(ctx, prof.ID)
		return store.FaceProfileRecord{}, userErr("face: link profile", err)
	}

	if old != "" {
		if err := e.profiles.DeleteProfile(ctx, old); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("old face profile not deleted", zap.String("face_id", old), zap.Error(err))
		}
	}
	return prof, nil
}

// GetFace returns the user's profile. A ref to a missing profile is
// repaired and reported as no profile.
func (e *Enrollment) GetFace(ctx context.Context, userID string) (store.FaceProfileRecord, error) {
	u, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return store.FaceProfileRecord{}, storeErr("face: get", err)
	}
	if u.FaceProfileRef == "" {
		return store.FaceProfileRecord{}, ErrNoFaceProfile
	}
	p, err := e.profiles.GetProfile(ctx, u.FaceProfileRef)
	if errors.Is(err, store.ErrNotFound) {
		e.clearRef(ctx, userID, u.FaceProfileRef)
		return store.FaceProfileRecord{}, ErrNoFaceProfile
	}
	if err != nil {
		return store.FaceProfileRecord{}, fmt.Errorf("face: get profile: %w", err)
	}
	return p, nil
}

// DeleteFace removes the user's profile and clears their reference to it.
func (e *Enrollment) DeleteFace(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	u, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return storeErr("face: delete", err)
	}
	if u.FaceProfileRef == "" {
		return ErrNoFaceProfile
	}
	if err := e.deleteProfile(ctx, u.FaceProfileRef); err != nil {
		return err
	}
	u.FaceProfileRef = ""
	u.UpdatedAt = e.now()
	if err := e.users.PutUser(ctx, u); err != nil {
		return userErr("face: clear ref", err)
	}
	return nil
}

// VerifyUserFace checks a probe against the user's own profile.
func (e *Enrollment) VerifyUserFace(ctx context.Context, userID string, probe face.Probe) (face.Verification, error) {
	if err := validateProbe(probe); err != nil {
		return face.Verification{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p, err := e.GetFace(ctx, userID)
	if err != nil {
		return face.Verification{}, err
	}
	v, err := face.Verify(probe, p.Template())
	if errors.Is(err, face.ErrProbeKind) {
		return v, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return v, err
}

// deleteProfile deletes id, treating an already-missing profile as done.
func (e *Enrollment) deleteProfile(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := e.profiles.DeleteProfile(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("face: delete profile: %w", err)
	}
	return nil
}

func (e *Enrollment) clearRef(ctx context.Context, userID, ref string) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	u, err := e.users.GetUser(ctx, userID)
	if err != nil || u.FaceProfileRef != ref {
		return
	}
	u.FaceProfileRef = ""
	u.UpdatedAt = e.now()
	if err := e.users.PutUser(ctx, u); err != nil {
		e.logger.Warn("dangling face ref not cleared", zap.String("user_id", userID), zap.Error(err))
	}
}

func validateSamples(kind face.Kind, samples []store.FaceSampleRecord) error {
	pol := face.PolicyFor(kind)
	if len(samples) < pol.MinSamples {
		return fmt.Errorf("%w: %s profiles need at least %d samples, got %d",
			face.ErrInsufficientEnrollment, kind, pol.MinSamples, len(samples))
	}
	for i, s := range samples {
		switch kind {
		case face.KindEmbedding:
			if err := face.ValidateEmbedding(s.Embedding); err != nil {
				return invalid("sample %d: descriptor must be %d finite values", i, face.EmbeddingSize)
			}
		default:
			if err := face.Validate(s.Landmarks); err != nil {
				return invalid("sample %d: landmarks are degenerate", i)
			}
			if len(s.Landmarks) != len(samples[0].Landmarks) {
				return invalid("sample %d: expected %d landmarks, got %d", i, len(samples[0].Landmarks), len(s.Landmarks))
			}
		}
	}
	return nil
}

func userErr(op string, err error) error {
	if errors.Is(err, store.ErrExists) {
		return fmt.Errorf("%s: %w", op, ErrPhoneTaken)
	}
	return storeErr(op, err)
}
