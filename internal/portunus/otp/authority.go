// Package otp issues and verifies one-time codes. Two code families share
// one interface: scoped codes (single use, time limited, one live code per
// subject) and group codes (long-lived shared secrets per category that
// verification never consumes). Subject is the tag that selects which.
package otp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/lockmap"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

var (
	ErrNotFound       = errors.New("otp: no code issued")
	ErrExpired        = errors.New("otp: code expired")
	ErrAlreadyUsed    = errors.New("otp: code already used")
	ErrMismatch       = errors.New("otp: code mismatch")
	ErrInvalidCode    = errors.New("otp: code must be six digits")
	ErrInvalidSubject = errors.New("otp: invalid subject")
)

// TempKey is the scoped subject for administrator-issued temporary codes.
const TempKey = "TEMP"

type Kind int

const (
	KindScoped Kind = iota + 1
	KindGroup
)

// Subject names the owner of a code. Exactly one of Key (scoped) or
// Category (group) is meaningful, chosen by Kind.
type Subject struct {
	Kind     Kind
	Key      string
	Category types.Category
}

func Scoped(key string) Subject {
	return Subject{Kind: KindScoped, Key: strings.TrimSpace(key)}
}

func Group(cat types.Category) Subject {
	return Subject{Kind: KindGroup, Category: cat}
}

func Temp() Subject {
	return Scoped(TempKey)
}

func (s Subject) String() string {
	if s.Kind == KindGroup {
		return "group:" + string(s.Category)
	}
	return "scoped:" + s.Key
}

// Reason explains a verification outcome.
type Reason string

const (
	ReasonMatched     Reason = "matched"
	ReasonNotFound    Reason = "not_found"
	ReasonExpired     Reason = "expired"
	ReasonAlreadyUsed Reason = "already_used"
	ReasonMismatch    Reason = "mismatch"
	ReasonUnknown     Reason = "unknown_group"
)

type Result struct {
	Matched bool
	Subject Subject
	Reason  Reason
}

// Issued is a freshly minted scoped code. Code is the only place the
// plaintext ever appears.
type Issued struct {
	Subject   Subject
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Authority struct {
	store  store.OTPStore
	groups *GroupCodes
	locks  *lockmap.Map
	now    func() time.Time
	random io.Reader
}

type Option func(*Authority)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithRandom overrides crypto/rand as the code source, for tests.
func WithRandom(r io.Reader) Option {
	return func(a *Authority) { a.random = r }
}

func NewAuthority(st store.OTPStore, groups *GroupCodes, opts ...Option) *Authority {
	if groups == nil {
		groups = NewGroupCodes(0)
	}
	a := &Authority{
		store:  st,
		groups: groups,
		locks:  lockmap.New(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Authority) Groups() *GroupCodes { return a.groups }

// Issue mints a scoped code for key, replacing whatever record the key
// held before.
func (a *Authority) Issue(ctx context.Context, key string, ttl time.Duration) (Issued, error) {
	subj := Scoped(key)
	if subj.Key == "" || ttl <= 0 {
		return Issued{}, ErrInvalidSubject
	}

	code, err := Generate(a.random)
	if err != nil {
		return Issued{}, err
	}

	unlock := a.locks.Lock(subj.Key)
	defer unlock()

	now := a.now()
	iss := Issued{Subject: subj, Code: code, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	err = a.store.UpdateOTP(ctx, subj.Key, func(rec *store.OTPRecord, _ bool) error {
		*rec = store.OTPRecord{
			SubjectKey: subj.Key,
			CodeHash:   Hash(code),
			CreatedAt:  iss.CreatedAt,
			ExpiresAt:  iss.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return Issued{}, fmt.Errorf("otp: issue %s: %w", subj, err)
	}
	return iss, nil
}

// IssueTemp mints the administrator temporary code.
func (a *Authority) IssueTemp(ctx context.Context, ttl time.Duration) (Issued, error) {
	return a.Issue(ctx, TempKey, ttl)
}

// Verify checks code against subj. A matching scoped code is consumed; a
// group code never is. Failures carry one of the package's sentinel
// errors; any other error is a persistence fault.
func (a *Authority) Verify(ctx context.Context, subj Subject, code string) (Result, error) {
	switch subj.Kind {
	case KindGroup:
		err := a.groups.Verify(subj.Category, code)
		return Result{Matched: err == nil, Subject: subj, Reason: reasonFor(err)}, err
	case KindScoped:
		return a.verifyScoped(ctx, subj, code)
	}
	return Result{Subject: subj}, ErrInvalidSubject
}

func (a *Authority) verifyScoped(ctx context.Context, subj Subject, code string) (Result, error) {
	if subj.Key == "" {
		return Result{Subject: subj}, ErrInvalidSubject
	}

	unlock := a.locks.Lock(subj.Key)
	defer unlock()

	now := a.now()
	err := a.store.UpdateOTP(ctx, subj.Key, func(rec *store.OTPRecord, found bool) error {
		switch {
		case !found:
			return ErrNotFound
		case now.After(rec.ExpiresAt):
			return ErrExpired
		case rec.Used:
			return ErrAlreadyUsed
		case !Equal(code, rec.CodeHash):
			return ErrMismatch
		}
		rec.Used = true
		rec.UsedAt = &now
		return nil
	})

	res := Result{Matched: err == nil, Subject: subj, Reason: reasonFor(err)}
	if err != nil && res.Reason == "" {
		return res, fmt.Errorf("otp: verify %s: %w", subj, err)
	}
	return res, err
}

// VerifyKeypad accepts a code typed at a door keypad: the temporary admin
// code first, then every group code.
func (a *Authority) VerifyKeypad(ctx context.Context, code string) (Result, error) {
	res, err := a.Verify(ctx, Temp(), code)
	if err == nil {
		return res, nil
	}
	if res.Reason == "" {
		return res, err
	}

	if cat, ok := a.groups.Match(code); ok {
		return Result{Matched: true, Subject: Group(cat), Reason: ReasonMatched}, nil
	}
	return Result{Reason: ReasonMismatch}, ErrMismatch
}

// Revoke consumes the live code for key, if any, so it can no longer
// verify.
func (a *Authority) Revoke(ctx context.Context, key string) error {
	subj := Scoped(key)
	if subj.Key == "" {
		return ErrInvalidSubject
	}

	unlock := a.locks.Lock(subj.Key)
	defer unlock()

	now := a.now()
	err := a.store.UpdateOTP(ctx, subj.Key, func(rec *store.OTPRecord, found bool) error {
		if !found {
			return ErrNotFound
		}
		if !rec.Used {
			rec.Used = true
			rec.UsedAt = &now
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("otp: revoke %s: %w", subj, err)
	}
	return nil
}

func reasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonMatched
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrAlreadyUsed):
		return ReasonAlreadyUsed
	case errors.Is(err, ErrMismatch):
		return ReasonMismatch
	case errors.Is(err, ErrUnknownGroup):
		return ReasonUnknown
	}
	return ""
}
