// Package redisotp keeps scoped OTP records in Redis so several gate
// instances share one view of which codes are live. Each record is a JSON
// value under portunus:otp:<subject> that expires on its own once it is
// past use.
package redisotp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

const (
	keyPrefix = "portunus:otp:"

	// DefaultGrace keeps a record around after it expires so a late
	// verify reports "expired" rather than "not found".
	DefaultGrace = 24 * time.Hour

	maxRetries = 5
	minTTL     = time.Second
)

var ErrContention = errors.New("redisotp: record kept changing under update")

type Store struct {
	client redis.UniversalClient
	grace  time.Duration
	now    func() time.Time
}

type Option func(*Store)

func WithGrace(d time.Duration) Option {
	return func(s *Store) { s.grace = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		grace:  DefaultGrace,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewClient opens a client and pings it once.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}

// Key is the Redis key for a subject.
func Key(subject string) string { return keyPrefix + subject }

// TTL is how long Redis should keep rec once written at now.
func TTL(rec store.OTPRecord, now time.Time, grace time.Duration) time.Duration {
	ttl := rec.ExpiresAt.Sub(now) + grace
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

type record struct {
	CodeHash  string `json:"code_hash"`
	CreatedAt int64  `json:"created_at_ms"`
	ExpiresAt int64  `json:"expires_at_ms"`
	Used      bool   `json:"used"`
	UsedAt    *int64 `json:"used_at_ms,omitempty"`
}

func encode(rec store.OTPRecord) ([]byte, error) {
	r := record{
		CodeHash:  rec.CodeHash,
		CreatedAt: rec.CreatedAt.UnixMilli(),
		ExpiresAt: rec.ExpiresAt.UnixMilli(),
		Used:      rec.Used,
	}
	if rec.UsedAt != nil {
		ms := rec.UsedAt.UnixMilli()
		r.UsedAt = &ms
	}
	return json.Marshal(r)
}

func decode(subject string, b []byte) (store.OTPRecord, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return store.OTPRecord{}, err
	}
	rec := store.OTPRecord{
		SubjectKey: subject,
		CodeHash:   r.CodeHash,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt:  time.UnixMilli(r.ExpiresAt).UTC(),
		Used:       r.Used,
	}
	if r.UsedAt != nil {
		t := time.UnixMilli(*r.UsedAt).UTC()
		rec.UsedAt = &t
	}
	return rec, nil
}

// UpdateOTP runs fn under WATCH on the subject's key and commits the result
// in a MULTI block. A concurrent write aborts the transaction and the
// update is retried from a fresh read.
func (s *Store) UpdateOTP(ctx context.Context, subject string, fn store.OTPUpdateFunc) error {
	key := Key(subject)
	txf := func(tx *redis.Tx) error {
		rec, found, err := s.read(ctx, tx, subject)
		if err != nil {
			return err
		}
		if err := fn(&rec, found); err != nil {
			return err
		}
		rec.SubjectKey = subject
		b, err := encode(rec)
		if err != nil {
			return fmt.Errorf("redisotp: encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, TTL(rec, s.now(), s.grace))
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redisotp: update %s: %w", subject, ErrContention)
}

func (s *Store) read(ctx context.Context, c redis.Cmdable, subject string) (store.OTPRecord, bool, error) {
	b, err := c.Get(ctx, Key(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.OTPRecord{SubjectKey: subject}, false, nil
	}
	if err != nil {
		return store.OTPRecord{}, false, fmt.Errorf("redisotp: get %s: %w", subject, err)
	}
	rec, err := decode(subject, b)
	if err != nil {
		return store.OTPRecord{}, false, fmt.Errorf("redisotp: decode %s: %w", subject, err)
	}
	return rec, true, nil
}

func (s *Store) GetOTP(ctx context.Context, subject string) (store.OTPRecord, error) {
	rec, found, err := s.read(ctx, s.client, subject)
	if err != nil {
		return rec, err
	}
	if !found {
		return rec, store.ErrNotFound
	}
	return rec, nil
}

// PruneOTPs is a no-op: Redis expires records by TTL.
func (s *Store) PruneOTPs(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *Store) Close() error { return s.client.Close() }
