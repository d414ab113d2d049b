package store

import (
	"context"
	"time"
)

// OTPRecord is a scoped one-time code. Only the code's hash is kept.
type OTPRecord struct {
	SubjectKey string
	CodeHash   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
}

// OTPUpdateFunc mutates the record for a key in place. found reports
// whether a record existed. Returning an error aborts without writing.
type OTPUpdateFunc func(rec *OTPRecord, found bool) error

type OTPStore interface {
	// UpdateOTP runs fn as one atomic read-modify-write on the record for
	// key and persists the result.
	UpdateOTP(ctx context.Context, key string, fn OTPUpdateFunc) error
	GetOTP(ctx context.Context, key string) (OTPRecord, error)
	// PruneOTPs deletes records that expired before cutoff.
	PruneOTPs(ctx context.Context, cutoff time.Time) (int64, error)
}
