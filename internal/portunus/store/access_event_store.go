package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// AccessEventRecord is one entry in the append-only audit log. The phone
// number is never stored; PhoneHash is its SHA-256.
type AccessEventRecord struct {
	ID         string
	RequestID  string
	ModuleID   string
	Action     string
	Category   types.Category
	PhoneHash  []byte
	Granted    bool
	Reason     string
	Confidence *float64
	Simulated  *bool
	DecidedAt  time.Time
}

type AccessEventStore interface {
	RecordEvent(ctx context.Context, rec AccessEventRecord) error
	// ListEvents returns up to limit events, newest first.
	ListEvents(ctx context.Context, limit int) ([]AccessEventRecord, error)
}
