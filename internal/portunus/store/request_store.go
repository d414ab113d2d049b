package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// AccessRequestRecord is one visitor's pass through the access protocol.
// Version increases by one on every successful swap.
type AccessRequestRecord struct {
	ID            string
	ModuleID      string
	Category      types.Category
	Phone         string
	VisitorName   string
	UserID        string // registered user the phone resolved to, if any
	Status        types.RequestStatus
	OTPCode       string
	OTPSubject    string
	OTPAttempts   int
	OTPVerified   bool
	FaceVerified  bool
	AccessGranted bool
	MatchedUserID string
	Confidence    float64
	Reason        string
	ExpiresAt     time.Time // deadline of the current stage; zero means none
	AccessTime    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
}

type AccessRequestStore interface {
	// CreateRequest fails with ErrExists if the id was ever used.
	CreateRequest(ctx context.Context, rec AccessRequestRecord) error
	GetRequest(ctx context.Context, id string) (AccessRequestRecord, error)
	// SwapRequest replaces prev with next only if the stored record still
	// has prev's status and version; otherwise ErrStale. next is written
	// with Version = prev.Version + 1.
	SwapRequest(ctx context.Context, prev, next AccessRequestRecord) error
	// ListRequests returns matching requests in creation order.
	ListRequests(ctx context.Context, match func(AccessRequestRecord) bool) ([]AccessRequestRecord, error)
	// PruneRequests deletes terminal requests last updated before cutoff.
	PruneRequests(ctx context.Context, cutoff time.Time) (int64, error)
}
