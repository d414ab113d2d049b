package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

type HeartbeatStore interface {
	UpsertHeartbeat(ctx context.Context, moduleID string, rec HeartbeatRecord) error
	// LatestHeartbeat returns the most recent heartbeat for a module, or
	// ErrNotFound if it has never reported.
	LatestHeartbeat(ctx context.Context, moduleID string) (HeartbeatRecord, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
