package store

import (
	"context"
	"time"
)

// DeviceStore tracks door modules. A module is known only while it is
// commissioned and not revoked; unknown modules may still report in.
type DeviceStore interface {
	IsKnown(ctx context.Context, moduleID string) (bool, error)
	MarkSeen(ctx context.Context, moduleID string, known bool, t time.Time) error
	// Commission makes a module known, clearing any earlier revocation.
	Commission(ctx context.Context, moduleID, displayName string, t time.Time) error
	// Revoke makes a module unknown and keeps its history.
	Revoke(ctx context.Context, moduleID string, t time.Time) error
}
