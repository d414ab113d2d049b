package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

// DoorRegistry answers whether a door module is provisioned and tracks
// when each module was last heard from.
type DoorRegistry struct {
	store  store.DeviceStore
	logger *zap.Logger
	now    func() time.Time
}

func NewDoorRegistry(st store.DeviceStore, logger *zap.Logger) *DoorRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoorRegistry{store: st, logger: logger, now: utcNow}
}

func (r *DoorRegistry) IsKnown(ctx context.Context, moduleID string) (bool, error) {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, moduleID)
}

// NoteSeen records contact from a module. Failures are logged, never
// returned: a missed last-seen stamp must not fail the caller's request.
func (r *DoorRegistry) NoteSeen(ctx context.Context, moduleID string, known bool) {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return
	}
	if err := r.store.MarkSeen(ctx, moduleID, known, r.now()); err != nil {
		r.logger.Warn("mark module seen failed", zap.String("module_id", moduleID), zap.Error(err))
	}
}

// Commission makes a module known to the gate.
func (r *DoorRegistry) Commission(ctx context.Context, moduleID, displayName string) error {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return invalid("module_id is required")
	}
	if err := r.store.Commission(ctx, moduleID, displayName, r.now()); err != nil {
		return fmt.Errorf("commission module: %w", err)
	}
	r.logger.Info("module commissioned", zap.String("module_id", moduleID))
	return nil
}

// Revoke stops a module from being known. Revoking an unknown module is
// a no-op.
func (r *DoorRegistry) Revoke(ctx context.Context, moduleID string) error {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return invalid("module_id is required")
	}
	if err := r.store.Revoke(ctx, moduleID, r.now()); err != nil {
		return fmt.Errorf("revoke module: %w", err)
	}
	r.logger.Info("module revoked", zap.String("module_id", moduleID))
	return nil
}

func utcNow() time.Time { return time.Now().UTC() }
