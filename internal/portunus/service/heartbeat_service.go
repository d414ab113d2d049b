package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// HeartbeatService records door-module heartbeats. The stored IP is what
// the HTTP actuator later uses to reach the module, so it is kept only
// for known modules and only when it is an IP literal.
type HeartbeatService struct {
	heartbeats store.HeartbeatStore
	registry   *DoorRegistry
	now        func() time.Time
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *DoorRegistry) *HeartbeatService {
	return &HeartbeatService{heartbeats: hs, registry: reg, now: utcNow}
}

func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	moduleID := strings.TrimSpace(req.ModuleID)
	if moduleID == "" {
		return types.HeartbeatResponse{}, ErrInvalidModuleID
	}
	req.ModuleID = moduleID

	known, err := s.registry.IsKnown(ctx, moduleID)
	if err != nil {
		return types.HeartbeatResponse{}, storeErr("heartbeat: lookup module", err)
	}
	s.registry.NoteSeen(ctx, moduleID, known)

	if addr, ok := types.ValidModuleAddr(req.IP); ok && known {
		req.IP = addr
	} else {
		req.IP = ""
	}

	now := s.now()
	if err := s.heartbeats.UpsertHeartbeat(ctx, moduleID, store.HeartbeatRecord{ReceivedAt: now, Request: req}); err != nil {
		return types.HeartbeatResponse{}, storeErr("heartbeat: record", err)
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		ModuleID:   moduleID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}
