// Package actuator drives door unlock hardware. An unreachable door never
// fails the caller: the attempt degrades to a simulated unlock.
package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

var ErrUnreachable = errors.New("actuator: unreachable")

// Result reports what happened at the door. Simulated means no hardware
// acknowledged the unlock.
type Result struct {
	OK        bool
	Simulated bool
	Message   string
}

type Actuator interface {
	Unlock(ctx context.Context, moduleID string, durationMs int) Result
}

// Simulated acknowledges every unlock without touching hardware.
type Simulated struct{}

func (Simulated) Unlock(_ context.Context, moduleID string, durationMs int) Result {
	return Result{OK: true, Simulated: true, Message: fmt.Sprintf("simulated unlock of %q for %dms", moduleID, durationMs)}
}

// ModuleRegistry reports whether a module is commissioned and not revoked.
type ModuleRegistry interface {
	IsKnown(ctx context.Context, moduleID string) (bool, error)
}

type Config struct {
	// FallbackURL is used when a module has no heartbeat with an IP.
	FallbackURL string
	Timeout     time.Duration
	// Modules, when set, limits heartbeat addresses to known modules.
	Modules ModuleRegistry
}

// HTTPActuator POSTs {"duration": ms} to the module's /unlock endpoint,
// addressed by the IP in its most recent heartbeat.
type HTTPActuator struct {
	heartbeats store.HeartbeatStore
	modules    ModuleRegistry
	client     *http.Client
	fallback   string
	logger     *zap.Logger
}

func NewHTTPActuator(hs store.HeartbeatStore, cfg Config, logger *zap.Logger) *HTTPActuator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPActuator{
		heartbeats: hs,
		modules:    cfg.Modules,
		client:     &http.Client{Timeout: cfg.Timeout},
		fallback:   strings.TrimSpace(cfg.FallbackURL),
		logger:     logger,
	}
}

func (a *HTTPActuator) Unlock(ctx context.Context, moduleID string, durationMs int) Result {
	url := a.resolve(ctx, moduleID)
	if url == "" {
		a.logger.Warn("unlock target unknown, simulating",
			zap.String("module_id", moduleID), zap.Error(ErrUnreachable))
		return Result{OK: true, Simulated: true, Message: "no unlock endpoint known for module"}
	}

	if err := a.post(ctx, url, durationMs); err != nil {
		a.logger.Warn("unlock failed, simulating",
			zap.String("module_id", moduleID),
			zap.String("url", url),
			zap.Error(err))
		return Result{OK: true, Simulated: true, Message: "door unreachable; unlock simulated"}
	}
	return Result{OK: true, Message: "door unlocked"}
}

// resolve picks the unlock URL for moduleID. A module that is not known
// never supplies its own address.
func (a *HTTPActuator) resolve(ctx context.Context, moduleID string) string {
	if moduleID != "" && a.heartbeats != nil && a.known(ctx, moduleID) {
		hb, err := a.heartbeats.LatestHeartbeat(ctx, moduleID)
		switch {
		case err == nil && hb.Request.UnlockURL() != "":
			return hb.Request.UnlockURL()
		case err != nil && !errors.Is(err, store.ErrNotFound):
			a.logger.Warn("heartbeat lookup failed", zap.String("module_id", moduleID), zap.Error(err))
		}
	}
	return a.fallback
}

func (a *HTTPActuator) known(ctx context.Context, moduleID string) bool {
	if a.modules == nil {
		return true
	}
	ok, err := a.modules.IsKnown(ctx, moduleID)
	if err != nil {
		a.logger.Warn("module lookup failed", zap.String("module_id", moduleID), zap.Error(err))
		return false
	}
	return ok
}

func (a *HTTPActuator) post(ctx context.Context, url string, durationMs int) error {
	body, err := json.Marshal(struct {
		Duration int `json:"duration"`
	}{durationMs})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}
