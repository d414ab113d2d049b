package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

// PruneFunc deletes records older than cutoff and reports how many went.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// PruneTarget is one collection under a retention policy. A retention of
// 0 keeps the collection forever.
type PruneTarget struct {
	Name      string
	Retention time.Duration
	Prune     PruneFunc
}

// Pruner periodically applies every target's retention policy. It runs
// as a background goroutine and is safe to stop via its context or the
// Stop method.
type Pruner struct {
	targets  []PruneTarget
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// PrunerConfig holds the parameters for NewPruner.
type PrunerConfig struct {
	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewPruner creates a pruner but does not start it. Targets with no
// retention are dropped.
func NewPruner(cfg PrunerConfig, logger *zap.Logger, targets ...PruneTarget) *Pruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var active []PruneTarget
	for _, t := range targets {
		if t.Retention > 0 && t.Prune != nil {
			active = append(active, t)
		}
	}

	return &Pruner{
		targets:  active,
		interval: interval,
		logger:   logger,
		now:      utcNow,
		done:     make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the configured interval
// until ctx is cancelled or Stop is called.
func (p *Pruner) Start(ctx context.Context) {
	if len(p.targets) == 0 {
		p.logger.Info("pruner disabled (no retention configured)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("pruner started",
		zap.Int("targets", len(p.targets)),
		zap.Duration("interval", p.interval))
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce applies every target once. Errors are logged per target.
func (p *Pruner) RunOnce(ctx context.Context) {
	now := p.now()
	for _, t := range p.targets {
		cutoff := now.Add(-t.Retention)
		deleted, err := t.Prune(ctx, cutoff)
		if err != nil {
			p.logger.Error("prune failed", zap.String("target", t.Name), zap.Error(err))
			continue
		}
		if deleted > 0 {
			p.logger.Info("pruned records",
				zap.String("target", t.Name),
				zap.Int64("deleted", deleted),
				zap.Time("cutoff", cutoff))
		}
	}
}

// CleanupCounts reports what one manual cleanup removed.
type CleanupCounts struct {
	Requests   int64
	OTPs       int64
	Heartbeats int64
}

// Retention prunes the gate's time-bounded collections on demand.
type Retention struct {
	requests   store.AccessRequestStore
	otps       store.OTPStore
	heartbeats store.HeartbeatStore
	now        func() time.Time
}

func NewRetention(rs store.AccessRequestStore, ots store.OTPStore, hs store.HeartbeatStore) *Retention {
	return &Retention{requests: rs, otps: ots, heartbeats: hs, now: utcNow}
}

// Targets returns pruner targets for the given retention periods.
func (r *Retention) Targets(requests, heartbeats time.Duration) []PruneTarget {
	return []PruneTarget{
		{Name: "access_requests", Retention: requests, Prune: r.requests.PruneRequests},
		{Name: "otp_records", Retention: requests, Prune: r.otps.PruneOTPs},
		{Name: "heartbeats", Retention: heartbeats, Prune: r.heartbeats.PruneOlderThan},
	}
}

// Cleanup removes terminal requests, expired OTP records and heartbeats
// older than days.
func (r *Retention) Cleanup(ctx context.Context, days int) (CleanupCounts, error) {
	if days < 1 {
		return CleanupCounts{}, invalid("days must be at least 1")
	}
	cutoff := r.now().AddDate(0, 0, -days)

	var out CleanupCounts
	var err error
	if out.Requests, err = r.requests.PruneRequests(ctx, cutoff); err != nil {
		return out, fmt.Errorf("cleanup requests: %w", err)
	}
	if out.OTPs, err = r.otps.PruneOTPs(ctx, cutoff); err != nil {
		return out, fmt.Errorf("cleanup otps: %w", err)
	}
	if out.Heartbeats, err = r.heartbeats.PruneOlderThan(ctx, cutoff); err != nil {
		return out, fmt.Errorf("cleanup heartbeats: %w", err)
	}
	return out, nil
}
