// Package audit fans access events out to durable and streaming sinks.
// Appending never blocks or fails the caller: a full buffer drops the
// event and a failing sink is logged.
package audit

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

// writeTimeout bounds one sink write.
const writeTimeout = 5 * time.Second

// Appender is what the decision path depends on.
type Appender interface {
	Append(ev store.AccessEventRecord)
}

type Sink interface {
	Name() string
	Write(ctx context.Context, ev store.AccessEventRecord) error
}

// StoreSink persists events to an AccessEventStore.
type StoreSink struct {
	Store store.AccessEventStore
}

func (s StoreSink) Name() string { return "store" }

func (s StoreSink) Write(ctx context.Context, ev store.AccessEventRecord) error {
	return s.Store.RecordEvent(ctx, ev)
}

// Logger delivers events on a single background goroutine.
type Logger struct {
	sinks  []Sink
	logger *zap.Logger
	events chan store.AccessEventRecord
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewLogger starts the delivery goroutine. buffer <= 0 uses 1024.
func NewLogger(logger *zap.Logger, buffer int, sinks ...Sink) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	l := &Logger{
		sinks:  sinks,
		logger: logger,
		events: make(chan store.AccessEventRecord, buffer),
		done:   make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Logger) Append(ev store.AccessEventRecord) {
	ev = stamp(ev)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn("audit event after close dropped", zap.String("action", ev.Action))
		return
	}
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("audit buffer full, event dropped",
			zap.String("action", ev.Action),
			zap.String("request_id", ev.RequestID))
	}
}

// Close stops accepting events and waits for the buffer to drain, or for
// ctx to end.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) loop() {
	defer close(l.done)
	for ev := range l.events {
		deliver(l.logger, l.sinks, ev)
	}
}

// Sync writes each event inline. It suits tests and single-sink setups
// where delivery order must be observable immediately.
type Sync struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewSync(logger *zap.Logger, sinks ...Sink) *Sync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sync{sinks: sinks, logger: logger}
}

func (s *Sync) Append(ev store.AccessEventRecord) {
	deliver(s.logger, s.sinks, stamp(ev))
}

func deliver(logger *zap.Logger, sinks []Sink, ev store.AccessEventRecord) {
	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := sink.Write(ctx, ev); err != nil {
			logger.Error("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("action", ev.Action),
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
		cancel()
	}
}

func stamp(ev store.AccessEventRecord) store.AccessEventRecord {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.DecidedAt.IsZero() {
		ev.DecidedAt = time.Now().UTC()
	}
	return ev
}

// HashPhone returns the SHA-256 of a normalised phone number, or nil for
// an empty one.
func HashPhone(phone string) []byte {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	h := sha256.Sum256([]byte(phone))
	return h[:]
}
