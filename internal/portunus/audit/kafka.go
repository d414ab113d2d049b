package audit

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each event as JSON, keyed by request id so one
// request's events land on one partition in order.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink returns nil when brokers or topic are empty.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: w, topic: topic}
}

func newKafkaSinkWithWriter(w messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

func (k *KafkaSink) Name() string { return "kafka:" + k.topic }

type eventMessage struct {
	EventID    string   `json:"event_id"`
	RequestID  string   `json:"request_id,omitempty"`
	ModuleID   string   `json:"module_id,omitempty"`
	Action     string   `json:"action"`
	Category   string   `json:"category,omitempty"`
	PhoneHash  string   `json:"phone_sha256,omitempty"`
	Granted    bool     `json:"granted"`
	Reason     string   `json:"reason,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Simulated  *bool    `json:"simulated,omitempty"`
	DecidedAt  string   `json:"decided_at"`
}

func (k *KafkaSink) Write(ctx context.Context, ev store.AccessEventRecord) error {
	if k == nil || k.writer == nil {
		return nil
	}
	payload, err := json.Marshal(eventMessage{
		EventID:    ev.ID,
		RequestID:  ev.RequestID,
		ModuleID:   ev.ModuleID,
		Action:     ev.Action,
		Category:   string(ev.Category),
		PhoneHash:  hex.EncodeToString(ev.PhoneHash),
		Granted:    ev.Granted,
		Reason:     ev.Reason,
		Confidence: ev.Confidence,
		Simulated:  ev.Simulated,
		DecidedAt:  ev.DecidedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	key := ev.RequestID
	if key == "" {
		key = ev.ID
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
}

// Close flushes and closes the writer. Safe on a nil sink.
func (k *KafkaSink) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
