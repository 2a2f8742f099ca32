// Package audit streams a projection of every reconciliation to Kafka.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kishlaychandan/feedback-backend/internal/model"
)

// Event is the logged projection of one reconciliation.
type Event struct {
	RequestID    string             `json:"requestId,omitempty"`
	ZoneID       string             `json:"zoneId"`
	SessionID    string             `json:"sessionId"`
	Intent       model.Intent       `json:"intent"`
	Current      model.Snapshot     `json:"current"`
	Next         model.DesiredState `json:"next"`
	Changed      bool               `json:"changed"`
	Changes      model.Changes      `json:"changeReasons"`
	Dispatch     model.Dispatch     `json:"dispatch"`
	Clamped      bool               `json:"clamped"`
	UsedFallback bool               `json:"usedFallback"`
	At           time.Time          `json:"at"`
}

// Sink receives audit events. Publish never blocks on delivery and never
// fails the caller.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Warn("audit delivery failed", "topic", topic, "messages", len(messages), "error", err)
			}
		},
	}
	return &KafkaSink{w: w}
}

func (s *KafkaSink) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		slog.Error("audit marshal failed", "error", err)
		return
	}
	err = s.w.WriteMessages(context.WithoutCancel(ctx), kafka.Message{Key: []byte(e.ZoneID), Value: b, Time: e.At})
	if err != nil {
		slog.Warn("audit write failed", "zone_id", e.ZoneID, "error", err)
	}
}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}
