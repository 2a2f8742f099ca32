package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/kishlaychandan/feedback-backend/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkPublishKeysByZone(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{w: w}

	s.Publish(context.Background(), Event{
		ZoneID:  "1",
		Intent:  model.IntentFeedback,
		Changed: true,
		Next:    model.DesiredState{Power: model.PowerOn, SetpointC: model.Float(22)},
	})

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "1" {
		t.Fatalf("key = %q", msg.Key)
	}
	var got map[string]any
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["changed"] != true || got["at"] == "" {
		t.Fatalf("unexpected payload %s", msg.Value)
	}
	if msg.Time.IsZero() {
		t.Fatalf("message time should be set")
	}
}

func TestKafkaSinkSwallowsErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	s := &KafkaSink{w: w}
	s.Publish(context.Background(), Event{ZoneID: "2"})
	if err := s.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v", err)
	}
}
