package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kishlaychandan/feedback-backend/internal/model"
	"github.com/kishlaychandan/feedback-backend/internal/reconcile"
)

// Dispatcher publishes firmware commands to the topic named by the control
// address, optionally under a prefix.
type Dispatcher struct {
	pub    Publisher
	prefix string
}

func NewDispatcher(pub Publisher, topicPrefix string) *Dispatcher {
	return &Dispatcher{pub: pub, prefix: strings.Trim(strings.TrimSpace(topicPrefix), "/")}
}

func (d *Dispatcher) Topic(address string) string {
	if d.prefix == "" {
		return address
	}
	return d.prefix + "/" + address
}

func (d *Dispatcher) Dispatch(ctx context.Context, address string, cmd model.Command) reconcile.Outcome {
	if d.pub == nil {
		return reconcile.Outcome{Reason: "mqtt client not configured"}
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return reconcile.Outcome{Reason: err.Error()}
	}
	topic := d.Topic(address)
	if err := d.pub.Publish(topic, payload); err != nil {
		slog.ErrorContext(ctx, "mqtt publish failed", "topic", topic, "error", err)
		return reconcile.Outcome{Reason: err.Error()}
	}
	slog.InfoContext(ctx, "mqtt command published", "topic", topic, "power", cmd.Power, "temp", cmd.Temp)
	return reconcile.Outcome{Published: true}
}
