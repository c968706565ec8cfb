// Package sink delivers finished-task results to downstream consumers.
// Delivery is strictly best effort: a failing sink is logged and counted,
// and never changes the outcome of the task that produced the message.
package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/orchid-dev/orchid/internal/logging"
	"github.com/orchid-dev/orchid/internal/task"
)

// Message is one finished-task record. Exactly one of Result or Error is
// meaningful: Result for completed tasks, Error (with optional Stack) for
// failed ones.
type Message struct {
	TaskID    string          `json:"taskId"`
	Type      task.Type       `json:"type"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Stack     string          `json:"stack,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Sink consumes finished-task messages.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Delivery wraps a sink with the best-effort contract: errors are logged,
// counted through onDrop, and swallowed.
type Delivery struct {
	sink   Sink
	logger *logging.Logger
	onDrop func()
}

// NewDelivery wraps sink. onDrop may be nil.
func NewDelivery(sink Sink, logger *logging.Logger, onDrop func()) *Delivery {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Delivery{sink: sink, logger: logger, onDrop: onDrop}
}

// Emit delivers msg, absorbing any failure.
func (d *Delivery) Emit(ctx context.Context, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if err := d.sink.Deliver(ctx, msg); err != nil {
		d.logger.WithTask(msg.TaskID).Warn("result delivery dropped",
			"sink", d.sink.Name(), "error", err)
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}
