package notify

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/eventloom/ticketpay/internal/observability"
)

// Source yields broker deliveries. Satisfied by rabbit.Consumer.
type Source interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// Worker consumes settlement and payout events and emits user-facing
// notifications. Delivery is the structured log stream for now; the ack
// discipline is already what a mail or push sender would need.
type Worker struct {
	source Source
	logger observability.Logger
}

func NewWorker(source Source, logger observability.Logger) *Worker {
	return &Worker{source: source, logger: logger}
}

// Run drains deliveries until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.source.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(d)
		}
	}
}

func (w *Worker) handle(d amqp.Delivery) {
	var event struct {
		AttendeeID string `json:"attendee_id"`
		PayoutID   string `json:"payout_id"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(d.Body, &event); err != nil {
		w.logger.WithField("message_id", d.MessageId).Warn("dropping malformed event", err)
		d.Nack(false, false)
		return
	}
	w.logger.WithField("routing_key", d.RoutingKey).
		WithField("message_id", d.MessageId).
		WithField("attendee_id", event.AttendeeID).
		WithField("payout_id", event.PayoutID).
		Info("notification sent")
	d.Ack(false)
}
