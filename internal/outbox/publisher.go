package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/eventloom/ticketpay/internal/adapters/pg"
	"github.com/eventloom/ticketpay/internal/adapters/rabbit"
	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/observability"
)

// Publisher drains NEW outbox records to RabbitMQ. Records are inserted in
// the same ledger transaction as the state change they announce, so a
// settlement and its event can never disagree.
type Publisher struct {
	repo      *pg.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *pg.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", err)
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	oldest, err := p.repo.DrainOutbox(ctx, 50, func(rec domain.OutboxEvent) error {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishRetries.Inc()
			p.logger.WithField("outbox_id", rec.ID).Warn("publish failed, will retry", err)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if oldest.IsZero() {
		observability.OutboxLag.Set(0)
	} else {
		observability.OutboxLag.Set(time.Since(oldest).Seconds())
	}
	return nil
}
