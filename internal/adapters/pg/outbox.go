package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eventloom/ticketpay/internal/domain"
)

func (l *ledgerTx) InsertOutbox(ctx context.Context, ev domain.OutboxEvent) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, ev.ID, ev.AggregateType, ev.AggregateID, ev.EventType, ev.Payload, ev.DedupeKey)
	return err
}

// DrainOutbox claims a batch of NEW records with SKIP LOCKED so concurrent
// publishers never double-deliver, calls publish for each, and marks the
// successes PUBLISHED in the same transaction. A failed publish leaves its
// record NEW for the next drain. Returns the created_at of the oldest
// claimed record, zero when the outbox was empty.
func (r *Repository) DrainOutbox(ctx context.Context, limit int, publish func(domain.OutboxEvent) error) (time.Time, error) {
	var oldest time.Time
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
			FROM outbox WHERE status = 'NEW'
			ORDER BY created_at ASC LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return err
		}

		var records []domain.OutboxEvent
		for rows.Next() {
			var ev domain.OutboxEvent
			err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt, &ev.PublishedAt, &ev.Status, &ev.DedupeKey)
			if err != nil {
				rows.Close()
				return err
			}
			records = append(records, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		oldest = records[0].CreatedAt

		for _, rec := range records {
			if err := publish(rec); err != nil {
				continue
			}
			if _, err := tx.Exec(ctx, `
				UPDATE outbox SET status = 'PUBLISHED', published_at = now() WHERE id = $1
			`, rec.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return oldest, err
}
