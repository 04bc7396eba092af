package pg

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/settlement"
)

const attendeeColumns = `
	id, event_id, user_id, status, payment_status, ticket_type, ticket_count,
	payment_amount, platform_fee, pidx, transaction_id, registered_at`

func scanAttendee(row pgx.Row) (domain.Attendee, error) {
	var a domain.Attendee
	err := row.Scan(
		&a.ID, &a.EventID, &a.UserID, &a.Status, &a.PaymentStatus,
		&a.TicketType, &a.TicketCount, &a.PaymentAmount, &a.PlatformFee,
		&a.Pidx, &a.TransactionID, &a.RegisteredAt,
	)
	if err == pgx.ErrNoRows {
		return domain.Attendee{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Attendee{}, err
	}
	return a, nil
}

func (r *Repository) AttendeeByID(ctx context.Context, id uuid.UUID) (domain.Attendee, error) {
	return scanAttendee(r.pool.QueryRow(ctx, `
		SELECT `+attendeeColumns+` FROM attendees WHERE id = $1
	`, id))
}

func (r *Repository) AttendeeByEventUser(ctx context.Context, eventID, userID uuid.UUID) (domain.Attendee, error) {
	return scanAttendee(r.pool.QueryRow(ctx, `
		SELECT `+attendeeColumns+` FROM attendees WHERE event_id = $1 AND user_id = $2
	`, eventID, userID))
}

// PaymentStatus is the settlement engine's fast idempotency gate.
func (r *Repository) PaymentStatus(ctx context.Context, attendeeID uuid.UUID) (domain.PaymentStatus, error) {
	var status domain.PaymentStatus
	err := r.pool.QueryRow(ctx, `
		SELECT payment_status FROM attendees WHERE id = $1
	`, attendeeID).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// UpsertPendingAttendee creates or reclaims the row keyed by (event, user)
// so checkout retries never mint a duplicate ticket. A row that already
// completed payment is never reset; the conflict surfaces as
// ErrAlreadyRegistered.
func (r *Repository) UpsertPendingAttendee(ctx context.Context, eventID, userID uuid.UUID, ticketType string, ticketCount int, amount int64) (domain.Attendee, error) {
	att, err := scanAttendee(r.pool.QueryRow(ctx, `
		INSERT INTO attendees (id, event_id, user_id, status, payment_status, ticket_type, ticket_count, payment_amount)
		VALUES ($1, $2, $3, 'PENDING', 'PENDING', $4, $5, $6)
		ON CONFLICT (event_id, user_id) DO UPDATE SET
			status = 'PENDING',
			payment_status = 'PENDING',
			ticket_type = EXCLUDED.ticket_type,
			ticket_count = EXCLUDED.ticket_count,
			payment_amount = EXCLUDED.payment_amount,
			pidx = NULL,
			transaction_id = NULL
		WHERE attendees.payment_status <> 'COMPLETED'
		RETURNING `+attendeeColumns+`
	`, uuid.New(), eventID, userID, ticketType, ticketCount, amount))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Attendee{}, domain.ErrAlreadyRegistered
	}
	return att, err
}

func (r *Repository) SetAttendeePidx(ctx context.Context, attendeeID uuid.UUID, pidx string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendees SET pidx = $2 WHERE id = $1
	`, attendeeID, pidx)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RegisterWithCapacity inserts a free-event registration. The capacity
// count and the insert run under a per-event advisory lock so concurrent
// registrations cannot both observe a free slot.
func (r *Repository) RegisterWithCapacity(ctx context.Context, eventID, userID uuid.UUID, ticketType string) (domain.Attendee, error) {
	var att domain.Attendee
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, eventID)
		if err != nil {
			return err
		}

		var capacity *int
		var isFree bool
		var price int64
		err = tx.QueryRow(ctx, `
			SELECT capacity, is_free, price FROM events WHERE id = $1
		`, eventID).Scan(&capacity, &isFree, &price)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		status := domain.AttendeeRegistered
		if capacity != nil {
			var taken int
			err = tx.QueryRow(ctx, `
				SELECT count(*) FROM attendees
				WHERE event_id = $1 AND status IN ('REGISTERED', 'ATTENDED')
			`, eventID).Scan(&taken)
			if err != nil {
				return err
			}
			if taken >= *capacity {
				status = domain.AttendeeWaitlist
			}
		}

		paymentStatus := domain.PaymentPending
		if isFree {
			paymentStatus = domain.PaymentCompleted
		}

		att, err = scanAttendee(tx.QueryRow(ctx, `
			INSERT INTO attendees (id, event_id, user_id, status, payment_status, ticket_type, payment_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+attendeeColumns+`
		`, uuid.New(), eventID, userID, status, paymentStatus, ticketType, price))
		return err
	})
	if err != nil {
		return domain.Attendee{}, err
	}
	return att, nil
}

func (r *Repository) ReactivateAttendee(ctx context.Context, attendeeID uuid.UUID) (domain.Attendee, error) {
	att, err := scanAttendee(r.pool.QueryRow(ctx, `
		UPDATE attendees SET status = 'REGISTERED', registered_at = now()
		WHERE id = $1 AND status = 'CANCELLED'
		RETURNING `+attendeeColumns+`
	`, attendeeID))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Attendee{}, domain.ErrNotRegistered
	}
	return att, err
}

func (r *Repository) CancelAttendee(ctx context.Context, attendeeID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendees SET status = 'CANCELLED' WHERE id = $1 AND status <> 'CANCELLED'
	`, attendeeID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotRegistered
	}
	return nil
}

// PendingWithSession feeds the reconciliation sweep: every attendee still
// PENDING that has a gateway session on file.
func (r *Repository) PendingWithSession(ctx context.Context, limit int) ([]domain.Attendee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+attendeeColumns+` FROM attendees
		WHERE payment_status = 'PENDING' AND pidx IS NOT NULL
		ORDER BY registered_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Attendee
	for rows.Next() {
		att, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

// Transaction-scoped attendee operations used by the settlement engine.

func (l *ledgerTx) AttendeeForSettlement(ctx context.Context, attendeeID uuid.UUID) (settlement.Row, error) {
	var row settlement.Row
	err := l.tx.QueryRow(ctx, `
		SELECT a.id, a.event_id, a.payment_status, a.payment_amount, e.organizer_id, u.role
		FROM attendees a
		JOIN events e ON e.id = a.event_id
		JOIN users u ON u.id = e.organizer_id
		WHERE a.id = $1
		FOR UPDATE OF a
	`, attendeeID).Scan(
		&row.AttendeeID, &row.EventID, &row.PaymentStatus,
		&row.ExpectedAmount, &row.OrganizerID, &row.OrganizerRole,
	)
	if err == pgx.ErrNoRows {
		return settlement.Row{}, domain.ErrNotFound
	}
	if err != nil {
		return settlement.Row{}, err
	}
	return row, nil
}

func (l *ledgerTx) CompleteAttendee(ctx context.Context, attendeeID uuid.UUID, transactionID string, amount, platformFee int64) (bool, error) {
	result, err := l.tx.Exec(ctx, `
		UPDATE attendees SET
			payment_status = 'COMPLETED',
			status = 'REGISTERED',
			transaction_id = $2,
			payment_amount = $3,
			platform_fee = $4
		WHERE id = $1 AND payment_status = 'PENDING'
	`, attendeeID, transactionID, amount, platformFee)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (l *ledgerTx) FailAttendee(ctx context.Context, attendeeID uuid.UUID) (bool, error) {
	result, err := l.tx.Exec(ctx, `
		UPDATE attendees SET payment_status = 'FAILED'
		WHERE id = $1 AND payment_status = 'PENDING'
	`, attendeeID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}
