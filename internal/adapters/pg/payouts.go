package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventloom/ticketpay/internal/domain"
)

// Transaction-scoped payout operations used by the payout service.

// DebitIfSufficient escrows amount out of the user's balance in one
// conditional statement. A false result means the balance was short; no
// state changed.
func (l *ledgerTx) DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	result, err := l.tx.Exec(ctx, `
		UPDATE users SET balance = balance - $2
		WHERE id = $1 AND balance >= $2
	`, userID, amount)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (l *ledgerTx) CreatePayout(ctx context.Context, p domain.Payout) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO payouts (id, user_id, amount, destination, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.UserID, p.Amount, p.Destination, p.Status, p.CreatedAt)
	return err
}

func (l *ledgerTx) PayoutForUpdate(ctx context.Context, id uuid.UUID) (domain.Payout, error) {
	var p domain.Payout
	err := l.tx.QueryRow(ctx, `
		SELECT id, user_id, amount, destination, status, created_at, processed_at
		FROM payouts WHERE id = $1
		FOR UPDATE
	`, id).Scan(&p.ID, &p.UserID, &p.Amount, &p.Destination, &p.Status, &p.CreatedAt, &p.ProcessedAt)
	if err == pgx.ErrNoRows {
		return domain.Payout{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payout{}, err
	}
	return p, nil
}

func (l *ledgerTx) ResolvePayout(ctx context.Context, id uuid.UUID, status domain.PayoutStatus, processedAt time.Time) (bool, error) {
	result, err := l.tx.Exec(ctx, `
		UPDATE payouts SET status = $2, processed_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, id, status, processedAt)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// PayoutByID is the read-side lookup used by handlers.
func (r *Repository) PayoutByID(ctx context.Context, id uuid.UUID) (domain.Payout, error) {
	var p domain.Payout
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, amount, destination, status, created_at, processed_at
		FROM payouts WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Amount, &p.Destination, &p.Status, &p.CreatedAt, &p.ProcessedAt)
	if err == pgx.ErrNoRows {
		return domain.Payout{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payout{}, err
	}
	return p, nil
}
