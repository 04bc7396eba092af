package pg

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/observability"
	"github.com/eventloom/ticketpay/internal/payout"
	"github.com/eventloom/ticketpay/internal/settlement"
)

const (
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a SERIALIZABLE transaction and maps retryable
// SQLSTATEs to domain.ErrSerializationFailure so callers can apply their
// retry budget.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailureCode, deadlockDetectedCode:
			return domain.ErrSerializationFailure
		}
	}
	return err
}

// SettlementStore adapts the repository to the settlement engine's ledger
// boundary.
type SettlementStore struct {
	*Repository
}

func (s SettlementStore) InTx(ctx context.Context, fn func(tx settlement.Tx) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
}

// PayoutStore adapts the repository to the payout service's ledger boundary.
type PayoutStore struct {
	*Repository
}

func (s PayoutStore) InTx(ctx context.Context, fn func(tx payout.Tx) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
}

// ledgerTx exposes the transaction-scoped ledger operations. Balance
// changes are additive single statements; nothing here ever writes an
// absolute balance.
type ledgerTx struct {
	tx pgx.Tx
}

func (l *ledgerTx) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	result, err := l.tx.Exec(ctx, `
		UPDATE users SET balance = balance + $2 WHERE id = $1
	`, userID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "credit target %s", userID)
	}
	return nil
}
