package payout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/observability"
)

// Tx is the ledger slice a payout transition runs against. DebitIfSufficient
// is a single conditional statement, never a read-check-write pair, so
// concurrent requests cannot overdraw.
type Tx interface {
	DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
	CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error
	CreatePayout(ctx context.Context, p domain.Payout) error
	PayoutForUpdate(ctx context.Context, id uuid.UUID) (domain.Payout, error)
	ResolvePayout(ctx context.Context, id uuid.UUID, status domain.PayoutStatus, processedAt time.Time) (bool, error)
	InsertOutbox(ctx context.Context, ev domain.OutboxEvent) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Service implements the escrow payout flow: the requester's balance is
// debited at request time, refunded on rejection, untouched on approval.
type Service struct {
	store  Store
	logger observability.Logger
}

func NewService(store Store, logger observability.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Request creates a PENDING payout and escrow-debits the balance in one
// atomic unit.
func (s *Service) Request(ctx context.Context, userID uuid.UUID, amount int64, destination string) (domain.Payout, error) {
	if amount <= 0 {
		return domain.Payout{}, domain.ErrInvalidAmount
	}
	if destination == "" {
		return domain.Payout{}, errors.Wrap(domain.ErrInvalidInput, "destination is required")
	}

	p := domain.Payout{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Destination: destination,
		Status:      domain.PayoutPending,
		CreatedAt:   time.Now(),
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		ok, err := tx.DebitIfSufficient(ctx, userID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInsufficientBalance
		}
		if err := tx.CreatePayout(ctx, p); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"payout_id": p.ID,
			"user_id":   userID,
			"amount":    amount,
		})
		return tx.InsertOutbox(ctx, domain.NewOutboxEvent("payout", p.ID, "payout.requested", payload))
	})
	if err != nil {
		return domain.Payout{}, err
	}

	observability.PayoutsTotal.WithLabelValues("requested").Inc()
	return p, nil
}

// Resolve finalizes a PENDING payout. REJECTED refunds the escrowed amount
// in the same transaction; PAID only stamps the status, the money already
// left the ledger at request time.
func (s *Service) Resolve(ctx context.Context, payoutID uuid.UUID, decision domain.PayoutStatus) error {
	if decision != domain.PayoutPaid && decision != domain.PayoutRejected {
		return errors.Wrapf(domain.ErrInvalidInput, "invalid payout decision %q", decision)
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.PayoutForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if p.Status != domain.PayoutPending {
			return domain.ErrAlreadyProcessed
		}

		won, err := tx.ResolvePayout(ctx, payoutID, decision, time.Now())
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrAlreadyProcessed
		}

		if decision == domain.PayoutRejected {
			if err := tx.CreditBalance(ctx, p.UserID, p.Amount); err != nil {
				return err
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"payout_id": payoutID,
			"decision":  decision,
		})
		return tx.InsertOutbox(ctx, domain.NewOutboxEvent("payout", payoutID, "payout.resolved", payload))
	})
	if err != nil {
		return err
	}

	observability.PayoutsTotal.WithLabelValues(string(decision)).Inc()
	return nil
}
