package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/gateway"
	"github.com/eventloom/ticketpay/internal/observability"
)

// Row is the ledger's view of one attendee at settlement time, read under
// a row lock inside the settlement transaction.
type Row struct {
	AttendeeID     uuid.UUID
	EventID        uuid.UUID
	PaymentStatus  domain.PaymentStatus
	ExpectedAmount int64
	OrganizerID    uuid.UUID
	OrganizerRole  domain.Role
}

// Tx is the set of ledger operations available inside the atomic unit.
// Completion and failure are compare-and-swap transitions keyed on the
// current PENDING state; the bool result reports whether the swap won.
type Tx interface {
	AttendeeForSettlement(ctx context.Context, attendeeID uuid.UUID) (Row, error)
	CompleteAttendee(ctx context.Context, attendeeID uuid.UUID, transactionID string, amount, platformFee int64) (bool, error)
	FailAttendee(ctx context.Context, attendeeID uuid.UUID) (bool, error)
	CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error
	InsertOutbox(ctx context.Context, ev domain.OutboxEvent) error
}

// Store is the ledger boundary the engine settles against. InTx runs fn as
// one all-or-nothing unit; contention surfaces as ErrSerializationFailure.
type Store interface {
	PaymentStatus(ctx context.Context, attendeeID uuid.UUID) (domain.PaymentStatus, error)
	CommissionRate(ctx context.Context) (int, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// AuditSink records security-relevant settlement decisions durably.
type AuditSink interface {
	RecordSecurityMismatch(ctx context.Context, attendeeID uuid.UUID, reason string, v gateway.Verification) error
	RecordSettlement(ctx context.Context, attendeeID uuid.UUID, amount, platformFee int64) error
}

// Config is a snapshot of the reference values a settlement needs, injected
// rather than looked up ad hoc per call.
type Config struct {
	// DefaultCommissionPercent applies when the settings table has no rate.
	DefaultCommissionPercent int
	// PlatformAccountID receives the commission. Empty means no platform
	// account is resolvable; fees are then skipped and alerted on.
	PlatformAccountID uuid.UUID
}

const maxRetries = 3

// Engine converts a verified external payment into internal balance credits
// exactly once per attendee.
type Engine struct {
	store  Store
	cfg    Config
	audit  AuditSink
	logger observability.Logger
}

func NewEngine(store Store, cfg Config, audit AuditSink, logger observability.Logger) *Engine {
	return &Engine{store: store, cfg: cfg, audit: audit, logger: logger}
}

// VerifyAndApply enforces the caller-side preconditions before settling:
// the gateway's purchase order id must name the attendee being settled, and
// the verified total must match the expected charge within one paisa. Any
// mismatch leaves the attendee PENDING and nothing is credited.
func (e *Engine) VerifyAndApply(ctx context.Context, att domain.Attendee, v gateway.Verification) error {
	if v.PurchaseOrderID != "" && v.PurchaseOrderID != att.ID.String() {
		return e.rejectMismatch(ctx, att.ID, "purchase order id does not match attendee", v)
	}
	diff := v.TotalAmount - att.PaymentAmount
	if diff < -1 || diff > 1 {
		return e.rejectMismatch(ctx, att.ID, "verified amount does not match expected charge", v)
	}
	return e.Apply(ctx, att.ID, v)
}

func (e *Engine) rejectMismatch(ctx context.Context, attendeeID uuid.UUID, reason string, v gateway.Verification) error {
	observability.SecurityMismatches.Inc()
	e.logger.WithField("attendee_id", attendeeID).WithField("pidx", v.Pidx).Error("settlement rejected: ", reason)
	if err := e.audit.RecordSecurityMismatch(ctx, attendeeID, reason, v); err != nil {
		e.logger.Error("failed to record security mismatch", err)
	}
	return errors.Wrap(domain.ErrSecurityMismatch, reason)
}

// Apply settles one verified completion. It is idempotent: once a first
// call has committed, later calls for the same attendee return nil with no
// side effects. Ledger contention is retried internally; exhausting the
// budget returns ErrLedgerConflict so the caller (poll or sweep) tries
// again rather than dropping a verified payment.
func (e *Engine) Apply(ctx context.Context, attendeeID uuid.UUID, v gateway.Verification) error {
	// Fast gate outside the transaction so duplicate callbacks return
	// without taking locks. The authoritative gate is re-checked inside.
	status, err := e.store.PaymentStatus(ctx, attendeeID)
	if err != nil {
		return err
	}
	if status == domain.PaymentCompleted {
		observability.SettlementsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			observability.SettlementRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 50 * time.Millisecond):
			}
		}

		err := e.settleOnce(ctx, attendeeID, v)
		if errors.Is(err, domain.ErrSerializationFailure) {
			lastErr = err
			continue
		}
		if err != nil {
			observability.SettlementsTotal.WithLabelValues("error").Inc()
			return err
		}
		return nil
	}
	observability.SettlementsTotal.WithLabelValues("conflict").Inc()
	return errors.Wrapf(domain.ErrLedgerConflict, "settlement of %s exhausted retries: %v", attendeeID, lastErr)
}

func (e *Engine) settleOnce(ctx context.Context, attendeeID uuid.UUID, v gateway.Verification) error {
	// The commission rate is read fresh per settlement. Rate drift across
	// settlements is fine; the fee persisted on the attendee row is always
	// the one actually credited.
	rate, err := e.store.CommissionRate(ctx)
	if err != nil {
		e.logger.Warn("commission rate read failed, using default", err)
		rate = e.cfg.DefaultCommissionPercent
	}

	var settledAmount, settledFee int64
	applied := false

	err = e.store.InTx(ctx, func(tx Tx) error {
		row, err := tx.AttendeeForSettlement(ctx, attendeeID)
		if err != nil {
			return err
		}
		if row.PaymentStatus == domain.PaymentCompleted {
			// Lost the race to a concurrent settlement. Nothing to do.
			return nil
		}

		// Platform-owned events keep all revenue.
		if row.OrganizerRole == domain.RoleAdmin {
			rate = 0
		}

		// The gateway's verified total is authoritative, not the amount
		// the client asked to charge.
		amount := v.TotalAmount
		platformFee, organizerShare := domain.SplitCommission(amount, rate)

		won, err := tx.CompleteAttendee(ctx, attendeeID, v.TransactionID, amount, platformFee)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		if err := tx.CreditBalance(ctx, row.OrganizerID, organizerShare); err != nil {
			return err
		}

		if platformFee > 0 {
			if e.cfg.PlatformAccountID == uuid.Nil {
				// Never silent: the fee is recorded on the attendee row
				// but nobody was credited. Operations must reconcile.
				observability.PlatformCreditSkipped.Inc()
				e.logger.WithField("attendee_id", attendeeID).
					WithField("platform_fee", platformFee).
					Error("platform account unresolvable, commission not credited")
			} else if err := tx.CreditBalance(ctx, e.cfg.PlatformAccountID, platformFee); err != nil {
				return err
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"attendee_id":    attendeeID,
			"event_id":       row.EventID,
			"amount":         amount,
			"platform_fee":   platformFee,
			"transaction_id": v.TransactionID,
		})
		if err := tx.InsertOutbox(ctx, domain.NewOutboxEvent("attendee", attendeeID, "payment.settled", payload)); err != nil {
			return err
		}

		settledAmount, settledFee = amount, platformFee
		applied = true
		return nil
	})
	if err != nil {
		return err
	}

	if applied {
		observability.SettlementsTotal.WithLabelValues("settled").Inc()
		if err := e.audit.RecordSettlement(ctx, attendeeID, settledAmount, settledFee); err != nil {
			e.logger.Error("failed to record settlement audit", err)
		}
	} else {
		observability.SettlementsTotal.WithLabelValues("duplicate").Inc()
	}
	return nil
}

// MarkFailed moves a still-PENDING attendee to FAILED after the gateway
// reports a terminal non-complete status. The row stays re-initiable: a new
// checkout against the same event and user reuses it.
func (e *Engine) MarkFailed(ctx context.Context, attendeeID uuid.UUID, reason string) error {
	return e.store.InTx(ctx, func(tx Tx) error {
		won, err := tx.FailAttendee(ctx, attendeeID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"attendee_id": attendeeID,
			"reason":      reason,
		})
		return tx.InsertOutbox(ctx, domain.NewOutboxEvent("attendee", attendeeID, "payment.failed", payload))
	})
}
