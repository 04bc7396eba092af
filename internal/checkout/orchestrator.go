package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/gateway"
	"github.com/eventloom/ticketpay/internal/observability"
)

// Store is the data access the orchestrator needs. Upsert keys on
// (event_id, user_id) so a retried checkout reuses the pending row instead
// of minting a second ticket. RegisterWithCapacity serializes the capacity
// check and insert per event.
type Store interface {
	EventByID(ctx context.Context, id uuid.UUID) (domain.Event, error)
	UserByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	AttendeeByEventUser(ctx context.Context, eventID, userID uuid.UUID) (domain.Attendee, error)
	UpsertPendingAttendee(ctx context.Context, eventID, userID uuid.UUID, ticketType string, ticketCount int, amount int64) (domain.Attendee, error)
	SetAttendeePidx(ctx context.Context, attendeeID uuid.UUID, pidx string) error
	RegisterWithCapacity(ctx context.Context, eventID, userID uuid.UUID, ticketType string) (domain.Attendee, error)
	ReactivateAttendee(ctx context.Context, attendeeID uuid.UUID) (domain.Attendee, error)
	CancelAttendee(ctx context.Context, attendeeID uuid.UUID) error
}

// SessionLocker guards against two concurrent checkouts opening two gateway
// sessions for the same (event, user). Backed by redis SetNX.
type SessionLocker interface {
	AcquireCheckout(ctx context.Context, eventID, userID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseCheckout(ctx context.Context, eventID, userID uuid.UUID) error
}

// Gateway is the slice of the payment client the orchestrator uses.
type Gateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.Session, error)
}

type Orchestrator struct {
	store   Store
	gw      Gateway
	locks   SessionLocker
	lockTTL time.Duration
	logger  observability.Logger
}

func NewOrchestrator(store Store, gw Gateway, locks SessionLocker, logger observability.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		gw:      gw,
		locks:   locks,
		lockTTL: 30 * time.Second,
		logger:  logger,
	}
}

type CheckoutResult struct {
	AttendeeID uuid.UUID
	Pidx       string
	PaymentURL string
	Amount     int64
}

// StartCheckout creates or reuses the pending ticket for (event, user),
// opens a gateway session for the total price and records the session id
// on the row. Only session creation fails synchronously; everything after
// the redirect is reconciled through callback, poll or sweep.
func (o *Orchestrator) StartCheckout(ctx context.Context, eventID, userID uuid.UUID, ticketType string, quantity int) (CheckoutResult, error) {
	if ticketType == "" {
		ticketType = "General"
	}
	if quantity < 1 {
		return CheckoutResult{}, errors.Wrap(domain.ErrInvalidInput, "quantity must be at least 1")
	}

	event, err := o.store.EventByID(ctx, eventID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if event.Status != domain.EventPublished {
		return CheckoutResult{}, domain.ErrEventNotPublished
	}
	if event.IsFree {
		return CheckoutResult{}, domain.ErrEventFree
	}

	total := event.Price * int64(quantity)
	if total <= 0 {
		return CheckoutResult{}, domain.ErrInvalidPrice
	}

	user, err := o.store.UserByID(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}

	existing, err := o.store.AttendeeByEventUser(ctx, eventID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return CheckoutResult{}, err
	}
	if err == nil && existing.Status == domain.AttendeeRegistered {
		return CheckoutResult{}, domain.ErrAlreadyRegistered
	}

	ok, err := o.locks.AcquireCheckout(ctx, eventID, userID, o.lockTTL)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !ok {
		return CheckoutResult{}, errors.Wrap(domain.ErrConflict, "checkout already in progress")
	}
	defer func() {
		if err := o.locks.ReleaseCheckout(ctx, eventID, userID); err != nil {
			o.logger.Warn("failed to release checkout lock", err)
		}
	}()

	att, err := o.store.UpsertPendingAttendee(ctx, eventID, userID, ticketType, quantity, total)
	if err != nil {
		return CheckoutResult{}, err
	}

	session, err := o.gw.Initiate(ctx, gateway.InitiateRequest{
		AmountPaisa:       total,
		PurchaseOrderID:   att.ID.String(),
		PurchaseOrderName: fmt.Sprintf("%dx Ticket for %s", quantity, event.Title),
		Customer: &gateway.CustomerInfo{
			Name:  user.Username,
			Email: user.Email,
		},
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	if err := o.store.SetAttendeePidx(ctx, att.ID, session.Pidx); err != nil {
		// The session exists at the gateway but was not recorded, so the
		// sweep can never reconcile it. Surface loudly.
		o.logger.WithField("attendee_id", att.ID).WithField("pidx", session.Pidx).
			Error("failed to persist gateway session id", err)
		return CheckoutResult{}, err
	}

	return CheckoutResult{
		AttendeeID: att.ID,
		Pidx:       session.Pidx,
		PaymentURL: session.PaymentURL,
		Amount:     total,
	}, nil
}

// RegisterForEvent is the free-event path. CANCELLED rows reactivate rather
// than duplicating; a full event produces a WAITLIST row.
func (o *Orchestrator) RegisterForEvent(ctx context.Context, eventID, userID uuid.UUID, ticketType string) (domain.Attendee, error) {
	if ticketType == "" {
		ticketType = "General"
	}

	event, err := o.store.EventByID(ctx, eventID)
	if err != nil {
		return domain.Attendee{}, err
	}
	if event.Status != domain.EventPublished {
		return domain.Attendee{}, domain.ErrEventNotPublished
	}

	existing, err := o.store.AttendeeByEventUser(ctx, eventID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Attendee{}, err
	}
	if err == nil {
		if existing.Status == domain.AttendeeCancelled {
			return o.store.ReactivateAttendee(ctx, existing.ID)
		}
		return domain.Attendee{}, domain.ErrAlreadyRegistered
	}

	return o.store.RegisterWithCapacity(ctx, eventID, userID, ticketType)
}

// CancelRegistration marks an active registration CANCELLED.
func (o *Orchestrator) CancelRegistration(ctx context.Context, eventID, userID uuid.UUID) error {
	att, err := o.store.AttendeeByEventUser(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotRegistered
		}
		return err
	}
	if att.Status == domain.AttendeeCancelled {
		return domain.ErrNotRegistered
	}
	return o.store.CancelAttendee(ctx, att.ID)
}
