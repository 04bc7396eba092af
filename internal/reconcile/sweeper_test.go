package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/gateway"
	"github.com/eventloom/ticketpay/internal/observability"
)

type fakeSweepStore struct {
	pending []domain.Attendee
}

func (f *fakeSweepStore) PendingWithSession(_ context.Context, limit int) ([]domain.Attendee, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

type fakeSweepGateway struct {
	mu      sync.Mutex
	results map[string]gateway.Verification
	errs    map[string]error
	lookups []string
}

func (g *fakeSweepGateway) Lookup(_ context.Context, pidx string) (gateway.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups = append(g.lookups, pidx)
	if err, ok := g.errs[pidx]; ok {
		return gateway.Verification{}, err
	}
	return g.results[pidx], nil
}

type fakeSettler struct {
	mu      sync.Mutex
	settled []uuid.UUID
	failed  []uuid.UUID
}

func (s *fakeSettler) VerifyAndApply(_ context.Context, att domain.Attendee, _ gateway.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = append(s.settled, att.ID)
	return nil
}

func (s *fakeSettler) MarkFailed(_ context.Context, attendeeID uuid.UUID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, attendeeID)
	return nil
}

func pendingWithPidx(pidx string) domain.Attendee {
	return domain.Attendee{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		UserID:        uuid.New(),
		Status:        domain.AttendeePending,
		PaymentStatus: domain.PaymentPending,
		PaymentAmount: 1000,
		Pidx:          &pidx,
	}
}

func TestSweepOnce(t *testing.T) {
	completed := pendingWithPidx("pidx-completed")
	expired := pendingWithPidx("pidx-expired")
	inflight := pendingWithPidx("pidx-inflight")
	unreachable := pendingWithPidx("pidx-down")

	store := &fakeSweepStore{pending: []domain.Attendee{completed, expired, inflight, unreachable}}
	gw := &fakeSweepGateway{
		results: map[string]gateway.Verification{
			"pidx-completed": {Pidx: "pidx-completed", Status: gateway.StatusCompleted, TotalAmount: 1000, PurchaseOrderID: completed.ID.String()},
			"pidx-expired":   {Pidx: "pidx-expired", Status: gateway.StatusExpired},
			"pidx-inflight":  {Pidx: "pidx-inflight", Status: gateway.StatusPending},
		},
		errs: map[string]error{
			"pidx-down": errors.Wrap(domain.ErrGatewayUnavailable, "connection refused"),
		},
	}
	settler := &fakeSettler{}

	sweeper := NewSweeper(store, gw, settler, observability.NewNopLogger())
	require.NoError(t, sweeper.SweepOnce(context.Background()))

	assert.Equal(t, []uuid.UUID{completed.ID}, settler.settled)
	assert.Equal(t, []uuid.UUID{expired.ID}, settler.failed)
	assert.Len(t, gw.lookups, 4)
}

func TestSweepOnce_Empty(t *testing.T) {
	store := &fakeSweepStore{}
	gw := &fakeSweepGateway{}
	settler := &fakeSettler{}

	sweeper := NewSweeper(store, gw, settler, observability.NewNopLogger())
	require.NoError(t, sweeper.SweepOnce(context.Background()))
	assert.Empty(t, gw.lookups)
}

func TestSweepOnce_SkipsRowsWithoutSession(t *testing.T) {
	att := domain.Attendee{ID: uuid.New(), PaymentStatus: domain.PaymentPending}
	store := &fakeSweepStore{pending: []domain.Attendee{att}}
	gw := &fakeSweepGateway{}
	settler := &fakeSettler{}

	sweeper := NewSweeper(store, gw, settler, observability.NewNopLogger())
	require.NoError(t, sweeper.SweepOnce(context.Background()))
	assert.Empty(t, gw.lookups)
	assert.Empty(t, settler.settled)
}

func TestSweepOnce_RespectsBatchLimit(t *testing.T) {
	store := &fakeSweepStore{}
	for i := 0; i < 150; i++ {
		store.pending = append(store.pending, pendingWithPidx(uuid.New().String()))
	}
	gw := &fakeSweepGateway{results: map[string]gateway.Verification{}}
	settler := &fakeSettler{}

	sweeper := NewSweeper(store, gw, settler, observability.NewNopLogger())
	require.NoError(t, sweeper.SweepOnce(context.Background()))
	assert.Len(t, gw.lookups, 100)
}
