package payout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/observability"
)

type fakePayoutStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	payouts  map[uuid.UUID]*domain.Payout
	outbox   []domain.OutboxEvent
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{
		balances: map[uuid.UUID]int64{},
		payouts:  map[uuid.UUID]*domain.Payout{},
	}
}

func (f *fakePayoutStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&fakePayoutTx{store: f})
}

type fakePayoutTx struct {
	store *fakePayoutStore
}

func (t *fakePayoutTx) DebitIfSufficient(_ context.Context, userID uuid.UUID, amount int64) (bool, error) {
	if t.store.balances[userID] < amount {
		return false, nil
	}
	t.store.balances[userID] -= amount
	return true, nil
}

func (t *fakePayoutTx) CreditBalance(_ context.Context, userID uuid.UUID, amount int64) error {
	t.store.balances[userID] += amount
	return nil
}

func (t *fakePayoutTx) CreatePayout(_ context.Context, p domain.Payout) error {
	cp := p
	t.store.payouts[p.ID] = &cp
	return nil
}

func (t *fakePayoutTx) PayoutForUpdate(_ context.Context, id uuid.UUID) (domain.Payout, error) {
	p, ok := t.store.payouts[id]
	if !ok {
		return domain.Payout{}, domain.ErrNotFound
	}
	return *p, nil
}

func (t *fakePayoutTx) ResolvePayout(_ context.Context, id uuid.UUID, status domain.PayoutStatus, processedAt time.Time) (bool, error) {
	p, ok := t.store.payouts[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != domain.PayoutPending {
		return false, nil
	}
	p.Status = status
	p.ProcessedAt = &processedAt
	return true, nil
}

func (t *fakePayoutTx) InsertOutbox(_ context.Context, ev domain.OutboxEvent) error {
	t.store.outbox = append(t.store.outbox, ev)
	return nil
}

func TestRequest_EscrowsBalance(t *testing.T) {
	store := newFakePayoutStore()
	user := uuid.New()
	store.balances[user] = 5000

	svc := NewService(store, observability.NewNopLogger())

	p, err := svc.Request(context.Background(), user, 2000, "bank:1234")
	require.NoError(t, err)

	assert.Equal(t, int64(3000), store.balances[user])
	assert.Equal(t, domain.PayoutPending, store.payouts[p.ID].Status)
	require.Len(t, store.outbox, 1)
	assert.Equal(t, "payout.requested", store.outbox[0].EventType)
}

func TestRequest_InsufficientBalance(t *testing.T) {
	store := newFakePayoutStore()
	user := uuid.New()
	store.balances[user] = 1500

	svc := NewService(store, observability.NewNopLogger())

	_, err := svc.Request(context.Background(), user, 2000, "bank:1234")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, int64(1500), store.balances[user])
	assert.Empty(t, store.payouts)
	assert.Empty(t, store.outbox)
}

func TestRequest_Validation(t *testing.T) {
	store := newFakePayoutStore()
	svc := NewService(store, observability.NewNopLogger())

	_, err := svc.Request(context.Background(), uuid.New(), 0, "bank:1234")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Request(context.Background(), uuid.New(), -100, "bank:1234")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Request(context.Background(), uuid.New(), 100, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRequest_ConcurrentCannotOverdraw(t *testing.T) {
	store := newFakePayoutStore()
	user := uuid.New()
	store.balances[user] = 3000

	svc := NewService(store, observability.NewNopLogger())

	const n = 10
	var wg sync.WaitGroup
	var succeeded int64
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Request(context.Background(), user, 1000, "bank:1234"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), succeeded)
	assert.Equal(t, int64(0), store.balances[user])
}

func TestResolve_RejectedRefundsExactly(t *testing.T) {
	store := newFakePayoutStore()
	user := uuid.New()
	store.balances[user] = 5000

	svc := NewService(store, observability.NewNopLogger())

	p, err := svc.Request(context.Background(), user, 2000, "bank:1234")
	require.NoError(t, err)
	require.Equal(t, int64(3000), store.balances[user])

	require.NoError(t, svc.Resolve(context.Background(), p.ID, domain.PayoutRejected))

	assert.Equal(t, int64(5000), store.balances[user])
	assert.Equal(t, domain.PayoutRejected, store.payouts[p.ID].Status)
	require.NotNil(t, store.payouts[p.ID].ProcessedAt)
}

func TestResolve_PaidLeavesEscrowedBalance(t *testing.T) {
	store := newFakePayoutStore()
	user := uuid.New()
	store.balances[user] = 5000

	svc := NewService(store, observability.NewNopLogger())

	p, err := svc.Request(context.Background(), user, 2000, "bank:1234")
	require.NoError(t, err)

	require.NoError(t, svc.Resolve(context.Background(), p.ID, domain.PayoutPaid))

	assert.Equal(t, int64(3000), store.balances[user])
	assert.Equal(t, domain.PayoutPaid, store.payouts[p.ID].Status)
}

func TestResolve_TwiceIsAlreadyProcessed(t *testing.T) {
	store := newFakePayoutStore()
	user := uuid.New()
	store.balances[user] = 5000

	svc := NewService(store, observability.NewNopLogger())

	p, err := svc.Request(context.Background(), user, 2000, "bank:1234")
	require.NoError(t, err)

	require.NoError(t, svc.Resolve(context.Background(), p.ID, domain.PayoutRejected))
	err = svc.Resolve(context.Background(), p.ID, domain.PayoutRejected)
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	// A second rejection must not refund twice.
	assert.Equal(t, int64(5000), store.balances[user])
}

func TestResolve_InvalidDecision(t *testing.T) {
	store := newFakePayoutStore()
	svc := NewService(store, observability.NewNopLogger())

	err := svc.Resolve(context.Background(), uuid.New(), domain.PayoutPending)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResolve_UnknownPayout(t *testing.T) {
	store := newFakePayoutStore()
	svc := NewService(store, observability.NewNopLogger())

	err := svc.Resolve(context.Background(), uuid.New(), domain.PayoutPaid)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
