package pg_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eventloom/ticketpay/internal/adapters/pg"
	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/payout"
	"github.com/eventloom/ticketpay/internal/settlement"
)

func startPostgres(t *testing.T) *pg.Repository {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ticketpay",
				"POSTGRES_PASSWORD": "ticketpay",
				"POSTGRES_DB":       "ticketpay",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	endpoint, err := pgContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, "postgres://ticketpay:ticketpay@"+endpoint+"/ticketpay?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return pg.NewRepository(pool)
}

func seedUser(t *testing.T, repo *pg.Repository, role domain.Role, balance int64) domain.User {
	t.Helper()
	u := domain.User{
		ID:       uuid.New(),
		Username: "u-" + uuid.New().String()[:8],
		Email:    uuid.New().String() + "@example.com",
		Role:     role,
		Balance:  balance,
	}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func seedPublishedEvent(t *testing.T, repo *pg.Repository, organizerID uuid.UUID, price int64, capacity *int) domain.Event {
	t.Helper()
	ev, err := domain.NewEvent(organizerID, "Tihar Night Market", price, price == 0, capacity)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if err := repo.PublishEvent(context.Background(), ev.ID); err != nil {
		t.Fatal(err)
	}
	ev.Status = domain.EventPublished
	return ev
}

func TestRepository_SettlementFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo := startPostgres(t)
	ctx := context.Background()

	organizer := seedUser(t, repo, domain.RoleUser, 0)
	platform := seedUser(t, repo, domain.RoleAdmin, 0)
	buyer := seedUser(t, repo, domain.RoleUser, 0)
	event := seedPublishedEvent(t, repo, organizer.ID, 1000, nil)

	att, err := repo.UpsertPendingAttendee(ctx, event.ID, buyer.ID, "General", 1, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if att.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected PENDING, got %s", att.PaymentStatus)
	}

	// Retrying checkout reuses the same row.
	again, err := repo.UpsertPendingAttendee(ctx, event.ID, buyer.ID, "VIP", 2, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != att.ID {
		t.Errorf("expected reused attendee row, got a new one")
	}

	store := pg.SettlementStore{Repository: repo}
	err = store.InTx(ctx, func(tx settlement.Tx) error {
		row, err := tx.AttendeeForSettlement(ctx, att.ID)
		if err != nil {
			return err
		}
		won, err := tx.CompleteAttendee(ctx, att.ID, "txn-123", 2000, 200)
		if err != nil {
			return err
		}
		if !won {
			t.Error("expected first completion to win")
		}
		if err := tx.CreditBalance(ctx, row.OrganizerID, 1800); err != nil {
			return err
		}
		return tx.CreditBalance(ctx, platform.ID, 200)
	})
	if err != nil {
		t.Fatal(err)
	}

	// Completion is a one-way gate.
	err = store.InTx(ctx, func(tx settlement.Tx) error {
		won, err := tx.CompleteAttendee(ctx, att.ID, "txn-456", 2000, 200)
		if err != nil {
			return err
		}
		if won {
			t.Error("completed attendee must not complete again")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	organizerBalance, err := repo.Balance(ctx, organizer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if organizerBalance != 1800 {
		t.Errorf("expected organizer balance 1800, got %d", organizerBalance)
	}

	// A completed row refuses a new checkout.
	_, err = repo.UpsertPendingAttendee(ctx, event.ID, buyer.ID, "General", 1, 1000)
	if !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRepository_RegisterWithCapacity(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo := startPostgres(t)
	ctx := context.Background()

	organizer := seedUser(t, repo, domain.RoleUser, 0)
	capacity := 1
	event := seedPublishedEvent(t, repo, organizer.ID, 0, &capacity)

	first := seedUser(t, repo, domain.RoleUser, 0)
	att, err := repo.RegisterWithCapacity(ctx, event.ID, first.ID, "General")
	if err != nil {
		t.Fatal(err)
	}
	if att.Status != domain.AttendeeRegistered {
		t.Errorf("expected REGISTERED, got %s", att.Status)
	}
	if att.PaymentStatus != domain.PaymentCompleted {
		t.Errorf("free registration should complete immediately, got %s", att.PaymentStatus)
	}

	second := seedUser(t, repo, domain.RoleUser, 0)
	waitlisted, err := repo.RegisterWithCapacity(ctx, event.ID, second.ID, "General")
	if err != nil {
		t.Fatal(err)
	}
	if waitlisted.Status != domain.AttendeeWaitlist {
		t.Errorf("expected WAITLIST once capacity is full, got %s", waitlisted.Status)
	}
}

func TestRepository_PayoutEscrow(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo := startPostgres(t)
	ctx := context.Background()

	user := seedUser(t, repo, domain.RoleUser, 5000)
	store := pg.PayoutStore{Repository: repo}

	p := domain.Payout{
		ID:          uuid.New(),
		UserID:      user.ID,
		Amount:      2000,
		Destination: "bank:1234",
		Status:      domain.PayoutPending,
		CreatedAt:   time.Now(),
	}
	err := store.InTx(ctx, func(tx payout.Tx) error {
		ok, err := tx.DebitIfSufficient(ctx, user.ID, 2000)
		if err != nil {
			return err
		}
		if !ok {
			t.Error("expected debit to succeed")
		}
		return tx.CreatePayout(ctx, p)
	})
	if err != nil {
		t.Fatal(err)
	}

	balance, err := repo.Balance(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 3000 {
		t.Errorf("expected escrowed balance 3000, got %d", balance)
	}

	// Overdraw is refused without touching the balance.
	err = store.InTx(ctx, func(tx payout.Tx) error {
		ok, err := tx.DebitIfSufficient(ctx, user.ID, 10000)
		if err != nil {
			return err
		}
		if ok {
			t.Error("expected overdraw to be refused")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Resolution is a one-shot transition.
	err = store.InTx(ctx, func(tx payout.Tx) error {
		won, err := tx.ResolvePayout(ctx, p.ID, domain.PayoutRejected, time.Now())
		if err != nil {
			return err
		}
		if !won {
			t.Error("expected first resolution to win")
		}
		return tx.CreditBalance(ctx, user.ID, p.Amount)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = store.InTx(ctx, func(tx payout.Tx) error {
		won, err := tx.ResolvePayout(ctx, p.ID, domain.PayoutPaid, time.Now())
		if err != nil {
			return err
		}
		if won {
			t.Error("resolved payout must not resolve again")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	balance, err = repo.Balance(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 5000 {
		t.Errorf("expected refunded balance 5000, got %d", balance)
	}
}

func TestRepository_CommissionRate(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo := startPostgres(t)
	ctx := context.Background()

	// Seeded default.
	rate, err := repo.CommissionRate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 10 {
		t.Errorf("expected seeded rate 10, got %d", rate)
	}

	if err := repo.SetCommissionRate(ctx, 15); err != nil {
		t.Fatal(err)
	}
	rate, err = repo.CommissionRate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 15 {
		t.Errorf("expected rate 15, got %d", rate)
	}

	if err := repo.SetCommissionRate(ctx, 101); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for out-of-range rate, got %v", err)
	}
}
