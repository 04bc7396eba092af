package pg

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventloom/ticketpay/internal/domain"
)

func (r *Repository) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, role, balance)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.Email, u.Role, u.Balance)
	return err
}

func (r *Repository) UserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, email, role, balance FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Balance)
	if err == pgx.ErrNoRows {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Balance reads the spendable balance in minor units.
func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT balance FROM users WHERE id = $1
	`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

// CommissionRate reads the current global rate. It is intentionally read
// fresh per settlement, never cached across settlement decisions.
func (r *Repository) CommissionRate(ctx context.Context) (int, error) {
	var value string
	err := r.pool.QueryRow(ctx, `
		SELECT value FROM settings WHERE key = 'COMMISSION_RATE'
	`).Scan(&value)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	rate, err := strconv.Atoi(value)
	if err != nil || rate < 0 || rate > 100 {
		return 0, domain.ErrInvalidInput
	}
	return rate, nil
}

func (r *Repository) SetCommissionRate(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return domain.ErrInvalidInput
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ('COMMISSION_RATE', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, strconv.Itoa(percent))
	return err
}

func (r *Repository) CreateEvent(ctx context.Context, e domain.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, organizer_id, title, price, is_free, capacity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.OrganizerID, e.Title, e.Price, e.IsFree, e.Capacity, e.Status, e.CreatedAt)
	return err
}

func (r *Repository) EventByID(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var e domain.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, organizer_id, title, price, is_free, capacity, status, created_at
		FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Price, &e.IsFree, &e.Capacity, &e.Status, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Event{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

func (r *Repository) PublishEvent(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE events SET status = 'PUBLISHED' WHERE id = $1 AND status = 'DRAFT'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
