package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied at startup. Balance and price are BIGINT minor units;
// the events CHECK enforces the is_free/price pairing at the storage layer
// as well as in domain.NewEvent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'MODERATOR', 'ADMIN')),
	balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	organizer_id UUID NOT NULL REFERENCES users (id),
	title TEXT NOT NULL,
	price BIGINT NOT NULL CHECK (price >= 0),
	is_free BOOLEAN NOT NULL,
	capacity INT,
	status TEXT NOT NULL DEFAULT 'DRAFT' CHECK (status IN ('DRAFT', 'PUBLISHED', 'CANCELLED')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (is_free = (price = 0))
);

CREATE TABLE IF NOT EXISTS attendees (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events (id),
	user_id UUID NOT NULL REFERENCES users (id),
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'REGISTERED', 'WAITLIST', 'CANCELLED', 'ATTENDED')),
	payment_status TEXT NOT NULL CHECK (payment_status IN ('PENDING', 'COMPLETED', 'FAILED')),
	ticket_type TEXT NOT NULL DEFAULT 'General',
	ticket_count INT NOT NULL DEFAULT 1,
	payment_amount BIGINT NOT NULL DEFAULT 0,
	platform_fee BIGINT NOT NULL DEFAULT 0,
	pidx TEXT,
	transaction_id TEXT,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (event_id, user_id)
);

CREATE INDEX IF NOT EXISTS attendees_pending_session_idx
	ON attendees (registered_at)
	WHERE payment_status = 'PENDING' AND pidx IS NOT NULL;

CREATE TABLE IF NOT EXISTS payouts (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users (id),
	amount BIGINT NOT NULL CHECK (amount > 0),
	destination TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PAID', 'REJECTED')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT INTO settings (key, value) VALUES ('COMMISSION_RATE', '10')
	ON CONFLICT (key) DO NOTHING;

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
