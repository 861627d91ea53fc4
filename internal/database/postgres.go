package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectPostgres opens a pgx pool for the relational order store.
func ConnectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ORDER_STORE=postgres")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// EnsurePostgresSchema creates the orders table if it is missing. The CHECK
// constraints repeat the order store rules at the table level.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  id                       text PRIMARY KEY,
  human_reference          text NOT NULL UNIQUE,
  owner_id                 text,
  items                    jsonb NOT NULL,
  subtotal                 bigint NOT NULL CHECK (subtotal >= 0),
  discount_code            text,
  discount_amount          bigint NOT NULL DEFAULT 0 CHECK (discount_amount >= 0),
  total                    bigint NOT NULL CHECK (total = subtotal - discount_amount AND total >= 0),
  customer                 jsonb NOT NULL,
  status                   text NOT NULL CHECK (status IN ('pending','processing','shipped','delivered','cancelled')),
  payment_method           text NOT NULL CHECK (payment_method IN ('cash','gateway')),
  payment_status           text NOT NULL CHECK (payment_status IN ('unpaid','paid')),
  external_transaction_ref text UNIQUE,
  gateway_order_ref        text,
  payment_requested_at     timestamptz,
  payment_response_code    text,
  paid_at                  timestamptz,
  cancel_reason            text,
  version                  bigint NOT NULL,
  created_at               timestamptz NOT NULL,
  updated_at               timestamptz NOT NULL,
  CHECK (payment_method = 'gateway' OR external_transaction_ref IS NULL)
);
CREATE INDEX IF NOT EXISTS orders_owner_id_idx ON orders(owner_id, created_at DESC);
`)
	return err
}
