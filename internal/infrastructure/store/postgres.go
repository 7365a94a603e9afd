package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres establishes a connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// EnsureSchema creates the tables and the order-number sequence if they do
// not exist. Order numbers come from a database sequence so concurrent order
// creation can never collide on allocation.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT UNIQUE NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT 'customer',
			password_hash TEXT NOT NULL,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			last_login_at TIMESTAMPTZ,
			logged_out_at TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			expires_at    TIMESTAMPTZ NOT NULL,
			logged_out_at TIMESTAMPTZ,
			user_agent    TEXT NOT NULL DEFAULT '',
			ip_address    TEXT NOT NULL DEFAULT '',
			CHECK (expires_at > created_at)
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id)`,
		`CREATE SEQUENCE IF NOT EXISTS order_numbers START 1000`,
		`CREATE TABLE IF NOT EXISTS orders (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			order_number   BIGINT UNIQUE NOT NULL,
			order_date     TIMESTAMPTZ NOT NULL,
			status         TEXT NOT NULL,
			subtotal       BIGINT NOT NULL,
			tax_total      BIGINT NOT NULL,
			shipping_total BIGINT NOT NULL,
			grand_total    BIGINT NOT NULL,
			notes          TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			CHECK (grand_total = subtotal + tax_total + shipping_total)
		)`,
		`CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id              TEXT PRIMARY KEY,
			order_id        TEXT NOT NULL REFERENCES orders (id),
			item_id         TEXT NOT NULL,
			variant_id      TEXT NOT NULL,
			name_en         TEXT NOT NULL DEFAULT '',
			name_fr         TEXT NOT NULL DEFAULT '',
			variant_name_en TEXT NOT NULL DEFAULT '',
			variant_name_fr TEXT NOT NULL DEFAULT '',
			quantity        INT NOT NULL CHECK (quantity > 0),
			unit_price      BIGINT NOT NULL,
			total_price     BIGINT NOT NULL,
			status          TEXT NOT NULL,
			delivered_at    TIMESTAMPTZ,
			on_hold_reason  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS order_items_order_id_idx ON order_items (order_id)`,
		`CREATE TABLE IF NOT EXISTS order_addresses (
			id             TEXT PRIMARY KEY,
			order_id       TEXT NOT NULL REFERENCES orders (id),
			type           TEXT NOT NULL,
			recipient      TEXT NOT NULL DEFAULT '',
			line1          TEXT NOT NULL DEFAULT '',
			line2          TEXT NOT NULL DEFAULT '',
			city           TEXT NOT NULL DEFAULT '',
			province_state TEXT NOT NULL DEFAULT '',
			postal_code    TEXT NOT NULL DEFAULT '',
			country        TEXT NOT NULL DEFAULT '',
			phone          TEXT NOT NULL DEFAULT '',
			UNIQUE (order_id, type)
		)`,
		`CREATE TABLE IF NOT EXISTS order_payments (
			id                TEXT PRIMARY KEY,
			order_id          TEXT UNIQUE NOT NULL REFERENCES orders (id),
			payment_method_id TEXT NOT NULL DEFAULT '',
			amount            BIGINT NOT NULL,
			provider          TEXT NOT NULL DEFAULT '',
			provider_ref      TEXT NOT NULL DEFAULT '',
			paid_at           TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS item_variants (
			item_id         TEXT NOT NULL,
			variant_id      TEXT NOT NULL,
			name_en         TEXT NOT NULL DEFAULT '',
			name_fr         TEXT NOT NULL DEFAULT '',
			variant_name_en TEXT NOT NULL DEFAULT '',
			variant_name_fr TEXT NOT NULL DEFAULT '',
			unit_price      BIGINT NOT NULL,
			stock           INT NOT NULL DEFAULT 0,
			PRIMARY KEY (item_id, variant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tax_rates (
			country        TEXT NOT NULL,
			province_state TEXT NOT NULL DEFAULT '',
			rate_bps       BIGINT NOT NULL,
			PRIMARY KEY (country, province_state)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
