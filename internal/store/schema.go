package store

import (
	"context"
	"fmt"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	post_fee   BIGINT CHECK (post_fee >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS listings (
	id           BIGSERIAL PRIMARY KEY,
	seller_id    BIGINT NOT NULL,
	category_id  BIGINT NOT NULL REFERENCES categories(id),
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	price        BIGINT NOT NULL CHECK (price >= 0),
	quantity     INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
	sold         INTEGER NOT NULL DEFAULT 0 CHECK (sold >= 0),
	is_available BOOLEAN NOT NULL DEFAULT TRUE,
	post_fee     BIGINT NOT NULL DEFAULT 0 CHECK (post_fee >= 0),
	fee_source   TEXT NOT NULL DEFAULT 'NONE',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);

CREATE TABLE IF NOT EXISTS orders (
	id           BIGSERIAL PRIMARY KEY,
	buyer_id     BIGINT NOT NULL,
	total_amount BIGINT NOT NULL CHECK (total_amount >= 0),
	status       TEXT NOT NULL CHECK (status IN ('pending', 'shipping', 'completed', 'cancelled')),
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id);

CREATE TABLE IF NOT EXISTS order_items (
	id         BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL REFERENCES orders(id),
	listing_id BIGINT NOT NULL REFERENCES listings(id),
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	price      BIGINT NOT NULL CHECK (price >= 0)
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
CREATE INDEX IF NOT EXISTS idx_order_items_listing ON order_items(listing_id);

CREATE TABLE IF NOT EXISTS vouchers (
	id            BIGSERIAL PRIMARY KEY,
	code          TEXT NOT NULL UNIQUE,
	discount_type TEXT NOT NULL CHECK (discount_type IN ('percent', 'fixed')),
	value         NUMERIC(14, 2) NOT NULL CHECK (value > 0),
	category_id   BIGINT REFERENCES categories(id),
	starts_at     TIMESTAMPTZ NOT NULL,
	ends_at       TIMESTAMPTZ,
	usage_limit   INTEGER NOT NULL CHECK (usage_limit > 0),
	used_count    INTEGER NOT NULL DEFAULT 0 CHECK (used_count >= 0 AND used_count <= usage_limit),
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_by    BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS voucher_assignments (
	voucher_id   BIGINT NOT NULL REFERENCES vouchers(id),
	seller_id    BIGINT NOT NULL,
	issued_count INTEGER NOT NULL CHECK (issued_count > 0),
	assigned_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (voucher_id, seller_id)
);

CREATE TABLE IF NOT EXISTS voucher_redemptions (
	id          BIGSERIAL PRIMARY KEY,
	voucher_id  BIGINT NOT NULL REFERENCES vouchers(id),
	seller_id   BIGINT NOT NULL,
	listing_id  BIGINT NOT NULL REFERENCES listings(id),
	discount    BIGINT NOT NULL CHECK (discount >= 0),
	redeemed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (voucher_id, listing_id)
);
CREATE INDEX IF NOT EXISTS idx_voucher_redemptions_seller ON voucher_redemptions(voucher_id, seller_id);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	post_fee   INTEGER CHECK (post_fee >= 0),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS listings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	seller_id    INTEGER NOT NULL,
	category_id  INTEGER NOT NULL REFERENCES categories(id),
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	price        INTEGER NOT NULL CHECK (price >= 0),
	quantity     INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
	sold         INTEGER NOT NULL DEFAULT 0 CHECK (sold >= 0),
	is_available BOOLEAN NOT NULL DEFAULT 1,
	post_fee     INTEGER NOT NULL DEFAULT 0 CHECK (post_fee >= 0),
	fee_source   TEXT NOT NULL DEFAULT 'NONE',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);

CREATE TABLE IF NOT EXISTS orders (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	buyer_id     INTEGER NOT NULL,
	total_amount INTEGER NOT NULL CHECK (total_amount >= 0),
	status       TEXT NOT NULL CHECK (status IN ('pending', 'shipping', 'completed', 'cancelled')),
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id);

CREATE TABLE IF NOT EXISTS order_items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id   INTEGER NOT NULL REFERENCES orders(id),
	listing_id INTEGER NOT NULL REFERENCES listings(id),
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	price      INTEGER NOT NULL CHECK (price >= 0)
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
CREATE INDEX IF NOT EXISTS idx_order_items_listing ON order_items(listing_id);

CREATE TABLE IF NOT EXISTS vouchers (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	code          TEXT NOT NULL UNIQUE,
	discount_type TEXT NOT NULL CHECK (discount_type IN ('percent', 'fixed')),
	value         NUMERIC NOT NULL CHECK (value > 0),
	category_id   INTEGER REFERENCES categories(id),
	starts_at     TIMESTAMP NOT NULL,
	ends_at       TIMESTAMP,
	usage_limit   INTEGER NOT NULL CHECK (usage_limit > 0),
	used_count    INTEGER NOT NULL DEFAULT 0 CHECK (used_count >= 0 AND used_count <= usage_limit),
	active        BOOLEAN NOT NULL DEFAULT 1,
	created_by    INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS voucher_assignments (
	voucher_id   INTEGER NOT NULL REFERENCES vouchers(id),
	seller_id    INTEGER NOT NULL,
	issued_count INTEGER NOT NULL CHECK (issued_count > 0),
	assigned_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (voucher_id, seller_id)
);

CREATE TABLE IF NOT EXISTS voucher_redemptions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	voucher_id  INTEGER NOT NULL REFERENCES vouchers(id),
	seller_id   INTEGER NOT NULL,
	listing_id  INTEGER NOT NULL REFERENCES listings(id),
	discount    INTEGER NOT NULL CHECK (discount >= 0),
	redeemed_at TIMESTAMP NOT NULL,
	UNIQUE (voucher_id, listing_id)
);
CREATE INDEX IF NOT EXISTS idx_voucher_redemptions_seller ON voucher_redemptions(voucher_id, seller_id);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Migrate creates the tables owned by the marketplace core
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.driver == DriverSQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
