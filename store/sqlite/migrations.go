package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the token sale store (SQLite).
// Time columns hold fixed-width RFC 3339 UTC text.
var Migrations = migrate.NewGroup("tokensale")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tokensale_sales",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tokensale_sales (
    id              TEXT PRIMARY KEY,
    seq             INTEGER NOT NULL,
    address         TEXT NOT NULL,
    admin           TEXT NOT NULL,
    project_owner   TEXT NOT NULL,
    token           TEXT NOT NULL,
    initial_rate    TEXT NOT NULL,
    tokens_per_unit TEXT NOT NULL,
    hard_cap        TEXT NOT NULL,
    start_time      TEXT NOT NULL,
    end_time        TEXT NOT NULL,
    weighted        INTEGER NOT NULL DEFAULT 0,
    curve           TEXT NOT NULL DEFAULT '',
    threshold       TEXT NOT NULL,
    cooldown_ns     INTEGER NOT NULL DEFAULT 0,
    admin_fee_bps   INTEGER NOT NULL DEFAULT 0,
    metadata        TEXT NOT NULL DEFAULT '{}',
    raised_amount   TEXT NOT NULL DEFAULT '0',
    ended           INTEGER NOT NULL DEFAULT 0,
    ended_at        TEXT,
    withdrawn       INTEGER NOT NULL DEFAULT 0,
    withdrawn_at    TEXT,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tokensale_sales_seq ON tokensale_sales (seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tokensale_sales_address ON tokensale_sales (address);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tokensale_sales`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tokensale_limits",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tokensale_limits (
    sale_id           TEXT NOT NULL,
    address           TEXT NOT NULL,
    amount            TEXT NOT NULL DEFAULT '0',
    timeout           TEXT,
    first_purchase_at TEXT,
    last_purchase_at  TEXT,
    purchases         INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (sale_id, address)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tokensale_limits`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tokensale_purchases",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tokensale_purchases (
    id              TEXT PRIMARY KEY,
    sale_id         TEXT NOT NULL,
    buyer           TEXT NOT NULL,
    contribution    TEXT NOT NULL,
    accepted        TEXT NOT NULL,
    cap_refund      TEXT NOT NULL DEFAULT '0',
    throttle_refund TEXT NOT NULL DEFAULT '0',
    rate            TEXT NOT NULL,
    tokens          TEXT NOT NULL,
    throttled       INTEGER NOT NULL DEFAULT 0,
    cap_reached     INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tokensale_purchases_sale ON tokensale_purchases (sale_id, created_at);
CREATE INDEX IF NOT EXISTS idx_tokensale_purchases_buyer ON tokensale_purchases (sale_id, buyer);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tokensale_purchases`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tokensale_withdrawals",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tokensale_withdrawals (
    id            TEXT PRIMARY KEY,
    sale_id       TEXT NOT NULL,
    kind          TEXT NOT NULL,
    admin         TEXT NOT NULL,
    project_owner TEXT NOT NULL,
    admin_amount  TEXT NOT NULL DEFAULT '0',
    owner_amount  TEXT NOT NULL DEFAULT '0',
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tokensale_withdrawals_sale ON tokensale_withdrawals (sale_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tokensale_withdrawals_funds ON tokensale_withdrawals (sale_id) WHERE kind = 'funds';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tokensale_withdrawals`)
				return err
			},
		},
	)
}
