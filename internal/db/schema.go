package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// bootstrapLockKey serializes schema setup across replicas starting at once.
const bootstrapLockKey = 0x726f_786f_7274

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS players (
		telegram_id             BIGINT PRIMARY KEY,
		username                TEXT NOT NULL DEFAULT '',
		currency                BIGINT NOT NULL DEFAULT 0,
		clicks                  BIGINT NOT NULL DEFAULT 0,
		level                   BIGINT NOT NULL DEFAULT 1,
		experience              BIGINT NOT NULL DEFAULT 0,
		multiplier              DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		referral_code           TEXT UNIQUE,
		referrer_id             BIGINT REFERENCES players(telegram_id),
		referral_reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
		last_active             TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_players_referrer ON players (referrer_id) WHERE referrer_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_players_currency ON players (currency DESC, telegram_id)`,
	`CREATE TABLE IF NOT EXISTS upgrade_purchases (
		id          BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL REFERENCES players(telegram_id) ON DELETE CASCADE,
		upgrade_id  TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_player ON upgrade_purchases (telegram_id, upgrade_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_upgrade ON upgrade_purchases (upgrade_id)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		telegram_id BIGINT NOT NULL,
		key         TEXT NOT NULL,
		action      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (telegram_id, key)
	)`,
}

// EnsureSchema creates the tables on first boot. An advisory lock keeps
// concurrent replicas from tripping over each other's DDL; losers of the
// lock race just wait and find the schema already present.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn for schema: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, bootstrapLockKey); err != nil {
		return fmt.Errorf("schema advisory lock: %w", err)
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, bootstrapLockKey)

	for _, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
