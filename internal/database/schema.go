package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// schema is written in the subset of SQL that PostgreSQL and SQLite share.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS principals (
		id             BIGINT PRIMARY KEY,
		username       TEXT NOT NULL DEFAULT '',
		display_name   TEXT NOT NULL DEFAULT '',
		wallet_address TEXT NOT NULL DEFAULT '',
		subscribed     BOOLEAN NOT NULL DEFAULT FALSE,
		balance        BIGINT NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS referrals (
		referral_id BIGINT PRIMARY KEY REFERENCES principals(id),
		referrer_id BIGINT NOT NULL REFERENCES principals(id),
		credit      BIGINT NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		CHECK (referrer_id <> referral_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id)`,
}

// Migrate creates the tables if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	log.Info().Str("driver", db.DriverName()).Int("steps", len(schema)).Msg("database schema ready")
	return nil
}
