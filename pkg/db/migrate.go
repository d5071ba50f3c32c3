package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the DDL statements for the challenge engine, in dependency
// order. Every statement is idempotent so Migrate can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS challenge_settings (
		singleton_id            INT PRIMARY KEY DEFAULT 1 CHECK (singleton_id = 1),
		enabled                 BOOLEAN NOT NULL DEFAULT true,
		announcement_channel_id TEXT NOT NULL DEFAULT '',
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS challenges (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		challenge_type  TEXT NOT NULL,
		target_amount   BIGINT NOT NULL CHECK (target_amount > 0),
		reward_item     TEXT NOT NULL DEFAULT '',
		reward_quantity INT NOT NULL DEFAULT 0,
		enabled         BOOLEAN NOT NULL DEFAULT true,
		status          TEXT NOT NULL DEFAULT 'active',
		current_amount  BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_challenges_type_status
		ON challenges (challenge_type, status) WHERE enabled = true`,
	`CREATE TABLE IF NOT EXISTS contribution_entries (
		challenge_id         TEXT NOT NULL REFERENCES challenges (id) ON DELETE CASCADE,
		contributor_id       TEXT NOT NULL,
		amount               BIGINT NOT NULL DEFAULT 0,
		first_contributed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (challenge_id, contributor_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contribution_entries_leaderboard
		ON contribution_entries (challenge_id, amount DESC, first_contributed_at ASC)`,
	`CREATE TABLE IF NOT EXISTS report_dedup (
		challenge_id    TEXT NOT NULL REFERENCES challenges (id) ON DELETE CASCADE,
		contributor_id  TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		reported_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (challenge_id, contributor_id, idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_report_dedup_reported_at
		ON report_dedup (reported_at)`,
	`CREATE TABLE IF NOT EXISTS reward_grants (
		challenge_id    TEXT NOT NULL REFERENCES challenges (id) ON DELETE CASCADE,
		contributor_id  TEXT NOT NULL,
		reward_item     TEXT NOT NULL,
		reward_quantity INT NOT NULL,
		granted_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (challenge_id, contributor_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reward_grant_failures (
		challenge_id   TEXT NOT NULL REFERENCES challenges (id) ON DELETE CASCADE,
		contributor_id TEXT NOT NULL,
		reason         TEXT NOT NULL,
		failed_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (challenge_id, contributor_id)
	)`,
}

// Migrate applies the engine's schema. Safe to call on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, statement := range schema {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
