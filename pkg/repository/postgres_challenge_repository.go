package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/errors"

	"github.com/lib/pq" // PostgreSQL driver and error code support
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// PostgresChallengeRepository implements ChallengeRepository using PostgreSQL.
//
// Atomicity strategy: every multi-row write runs either as a single statement
// or inside one transaction whose first statement row-locks the challenge row
// (the counter UPDATE). That row lock serializes concurrent reports per
// challenge while reports for different challenges proceed in parallel, and
// the status CAS updates make the completion transitions exactly-once.
type PostgresChallengeRepository struct {
	db *sql.DB
}

// NewPostgresChallengeRepository creates a new PostgreSQL-backed challenge repository.
func NewPostgresChallengeRepository(db *sql.DB) *PostgresChallengeRepository {
	return &PostgresChallengeRepository{
		db: db,
	}
}

const challengeColumns = `
	id, name, description, challenge_type, target_amount,
	reward_item, reward_quantity, enabled, status, current_amount,
	created_at, completed_at
`

// CreateChallenge inserts a new challenge definition.
func (r *PostgresChallengeRepository) CreateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	query := `
		INSERT INTO challenges (
			id, name, description, challenge_type, target_amount,
			reward_item, reward_quantity, enabled, status, current_amount
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, 'active', 0
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		challenge.ID,
		challenge.Name,
		challenge.Description,
		challenge.Type,
		challenge.TargetAmount,
		challenge.RewardItem,
		challenge.RewardQuantity,
		challenge.Enabled,
	)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pgUniqueViolation {
		return errors.ErrValidationFailed("id", "challenge ID already exists")
	}
	if err != nil {
		return errors.ErrDatabaseError("create challenge", err)
	}

	return nil
}

// UpdateChallenge updates the mutable definition fields of a challenge.
func (r *PostgresChallengeRepository) UpdateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	query := `
		UPDATE challenges
		SET name = $2,
			description = $3,
			challenge_type = $4,
			target_amount = $5,
			reward_item = $6,
			reward_quantity = $7,
			enabled = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		challenge.ID,
		challenge.Name,
		challenge.Description,
		challenge.Type,
		challenge.TargetAmount,
		challenge.RewardItem,
		challenge.RewardQuantity,
		challenge.Enabled,
	)
	if err != nil {
		return errors.ErrDatabaseError("update challenge", err)
	}

	return requireRowAffected(result, challenge.ID)
}

// DeleteChallenge removes a challenge. Ledger entries, dedup keys, grants and
// failures are removed by ON DELETE CASCADE.
func (r *PostgresChallengeRepository) DeleteChallenge(ctx context.Context, challengeID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = $1`, challengeID)
	if err != nil {
		return errors.ErrDatabaseError("delete challenge", err)
	}

	return requireRowAffected(result, challengeID)
}

// GetChallenge retrieves a challenge by ID. Returns nil if it does not exist.
func (r *PostgresChallengeRepository) GetChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`

	challenge, err := scanChallenge(r.db.QueryRowContext(ctx, query, challengeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("get challenge", err)
	}

	return challenge, nil
}

// ListChallenges retrieves all challenges, newest first.
func (r *PostgresChallengeRepository) ListChallenges(ctx context.Context) ([]*domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.ErrDatabaseError("list challenges", err)
	}
	defer func() { _ = rows.Close() }()

	return scanChallengeRows(rows)
}

// ListActiveChallenges retrieves enabled challenges that have not completed.
func (r *PostgresChallengeRepository) ListActiveChallenges(ctx context.Context) ([]*domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE enabled = true AND status != 'completed'
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.ErrDatabaseError("list active challenges", err)
	}
	defer func() { _ = rows.Close() }()

	return scanChallengeRows(rows)
}

// ListActiveByType retrieves enabled, active challenges of one type.
func (r *PostgresChallengeRepository) ListActiveByType(ctx context.Context, challengeType domain.ChallengeType) ([]*domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE challenge_type = $1 AND enabled = true AND status = 'active'
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, challengeType)
	if err != nil {
		return nil, errors.ErrDatabaseError("list active challenges by type", err)
	}
	defer func() { _ = rows.Close() }()

	return scanChallengeRows(rows)
}

// SetEnabled toggles a challenge's visibility.
func (r *PostgresChallengeRepository) SetEnabled(ctx context.Context, challengeID string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE challenges SET enabled = $2 WHERE id = $1`, challengeID, enabled)
	if err != nil {
		return errors.ErrDatabaseError("set challenge enabled", err)
	}

	return requireRowAffected(result, challengeID)
}

// ResetChallenge clears progress, ledger, dedup keys, grants and failures,
// and returns the challenge to active status, all in one transaction.
func (r *PostgresChallengeRepository) ResetChallenge(ctx context.Context, challengeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.ErrDatabaseError("begin reset transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE challenges
		SET current_amount = 0,
			status = 'active',
			completed_at = NULL
		WHERE id = $1
	`, challengeID)
	if err != nil {
		return errors.ErrDatabaseError("reset challenge", err)
	}
	if err := requireRowAffected(result, challengeID); err != nil {
		return err
	}

	for _, table := range []string{"contribution_entries", "report_dedup", "reward_grants", "reward_grant_failures"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE challenge_id = $1`, challengeID); err != nil {
			return errors.ErrDatabaseError("reset challenge: clear "+table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.ErrDatabaseError("commit reset transaction", err)
	}

	return nil
}

// GetSettings loads the settings singleton, creating it with defaults on first access.
func (r *PostgresChallengeRepository) GetSettings(ctx context.Context) (*domain.ChallengeSettings, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO challenge_settings (singleton_id) VALUES (1)
		ON CONFLICT (singleton_id) DO NOTHING
	`)
	if err != nil {
		return nil, errors.ErrDatabaseError("initialize settings", err)
	}

	var settings domain.ChallengeSettings
	err = r.db.QueryRowContext(ctx, `
		SELECT enabled, announcement_channel_id, updated_at
		FROM challenge_settings
		WHERE singleton_id = 1
	`).Scan(&settings.Enabled, &settings.AnnouncementChannelID, &settings.UpdatedAt)
	if err != nil {
		return nil, errors.ErrDatabaseError("get settings", err)
	}

	return &settings, nil
}

// UpdateSettings replaces the settings singleton.
func (r *PostgresChallengeRepository) UpdateSettings(ctx context.Context, settings *domain.ChallengeSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO challenge_settings (singleton_id, enabled, announcement_channel_id, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (singleton_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			announcement_channel_id = EXCLUDED.announcement_channel_id,
			updated_at = NOW()
	`, settings.Enabled, settings.AnnouncementChannelID)
	if err != nil {
		return errors.ErrDatabaseError("update settings", err)
	}

	return nil
}

// ReportProgress atomically applies one progress contribution.
//
// The transaction's first statement is the conditional counter UPDATE, which
// both enforces the enabled/active guards and takes the row lock that
// serializes concurrent reports for the same challenge. The dedup insert and
// ledger upsert then run under that lock; a duplicate key rolls the whole
// transaction back, so the counter never moves for a deduplicated report.
func (r *PostgresChallengeRepository) ReportProgress(ctx context.Context, report ProgressReport) (*domain.ReportResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.ErrDatabaseError("begin report transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var newTotal, targetAmount int64
	err = tx.QueryRowContext(ctx, `
		UPDATE challenges
		SET current_amount = current_amount + $2
		WHERE id = $1 AND enabled = true AND status = 'active'
		RETURNING current_amount, target_amount
	`, report.ChallengeID, report.Amount).Scan(&newTotal, &targetAmount)

	if err == sql.ErrNoRows {
		return nil, r.classifyRejection(ctx, report.ChallengeID)
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("increment challenge counter", err)
	}

	if report.IdempotencyKey != "" {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO report_dedup (challenge_id, contributor_id, idempotency_key)
			VALUES ($1, $2, $3)
			ON CONFLICT (challenge_id, contributor_id, idempotency_key) DO NOTHING
		`, report.ChallengeID, report.ContributorID, report.IdempotencyKey)
		if err != nil {
			return nil, errors.ErrDatabaseError("record idempotency key", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return nil, errors.ErrDatabaseError("check idempotency key insert", err)
		}
		if inserted == 0 {
			// Key already seen: roll back the counter increment and absorb.
			_ = tx.Rollback()
			return &domain.ReportResult{
				ChallengeID: report.ChallengeID,
				Accepted:    false,
				Duplicate:   true,
			}, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contribution_entries (challenge_id, contributor_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (challenge_id, contributor_id) DO UPDATE SET
			amount = contribution_entries.amount + EXCLUDED.amount,
			updated_at = NOW()
	`, report.ChallengeID, report.ContributorID, report.Amount)
	if err != nil {
		return nil, errors.ErrDatabaseError("upsert contribution entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.ErrDatabaseError("commit report transaction", err)
	}

	return &domain.ReportResult{
		ChallengeID:      report.ChallengeID,
		Accepted:         true,
		NewTotal:         newTotal,
		CrossedThreshold: newTotal >= targetAmount && newTotal-report.Amount < targetAmount,
	}, nil
}

// classifyRejection distinguishes why the conditional counter update matched
// no row: challenge missing, disabled, or no longer active.
func (r *PostgresChallengeRepository) classifyRejection(ctx context.Context, challengeID string) error {
	var enabled bool
	var status domain.ChallengeStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT enabled, status FROM challenges WHERE id = $1`, challengeID).Scan(&enabled, &status)

	if err == sql.ErrNoRows {
		return errors.ErrChallengeNotFound(challengeID)
	}
	if err != nil {
		return errors.ErrDatabaseError("classify rejected report", err)
	}

	if !enabled {
		return errors.ErrChallengeDisabled(challengeID)
	}
	return errors.ErrChallengeNotActive(challengeID)
}

// PurgeDedupKeysBefore deletes idempotency keys recorded before cutoff.
func (r *PostgresChallengeRepository) PurgeDedupKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM report_dedup WHERE reported_at < $1`, cutoff)
	if err != nil {
		return 0, errors.ErrDatabaseError("purge dedup keys", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, errors.ErrDatabaseError("count purged dedup keys", err)
	}

	return purged, nil
}

// ClaimCompletion attempts the compare-and-set active -> completing.
func (r *PostgresChallengeRepository) ClaimCompletion(ctx context.Context, challengeID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE challenges
		SET status = 'completing'
		WHERE id = $1 AND status = 'active'
	`, challengeID)
	if err != nil {
		return false, errors.ErrDatabaseError("claim completion", err)
	}

	claimed, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check completion claim", err)
	}

	return claimed == 1, nil
}

// MarkCompleted performs the compare-and-set completing -> completed.
func (r *PostgresChallengeRepository) MarkCompleted(ctx context.Context, challengeID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE challenges
		SET status = 'completed',
			completed_at = NOW()
		WHERE id = $1 AND status = 'completing'
	`, challengeID)
	if err != nil {
		return errors.ErrDatabaseError("mark completed", err)
	}

	marked, err := result.RowsAffected()
	if err != nil {
		return errors.ErrDatabaseError("check mark completed", err)
	}
	if marked == 0 {
		return errors.ErrInvalidStatus(challengeID, string(domain.ChallengeStatusCompleting))
	}

	return nil
}

// ListCompleting retrieves challenges stuck in completing status.
func (r *PostgresChallengeRepository) ListCompleting(ctx context.Context) ([]*domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE status = 'completing'
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.ErrDatabaseError("list completing challenges", err)
	}
	defer func() { _ = rows.Close() }()

	return scanChallengeRows(rows)
}

// ListContributions retrieves the full ledger for a challenge in leaderboard order.
func (r *PostgresChallengeRepository) ListContributions(ctx context.Context, challengeID string) ([]*domain.ContributionEntry, error) {
	return r.listContributions(ctx, challengeID, 0)
}

// TopContributions retrieves the first limit rows of the leaderboard.
func (r *PostgresChallengeRepository) TopContributions(ctx context.Context, challengeID string, limit int) ([]*domain.ContributionEntry, error) {
	return r.listContributions(ctx, challengeID, limit)
}

func (r *PostgresChallengeRepository) listContributions(ctx context.Context, challengeID string, limit int) ([]*domain.ContributionEntry, error) {
	query := `
		SELECT challenge_id, contributor_id, amount, first_contributed_at, updated_at
		FROM contribution_entries
		WHERE challenge_id = $1
		ORDER BY amount DESC, first_contributed_at ASC, contributor_id ASC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+` LIMIT $2`, challengeID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, challengeID)
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("list contributions", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.ContributionEntry
	for rows.Next() {
		var entry domain.ContributionEntry
		err := rows.Scan(
			&entry.ChallengeID,
			&entry.ContributorID,
			&entry.Amount,
			&entry.FirstContributedAt,
			&entry.UpdatedAt,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan contribution row", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate contribution rows", err)
	}

	return entries, nil
}

// HasGrant reports whether a reward grant is already recorded for the contributor.
func (r *PostgresChallengeRepository) HasGrant(ctx context.Context, challengeID, contributorID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reward_grants
			WHERE challenge_id = $1 AND contributor_id = $2
		)
	`, challengeID, contributorID).Scan(&exists)
	if err != nil {
		return false, errors.ErrDatabaseError("check reward grant", err)
	}

	return exists, nil
}

// RecordGrant durably records an issued reward.
// Returns false when a grant for this (challenge, contributor) already exists.
func (r *PostgresChallengeRepository) RecordGrant(ctx context.Context, grant *domain.RewardGrant) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO reward_grants (challenge_id, contributor_id, reward_item, reward_quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (challenge_id, contributor_id) DO NOTHING
	`, grant.ChallengeID, grant.ContributorID, grant.RewardItem, grant.RewardQuantity)
	if err != nil {
		return false, errors.ErrDatabaseError("record reward grant", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check reward grant insert", err)
	}

	return inserted == 1, nil
}

// RecordGrantFailure records a contributor whose dispatch exhausted all retries.
func (r *PostgresChallengeRepository) RecordGrantFailure(ctx context.Context, failure *domain.GrantFailure) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reward_grant_failures (challenge_id, contributor_id, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (challenge_id, contributor_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			failed_at = NOW()
	`, failure.ChallengeID, failure.ContributorID, failure.Reason)
	if err != nil {
		return errors.ErrDatabaseError("record grant failure", err)
	}

	return nil
}

// ListGrantFailures retrieves recorded dispatch failures for a challenge.
func (r *PostgresChallengeRepository) ListGrantFailures(ctx context.Context, challengeID string) ([]*domain.GrantFailure, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT challenge_id, contributor_id, reason, failed_at
		FROM reward_grant_failures
		WHERE challenge_id = $1
		ORDER BY failed_at DESC
	`, challengeID)
	if err != nil {
		return nil, errors.ErrDatabaseError("list grant failures", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []*domain.GrantFailure
	for rows.Next() {
		var failure domain.GrantFailure
		err := rows.Scan(&failure.ChallengeID, &failure.ContributorID, &failure.Reason, &failure.FailedAt)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan grant failure row", err)
		}
		failures = append(failures, &failure)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate grant failure rows", err)
	}

	return failures, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for challenge scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChallenge(row rowScanner) (*domain.Challenge, error) {
	var challenge domain.Challenge
	err := row.Scan(
		&challenge.ID,
		&challenge.Name,
		&challenge.Description,
		&challenge.Type,
		&challenge.TargetAmount,
		&challenge.RewardItem,
		&challenge.RewardQuantity,
		&challenge.Enabled,
		&challenge.Status,
		&challenge.CurrentAmount,
		&challenge.CreatedAt,
		&challenge.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

func scanChallengeRows(rows *sql.Rows) ([]*domain.Challenge, error) {
	var results []*domain.Challenge

	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan challenge row", err)
		}
		results = append(results, challenge)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate challenge rows", err)
	}

	return results, nil
}

// requireRowAffected converts a zero-row UPDATE/DELETE into a not-found error.
func requireRowAffected(result sql.Result, challengeID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.ErrDatabaseError("check rows affected", err)
	}
	if affected == 0 {
		return errors.ErrChallengeNotFound(challengeID)
	}
	return nil
}
