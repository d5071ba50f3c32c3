package repository

import (
	"context"
	"time"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
)

// ProgressReport is the input of ReportProgress: one validated progress
// contribution targeting a single challenge.
type ProgressReport struct {
	ChallengeID   string // Challenge ID
	ContributorID string // Contributor (player) ID
	Amount        int64  // Amount to add, must be positive

	// IdempotencyKey identifies the originating game action. When non-empty,
	// a key already recorded for this (challenge, contributor) pair makes the
	// report a deduplicated no-op. Empty disables deduplication.
	IdempotencyKey string
}

// ChallengeRepository defines the interface for the durable challenge store:
// challenge definitions, the shared progress counter, the per-contributor
// ledger, completion state, and the reward grant log.
//
// This is the single source of truth. The aggregation engine, completion
// coordinator and query service all read and write through this interface and
// never hold independent copies of persisted state.
type ChallengeRepository interface {
	// CreateChallenge inserts a new challenge definition.
	// New challenges start active with a zero counter.
	CreateChallenge(ctx context.Context, challenge *domain.Challenge) error

	// UpdateChallenge updates the mutable definition fields (name,
	// description, type, target, reward, enabled). It never touches
	// current_amount or status; use ResetChallenge for those.
	UpdateChallenge(ctx context.Context, challenge *domain.Challenge) error

	// DeleteChallenge removes a challenge and all its ledger entries,
	// dedup keys, grants and failure records.
	DeleteChallenge(ctx context.Context, challengeID string) error

	// GetChallenge retrieves a challenge by ID.
	// Returns nil if the challenge does not exist.
	GetChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error)

	// ListChallenges retrieves all challenges, newest first.
	ListChallenges(ctx context.Context) ([]*domain.Challenge, error)

	// ListActiveChallenges retrieves challenges shown to players:
	// enabled and not yet completed.
	ListActiveChallenges(ctx context.Context) ([]*domain.Challenge, error)

	// ListActiveByType retrieves enabled, active challenges of one type.
	// Used to fan a typed event report out to every matching challenge.
	ListActiveByType(ctx context.Context, challengeType domain.ChallengeType) ([]*domain.Challenge, error)

	// SetEnabled toggles a challenge's visibility.
	SetEnabled(ctx context.Context, challengeID string, enabled bool) error

	// ResetChallenge atomically clears the counter, deletes all ledger
	// entries, dedup keys, grants and failures for the challenge, and
	// returns its status to active. Used to manually re-run a challenge.
	ResetChallenge(ctx context.Context, challengeID string) error

	// GetSettings loads the settings singleton, creating it with defaults
	// on first access.
	GetSettings(ctx context.Context) (*domain.ChallengeSettings, error)

	// UpdateSettings replaces the settings singleton.
	UpdateSettings(ctx context.Context, settings *domain.ChallengeSettings) error

	// ReportProgress atomically applies one progress contribution:
	// dedup check, shared counter increment, and ledger upsert, observed by
	// every other reader and writer as a single unit. The increment is
	// serialized per challenge only; reports for different challenges never
	// block one another.
	//
	// Returns a deduplicated no-op result (Accepted=false, Duplicate=true)
	// when the idempotency key was already seen. Returns a coded error and
	// changes nothing when the challenge is missing, disabled, or no longer
	// active.
	//
	// CrossedThreshold is true on exactly one accepted report per challenge:
	// the one whose post-increment total first reached the target while the
	// pre-increment total was still below it.
	ReportProgress(ctx context.Context, report ProgressReport) (*domain.ReportResult, error)

	// PurgeDedupKeysBefore deletes idempotency keys recorded before cutoff
	// and returns how many were removed. Bounds the dedup window.
	PurgeDedupKeysBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ClaimCompletion attempts the compare-and-set active -> completing.
	// Returns true when this caller won the claim; false when another
	// crossing signal already claimed it (a no-op, not an error). This is
	// the exactly-once gate for the completion workflow.
	ClaimCompletion(ctx context.Context, challengeID string) (bool, error)

	// MarkCompleted performs the compare-and-set completing -> completed.
	// Returns an INVALID_STATUS error if the challenge is not completing.
	MarkCompleted(ctx context.Context, challengeID string) error

	// ListCompleting retrieves challenges stuck in completing status.
	// The recovery sweep resumes their workflows after a restart.
	ListCompleting(ctx context.Context) ([]*domain.Challenge, error)

	// ListContributions retrieves the full ledger for a challenge in
	// leaderboard order: amount descending, ties broken by earliest first
	// contribution. This is the frozen contributor snapshot the completion
	// workflow rewards.
	ListContributions(ctx context.Context, challengeID string) ([]*domain.ContributionEntry, error)

	// TopContributions retrieves the first limit rows of the leaderboard.
	TopContributions(ctx context.Context, challengeID string, limit int) ([]*domain.ContributionEntry, error)

	// HasGrant reports whether a reward grant is already recorded for the
	// contributor. The resumed workflow skips these contributors.
	HasGrant(ctx context.Context, challengeID, contributorID string) (bool, error)

	// RecordGrant durably records an issued reward. Returns false without
	// error when a grant for this (challenge, contributor) already exists.
	RecordGrant(ctx context.Context, grant *domain.RewardGrant) (bool, error)

	// RecordGrantFailure records a contributor whose dispatch exhausted all
	// retries, for the audit view. Upserts on repeat failures.
	RecordGrantFailure(ctx context.Context, failure *domain.GrantFailure) error

	// ListGrantFailures retrieves recorded dispatch failures for a challenge.
	ListGrantFailures(ctx context.Context, challengeID string) ([]*domain.GrantFailure, error)
}
