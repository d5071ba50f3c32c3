package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/errors"
	"github.com/AccelByte/extend-community-challenge/pkg/repository"
)

// CompletionTrigger receives the unique threshold-crossing signal.
// Implemented by the completion coordinator.
type CompletionTrigger interface {
	TriggerCompletion(ctx context.Context, challengeID string) error
}

// ChallengeResolver resolves a challenge type to the enabled, active
// challenges a typed event report fans out to. Implemented by the challenge
// cache; the engine falls back to the repository when no resolver is set.
//
// A stale resolver is harmless: the repository's conditional increment is the
// authoritative enabled/active check, so fanning out to a challenge that just
// completed only produces a rejected report.
type ChallengeResolver interface {
	GetActiveByType(challengeType domain.ChallengeType) []*domain.Challenge
}

// AggregationEngine is the write path for progress events: it validates
// reports, delegates the atomic increment-and-compare to the repository, and
// forwards the unique crossing signal to the completion coordinator.
//
// The engine holds no progress state of its own. All consistency guarantees
// (lost-update prevention, at-most-one crossing, per-challenge serialization)
// live in ChallengeRepository.ReportProgress.
type AggregationEngine struct {
	repo        repository.ChallengeRepository
	resolver    ChallengeResolver // optional
	trigger     CompletionTrigger // optional
	dedupWindow time.Duration
	logger      *slog.Logger
}

// DefaultDedupWindow bounds how long idempotency keys are retained.
// Event sources are expected to exhaust their delivery retries well within it.
const DefaultDedupWindow = 24 * time.Hour

// NewAggregationEngine creates a new aggregation engine.
//
// Parameters:
//   - repo: The challenge store performing the atomic increments
//   - resolver: Optional type-to-challenges resolver (nil falls back to repo)
//   - trigger: Optional completion trigger signalled on threshold crossing
//   - logger: Structured logger for operational logging
func NewAggregationEngine(repo repository.ChallengeRepository, resolver ChallengeResolver, trigger CompletionTrigger, logger *slog.Logger) *AggregationEngine {
	return &AggregationEngine{
		repo:        repo,
		resolver:    resolver,
		trigger:     trigger,
		dedupWindow: DefaultDedupWindow,
		logger:      logger,
	}
}

// SetDedupWindow overrides the idempotency key retention window.
func (e *AggregationEngine) SetDedupWindow(window time.Duration) {
	e.dedupWindow = window
}

// ReportProgress applies one progress report to a single challenge.
//
// Rejections (unknown challenge, disabled, not active, non-positive amount)
// return a coded error and change nothing. Duplicate idempotency keys are
// absorbed: the result has Accepted=false, Duplicate=true and no error, so
// event-source retries never observe a failure.
//
// When this report is the one that crosses the threshold, the completion
// trigger is signalled before returning. A trigger error is logged but does
// not fail the report: the challenge is already in active status with the
// target reached, and the recovery sweep picks it up.
func (e *AggregationEngine) ReportProgress(ctx context.Context, challengeID, contributorID string, amount int64, idempotencyKey string) (*domain.ReportResult, error) {
	if err := validateReport(contributorID, amount); err != nil {
		return nil, err
	}
	if challengeID == "" {
		return nil, errors.ErrValidationFailed("challenge_id", "cannot be empty")
	}

	result, err := e.repo.ReportProgress(ctx, repository.ProgressReport{
		ChallengeID:    challengeID,
		ContributorID:  contributorID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		e.logger.Debug("Duplicate report absorbed",
			"challenge_id", challengeID,
			"contributor_id", contributorID,
			"idempotency_key", idempotencyKey,
		)
		return result, nil
	}

	if result.CrossedThreshold {
		e.logger.Info("Challenge threshold crossed",
			"challenge_id", challengeID,
			"new_total", result.NewTotal,
		)
		e.signalCompletion(ctx, challengeID)
	}

	return result, nil
}

// ReportEvent applies one typed game event to every enabled, active challenge
// of that type. Returns one result per challenge the report reached.
//
// Challenges that raced out of active status between resolution and increment
// are skipped silently; their rejection is the expected outcome of the race,
// not an error the event source can act on.
func (e *AggregationEngine) ReportEvent(ctx context.Context, challengeType domain.ChallengeType, contributorID string, amount int64, idempotencyKey string) ([]*domain.ReportResult, error) {
	if !challengeType.IsValid() {
		return nil, errors.ErrValidationFailed("type", "unknown challenge type")
	}
	if err := validateReport(contributorID, amount); err != nil {
		return nil, err
	}

	challenges, err := e.resolveByType(ctx, challengeType)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.ReportResult, 0, len(challenges))
	for _, challenge := range challenges {
		result, err := e.ReportProgress(ctx, challenge.ID, contributorID, amount, idempotencyKey)
		if err != nil {
			if isRaceRejection(err) {
				e.logger.Debug("Skipping challenge that left active status",
					"challenge_id", challenge.ID,
					"type", challengeType,
				)
				continue
			}
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

// PurgeExpiredDedupKeys removes idempotency keys older than the dedup window.
// Intended to be called periodically by the host application.
func (e *AggregationEngine) PurgeExpiredDedupKeys(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-e.dedupWindow)
	purged, err := e.repo.PurgeDedupKeysBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if purged > 0 {
		e.logger.Info("Purged expired dedup keys", "purged", purged, "cutoff", cutoff)
	}

	return purged, nil
}

func (e *AggregationEngine) resolveByType(ctx context.Context, challengeType domain.ChallengeType) ([]*domain.Challenge, error) {
	if e.resolver != nil {
		return e.resolver.GetActiveByType(challengeType), nil
	}
	return e.repo.ListActiveByType(ctx, challengeType)
}

func (e *AggregationEngine) signalCompletion(ctx context.Context, challengeID string) {
	if e.trigger == nil {
		return
	}
	if err := e.trigger.TriggerCompletion(ctx, challengeID); err != nil {
		// The challenge stays claim-able; the recovery sweep resumes it.
		e.logger.Error("Failed to trigger completion workflow",
			"challenge_id", challengeID,
			"error", err,
		)
	}
}

func validateReport(contributorID string, amount int64) error {
	if contributorID == "" {
		return errors.ErrValidationFailed("contributor_id", "cannot be empty")
	}
	if amount <= 0 {
		return errors.ErrValidationFailed("amount", "must be positive")
	}
	return nil
}

// isRaceRejection reports whether the error is an expected rejection caused by
// a challenge leaving active status between type resolution and increment.
func isRaceRejection(err error) bool {
	return errors.IsCode(err, errors.ErrCodeChallengeNotActive) ||
		errors.IsCode(err, errors.ErrCodeChallengeDisabled) ||
		errors.IsCode(err, errors.ErrCodeChallengeNotFound)
}
