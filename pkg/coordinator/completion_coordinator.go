package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AccelByte/extend-community-challenge/pkg/client"
	"github.com/AccelByte/extend-community-challenge/pkg/common"
	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/errors"
	"github.com/AccelByte/extend-community-challenge/pkg/repository"
)

// RetryPolicy bounds the per-contributor reward dispatch retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of dispatch attempts per contributor,
	// including the first one.
	MaxAttempts int

	// Backoff is the delay schedule between attempts.
	Backoff common.BackoffSchedule
}

// DefaultRetryPolicy returns the policy used in production: 4 attempts with
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Backoff:     common.DefaultBackoff(),
	}
}

// CompletionCoordinator drives a challenge through the completion state
// machine:
//
//	active --[threshold crossed]--> completing --[rewards + announce]--> completed
//
// Entering completing is an atomic compare-and-set on the stored status, so
// the workflow runs exactly once no matter how many crossing signals race, and
// a crash mid-workflow leaves the challenge in completing for the recovery
// sweep to resume. The workflow itself is idempotent: the durable grant log
// makes the reward pass skip contributors already rewarded, and re-announcing
// after a crash is accepted as the cost of never losing the announcement.
type CompletionCoordinator struct {
	repo       repository.ChallengeRepository
	dispatcher client.RewardDispatcher
	announcer  client.Announcer
	policy     RetryPolicy
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewCompletionCoordinator creates a new completion coordinator.
//
// Parameters:
//   - repo: The challenge store holding counters, status and the grant log
//   - dispatcher: Reward backend boundary, invoked once per contributor
//   - announcer: Completion notice boundary
//   - policy: Per-contributor dispatch retry bounds
//   - logger: Structured logger for operational logging
func NewCompletionCoordinator(repo repository.ChallengeRepository, dispatcher client.RewardDispatcher, announcer client.Announcer, policy RetryPolicy, logger *slog.Logger) *CompletionCoordinator {
	return &CompletionCoordinator{
		repo:       repo,
		dispatcher: dispatcher,
		announcer:  announcer,
		policy:     policy,
		logger:     logger,
	}
}

// TriggerCompletion attempts to claim the active -> completing transition for
// a challenge and, on success, starts the completion workflow on a background
// goroutine so report ingestion is never blocked behind reward dispatch.
// Losing the claim is a no-op, not an error: some other crossing signal
// already owns the workflow.
func (c *CompletionCoordinator) TriggerCompletion(ctx context.Context, challengeID string) error {
	claimed, err := c.repo.ClaimCompletion(ctx, challengeID)
	if err != nil {
		return err
	}
	if !claimed {
		c.logger.Debug("Completion already claimed", "challenge_id", challengeID)
		return nil
	}

	c.logger.Info("Completion claimed", "challenge_id", challengeID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Detached from the triggering report's context: the workflow must
		// outlive the game event that happened to cross the threshold.
		if err := c.runWorkflow(context.Background(), challengeID); err != nil {
			c.logger.Error("Completion workflow failed; recovery sweep will resume it",
				"challenge_id", challengeID,
				"error", err,
			)
		}
	}()

	return nil
}

// ResumeInProgress finds challenges stuck in completing status and re-runs
// their workflows synchronously. Call once at startup, after a crash or
// restart. Safe to re-run: the grant log keeps the reward pass idempotent.
// Returns how many challenges were successfully driven to completed.
func (c *CompletionCoordinator) ResumeInProgress(ctx context.Context) (int, error) {
	stuck, err := c.repo.ListCompleting(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, challenge := range stuck {
		c.logger.Info("Resuming completion workflow", "challenge_id", challenge.ID)
		if err := c.runWorkflow(ctx, challenge.ID); err != nil {
			c.logger.Error("Failed to resume completion workflow",
				"challenge_id", challenge.ID,
				"error", err,
			)
			continue
		}
		resumed++
	}

	return resumed, nil
}

// Wait blocks until all in-flight completion workflows finish.
// Call during shutdown and in tests.
func (c *CompletionCoordinator) Wait() {
	c.wg.Wait()
}

// runWorkflow executes the completion sequence for a claimed challenge:
// snapshot contributors, grant rewards, announce, mark completed.
func (c *CompletionCoordinator) runWorkflow(ctx context.Context, challengeID string) error {
	challenge, err := c.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if challenge == nil {
		return errors.ErrChallengeNotFound(challengeID)
	}

	// The ledger is frozen from here on: the aggregation engine rejects
	// reports once status left active, so this snapshot is the final list.
	entries, err := c.repo.ListContributions(ctx, challengeID)
	if err != nil {
		return err
	}

	if challenge.HasReward() {
		c.distributeRewards(ctx, challenge, entries)
	}

	c.announce(ctx, &domain.CompletionSummary{
		ChallengeID:      challenge.ID,
		Name:             challenge.Name,
		TotalReached:     challenge.CurrentAmount,
		ContributorCount: len(entries),
	})

	if err := c.repo.MarkCompleted(ctx, challengeID); err != nil {
		return err
	}

	c.logger.Info("Challenge completed",
		"challenge_id", challengeID,
		"total_reached", challenge.CurrentAmount,
		"contributors", len(entries),
	)

	return nil
}

// distributeRewards grants the challenge reward to every contributor in the
// snapshot, skipping those already in the grant log. A contributor whose
// dispatch exhausts all retries is recorded for the audit view and skipped;
// one failing contributor never blocks the rest or the completion itself.
func (c *CompletionCoordinator) distributeRewards(ctx context.Context, challenge *domain.Challenge, entries []*domain.ContributionEntry) {
	for _, entry := range entries {
		granted, err := c.repo.HasGrant(ctx, challenge.ID, entry.ContributorID)
		if err != nil {
			c.logger.Error("Failed to check grant log",
				"challenge_id", challenge.ID,
				"contributor_id", entry.ContributorID,
				"error", err,
			)
			continue
		}
		if granted {
			continue
		}

		if err := c.grantWithRetry(ctx, challenge, entry.ContributorID); err != nil {
			c.logger.Error("Reward dispatch exhausted retries",
				"challenge_id", challenge.ID,
				"contributor_id", entry.ContributorID,
				"error", err,
			)
			failure := &domain.GrantFailure{
				ChallengeID:   challenge.ID,
				ContributorID: entry.ContributorID,
				Reason:        err.Error(),
			}
			if recordErr := c.repo.RecordGrantFailure(ctx, failure); recordErr != nil {
				c.logger.Error("Failed to record grant failure",
					"challenge_id", challenge.ID,
					"contributor_id", entry.ContributorID,
					"error", recordErr,
				)
			}
			continue
		}

		grant := &domain.RewardGrant{
			ChallengeID:    challenge.ID,
			ContributorID:  entry.ContributorID,
			RewardItem:     challenge.RewardItem,
			RewardQuantity: challenge.RewardQuantity,
		}
		if _, err := c.repo.RecordGrant(ctx, grant); err != nil {
			// The reward was issued but not recorded; a resumed workflow may
			// re-dispatch to this contributor. The dispatcher contract is
			// retriable, so this trades a rare duplicate for never losing a
			// grant.
			c.logger.Error("Failed to record reward grant",
				"challenge_id", challenge.ID,
				"contributor_id", entry.ContributorID,
				"error", err,
			)
		}
	}
}

// grantWithRetry dispatches one contributor's reward with bounded attempts and
// exponential backoff. Non-retryable errors fail immediately.
func (c *CompletionCoordinator) grantWithRetry(ctx context.Context, challenge *domain.Challenge, contributorID string) error {
	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := common.Sleep(ctx, c.policy.Backoff.Delay(attempt-1)); err != nil {
				return errors.ErrRewardGrantFailed(contributorID, challenge.RewardItem, err)
			}
		}

		lastErr = c.dispatcher.Grant(ctx, contributorID, challenge.RewardItem, challenge.RewardQuantity)
		if lastErr == nil {
			return nil
		}
		if !client.IsRetryableError(lastErr) {
			break
		}

		c.logger.Warn("Reward dispatch failed, retrying",
			"challenge_id", challenge.ID,
			"contributor_id", contributorID,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	return errors.ErrRewardGrantFailed(contributorID, challenge.RewardItem, lastErr)
}

// announce posts the completion notice. Announcements are best-effort: a
// failure is logged and retried once, then the workflow proceeds to mark the
// challenge completed. The progress and grant state is the source of truth,
// not the notice.
func (c *CompletionCoordinator) announce(ctx context.Context, summary *domain.CompletionSummary) {
	settings, err := c.repo.GetSettings(ctx)
	if err != nil {
		c.logger.Error("Failed to load settings for announcement",
			"challenge_id", summary.ChallengeID,
			"error", err,
		)
		return
	}
	if !settings.Enabled || settings.AnnouncementChannelID == "" {
		c.logger.Debug("Announcements disabled, skipping",
			"challenge_id", summary.ChallengeID,
		)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		err = c.announcer.Announce(ctx, settings.AnnouncementChannelID, summary.Name, summary.TotalReached, summary.ContributorCount)
		if err == nil {
			return
		}
		c.logger.Warn("Announcement failed",
			"challenge_id", summary.ChallengeID,
			"channel_id", settings.AnnouncementChannelID,
			"attempt", attempt+1,
			"error", err,
		)
	}
}
