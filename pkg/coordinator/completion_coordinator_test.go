package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-community-challenge/pkg/client"
	"github.com/AccelByte/extend-community-challenge/pkg/common"
	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetryPolicy keeps the backoff negligible so retry tests stay quick.
func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: common.BackoffSchedule{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2.0,
		},
	}
}

type fixture struct {
	repo        *repository.InMemoryChallengeRepository
	dispatcher  *client.MockRewardDispatcher
	announcer   *client.MockAnnouncer
	coordinator *CompletionCoordinator
}

func newFixture(t *testing.T, challenges ...*domain.Challenge) *fixture {
	t.Helper()
	repo := repository.NewInMemoryChallengeRepository()
	for _, challenge := range challenges {
		require.NoError(t, repo.CreateChallenge(context.Background(), challenge))
	}

	dispatcher := client.NewMockRewardDispatcher()
	announcer := client.NewMockAnnouncer()
	return &fixture{
		repo:        repo,
		dispatcher:  dispatcher,
		announcer:   announcer,
		coordinator: NewCompletionCoordinator(repo, dispatcher, announcer, fastRetryPolicy(), testLogger()),
	}
}

func rewardChallenge(id string, target int64) *domain.Challenge {
	return &domain.Challenge{
		ID:             id,
		Name:           "Challenge " + id,
		Type:           domain.ChallengeTypeDonate,
		TargetAmount:   target,
		RewardItem:     "item_golden_shovel",
		RewardQuantity: 1,
		Enabled:        true,
	}
}

func (f *fixture) contribute(t *testing.T, challengeID, contributorID string, amount int64) {
	t.Helper()
	_, err := f.repo.ReportProgress(context.Background(), repository.ProgressReport{
		ChallengeID:   challengeID,
		ContributorID: contributorID,
		Amount:        amount,
	})
	require.NoError(t, err)
}

func (f *fixture) enableAnnouncements(t *testing.T, channelID string) {
	t.Helper()
	require.NoError(t, f.repo.UpdateSettings(context.Background(), &domain.ChallengeSettings{
		Enabled:               true,
		AnnouncementChannelID: channelID,
	}))
}

func TestTriggerCompletion_RunsFullWorkflow(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 100))
	f.enableAnnouncements(t, "town-square")
	f.contribute(t, "c1", "player-a", 60)
	f.contribute(t, "c1", "player-b", 50)

	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).Return(nil)
	f.dispatcher.On("Grant", mock.Anything, "player-b", "item_golden_shovel", 1).Return(nil)
	f.announcer.On("Announce", mock.Anything, "town-square", "Challenge c1", int64(110), 2).Return(nil)

	require.NoError(t, f.coordinator.TriggerCompletion(context.Background(), "c1"))
	f.coordinator.Wait()

	challenge, err := f.repo.GetChallenge(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCompleted, challenge.Status)
	require.NotNil(t, challenge.CompletedAt)

	f.dispatcher.AssertExpectations(t)
	f.announcer.AssertExpectations(t)

	// Both grants were durably recorded.
	for _, contributorID := range []string{"player-a", "player-b"} {
		has, err := f.repo.HasGrant(context.Background(), "c1", contributorID)
		require.NoError(t, err)
		assert.True(t, has, contributorID)
	}
}

func TestTriggerCompletion_LostClaimIsNoOp(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 100))
	ctx := context.Background()

	claimed, err := f.repo.ClaimCompletion(ctx, "c1")
	require.NoError(t, err)
	require.True(t, claimed)

	// No dispatcher or announcer expectations: losing the claim starts nothing.
	require.NoError(t, f.coordinator.TriggerCompletion(ctx, "c1"))
	f.coordinator.Wait()

	f.dispatcher.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTriggerCompletion_ConcurrentTriggersRunWorkflowOnce(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 10))
	f.contribute(t, "c1", "player-a", 10)

	var grants int64
	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).
		Run(func(args mock.Arguments) { atomic.AddInt64(&grants, 1) }).
		Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.coordinator.TriggerCompletion(context.Background(), "c1"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	f.coordinator.Wait()

	assert.Equal(t, int64(1), grants, "the workflow must dispatch each reward exactly once")

	challenge, err := f.repo.GetChallenge(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCompleted, challenge.Status)
}

func TestWorkflow_RetriesTransientDispatchFailure(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 10))
	f.contribute(t, "c1", "player-a", 10)

	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).
		Return(&client.DispatchError{StatusCode: 503, Message: "service unavailable"}).Twice()
	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).
		Return(nil).Once()

	require.NoError(t, f.coordinator.TriggerCompletion(context.Background(), "c1"))
	f.coordinator.Wait()

	f.dispatcher.AssertExpectations(t)

	has, err := f.repo.HasGrant(context.Background(), "c1", "player-a")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestWorkflow_ExhaustedRetriesRecordedAndCompletionProceeds(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 10))
	f.contribute(t, "c1", "player-bad", 6)
	f.contribute(t, "c1", "player-good", 4)

	f.dispatcher.On("Grant", mock.Anything, "player-bad", "item_golden_shovel", 1).
		Return(&client.DispatchError{StatusCode: 503, Message: "service unavailable"})
	f.dispatcher.On("Grant", mock.Anything, "player-good", "item_golden_shovel", 1).
		Return(nil)

	require.NoError(t, f.coordinator.TriggerCompletion(context.Background(), "c1"))
	f.coordinator.Wait()

	// The failing contributor was retried up to the policy bound.
	f.dispatcher.AssertNumberOfCalls(t, "Grant", fastRetryPolicy().MaxAttempts+1)

	// The failure is in the audit view and the challenge still completed.
	failures, err := f.repo.ListGrantFailures(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "player-bad", failures[0].ContributorID)

	challenge, err := f.repo.GetChallenge(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCompleted, challenge.Status)

	has, err := f.repo.HasGrant(context.Background(), "c1", "player-good")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestWorkflow_NonRetryableDispatchFailsImmediately(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 10))
	f.contribute(t, "c1", "player-a", 10)

	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).
		Return(&client.BadRequestError{Message: "invalid item"})

	require.NoError(t, f.coordinator.TriggerCompletion(context.Background(), "c1"))
	f.coordinator.Wait()

	// A 400-class failure is never retried.
	f.dispatcher.AssertNumberOfCalls(t, "Grant", 1)

	failures, err := f.repo.ListGrantFailures(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
}

func TestWorkflow_AnnouncementFailureDoesNotBlockCompletion(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 10))
	f.enableAnnouncements(t, "town-square")
	f.contribute(t, "c1", "player-a", 10)

	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).Return(nil)
	f.announcer.On("Announce", mock.Anything, "town-square", "Challenge c1", int64(10), 1).
		Return(errors.New("channel unavailable"))

	require.NoError(t, f.coordinator.TriggerCompletion(context.Background(), "c1"))
	f.coordinator.Wait()

	// Announce is retried once, then the workflow moves on.
	f.announcer.AssertNumberOfCalls(t, "Announce", 2)

	challenge, err := f.repo.GetChallenge(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCompleted, challenge.Status)
}

func TestWorkflow_AnnouncementSkippedWhenDisabled(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 10))
	f.contribute(t, "c1", "player-a", 10)

	require.NoError(t, f.repo.UpdateSettings(context.Background(), &domain.ChallengeSettings{
		Enabled:               false,
		AnnouncementChannelID: "town-square",
	}))

	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).Return(nil)

	require.NoError(t, f.coordinator.TriggerCompletion(context.Background(), "c1"))
	f.coordinator.Wait()

	f.announcer.AssertNotCalled(t, "Announce", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkflow_NoRewardConfigured(t *testing.T) {
	challenge := rewardChallenge("c1", 10)
	challenge.RewardItem = ""
	challenge.RewardQuantity = 0
	f := newFixture(t, challenge)
	f.contribute(t, "c1", "player-a", 10)

	require.NoError(t, f.coordinator.TriggerCompletion(context.Background(), "c1"))
	f.coordinator.Wait()

	f.dispatcher.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	c, err := f.repo.GetChallenge(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCompleted, c.Status)
}

func TestResumeInProgress_FinishesStuckWorkflow(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 10))
	ctx := context.Background()
	f.contribute(t, "c1", "player-a", 6)
	f.contribute(t, "c1", "player-b", 4)

	// Simulate a crash after the claim and one recorded grant.
	claimed, err := f.repo.ClaimCompletion(ctx, "c1")
	require.NoError(t, err)
	require.True(t, claimed)
	_, err = f.repo.RecordGrant(ctx, &domain.RewardGrant{
		ChallengeID:    "c1",
		ContributorID:  "player-a",
		RewardItem:     "item_golden_shovel",
		RewardQuantity: 1,
	})
	require.NoError(t, err)

	// Only the ungranted contributor is dispatched on resume.
	f.dispatcher.On("Grant", mock.Anything, "player-b", "item_golden_shovel", 1).Return(nil)

	resumed, err := f.coordinator.ResumeInProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	f.dispatcher.AssertExpectations(t)
	f.dispatcher.AssertNotCalled(t, "Grant", mock.Anything, "player-a", mock.Anything, mock.Anything)

	challenge, err := f.repo.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCompleted, challenge.Status)
}

func TestResumeInProgress_NothingStuck(t *testing.T) {
	f := newFixture(t, rewardChallenge("c1", 100))

	resumed, err := f.coordinator.ResumeInProgress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)
}

func TestResumeInProgress_MultipleStuckChallenges(t *testing.T) {
	ctx := context.Background()
	challenges := make([]*domain.Challenge, 0, 3)
	for i := 0; i < 3; i++ {
		challenges = append(challenges, rewardChallenge(fmt.Sprintf("c%d", i), 10))
	}
	f := newFixture(t, challenges...)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("c%d", i)
		f.contribute(t, id, "player-a", 10)
		claimed, err := f.repo.ClaimCompletion(ctx, id)
		require.NoError(t, err)
		require.True(t, claimed)
	}

	f.dispatcher.On("Grant", mock.Anything, "player-a", "item_golden_shovel", 1).Return(nil)

	resumed, err := f.coordinator.ResumeInProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, resumed)

	for i := 0; i < 3; i++ {
		challenge, err := f.repo.GetChallenge(ctx, fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeStatusCompleted, challenge.Status)
	}
}
