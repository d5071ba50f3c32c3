package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-community-challenge/pkg/db"
	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/errors"
)

// Integration tests. They only run when DB_HOST is set and expect a disposable
// PostgreSQL database, e.g.:
//
//	docker run --rm -e POSTGRES_PASSWORD=postgres -p 5432:5432 postgres:16
//	DB_HOST=localhost DB_NAME=postgres DB_PASSWORD=postgres go test ./pkg/repository/...
func setupPostgres(t *testing.T) *PostgresChallengeRepository {
	t.Helper()
	if os.Getenv("DB_HOST") == "" {
		t.Skip("Skipping integration test: DB_HOST not set")
	}

	conn, err := db.Connect(db.NewConfigFromEnv())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(context.Background(), conn))
	cleanTables(t, conn)

	return NewPostgresChallengeRepository(conn)
}

func cleanTables(t *testing.T, conn *sql.DB) {
	t.Helper()
	// challenges cascades into every dependent table.
	for _, table := range []string{"challenges", "challenge_settings"} {
		_, err := conn.ExecContext(context.Background(), "DELETE FROM "+table)
		require.NoError(t, err)
	}
}

func seedPostgresChallenge(t *testing.T, repo *PostgresChallengeRepository, target int64) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, repo.CreateChallenge(context.Background(), &domain.Challenge{
		ID:             id,
		Name:           "Integration Challenge",
		Type:           domain.ChallengeTypeCollect,
		TargetAmount:   target,
		RewardItem:     "item_golden_shovel",
		RewardQuantity: 1,
		Enabled:        true,
	}))
	return id
}

func TestPostgres_CreateAndGetChallenge(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	challenge, err := repo.GetChallenge(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Equal(t, domain.ChallengeStatusActive, challenge.Status)
	assert.Equal(t, int64(0), challenge.CurrentAmount)
	assert.Equal(t, int64(100), challenge.TargetAmount)

	// Missing challenge returns nil without error.
	missing, err := repo.GetChallenge(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgres_CreateChallenge_DuplicateID(t *testing.T) {
	repo := setupPostgres(t)
	id := seedPostgresChallenge(t, repo, 100)

	err := repo.CreateChallenge(context.Background(), &domain.Challenge{
		ID:           id,
		Name:         "Duplicate",
		Type:         domain.ChallengeTypeTrade,
		TargetAmount: 10,
		Enabled:      true,
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

func TestPostgres_ReportProgress_Lifecycle(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	result, err := repo.ReportProgress(ctx, ProgressReport{
		ChallengeID:   id,
		ContributorID: "player-1",
		Amount:        60,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, int64(60), result.NewTotal)
	assert.False(t, result.CrossedThreshold)

	result, err = repo.ReportProgress(ctx, ProgressReport{
		ChallengeID:   id,
		ContributorID: "player-2",
		Amount:        50,
	})
	require.NoError(t, err)
	assert.True(t, result.CrossedThreshold)
	assert.Equal(t, int64(110), result.NewTotal)

	entries, err := repo.ListContributions(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "player-1", entries[0].ContributorID)
	assert.Equal(t, int64(60), entries[0].Amount)
}

func TestPostgres_ReportProgress_DuplicateKeyRollsBackCounter(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	first, err := repo.ReportProgress(ctx, ProgressReport{
		ChallengeID:    id,
		ContributorID:  "player-1",
		Amount:         10,
		IdempotencyKey: "evt-1",
	})
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := repo.ReportProgress(ctx, ProgressReport{
		ChallengeID:    id,
		ContributorID:  "player-1",
		Amount:         10,
		IdempotencyKey: "evt-1",
	})
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.True(t, second.Duplicate)

	challenge, err := repo.GetChallenge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), challenge.CurrentAmount)

	entries, err := repo.ListContributions(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].Amount)
}

func TestPostgres_ReportProgress_Rejections(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	t.Run("unknown challenge", func(t *testing.T) {
		_, err := repo.ReportProgress(ctx, ProgressReport{
			ChallengeID:   uuid.NewString(),
			ContributorID: "player-1",
			Amount:        1,
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeChallengeNotFound))
	})

	t.Run("disabled challenge", func(t *testing.T) {
		id := seedPostgresChallenge(t, repo, 100)
		require.NoError(t, repo.SetEnabled(ctx, id, false))

		_, err := repo.ReportProgress(ctx, ProgressReport{
			ChallengeID:   id,
			ContributorID: "player-1",
			Amount:        1,
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeChallengeDisabled))
	})

	t.Run("claimed challenge", func(t *testing.T) {
		id := seedPostgresChallenge(t, repo, 100)
		claimed, err := repo.ClaimCompletion(ctx, id)
		require.NoError(t, err)
		require.True(t, claimed)

		_, err = repo.ReportProgress(ctx, ProgressReport{
			ChallengeID:   id,
			ContributorID: "player-1",
			Amount:        1,
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeChallengeNotActive))
	})
}

func TestPostgres_ReportProgress_ConcurrentReports(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 1_000_000)

	const goroutines = 16
	const reportsPerGoroutine = 25

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			contributorID := fmt.Sprintf("player-%d", g)
			for i := 0; i < reportsPerGoroutine; i++ {
				_, err := repo.ReportProgress(ctx, ProgressReport{
					ChallengeID:   id,
					ContributorID: contributorID,
					Amount:        1,
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	challenge, err := repo.GetChallenge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*reportsPerGoroutine), challenge.CurrentAmount)

	entries, err := repo.ListContributions(ctx, id)
	require.NoError(t, err)
	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	assert.Equal(t, challenge.CurrentAmount, sum)
}

func TestPostgres_ReportProgress_ConcurrentCrossingIsUnique(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 20)

	const goroutines = 40

	var crossings int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			result, err := repo.ReportProgress(ctx, ProgressReport{
				ChallengeID:   id,
				ContributorID: fmt.Sprintf("player-%d", g),
				Amount:        1,
			})
			if err != nil {
				t.Error(err)
				return
			}
			if result.CrossedThreshold {
				atomic.AddInt64(&crossings, 1)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, int64(1), crossings)
}

func TestPostgres_ClaimCompletion_SingleWinner(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	var wins int64
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimCompletion(ctx, id)
			if err != nil {
				t.Error(err)
				return
			}
			if claimed {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)

	stuck, err := repo.ListCompleting(ctx)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, id, stuck[0].ID)
}

func TestPostgres_MarkCompleted(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	err := repo.MarkCompleted(ctx, id)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidStatus))

	claimed, err := repo.ClaimCompletion(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, repo.MarkCompleted(ctx, id))

	challenge, err := repo.GetChallenge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCompleted, challenge.Status)
	assert.NotNil(t, challenge.CompletedAt)
}

func TestPostgres_ResetChallenge(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 50)

	_, err := repo.ReportProgress(ctx, ProgressReport{
		ChallengeID:    id,
		ContributorID:  "player-1",
		Amount:         60,
		IdempotencyKey: "evt-1",
	})
	require.NoError(t, err)

	claimed, err := repo.ClaimCompletion(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, repo.ResetChallenge(ctx, id))

	challenge, err := repo.GetChallenge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusActive, challenge.Status)
	assert.Equal(t, int64(0), challenge.CurrentAmount)

	entries, err := repo.ListContributions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, entries)

	result, err := repo.ReportProgress(ctx, ProgressReport{
		ChallengeID:    id,
		ContributorID:  "player-1",
		Amount:         10,
		IdempotencyKey: "evt-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestPostgres_GrantLog(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	has, err := repo.HasGrant(ctx, id, "player-1")
	require.NoError(t, err)
	assert.False(t, has)

	grant := &domain.RewardGrant{
		ChallengeID:    id,
		ContributorID:  "player-1",
		RewardItem:     "item_golden_shovel",
		RewardQuantity: 1,
	}

	inserted, err := repo.RecordGrant(ctx, grant)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.RecordGrant(ctx, grant)
	require.NoError(t, err)
	assert.False(t, inserted)

	has, err = repo.HasGrant(ctx, id, "player-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPostgres_GrantFailures(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	require.NoError(t, repo.RecordGrantFailure(ctx, &domain.GrantFailure{
		ChallengeID:   id,
		ContributorID: "player-1",
		Reason:        "invalid item",
	}))

	// Repeat failures upsert the reason.
	require.NoError(t, repo.RecordGrantFailure(ctx, &domain.GrantFailure{
		ChallengeID:   id,
		ContributorID: "player-1",
		Reason:        "unknown contributor",
	}))

	failures, err := repo.ListGrantFailures(ctx, id)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "unknown contributor", failures[0].Reason)
}

func TestPostgres_Settings(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Empty(t, settings.AnnouncementChannelID)

	require.NoError(t, repo.UpdateSettings(ctx, &domain.ChallengeSettings{
		Enabled:               false,
		AnnouncementChannelID: "town-square",
	}))

	settings, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, "town-square", settings.AnnouncementChannelID)
}

func TestPostgres_DeleteChallengeCascades(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresChallenge(t, repo, 100)

	_, err := repo.ReportProgress(ctx, ProgressReport{
		ChallengeID:    id,
		ContributorID:  "player-1",
		Amount:         10,
		IdempotencyKey: "evt-1",
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteChallenge(ctx, id))

	challenge, err := repo.GetChallenge(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, challenge)

	err = repo.DeleteChallenge(ctx, id)
	assert.True(t, errors.IsCode(err, errors.ErrCodeChallengeNotFound))
}
