package query

import (
	"context"
	"log/slog"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/errors"
	"github.com/AccelByte/extend-community-challenge/pkg/repository"
)

// DefaultLeaderboardLimit is used when a caller asks for a leaderboard
// without a positive limit.
const DefaultLeaderboardLimit = 10

// ProgressSnapshot is the read model for one challenge's progress.
type ProgressSnapshot struct {
	ChallengeID   string                 `json:"challenge_id"`
	Name          string                 `json:"name"`
	CurrentAmount int64                  `json:"current_amount"`
	TargetAmount  int64                  `json:"target_amount"`
	Status        domain.ChallengeStatus `json:"status"`
}

// LeaderboardRow is one ranked contributor on a challenge leaderboard.
type LeaderboardRow struct {
	Rank          int    `json:"rank"`
	ContributorID string `json:"contributor_id"`
	Amount        int64  `json:"amount"`
}

// QueryService provides the read-only views over the challenge store:
// progress snapshots, leaderboards, the active challenge list and the grant
// failure audit view. Reads go straight to the repository and are never
// blocked by a running completion workflow.
type QueryService struct {
	repo   repository.ChallengeRepository
	logger *slog.Logger
}

// NewQueryService creates a new query service.
func NewQueryService(repo repository.ChallengeRepository, logger *slog.Logger) *QueryService {
	return &QueryService{
		repo:   repo,
		logger: logger,
	}
}

// GetProgress returns the current progress snapshot for one challenge.
func (s *QueryService) GetProgress(ctx context.Context, challengeID string) (*ProgressSnapshot, error) {
	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, errors.ErrChallengeNotFound(challengeID)
	}

	return &ProgressSnapshot{
		ChallengeID:   challenge.ID,
		Name:          challenge.Name,
		CurrentAmount: challenge.CurrentAmount,
		TargetAmount:  challenge.TargetAmount,
		Status:        challenge.Status,
	}, nil
}

// GetLeaderboard returns the top contributors for a challenge, ordered by
// amount descending with ties broken by earliest first contribution. The
// ordering is stable and deterministic for reproducible display.
func (s *QueryService) GetLeaderboard(ctx context.Context, challengeID string, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, errors.ErrChallengeNotFound(challengeID)
	}

	entries, err := s.repo.TopContributions(ctx, challengeID, limit)
	if err != nil {
		return nil, err
	}

	rows := make([]LeaderboardRow, len(entries))
	for i, entry := range entries {
		rows[i] = LeaderboardRow{
			Rank:          i + 1,
			ContributorID: entry.ContributorID,
			Amount:        entry.Amount,
		}
	}

	return rows, nil
}

// ListActive returns the challenges shown to players: enabled and not yet
// completed, with their current and target amounts.
func (s *QueryService) ListActive(ctx context.Context) ([]*domain.Challenge, error) {
	return s.repo.ListActiveChallenges(ctx)
}

// GrantFailures returns the audit view of contributors whose reward dispatch
// exhausted retries during a challenge's completion.
func (s *QueryService) GrantFailures(ctx context.Context, challengeID string) ([]*domain.GrantFailure, error) {
	return s.repo.ListGrantFailures(ctx, challengeID)
}
