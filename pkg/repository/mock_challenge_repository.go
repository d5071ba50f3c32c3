package repository

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
)

// MockChallengeRepository is a mock implementation of ChallengeRepository for
// testing error paths and call expectations. For behavioral tests, prefer
// InMemoryChallengeRepository, which enforces the real semantics.
type MockChallengeRepository struct {
	mock.Mock
}

// NewMockChallengeRepository creates a new mock challenge repository.
func NewMockChallengeRepository() *MockChallengeRepository {
	return &MockChallengeRepository{}
}

func (m *MockChallengeRepository) CreateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *MockChallengeRepository) UpdateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *MockChallengeRepository) DeleteChallenge(ctx context.Context, challengeID string) error {
	args := m.Called(ctx, challengeID)
	return args.Error(0)
}

func (m *MockChallengeRepository) GetChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	args := m.Called(ctx, challengeID)
	if challenge := args.Get(0); challenge != nil {
		return challenge.(*domain.Challenge), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) ListChallenges(ctx context.Context) ([]*domain.Challenge, error) {
	args := m.Called(ctx)
	if challenges := args.Get(0); challenges != nil {
		return challenges.([]*domain.Challenge), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) ListActiveChallenges(ctx context.Context) ([]*domain.Challenge, error) {
	args := m.Called(ctx)
	if challenges := args.Get(0); challenges != nil {
		return challenges.([]*domain.Challenge), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) ListActiveByType(ctx context.Context, challengeType domain.ChallengeType) ([]*domain.Challenge, error) {
	args := m.Called(ctx, challengeType)
	if challenges := args.Get(0); challenges != nil {
		return challenges.([]*domain.Challenge), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) SetEnabled(ctx context.Context, challengeID string, enabled bool) error {
	args := m.Called(ctx, challengeID, enabled)
	return args.Error(0)
}

func (m *MockChallengeRepository) ResetChallenge(ctx context.Context, challengeID string) error {
	args := m.Called(ctx, challengeID)
	return args.Error(0)
}

func (m *MockChallengeRepository) GetSettings(ctx context.Context) (*domain.ChallengeSettings, error) {
	args := m.Called(ctx)
	if settings := args.Get(0); settings != nil {
		return settings.(*domain.ChallengeSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) UpdateSettings(ctx context.Context, settings *domain.ChallengeSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockChallengeRepository) ReportProgress(ctx context.Context, report ProgressReport) (*domain.ReportResult, error) {
	args := m.Called(ctx, report)
	if result := args.Get(0); result != nil {
		return result.(*domain.ReportResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) PurgeDedupKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChallengeRepository) ClaimCompletion(ctx context.Context, challengeID string) (bool, error) {
	args := m.Called(ctx, challengeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockChallengeRepository) MarkCompleted(ctx context.Context, challengeID string) error {
	args := m.Called(ctx, challengeID)
	return args.Error(0)
}

func (m *MockChallengeRepository) ListCompleting(ctx context.Context) ([]*domain.Challenge, error) {
	args := m.Called(ctx)
	if challenges := args.Get(0); challenges != nil {
		return challenges.([]*domain.Challenge), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) ListContributions(ctx context.Context, challengeID string) ([]*domain.ContributionEntry, error) {
	args := m.Called(ctx, challengeID)
	if entries := args.Get(0); entries != nil {
		return entries.([]*domain.ContributionEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) TopContributions(ctx context.Context, challengeID string, limit int) ([]*domain.ContributionEntry, error) {
	args := m.Called(ctx, challengeID, limit)
	if entries := args.Get(0); entries != nil {
		return entries.([]*domain.ContributionEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChallengeRepository) HasGrant(ctx context.Context, challengeID, contributorID string) (bool, error) {
	args := m.Called(ctx, challengeID, contributorID)
	return args.Bool(0), args.Error(1)
}

func (m *MockChallengeRepository) RecordGrant(ctx context.Context, grant *domain.RewardGrant) (bool, error) {
	args := m.Called(ctx, grant)
	return args.Bool(0), args.Error(1)
}

func (m *MockChallengeRepository) RecordGrantFailure(ctx context.Context, failure *domain.GrantFailure) error {
	args := m.Called(ctx, failure)
	return args.Error(0)
}

func (m *MockChallengeRepository) ListGrantFailures(ctx context.Context, challengeID string) ([]*domain.GrantFailure, error) {
	args := m.Called(ctx, challengeID)
	if failures := args.Get(0); failures != nil {
		return failures.([]*domain.GrantFailure), args.Error(1)
	}
	return nil, args.Error(1)
}
