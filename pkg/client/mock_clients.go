package client

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRewardDispatcher is a mock implementation of RewardDispatcher for testing.
// It uses testify/mock to allow test assertions on method calls.
type MockRewardDispatcher struct {
	mock.Mock
}

// NewMockRewardDispatcher creates a new mock reward dispatcher.
func NewMockRewardDispatcher() *MockRewardDispatcher {
	return &MockRewardDispatcher{}
}

// Grant mocks issuing a reward to a contributor.
func (m *MockRewardDispatcher) Grant(ctx context.Context, contributorID, rewardItem string, quantity int) error {
	args := m.Called(ctx, contributorID, rewardItem, quantity)
	return args.Error(0)
}

// MockAnnouncer is a mock implementation of Announcer for testing.
type MockAnnouncer struct {
	mock.Mock
}

// NewMockAnnouncer creates a new mock announcer.
func NewMockAnnouncer() *MockAnnouncer {
	return &MockAnnouncer{}
}

// Announce mocks posting a completion notice.
func (m *MockAnnouncer) Announce(ctx context.Context, channelID, challengeName string, totalReached int64, contributorCount int) error {
	args := m.Called(ctx, channelID, challengeName, totalReached, contributorCount)
	return args.Error(0)
}
