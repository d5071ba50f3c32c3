package client

import (
	"context"
	"log"
)

// DevMockRewardDispatcher is a simple mock implementation for local
// development. Unlike MockRewardDispatcher (testify/mock), this doesn't
// require explicit setup and always succeeds with logged output.
//
// For tests, use MockRewardDispatcher instead.
type DevMockRewardDispatcher struct{}

// NewDevMockRewardDispatcher creates a new development mock reward dispatcher.
func NewDevMockRewardDispatcher() *DevMockRewardDispatcher {
	return &DevMockRewardDispatcher{}
}

// Grant logs the reward grant and returns success.
func (d *DevMockRewardDispatcher) Grant(ctx context.Context, contributorID, rewardItem string, quantity int) error {
	log.Printf("[DevMock] Grant: contributorID=%s, rewardItem=%s, quantity=%d",
		contributorID, rewardItem, quantity)
	return nil
}

// DevMockAnnouncer logs completion notices instead of posting them.
// Use this for local development when no chat transport is configured.
type DevMockAnnouncer struct{}

// NewDevMockAnnouncer creates a new development mock announcer.
func NewDevMockAnnouncer() *DevMockAnnouncer {
	return &DevMockAnnouncer{}
}

// Announce logs the completion notice and returns success.
func (d *DevMockAnnouncer) Announce(ctx context.Context, channelID, challengeName string, totalReached int64, contributorCount int) error {
	log.Printf("[DevMock] Announce: channelID=%s, challenge=%q, totalReached=%d, contributors=%d",
		channelID, challengeName, totalReached, contributorCount)
	return nil
}
