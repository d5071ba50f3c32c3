package cache

import (
	"context"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
)

// ChallengeCache provides fast lookups of challenge definitions for the hot
// event-report path, avoiding a definition query per game event.
//
// The cache is advisory: the repository's conditional increment is the
// authoritative enabled/active check, so a slightly stale cache only produces
// rejected reports, never incorrect state.
type ChallengeCache interface {
	// GetChallengeByID retrieves a challenge by its unique ID.
	// Returns nil if the challenge is not cached.
	GetChallengeByID(challengeID string) *domain.Challenge

	// GetActiveByType retrieves the cached enabled, active challenges of one
	// type. Used by the aggregation engine to fan typed events out.
	GetActiveByType(challengeType domain.ChallengeType) []*domain.Challenge

	// GetAllChallenges retrieves all cached challenges.
	GetAllChallenges() []*domain.Challenge

	// Refresh rebuilds the cache from the challenge store. Call after admin
	// mutations and periodically to pick up status changes.
	Refresh(ctx context.Context) error
}
