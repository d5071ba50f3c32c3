package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/repository"
)

// InMemoryChallengeCache provides O(1) in-memory lookups of challenge
// definitions, indexed by ID and by challenge type. All maps are rebuilt on
// Refresh and provide thread-safe read access.
type InMemoryChallengeCache struct {
	challengesByID   map[string]*domain.Challenge
	challengesByType map[domain.ChallengeType][]*domain.Challenge
	challenges       []*domain.Challenge
	repo             repository.ChallengeRepository
	mu               sync.RWMutex // Protects all maps
	logger           *slog.Logger
}

// NewInMemoryChallengeCache creates an empty cache backed by the given
// repository. Call Refresh before first use.
func NewInMemoryChallengeCache(repo repository.ChallengeRepository, logger *slog.Logger) *InMemoryChallengeCache {
	return &InMemoryChallengeCache{
		challengesByID:   make(map[string]*domain.Challenge),
		challengesByType: make(map[domain.ChallengeType][]*domain.Challenge),
		repo:             repo,
		logger:           logger,
	}
}

// Refresh rebuilds all indexes from the challenge store.
func (c *InMemoryChallengeCache) Refresh(ctx context.Context) error {
	challenges, err := c.repo.ListChallenges(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*domain.Challenge, len(challenges))
	byType := make(map[domain.ChallengeType][]*domain.Challenge)
	for _, challenge := range challenges {
		byID[challenge.ID] = challenge
		byType[challenge.Type] = append(byType[challenge.Type], challenge)
	}

	c.mu.Lock()
	c.challengesByID = byID
	c.challengesByType = byType
	c.challenges = challenges
	c.mu.Unlock()

	c.logger.Info("Challenge cache refreshed",
		"challenges", len(challenges),
		"types", len(byType),
	)

	return nil
}

// GetChallengeByID retrieves a challenge by its unique ID.
// Returns nil if the challenge is not cached.
// Time complexity: O(1)
func (c *InMemoryChallengeCache) GetChallengeByID(challengeID string) *domain.Challenge {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.challengesByID[challengeID]
}

// GetActiveByType retrieves the cached enabled, active challenges of one type.
// Returns an empty slice if no challenge of this type is active.
func (c *InMemoryChallengeCache) GetActiveByType(challengeType domain.ChallengeType) []*domain.Challenge {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached := c.challengesByType[challengeType]
	active := make([]*domain.Challenge, 0, len(cached))
	for _, challenge := range cached {
		if challenge.IsActive() {
			active = append(active, challenge)
		}
	}

	return active
}

// GetAllChallenges retrieves all cached challenges in store order.
func (c *InMemoryChallengeCache) GetAllChallenges() []*domain.Challenge {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return the slice directly - entries are replaced wholesale on Refresh,
	// never mutated in place.
	return c.challenges
}
