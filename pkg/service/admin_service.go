package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AccelByte/extend-community-challenge/pkg/cache"
	"github.com/AccelByte/extend-community-challenge/pkg/config"
	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/errors"
	"github.com/AccelByte/extend-community-challenge/pkg/repository"
)

// AdminService is the contract the admin configuration surface calls:
// challenge CRUD, manual reset, enable/disable, and the global settings
// singleton. All writes validate first and go through the challenge store;
// the challenge cache, when attached, is refreshed after every mutation.
type AdminService struct {
	repo      repository.ChallengeRepository
	cache     cache.ChallengeCache // optional
	validator *config.Validator
	logger    *slog.Logger
}

// NewAdminService creates a new admin service.
// The cache may be nil when no hot-path cache is in use.
func NewAdminService(repo repository.ChallengeRepository, challengeCache cache.ChallengeCache, logger *slog.Logger) *AdminService {
	return &AdminService{
		repo:      repo,
		cache:     challengeCache,
		validator: config.NewValidator(),
		logger:    logger,
	}
}

// CreateChallenge validates and stores a new challenge definition.
// An empty ID is assigned a generated UUID. New challenges start active with
// a zero counter.
func (s *AdminService) CreateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}

	if err := s.validator.ValidateChallenge(challenge); err != nil {
		return errors.ErrValidationFailed("challenge", err.Error())
	}

	if err := s.repo.CreateChallenge(ctx, challenge); err != nil {
		return err
	}

	s.logger.Info("Challenge created",
		"challenge_id", challenge.ID,
		"name", challenge.Name,
		"type", challenge.Type,
		"target_amount", challenge.TargetAmount,
	)

	return s.refreshCache(ctx)
}

// UpdateChallenge validates and stores changes to a challenge's definition
// fields. Progress and status are untouched; use ResetChallenge for those.
func (s *AdminService) UpdateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	if err := s.validator.ValidateChallenge(challenge); err != nil {
		return errors.ErrValidationFailed("challenge", err.Error())
	}

	if err := s.repo.UpdateChallenge(ctx, challenge); err != nil {
		return err
	}

	s.logger.Info("Challenge updated", "challenge_id", challenge.ID)

	return s.refreshCache(ctx)
}

// DeleteChallenge removes a challenge and all its progress state.
func (s *AdminService) DeleteChallenge(ctx context.Context, challengeID string) error {
	if err := s.repo.DeleteChallenge(ctx, challengeID); err != nil {
		return err
	}

	s.logger.Info("Challenge deleted", "challenge_id", challengeID)

	return s.refreshCache(ctx)
}

// ResetChallenge clears a challenge's counter, ledger, grant log and dedup
// keys, and returns it to active status. Used to manually re-run a challenge.
func (s *AdminService) ResetChallenge(ctx context.Context, challengeID string) error {
	if err := s.repo.ResetChallenge(ctx, challengeID); err != nil {
		return err
	}

	s.logger.Info("Challenge reset", "challenge_id", challengeID)

	return s.refreshCache(ctx)
}

// SetEnabled toggles a challenge's visibility without deleting it.
func (s *AdminService) SetEnabled(ctx context.Context, challengeID string, enabled bool) error {
	if err := s.repo.SetEnabled(ctx, challengeID, enabled); err != nil {
		return err
	}

	s.logger.Info("Challenge enabled flag changed",
		"challenge_id", challengeID,
		"enabled", enabled,
	)

	return s.refreshCache(ctx)
}

// GetSettings loads the global settings singleton.
func (s *AdminService) GetSettings(ctx context.Context) (*domain.ChallengeSettings, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateSettings replaces the global settings singleton.
func (s *AdminService) UpdateSettings(ctx context.Context, settings *domain.ChallengeSettings) error {
	if err := s.repo.UpdateSettings(ctx, settings); err != nil {
		return err
	}

	s.logger.Info("Settings updated",
		"enabled", settings.Enabled,
		"announcement_channel_id", settings.AnnouncementChannelID,
	)

	return nil
}

// SeedFromConfig inserts every challenge from a validated config file that is
// not already in the store. Existing challenges are left untouched so a seed
// re-run never clobbers live progress. Returns how many were created.
func (s *AdminService) SeedFromConfig(ctx context.Context, cfg *config.Config) (int, error) {
	created := 0
	for _, challenge := range cfg.Challenges {
		existing, err := s.repo.GetChallenge(ctx, challenge.ID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}

		if err := s.repo.CreateChallenge(ctx, challenge); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		s.logger.Info("Seeded challenges from config", "created", created)
	}

	return created, s.refreshCache(ctx)
}

func (s *AdminService) refreshCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Refresh(ctx)
}
