package config

import (
	"errors"
	"fmt"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
)

// Validator validates challenge definitions.
// It ensures all business rules are met before a definition enters the store.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of the configuration.
// It checks for:
// - At least one challenge exists
// - All challenge IDs are unique
// - Every definition passes ValidateChallenge
//
// Returns an error describing the first validation failure encountered.
func (v *Validator) Validate(config *Config) error {
	if len(config.Challenges) == 0 {
		return errors.New("config must have at least one challenge")
	}

	challengeIDs := make(map[string]bool)

	for _, challenge := range config.Challenges {
		if err := v.ValidateChallenge(challenge); err != nil {
			return fmt.Errorf("invalid challenge '%s': %w", challenge.ID, err)
		}

		if challengeIDs[challenge.ID] {
			return fmt.Errorf("duplicate challenge ID: %s", challenge.ID)
		}
		challengeIDs[challenge.ID] = true
	}

	return nil
}

// ValidateChallenge validates a single challenge definition. Also used by the
// admin service before create and update operations.
func (v *Validator) ValidateChallenge(challenge *domain.Challenge) error {
	if challenge.ID == "" {
		return errors.New("challenge ID cannot be empty")
	}
	if challenge.Name == "" {
		return errors.New("challenge name cannot be empty")
	}

	if !challenge.Type.IsValid() {
		return fmt.Errorf("invalid challenge type '%s' (must be 'collect', 'trade', 'craft', 'catch', or 'donate')", challenge.Type)
	}

	if challenge.TargetAmount <= 0 {
		return errors.New("target_amount must be positive")
	}

	if challenge.RewardQuantity < 0 {
		return errors.New("reward_quantity cannot be negative")
	}
	if challenge.RewardQuantity > 0 && challenge.RewardItem == "" {
		return errors.New("reward_item cannot be empty when reward_quantity is positive")
	}

	return nil
}
