package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
)

// ConfigLoader loads and validates the challenge definition file.
// It performs file reading, JSON parsing, and comprehensive validation.
type ConfigLoader struct {
	configPath string
	validator  *Validator
	logger     *slog.Logger
}

// NewConfigLoader creates a new ConfigLoader instance.
//
// Parameters:
//   - configPath: Path to the challenges.json file
//   - logger: Structured logger for operational logging
func NewConfigLoader(configPath string, logger *slog.Logger) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
		validator:  NewValidator(),
		logger:     logger,
	}
}

// LoadConfig loads the configuration file and returns a validated Config.
// This method performs three steps:
// 1. Read the config file from disk
// 2. Parse JSON into Config struct
// 3. Validate all business rules
//
// If any step fails, returns an error and the application should exit.
// This is a "fail fast" operation - invalid config prevents startup.
func (l *ConfigLoader) LoadConfig() (*Config, error) {
	// Step 1: Read file
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Step 2: Parse JSON
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Step 3: Apply defaults. Seeded challenges start active; the status
	// field is owned by the store afterwards, never by this file.
	for _, challenge := range config.Challenges {
		challenge.Status = domain.ChallengeStatusActive
		challenge.CurrentAmount = 0
	}

	// Step 4: Validate
	if err := l.validator.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	l.logger.Info("Config loaded successfully",
		"challenges", len(config.Challenges),
		"config_path", l.configPath,
	)

	return &config, nil
}
