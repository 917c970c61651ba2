package worker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snow-ghost/dilemma/worker/heavy"
	"github.com/snow-ghost/dilemma/worker/light"
)

// Config groups the worker settings.
type Config struct {
	Tournament light.Config `yaml:"tournament" json:"tournament"`
	Search     heavy.Config `yaml:"search" json:"search"`
}

func DefaultConfig() Config {
	return Config{Tournament: light.DefaultConfig(), Search: heavy.DefaultConfig()}
}

func (c Config) Validate() error {
	if err := c.Tournament.Validate(); err != nil {
		return fmt.Errorf("tournament: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return nil
}

// ApplyEnv overrides worker settings from environment variables.
func (c *Config) ApplyEnv() {
	c.Tournament.Workers = getEnvInt("TOURNAMENT_WORKERS", c.Tournament.Workers)
	c.Tournament.Repetitions = getEnvInt("TOURNAMENT_REPETITIONS", c.Tournament.Repetitions)
	c.Tournament.Match.Rounds = getEnvInt("TOURNAMENT_ROUNDS", c.Tournament.Match.Rounds)
	c.Tournament.Match.Noise = getEnvFloat("TOURNAMENT_NOISE", c.Tournament.Match.Noise)
	if players := parseCommaSeparated(getEnv("TOURNAMENT_PLAYERS", "")); len(players) > 0 {
		c.Tournament.Players = players
	}

	c.Search.Baseline = getEnv("SEARCH_BASELINE", c.Search.Baseline)
	c.Search.Iterations = getEnvInt("SEARCH_ITERATIONS", c.Search.Iterations)
	c.Search.Deadline = getEnvDuration("SEARCH_DEADLINE", c.Search.Deadline)
	if opponents := parseCommaSeparated(getEnv("SEARCH_OPPONENTS", "")); len(opponents) > 0 {
		c.Search.Opponents = opponents
	}
}

// LoadConfig returns the defaults with environment overrides applied.
func LoadConfig() *Config {
	config := DefaultConfig()
	config.ApplyEnv()
	return &config
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseCommaSeparated parses a comma-separated string into a slice
func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
