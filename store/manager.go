package store

import (
	"fmt"
	"strings"
)

// Config selects the store backend.
type Config struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

func DefaultConfig() Config {
	return Config{Driver: "memory"}
}

// Open creates the configured store.
func Open(config Config) (Store, error) {
	switch strings.ToLower(config.Driver) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		if config.DSN == "" {
			return nil, fmt.Errorf("sqlite store needs a dsn")
		}
		s, err := NewSQLiteStore(config.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Driver)
	}
}
