package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines runtime configuration for the session subsystem.
//
// It is injected explicitly at construction; nothing in this package reads
// ambient configuration at call time.
type Config struct {
	// Capacity is K: the maximum number of concurrent sessions per user.
	// A login beyond K evicts the least-recently-used session.
	Capacity int

	// TTL is the session lifetime granted at login and re-granted on refresh.
	TTL time.Duration
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Capacity: 5,
		TTL:      14 * 24 * time.Hour,
	}
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return ErrConfig
	}
	if c.TTL <= 0 {
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - COTERIE_SESSION_CAPACITY (positive int)
//   - COTERIE_SESSION_TTL (Go duration string)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("COTERIE_SESSION_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return Config{}, ErrConfig
		}
		cfg.Capacity = n
	}

	if v := os.Getenv("COTERIE_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	return cfg, nil
}
