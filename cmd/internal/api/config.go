package api

import (
	"fmt"
	"os"
	"strconv"
)

// Config bounds request handling.
type Config struct {
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// DefaultConfig returns defaults suitable for the JSON API.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: 1 << 20}
}

// LoadConfigFromEnv reads optional overrides:
//   - COTERIE_HTTP_MAX_BODY_BYTES (positive int)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("COTERIE_HTTP_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("api: invalid COTERIE_HTTP_MAX_BODY_BYTES %q", v)
		}
		cfg.MaxBodyBytes = n
	}
	return cfg, nil
}
