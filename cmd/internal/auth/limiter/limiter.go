// Package limiter provides a Redis-backed login throttle.
package limiter

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"coterie/cmd/internal/auth/session"
)

// Config bounds login attempts per handle within a sliding window.
type Config struct {
	// MaxAttempts is the number of attempts allowed per handle per window.
	MaxAttempts int

	// Window is the cooldown window applied from the first attempt.
	Window time.Duration

	// KeyPrefix namespaces the Redis keys (default "coterie:login").
	KeyPrefix string
}

// DefaultConfig returns a baseline suitable for interactive logins.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		Window:      time.Minute,
		KeyPrefix:   "coterie:login",
	}
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("limiter: MaxAttempts must be positive")
	}
	if c.Window <= 0 {
		return fmt.Errorf("limiter: Window must be positive")
	}
	if strings.TrimSpace(c.KeyPrefix) == "" {
		return fmt.Errorf("limiter: empty KeyPrefix")
	}
	return nil
}

// LoadConfigFromEnv reads optional overrides:
//   - COTERIE_LOGIN_MAX_ATTEMPTS (positive int)
//   - COTERIE_LOGIN_WINDOW (Go duration string)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("COTERIE_LOGIN_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("limiter: invalid COTERIE_LOGIN_MAX_ATTEMPTS %q", v)
		}
		cfg.MaxAttempts = n
	}
	if v := os.Getenv("COTERIE_LOGIN_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("limiter: invalid COTERIE_LOGIN_WINDOW %q", v)
		}
		cfg.Window = d
	}
	return cfg, nil
}

// RedisThrottle counts login attempts per handle in Redis.
//
// It satisfies the session manager's LoginThrottle contract: over-limit
// attempts fail with session.ErrLoginThrottled; Redis failures surface as
// plain errors so the caller can fail open.
type RedisThrottle struct {
	rdb *redis.Client
	cfg Config
}

// NewRedisThrottle constructs a RedisThrottle.
func NewRedisThrottle(rdb *redis.Client, cfg Config) (*RedisThrottle, error) {
	if rdb == nil {
		return nil, fmt.Errorf("limiter: nil redis client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisThrottle{rdb: rdb, cfg: cfg}, nil
}

// Enforce counts an attempt for handle and returns session.ErrLoginThrottled
// when the window budget is exhausted.
func (t *RedisThrottle) Enforce(ctx context.Context, handle string) error {
	key := t.cfg.KeyPrefix + ":" + strings.ToLower(strings.TrimSpace(handle))

	count, err := t.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("limiter: incr: %w", err)
	}
	if count == 1 {
		if err := t.rdb.Expire(ctx, key, t.cfg.Window).Err(); err != nil {
			return fmt.Errorf("limiter: expire: %w", err)
		}
	}
	if count > int64(t.cfg.MaxAttempts) {
		return fmt.Errorf("%w: handle %q", session.ErrLoginThrottled, handle)
	}
	return nil
}

// Reset clears the attempt counter for a handle, e.g. after a password change.
func (t *RedisThrottle) Reset(ctx context.Context, handle string) error {
	key := t.cfg.KeyPrefix + ":" + strings.ToLower(strings.TrimSpace(handle))
	if err := t.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("limiter: del: %w", err)
	}
	return nil
}
