package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"coterie/cmd/internal/auth/session"
)

func newThrottle(t *testing.T, cfg Config) (*RedisThrottle, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	th, err := NewRedisThrottle(rdb, cfg)
	if err != nil {
		t.Fatalf("NewRedisThrottle: %v", err)
	}
	return th, mr
}

func TestEnforce_AllowsWithinBudget(t *testing.T) {
	th, _ := newThrottle(t, Config{MaxAttempts: 3, Window: time.Minute, KeyPrefix: "t:login"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := th.Enforce(ctx, "ada"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := th.Enforce(ctx, "ada"); !errors.Is(err, session.ErrLoginThrottled) {
		t.Fatalf("attempt 4: expected ErrLoginThrottled, got %v", err)
	}
}

func TestEnforce_IsolatesHandles(t *testing.T) {
	th, _ := newThrottle(t, Config{MaxAttempts: 1, Window: time.Minute, KeyPrefix: "t:login"})
	ctx := context.Background()

	if err := th.Enforce(ctx, "ada"); err != nil {
		t.Fatalf("ada: %v", err)
	}
	if err := th.Enforce(ctx, "grace"); err != nil {
		t.Fatalf("grace should have its own budget: %v", err)
	}
	if err := th.Enforce(ctx, "ada"); !errors.Is(err, session.ErrLoginThrottled) {
		t.Fatalf("ada: expected ErrLoginThrottled, got %v", err)
	}
}

func TestEnforce_NormalizesHandle(t *testing.T) {
	th, _ := newThrottle(t, Config{MaxAttempts: 1, Window: time.Minute, KeyPrefix: "t:login"})
	ctx := context.Background()

	if err := th.Enforce(ctx, "Ada"); err != nil {
		t.Fatalf("Ada: %v", err)
	}
	if err := th.Enforce(ctx, "  ada "); !errors.Is(err, session.ErrLoginThrottled) {
		t.Fatalf("case and whitespace variants must share a budget, got %v", err)
	}
}

func TestEnforce_WindowExpires(t *testing.T) {
	th, mr := newThrottle(t, Config{MaxAttempts: 1, Window: time.Minute, KeyPrefix: "t:login"})
	ctx := context.Background()

	if err := th.Enforce(ctx, "ada"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := th.Enforce(ctx, "ada"); !errors.Is(err, session.ErrLoginThrottled) {
		t.Fatalf("expected ErrLoginThrottled, got %v", err)
	}

	mr.FastForward(61 * time.Second)

	if err := th.Enforce(ctx, "ada"); err != nil {
		t.Fatalf("attempt after window: %v", err)
	}
}

func TestReset_ClearsBudget(t *testing.T) {
	th, _ := newThrottle(t, Config{MaxAttempts: 1, Window: time.Minute, KeyPrefix: "t:login"})
	ctx := context.Background()

	if err := th.Enforce(ctx, "ada"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := th.Reset(ctx, "ada"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := th.Enforce(ctx, "ada"); err != nil {
		t.Fatalf("attempt after reset: %v", err)
	}
}

func TestEnforce_RedisDownIsNotThrottled(t *testing.T) {
	th, mr := newThrottle(t, DefaultConfig())
	mr.Close()

	err := th.Enforce(context.Background(), "ada")
	if err == nil {
		t.Fatalf("expected an error with Redis down")
	}
	if errors.Is(err, session.ErrLoginThrottled) {
		t.Fatalf("backend failure must not masquerade as throttling: %v", err)
	}
}
