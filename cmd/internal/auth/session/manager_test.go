package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"coterie/cmd/identity"
	"coterie/cmd/internal/auth/bearer"
	"coterie/cmd/security/password"
)

func testPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

type fixture struct {
	mgr   *Manager
	store *MemoryStore
	users *identity.MemoryStore
	user  identity.User
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	pwCfg := testPasswordConfig()
	users := identity.NewMemoryStore(pwCfg)

	u, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Handle:      "ada",
		DisplayName: "Ada",
		Password:    "correct horse battery",
		Now:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	verifier, err := identity.NewVerifier(users, pwCfg)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	store, err := NewMemoryStore(cfg, users)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := NewManager(log, store, verifier)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	return &fixture{mgr: mgr, store: store, users: users, user: u}
}

func (f *fixture) login(t *testing.T, now time.Time) string {
	t.Helper()
	tok, err := f.mgr.Login(context.Background(), now, "ada", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return tok
}

func TestLogin_EvictsOldestBeyondCapacity(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Capacity: 3, TTL: time.Hour})
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var toks []string
	for i := 0; i < 4; i++ {
		toks = append(toks, f.login(t, base.Add(time.Duration(i)*time.Minute)))
	}

	now := base.Add(10 * time.Minute)
	if _, _, err := f.mgr.ResolveBearer(ctx, now, toks[0]); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("oldest session should be evicted, got %v", err)
	}
	for i := 1; i < 4; i++ {
		if _, _, err := f.mgr.ResolveBearer(ctx, now, toks[i]); err != nil {
			t.Fatalf("session %d should survive: %v", i, err)
		}
	}

	rows, err := f.mgr.Sessions(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 live sessions, got %d", len(rows))
	}
}

// A resolve touches last_used_at, so the eviction victim is the session that
// went longest without use, not the oldest login.
func TestLogin_EvictionFollowsUseRecency(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Capacity: 2, TTL: time.Hour})
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := f.login(t, base)
	second := f.login(t, base.Add(time.Minute))

	// Use the first session after the second login.
	if _, _, err := f.mgr.ResolveBearer(ctx, base.Add(2*time.Minute), first); err != nil {
		t.Fatalf("ResolveBearer: %v", err)
	}

	f.login(t, base.Add(3*time.Minute))

	now := base.Add(4 * time.Minute)
	if _, _, err := f.mgr.ResolveBearer(ctx, now, second); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("least recently used session should be evicted, got %v", err)
	}
	if _, _, err := f.mgr.ResolveBearer(ctx, now, first); err != nil {
		t.Fatalf("recently used session should survive: %v", err)
	}
}

func TestRefreshBearer_RotatesSecret(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old := f.login(t, base)
	fresh, err := f.mgr.RefreshBearer(ctx, base.Add(time.Minute), old)
	if err != nil {
		t.Fatalf("RefreshBearer: %v", err)
	}
	if fresh == old {
		t.Fatalf("refresh returned the same token")
	}

	now := base.Add(2 * time.Minute)
	if _, _, err := f.mgr.ResolveBearer(ctx, now, old); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("old token should be invalid after refresh, got %v", err)
	}
	u, row, err := f.mgr.ResolveBearer(ctx, now, fresh)
	if err != nil {
		t.Fatalf("fresh token should resolve: %v", err)
	}
	if u.ID != f.user.ID {
		t.Fatalf("resolved wrong user: %s", u.ID)
	}
	if !row.ExpiresAt.After(base.Add(DefaultConfig().TTL)) {
		t.Fatalf("refresh should extend expiry, got %s", row.ExpiresAt)
	}
}

func TestRefreshBearer_ExtendsTTLFromNow(t *testing.T) {
	t.Parallel()

	cfg := Config{Capacity: 5, TTL: time.Hour}
	f := newFixture(t, cfg)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok := f.login(t, base)

	// Refresh just before expiry keeps the session alive for a full TTL.
	refreshAt := base.Add(59 * time.Minute)
	fresh, err := f.mgr.RefreshBearer(ctx, refreshAt, tok)
	if err != nil {
		t.Fatalf("RefreshBearer: %v", err)
	}
	if _, _, err := f.mgr.ResolveBearer(ctx, refreshAt.Add(59*time.Minute), fresh); err != nil {
		t.Fatalf("refreshed session should still be valid: %v", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok := f.login(t, base)
	if err := f.mgr.Logout(ctx, base, tok); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := f.mgr.ResolveBearer(ctx, base, tok); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session should be gone after logout, got %v", err)
	}
	if err := f.mgr.Logout(ctx, base, tok); err != nil {
		t.Fatalf("second logout should be a no-op success, got %v", err)
	}
}

func TestLogout_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok := f.login(t, base)
	sid, secret, err := bearer.Unpack(tok)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	secret[0] ^= 0xFF
	forged, err := bearer.Mint(sid, secret)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if err := f.mgr.Logout(ctx, base, forged); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("forged secret must not revoke, got %v", err)
	}
	if _, _, err := f.mgr.ResolveBearer(ctx, base, tok); err != nil {
		t.Fatalf("session should survive the forged logout: %v", err)
	}
}

func TestResolveBearer_Expiry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Capacity: 5, TTL: time.Hour})
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok := f.login(t, base)
	if _, _, err := f.mgr.ResolveBearer(ctx, base.Add(59*time.Minute), tok); err != nil {
		t.Fatalf("session should be valid before expiry: %v", err)
	}
	if _, _, err := f.mgr.ResolveBearer(ctx, base.Add(2*time.Hour), tok); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expired session should be invalid, got %v", err)
	}
}

func TestResolveBearer_Malformed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	if _, _, err := f.mgr.ResolveBearer(context.Background(), time.Now(), "not-a-token"); !errors.Is(err, bearer.ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestLogin_InvalidCredentialsAreUniform(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := f.mgr.Login(ctx, now, "nobody", "correct horse battery"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("unknown handle: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.mgr.Login(ctx, now, "ada", "wrong password!"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

type stubThrottle struct{ err error }

func (s stubThrottle) Enforce(ctx context.Context, handle string) error { return s.err }

func TestLogin_Throttled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier, err := identity.NewVerifier(f.users, testPasswordConfig())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	mgr, err := NewManager(log, f.store, verifier, WithThrottle(stubThrottle{err: ErrLoginThrottled}))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := mgr.Login(context.Background(), time.Now(), "ada", "correct horse battery"); !errors.Is(err, ErrLoginThrottled) {
		t.Fatalf("expected ErrLoginThrottled, got %v", err)
	}
}

func TestLogin_ThrottleFailsOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier, err := identity.NewVerifier(f.users, testPasswordConfig())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	mgr, err := NewManager(log, f.store, verifier, WithThrottle(stubThrottle{err: errors.New("redis down")}))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := mgr.Login(context.Background(), time.Now(), "ada", "correct horse battery"); err != nil {
		t.Fatalf("login should succeed when the throttle backend is down, got %v", err)
	}
}

func TestSessions_OrderAndRedaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Capacity: 5, TTL: time.Hour})
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := f.login(t, base)
	f.login(t, base.Add(time.Minute))

	// Touch the first session so it becomes the most recently used.
	if _, _, err := f.mgr.ResolveBearer(ctx, base.Add(2*time.Minute), first); err != nil {
		t.Fatalf("ResolveBearer: %v", err)
	}

	rows, err := f.mgr.Sessions(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(rows))
	}
	if !rows[0].LastUsedAt.After(rows[1].LastUsedAt) {
		t.Fatalf("sessions not ordered by recency: %s vs %s", rows[0].LastUsedAt, rows[1].LastUsedAt)
	}
	for i, row := range rows {
		if row.SecretHash != "" {
			t.Fatalf("row %d leaked a secret hash", i)
		}
	}
}
