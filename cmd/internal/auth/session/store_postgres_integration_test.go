package session

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when COTERIE_DATABASE_URL is set and the
// coterie schema has been applied. An unreachable Postgres skips rather than
// fails, to keep local runs fast.

func TestPostgresStore_CreateEvictsBeyondCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool, Config{Capacity: 3, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	userID := mustCreateUser(ctx, t, pool)
	t.Cleanup(func() { cleanupUser(ctx, t, pool, userID) })

	base := time.Now().UTC().Truncate(time.Microsecond)

	var results []CreateResult
	for i := 0; i < 4; i++ {
		res, err := store.Create(ctx, base.Add(time.Duration(i)*time.Second), userID)
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		results = append(results, res)
	}

	if results[2].Evicted != 0 {
		t.Fatalf("no eviction expected at capacity, got %d", results[2].Evicted)
	}
	if results[3].Evicted != 1 {
		t.Fatalf("expected 1 eviction beyond capacity, got %d", results[3].Evicted)
	}

	now := base.Add(time.Minute)
	if _, _, err := store.Resolve(ctx, now, results[0].Session.ID, results[0].Secret); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("oldest session should be evicted, got %v", err)
	}
	for i := 1; i < 4; i++ {
		if _, _, err := store.Resolve(ctx, now, results[i].Session.ID, results[i].Secret); err != nil {
			t.Fatalf("session %d should survive: %v", i, err)
		}
	}
}

func TestPostgresStore_RefreshRotatesSecret(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool, Config{Capacity: 5, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	userID := mustCreateUser(ctx, t, pool)
	t.Cleanup(func() { cleanupUser(ctx, t, pool, userID) })

	base := time.Now().UTC().Truncate(time.Microsecond)
	res, err := store.Create(ctx, base, userID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	row, newSecret, err := store.Refresh(ctx, base.Add(time.Second), res.Session.ID, res.Secret)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if row.ID != res.Session.ID {
		t.Fatalf("refresh changed the session id")
	}

	now := base.Add(2 * time.Second)
	if _, _, err := store.Resolve(ctx, now, res.Session.ID, res.Secret); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("old secret should be invalid after refresh, got %v", err)
	}
	if _, _, err := store.Resolve(ctx, now, res.Session.ID, newSecret); err != nil {
		t.Fatalf("rotated secret should resolve: %v", err)
	}
}

func TestPostgresStore_ResolveUnknownAndExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool, Config{Capacity: 5, TTL: time.Second})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	if _, _, err := store.Resolve(ctx, time.Now(), uuid.New(), make([]byte, 32)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session: expected ErrSessionNotFound, got %v", err)
	}

	userID := mustCreateUser(ctx, t, pool)
	t.Cleanup(func() { cleanupUser(ctx, t, pool, userID) })

	base := time.Now().UTC().Truncate(time.Microsecond)
	res, err := store.Create(ctx, base, userID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, _, err := store.Resolve(ctx, base.Add(time.Minute), res.Session.ID, res.Secret); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expired session: expected ErrSessionInvalid, got %v", err)
	}
}

func TestPostgresStore_RevokeIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool, Config{Capacity: 5, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	userID := mustCreateUser(ctx, t, pool)
	t.Cleanup(func() { cleanupUser(ctx, t, pool, userID) })

	res, err := store.Create(ctx, time.Now().UTC(), userID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Revoke(ctx, res.Session.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := store.Revoke(ctx, res.Session.ID); err != nil {
		t.Fatalf("second Revoke should succeed, got %v", err)
	}
	if err := store.Revoke(ctx, uuid.New()); err != nil {
		t.Fatalf("revoking an unknown session should succeed, got %v", err)
	}
}

func mustPGXPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("COTERIE_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: COTERIE_DATABASE_URL is not set")
	}

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse COTERIE_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pgxpool.NewWithConfig: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		var netErr net.Error
		if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func mustCreateUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id := ulid.Make().String()
	handle := "sess_" + strings.ToLower(id[16:])
	_, err := pool.Exec(ctx,
		`INSERT INTO coterie.users (id, handle, display_name, created_at)
		 VALUES ($1, $2, $3, now())`,
		id, handle, "Session Test",
	)
	if err != nil {
		t.Fatalf("insert test user: %v", err)
	}
	return id
}

func cleanupUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool, userID string) {
	t.Helper()

	if _, err := pool.Exec(ctx, `DELETE FROM coterie.sessions WHERE user_id = $1`, userID); err != nil {
		t.Logf("cleanup sessions: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM coterie.users WHERE id = $1`, userID); err != nil {
		t.Logf("cleanup user: %v", err)
	}
}
