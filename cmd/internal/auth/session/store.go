package session

import (
	"context"
	"time"

	"coterie/cmd/identity"

	"github.com/google/uuid"
)

// Session mirrors a coterie.sessions row. SecretHash is server-side only and
// never leaves the store through ListForUser.
type Session struct {
	ID         uuid.UUID
	UserID     string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
}

// CreateResult is the outcome of creating a session. Secret is the one-time
// plaintext token material; it is never persisted.
type CreateResult struct {
	Session Session
	Secret  []byte

	// Evicted is how many least-recently-used sessions were removed to keep
	// the owner within capacity.
	Evicted int
}

// Store abstracts persistence for session state.
//
// Implementations must make Create's capacity eviction and Refresh's secret
// rotation atomic: no external reader may observe a user above capacity, and
// no window may exist where both the old and the new secret verify.
type Store interface {
	// Create inserts a session for userID, evicting the least-recently-used
	// sessions beyond capacity in the same transaction.
	Create(ctx context.Context, now time.Time, userID string) (CreateResult, error)

	// Resolve verifies sessionID+secret and returns the owning user.
	// ErrSessionNotFound if absent; ErrSessionInvalid on secret mismatch or
	// expiry. On success the session's last_used_at is touched best-effort.
	Resolve(ctx context.Context, now time.Time, sessionID uuid.UUID, secret []byte) (identity.User, Session, error)

	// Refresh verifies the presented secret, rotates it and extends expiry in
	// one transaction. Same failure modes as Resolve. The prior secret is
	// invalid the moment Refresh returns.
	Refresh(ctx context.Context, now time.Time, sessionID uuid.UUID, secret []byte) (Session, []byte, error)

	// Revoke deletes the session. Idempotent: revoking an absent session is
	// a no-op success.
	Revoke(ctx context.Context, sessionID uuid.UUID) error

	// ListForUser returns session metadata for a user, most recently used
	// first. Secret hashes are blanked.
	ListForUser(ctx context.Context, userID string) ([]Session, error)
}
