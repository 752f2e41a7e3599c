package session

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"coterie/cmd/identity"
	"coterie/cmd/security/token"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by unit tests and DB-less dev mode.
// It mirrors the Postgres store's semantics, including eviction order and
// rotation atomicity (the whole operation runs under one mutex).
type MemoryStore struct {
	cfg   Config
	users identity.Store

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewMemoryStore constructs a MemoryStore resolving users from the given
// identity store.
func NewMemoryStore(cfg Config, users identity.Store) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{
		cfg:      cfg,
		users:    users,
		sessions: make(map[uuid.UUID]*Session),
	}, nil
}

// Create inserts a session, evicting beyond-capacity sessions atomically.
func (s *MemoryStore) Create(ctx context.Context, now time.Time, userID string) (CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return CreateResult{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return CreateResult{}, err
	}

	secret, secretHash, err := newSecret()
	if err != nil {
		return CreateResult{}, err
	}

	row := Session{
		ID:         uuid.New(),
		UserID:     userID,
		SecretHash: secretHash,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(s.cfg.TTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[row.ID] = &row

	owned := s.ownedLocked(userID)
	evicted := 0
	if len(owned) > s.cfg.Capacity {
		// Keep the K most recently used; evict from the LRU end.
		sortByRecencyDesc(owned)
		for _, victim := range owned[s.cfg.Capacity:] {
			delete(s.sessions, victim.ID)
			evicted++
		}
	}

	return CreateResult{Session: row, Secret: secret, Evicted: evicted}, nil
}

// Resolve verifies sessionID+secret and returns the owning user.
func (s *MemoryStore) Resolve(ctx context.Context, now time.Time, sessionID uuid.UUID, secret []byte) (identity.User, Session, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, Session{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	row, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return identity.User{}, Session{}, ErrSessionNotFound
	}
	if !token.EqualHex64(row.SecretHash, token.HashSecretHex(secret)) {
		s.mu.Unlock()
		return identity.User{}, Session{}, ErrSessionInvalid
	}
	if !row.ExpiresAt.After(now) {
		s.mu.Unlock()
		return identity.User{}, Session{}, ErrSessionInvalid
	}
	row.LastUsedAt = now
	snapshot := *row
	s.mu.Unlock()

	u, err := s.users.GetByID(ctx, snapshot.UserID)
	if err != nil {
		return identity.User{}, Session{}, err
	}
	return u, snapshot, nil
}

// Refresh rotates the session secret and extends expiry atomically.
func (s *MemoryStore) Refresh(ctx context.Context, now time.Time, sessionID uuid.UUID, secret []byte) (Session, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, nil, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, nil, ErrSessionNotFound
	}
	if !token.EqualHex64(row.SecretHash, token.HashSecretHex(secret)) {
		return Session{}, nil, ErrSessionInvalid
	}
	if !row.ExpiresAt.After(now) {
		return Session{}, nil, ErrSessionInvalid
	}

	newPlain, newHash, err := newSecret()
	if err != nil {
		return Session{}, nil, err
	}

	row.SecretHash = newHash
	row.LastUsedAt = now
	row.ExpiresAt = now.Add(s.cfg.TTL)

	return *row, newPlain, nil
}

// Revoke deletes the session (idempotent).
func (s *MemoryStore) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// ListForUser returns session metadata for a user, most recently used first.
func (s *MemoryStore) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.ownedLocked(userID)
	sortByRecencyDesc(owned)

	out := make([]Session, 0, len(owned))
	for _, row := range owned {
		snapshot := *row
		snapshot.SecretHash = ""
		out = append(out, snapshot)
	}
	return out, nil
}

func (s *MemoryStore) ownedLocked(userID string) []*Session {
	var owned []*Session
	for _, row := range s.sessions {
		if row.UserID == userID {
			owned = append(owned, row)
		}
	}
	return owned
}

// sortByRecencyDesc orders sessions most recently used first; ties fall back
// to created_at, then id, matching the Postgres eviction query.
func sortByRecencyDesc(rows []*Session) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.LastUsedAt.Equal(b.LastUsedAt) {
			return a.LastUsedAt.After(b.LastUsedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) > 0
	})
}
