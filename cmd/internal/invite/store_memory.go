package invite

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by unit tests and DB-less dev mode.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Invite
	byHash map[string]string // code hash -> invite id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Invite),
		byHash: make(map[string]string),
	}
}

// Create inserts a new invite record.
func (s *MemoryStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.CodeHash) == "" || in.MaxUses <= 0 {
		return Invite{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv := Invite{
		ID:        in.ID,
		CreatedBy: in.CreatedBy,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
		MaxUses:   in.MaxUses,
		Note:      in.Note,
	}
	s.byID[in.ID] = &inv
	s.byHash[in.CodeHash] = in.ID
	return inv, nil
}

// GetByCodeHash fetches an invite by code hash.
func (s *MemoryStore) GetByCodeHash(ctx context.Context, codeHash string) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[codeHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return *s.byID[id], nil
}

// Consume spends one use; the check and the increment run under one mutex.
func (s *MemoryStore) Consume(ctx context.Context, in ConsumeRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.CodeHash) == "" || strings.TrimSpace(in.ConsumedBy) == "" {
		return Invite{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[in.CodeHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	inv := s.byID[id]
	if !isActive(*inv, in.Now) {
		return Invite{}, ErrNotActive
	}

	inv.UsedCount++
	now := in.Now
	by := in.ConsumedBy
	inv.ConsumedAt = &now
	inv.ConsumedBy = &by
	return *inv, nil
}

// Revoke stamps revoked_at, keeping the first revocation time on repeats.
func (s *MemoryStore) Revoke(ctx context.Context, inviteID string, now time.Time) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.byID[inviteID]
	if !ok {
		return Invite{}, ErrNotFound
	}
	if inv.RevokedAt == nil {
		inv.RevokedAt = &now
	}
	return *inv, nil
}
