package identity

import (
	"context"
	"sync"
	"time"

	"coterie/cmd/identity/ids"
	"coterie/cmd/security/password"
)

// MemoryStore is an in-memory Store used by unit tests and DB-less dev mode.
type MemoryStore struct {
	pwCfg password.Config

	mu       sync.Mutex
	byID     map[string]User
	byHandle map[string]string // handle_norm -> id
	pwHashes map[string]string // id -> encoded hash
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(pwCfg password.Config) *MemoryStore {
	return &MemoryStore{
		pwCfg:    pwCfg,
		byID:     make(map[string]User),
		byHandle: make(map[string]string),
		pwHashes: make(map[string]string),
	}
}

// CreateUser creates a user and its credentials.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if err := ValidateHandle(in.Handle); err != nil {
		return User{}, err
	}
	if err := ValidateDisplayName(in.DisplayName); err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := s.pwCfg.Hash(in.Password)
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	norm := NormalizeHandle(in.Handle)
	if _, exists := s.byHandle[norm]; exists {
		return User{}, ConflictError{Op: op, Field: "handle"}
	}
	if in.InvitedBy != nil {
		if _, exists := s.byID[*in.InvitedBy]; !exists {
			return User{}, NotFoundError{Op: op, Resource: "inviter"}
		}
	}

	u := User{
		ID:          id,
		Handle:      in.Handle,
		DisplayName: in.DisplayName,
		InvitedBy:   in.InvitedBy,
		CreatedAt:   now,
	}
	s.byID[id] = u
	s.byHandle[norm] = id
	s.pwHashes[id] = pwHash
	return u, nil
}

// GetByID loads a user by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByID", Resource: "user"}
	}
	return u, nil
}

// GetByHandle loads a user by handle (case-insensitive).
func (s *MemoryStore) GetByHandle(ctx context.Context, handle string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHandle[NormalizeHandle(handle)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByHandle", Resource: "user"}
	}
	return s.byID[id], nil
}

// CredentialsByHandle returns the user and its encoded password hash.
func (s *MemoryStore) CredentialsByHandle(ctx context.Context, handle string) (User, string, error) {
	if err := ctx.Err(); err != nil {
		return User{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHandle[NormalizeHandle(handle)]
	if !ok {
		return User{}, "", NotFoundError{Op: "identity.CredentialsByHandle", Resource: "user"}
	}
	return s.byID[id], s.pwHashes[id], nil
}
