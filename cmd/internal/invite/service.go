package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"coterie/cmd/identity/ids"
	"coterie/cmd/security/token"
)

const (
	defaultCodeBytes = 32
	defaultTTL       = 7 * 24 * time.Hour
	maxNoteLen       = 512
)

// CreateInput describes invite creation. Zero TTL and MaxUses fall back to
// one week and a single use.
type CreateInput struct {
	CreatedBy *string
	TTL       time.Duration
	MaxUses   int
	Note      *string
	Now       time.Time
}

// Service manages invite creation, validation, consumption and revocation.
type Service struct {
	store     Store
	codeBytes int
}

// Option configures the Service.
type Option func(*Service) error

// WithCodeBytes sets the length of generated invite codes in bytes.
func WithCodeBytes(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		s.codeBytes = n
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{store: store, codeBytes: defaultCodeBytes}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateInvite creates an invite and returns it with the plain code. The
// code is shown exactly once; only its hash is stored.
func (s *Service) CreateInvite(ctx context.Context, in CreateInput) (Invite, string, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, "", err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxUses := in.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}
	note := trimPtr(in.Note)
	if note != nil && len(*note) > maxNoteLen {
		return Invite{}, "", ErrInvalidInput
	}

	code, err := newCode(s.codeBytes)
	if err != nil {
		return Invite{}, "", err
	}

	inviteID, err := ids.NewULID(now)
	if err != nil {
		return Invite{}, "", err
	}

	inv, err := s.store.Create(ctx, CreateRecord{
		ID:        inviteID,
		CodeHash:  token.HashSHA256Hex([]byte(code)),
		CreatedBy: trimPtr(in.CreatedBy),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		MaxUses:   maxUses,
		Note:      note,
	})
	if err != nil {
		return Invite{}, "", err
	}
	return inv, code, nil
}

// ValidateCode reports whether a code would be accepted at the given time.
// An unknown code is not an error; it is simply invalid.
func (s *Service) ValidateCode(ctx context.Context, code string, now time.Time) (bool, Invite, error) {
	if err := ctx.Err(); err != nil {
		return false, Invite{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false, Invite{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	inv, err := s.store.GetByCodeHash(ctx, token.HashSHA256Hex([]byte(code)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, Invite{}, nil
		}
		return false, Invite{}, err
	}

	return isActive(inv, now), inv, nil
}

// ConsumeCode spends one use of the code on behalf of consumedBy.
// ErrNotFound for an unknown code, ErrNotActive for a revoked, expired or
// exhausted one.
func (s *Service) ConsumeCode(ctx context.Context, code, consumedBy string, now time.Time) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	code = strings.TrimSpace(code)
	consumedBy = strings.TrimSpace(consumedBy)
	if code == "" || consumedBy == "" {
		return Invite{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return s.store.Consume(ctx, ConsumeRecord{
		CodeHash:   token.HashSHA256Hex([]byte(code)),
		ConsumedBy: consumedBy,
		Now:        now,
	})
}

// RevokeInvite deactivates an invite by id. Revoking an already-revoked
// invite is a no-op success.
func (s *Service) RevokeInvite(ctx context.Context, inviteID string, now time.Time) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	inviteID = strings.TrimSpace(inviteID)
	if inviteID == "" {
		return Invite{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return s.store.Revoke(ctx, inviteID, now)
}

func isActive(inv Invite, now time.Time) bool {
	if inv.RevokedAt != nil {
		return false
	}
	if !inv.ExpiresAt.After(now) {
		return false
	}
	return inv.UsedCount < inv.MaxUses
}

func newCode(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
