package invite

import (
	"context"
	"time"
)

// Invite is one registration grant.
type Invite struct {
	ID         string
	CreatedBy  *string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	MaxUses    int
	UsedCount  int
	RevokedAt  *time.Time
	Note       *string
	ConsumedAt *time.Time
	ConsumedBy *string
}

// CreateRecord is a normalized invite insert payload.
type CreateRecord struct {
	ID        string
	CodeHash  string
	CreatedBy *string
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxUses   int
	Note      *string
}

// ConsumeRecord describes one code consumption.
type ConsumeRecord struct {
	CodeHash   string
	ConsumedBy string
	Now        time.Time
}

// Store is the persistence boundary for invites.
//
// Consume must be atomic: checking the invite is active and spending a use
// happen in one statement or transaction, so a code with one use left cannot
// be consumed twice.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Invite, error)
	GetByCodeHash(ctx context.Context, codeHash string) (Invite, error)
	Consume(ctx context.Context, in ConsumeRecord) (Invite, error)
	Revoke(ctx context.Context, inviteID string, now time.Time) (Invite, error)
}
