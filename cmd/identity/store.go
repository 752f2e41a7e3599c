package identity

import (
	"context"
	"time"
)

// User is Coterie's canonical security principal. Identity is immutable once
// created.
type User struct {
	ID          string
	Handle      string
	DisplayName string

	// InvitedBy records which existing member brought this user in.
	// Nil only for the origin user created at bootstrap.
	InvitedBy *string

	CreatedAt time.Time
}

// CreateUserInput describes an invite-gated registration request.
type CreateUserInput struct {
	Handle      string
	DisplayName string
	Password    string
	InvitedBy   *string
	Now         time.Time
}

// Store is the user persistence boundary.
type Store interface {
	// CreateUser creates the user and its credentials transactionally.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetByID loads a user by id. ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (User, error)

	// GetByHandle loads a user by handle. ErrNotFound if absent.
	GetByHandle(ctx context.Context, handle string) (User, error)

	// CredentialsByHandle returns the user and its encoded password hash.
	// ErrNotFound if absent. Callers must not surface the distinction between
	// a missing handle and a wrong password.
	CredentialsByHandle(ctx context.Context, handle string) (User, string, error)
}
