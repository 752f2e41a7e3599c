package chat

import "errors"

var (
	// ErrNotFound is returned when a chat does not exist or the requester is
	// not a member. The two causes are deliberately indistinguishable.
	ErrNotFound = errors.New("chat not found")

	// ErrInvalidParticipants is returned when a private chat names an unknown
	// user or the caller themselves.
	ErrInvalidParticipants = errors.New("invalid participants")

	// ErrAlreadyExists is returned when a private chat for the same pair of
	// users already exists.
	ErrAlreadyExists = errors.New("chat already exists")

	// ErrValidation is returned for message bodies that fail validation.
	ErrValidation = errors.New("message validation failed")
)
