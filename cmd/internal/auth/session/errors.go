package session

import "errors"

var (
	// ErrSessionNotFound is returned when a session id matches no row.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionInvalid is returned when the session exists but the presented
	// secret does not match, or the session has expired. The two causes are
	// deliberately indistinguishable.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrLoginThrottled is returned when the login throttle trips.
	ErrLoginThrottled = errors.New("login throttled")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
