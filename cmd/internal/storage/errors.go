// Package storage carries the shared persistence error taxonomy.
//
// Stores classify infrastructure failures (connectivity, timeouts) as
// ErrUnavailable so callers can distinguish "retry later" from business-rule
// outcomes. Constraint violations are never folded into ErrUnavailable; they
// map to typed outcomes in the owning package.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable is returned when the backing store cannot be reached or a
// call times out. Reads are safe to retry; creates are not auto-retried
// (duplicate avoidance relies on storage uniqueness constraints).
var ErrUnavailable = errors.New("storage unavailable")

// Wrap classifies err. Infrastructure failures come back wrapped in
// ErrUnavailable; everything else (constraint violations, no-rows, context
// cancellation by the caller) passes through untouched.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Postgres class 08 = connection exception, 53 = insufficient resources,
		// 57 = operator intervention (shutdown), 58 = system error.
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57"),
			strings.HasPrefix(pgErr.Code, "58"):
			return errors.Join(ErrUnavailable, err)
		default:
			return err
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.Join(ErrUnavailable, err)
	}

	return err
}

// IsUniqueViolation reports whether err is a Postgres unique violation and, if
// so, returns the constraint name.
func IsUniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)), true
}

// IsForeignKeyViolation reports whether err is a Postgres FK violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503"
}
