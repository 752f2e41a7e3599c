// Package identity owns Coterie's user registry and credential verification.
//
// Users are created only through invite-gated registration; identity fields
// are immutable after creation. Credential verification is deliberately
// uniform: callers can never tell an unknown handle from a wrong password.
package identity
