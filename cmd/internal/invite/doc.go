// Package invite manages the invite codes that gate registration.
//
// A code is opaque random material handed out once at creation; only its
// SHA-256 hash is stored. Codes carry an expiry and a use budget, and can be
// revoked before either runs out.
package invite
