// Package session implements Coterie's session registry and lifecycle.
//
// A session is a server-tracked, time-bounded grant tied to one user,
// identified by a UUID and verified by a 32-byte secret. Only a hash of the
// secret is persisted. Each user holds at most K concurrent sessions; a login
// that would exceed K evicts the least-recently-used session in the same
// transaction that inserts the new one, so the capacity invariant is never
// observably violated.
//
// Lifecycle: Active -> Expired (detected lazily at resolve, never swept) and
// Active -> Revoked (logout or capacity eviction). Both are terminal.
package session
