package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"coterie/cmd/identity"
	"coterie/cmd/internal/storage"
	"coterie/cmd/security/token"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (coterie.sessions).
//
// Ownership model: the pgx pool is owned by the caller; this store never
// closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cfg    Config
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the session store (default "coterie").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("session: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, cfg Config, opts ...PostgresOption) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := &PostgresStore{pool: pool, cfg: cfg, schema: "coterie"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

// Create inserts a session row, evicting beyond-capacity sessions atomically.
//
// Concurrency model: all session writes for one user are serialized with a
// per-user transactional advisory lock, so two concurrent logins can never
// both observe K-1 rows and both insert. The insert and the eviction commit
// together; readers outside the transaction never see more than K rows.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, userID string) (CreateResult, error) {
	if s == nil || s.pool == nil {
		return CreateResult{}, fmt.Errorf("session: nil store")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CreateResult{}, identity.NotFoundError{Op: "session.Create", Resource: "user"}
	}
	if err := ctx.Err(); err != nil {
		return CreateResult{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	secret, secretHash, err := newSecret()
	if err != nil {
		return CreateResult{}, err
	}
	id := uuid.New()
	expiresAt := now.Add(s.cfg.TTL)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return CreateResult{}, storage.Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sessions := pgIdent(s.schema, "sessions")

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return CreateResult{}, storage.Wrap(fmt.Errorf("advisory lock: %w", err))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+sessions+` (
		     id, user_id, secret_hash, created_at, last_used_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $4, $5)`,
		id, userID, secretHash, now, expiresAt,
	)
	if err != nil {
		if _, ok := storage.IsUniqueViolation(err); ok {
			// Secret-hash collision. Practically unreachable with 32 random
			// bytes; surface rather than retry so it is never silent.
			return CreateResult{}, fmt.Errorf("session: secret hash collision: %w", err)
		}
		if storage.IsForeignKeyViolation(err) {
			return CreateResult{}, identity.NotFoundError{Op: "session.Create", Resource: "user"}
		}
		return CreateResult{}, storage.Wrap(err)
	}

	// Keep the K most recently used sessions; evict the rest. Tie-breaks
	// mirror the keep-order inverted: minimum last_used_at goes first, then
	// minimum created_at, then lowest id.
	ct, err := tx.Exec(ctx,
		`DELETE FROM `+sessions+`
		  WHERE user_id = $1
		    AND id NOT IN (
		        SELECT id FROM `+sessions+`
		         WHERE user_id = $1
		         ORDER BY last_used_at DESC, created_at DESC, id DESC
		         LIMIT $2)`,
		userID, s.cfg.Capacity,
	)
	if err != nil {
		return CreateResult{}, storage.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateResult{}, storage.Wrap(err)
	}

	return CreateResult{
		Session: Session{
			ID:         id,
			UserID:     userID,
			SecretHash: secretHash,
			CreatedAt:  now,
			LastUsedAt: now,
			ExpiresAt:  expiresAt,
		},
		Secret:  secret,
		Evicted: int(ct.RowsAffected()),
	}, nil
}

// Resolve verifies sessionID+secret and returns the owning user.
func (s *PostgresStore) Resolve(ctx context.Context, now time.Time, sessionID uuid.UUID, secret []byte) (identity.User, Session, error) {
	if s == nil || s.pool == nil {
		return identity.User{}, Session{}, fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return identity.User{}, Session{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "sessions")
	users := pgIdent(s.schema, "users")

	var (
		row Session
		u   identity.User
	)
	err := s.pool.QueryRow(ctx,
		`SELECT s.id, s.user_id, s.secret_hash, s.created_at, s.last_used_at, s.expires_at,
		        u.id, u.handle, u.display_name, u.invited_by, u.created_at
		   FROM `+sessions+` s
		   JOIN `+users+` u ON u.id = s.user_id
		  WHERE s.id = $1`,
		sessionID,
	).Scan(
		&row.ID, &row.UserID, &row.SecretHash, &row.CreatedAt, &row.LastUsedAt, &row.ExpiresAt,
		&u.ID, &u.Handle, &u.DisplayName, &u.InvitedBy, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, Session{}, ErrSessionNotFound
	}
	if err != nil {
		return identity.User{}, Session{}, storage.Wrap(err)
	}

	if !token.EqualHex64(row.SecretHash, token.HashSecretHex(secret)) {
		return identity.User{}, Session{}, ErrSessionInvalid
	}
	if !row.ExpiresAt.After(now) {
		return identity.User{}, Session{}, ErrSessionInvalid
	}

	// Best-effort recency touch. A lost update here only skews LRU eviction
	// order, never correctness, so the error is deliberately dropped.
	_, _ = s.pool.Exec(ctx,
		`UPDATE `+sessions+` SET last_used_at = $2 WHERE id = $1`,
		sessionID, now,
	)
	row.LastUsedAt = now

	return u, row, nil
}

// Refresh rotates the session secret and extends expiry atomically.
//
// The session row is locked (SELECT ... FOR UPDATE) so concurrent refreshes
// of the same session serialize; the loser observes the rotated hash and
// fails ErrSessionInvalid.
func (s *PostgresStore) Refresh(ctx context.Context, now time.Time, sessionID uuid.UUID, secret []byte) (Session, []byte, error) {
	if s == nil || s.pool == nil {
		return Session{}, nil, fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, nil, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "sessions")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Session{}, nil, storage.Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var row Session
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, secret_hash, created_at, last_used_at, expires_at
		   FROM `+sessions+`
		  WHERE id = $1
		  FOR UPDATE`,
		sessionID,
	).Scan(&row.ID, &row.UserID, &row.SecretHash, &row.CreatedAt, &row.LastUsedAt, &row.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, nil, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, nil, storage.Wrap(err)
	}

	if !token.EqualHex64(row.SecretHash, token.HashSecretHex(secret)) {
		return Session{}, nil, ErrSessionInvalid
	}
	if !row.ExpiresAt.After(now) {
		return Session{}, nil, ErrSessionInvalid
	}

	newPlain, newHash, err := newSecret()
	if err != nil {
		return Session{}, nil, err
	}
	newExpiry := now.Add(s.cfg.TTL)

	_, err = tx.Exec(ctx,
		`UPDATE `+sessions+`
		    SET secret_hash = $2,
		        last_used_at = $3,
		        expires_at = $4
		  WHERE id = $1`,
		sessionID, newHash, now, newExpiry,
	)
	if err != nil {
		return Session{}, nil, storage.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, nil, storage.Wrap(err)
	}

	row.SecretHash = newHash
	row.LastUsedAt = now
	row.ExpiresAt = newExpiry
	return row, newPlain, nil
}

// Revoke deletes a session row (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sessions := pgIdent(s.schema, "sessions")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+sessions+` WHERE id = $1`, sessionID)
	return storage.Wrap(err)
}

// ListForUser returns session metadata for a user (no secret hashes).
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessions := pgIdent(s.schema, "sessions")

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, created_at, last_used_at, expires_at
		   FROM `+sessions+`
		  WHERE user_id = $1
		  ORDER BY last_used_at DESC, created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, storage.Wrap(err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var row Session
		if err := rows.Scan(&row.ID, &row.UserID, &row.CreatedAt, &row.LastUsedAt, &row.ExpiresAt); err != nil {
			return nil, storage.Wrap(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(err)
	}
	return out, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
