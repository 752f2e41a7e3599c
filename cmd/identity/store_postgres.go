package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"coterie/cmd/identity/ids"
	"coterie/cmd/internal/storage"
	"coterie/cmd/security/password"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	pwCfg  password.Config
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "coterie").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithPasswordConfig overrides the Argon2id configuration used for new credentials.
func WithPasswordConfig(cfg password.Config) PostgresOption {
	return func(s *PostgresStore) error {
		s.pwCfg = cfg
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "coterie",
		pwCfg:  password.DefaultConfig(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser creates a new user and its credentials transactionally.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	handle := strings.TrimSpace(in.Handle)
	if err := ValidateHandle(handle); err != nil {
		return User{}, err
	}
	if err := ValidateDisplayName(in.DisplayName); err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := s.pwCfg.Hash(in.Password)
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	userID, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, storage.Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, handle, handle_norm, display_name, invited_by, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		userID,
		handle,
		NormalizeHandle(handle),
		in.DisplayName,
		in.InvitedBy,
		now,
	)
	if err != nil {
		if _, ok := storage.IsUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: "handle"}
		}
		if storage.IsForeignKeyViolation(err) {
			return User{}, NotFoundError{Op: op, Resource: "inviter"}
		}
		return User{}, storage.Wrap(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+creds+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		userID, pwHash, now,
	)
	if err != nil {
		return User{}, storage.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, storage.Wrap(err)
	}

	return User{
		ID:          userID,
		Handle:      handle,
		DisplayName: in.DisplayName,
		InvitedBy:   in.InvitedBy,
		CreatedAt:   now,
	}, nil
}

// GetByID loads a user by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetByID"
	return s.getUser(ctx, op, `WHERE id = $1`, strings.TrimSpace(id))
}

// GetByHandle loads a user by handle (case-insensitive).
func (s *PostgresStore) GetByHandle(ctx context.Context, handle string) (User, error) {
	const op = "identity.GetByHandle"
	return s.getUser(ctx, op, `WHERE handle_norm = $1`, NormalizeHandle(handle))
}

func (s *PostgresStore) getUser(ctx context.Context, op, where, key string) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if key == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, handle, display_name, invited_by, created_at FROM `+users+` `+where,
		key,
	).Scan(&u.ID, &u.Handle, &u.DisplayName, &u.InvitedBy, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, storage.Wrap(err)
	}
	return u, nil
}

// CredentialsByHandle returns the user and its encoded password hash.
func (s *PostgresStore) CredentialsByHandle(ctx context.Context, handle string) (User, string, error) {
	const op = "identity.CredentialsByHandle"

	if s == nil || s.pool == nil {
		return User{}, "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	norm := NormalizeHandle(handle)
	if norm == "" {
		return User{}, "", NotFoundError{Op: op, Resource: "user"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, "", err
	}

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	var (
		u      User
		pwHash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.handle, u.display_name, u.invited_by, u.created_at, c.password_hash
		   FROM `+users+` u
		   JOIN `+creds+` c ON c.user_id = u.id
		  WHERE u.handle_norm = $1`,
		norm,
	).Scan(&u.ID, &u.Handle, &u.DisplayName, &u.InvitedBy, &u.CreatedAt, &pwHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, "", storage.Wrap(err)
	}
	return u, pwHash, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
