package invite

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"coterie/cmd/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists invites in PostgreSQL (coterie.invites).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default "coterie").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "coterie"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Create inserts a new invite record.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if s == nil || s.pool == nil {
		return Invite{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.CodeHash) == "" || in.MaxUses <= 0 {
		return Invite{}, ErrInvalidInput
	}

	invites := pgIdent(s.schema, "invites")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+invites+` (
		     id, code_hash, created_by, created_at, expires_at, max_uses, used_count, note
		   ) VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
		in.ID, in.CodeHash, in.CreatedBy, in.CreatedAt, in.ExpiresAt, in.MaxUses, in.Note,
	)
	if err != nil {
		return Invite{}, storage.Wrap(err)
	}

	return Invite{
		ID:        in.ID,
		CreatedBy: in.CreatedBy,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
		MaxUses:   in.MaxUses,
		Note:      in.Note,
	}, nil
}

// GetByCodeHash fetches an invite by code hash.
func (s *PostgresStore) GetByCodeHash(ctx context.Context, codeHash string) (Invite, error) {
	if s == nil || s.pool == nil {
		return Invite{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	codeHash = strings.TrimSpace(codeHash)
	if codeHash == "" {
		return Invite{}, ErrInvalidInput
	}

	invites := pgIdent(s.schema, "invites")

	var out Invite
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_by, created_at, expires_at, max_uses, used_count, revoked_at, note, consumed_at, consumed_by
		   FROM `+invites+`
		  WHERE code_hash = $1`,
		codeHash,
	).Scan(
		&out.ID, &out.CreatedBy, &out.CreatedAt, &out.ExpiresAt, &out.MaxUses,
		&out.UsedCount, &out.RevokedAt, &out.Note, &out.ConsumedAt, &out.ConsumedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invite{}, ErrNotFound
	}
	if err != nil {
		return Invite{}, storage.Wrap(err)
	}
	return out, nil
}

// Consume spends one use in a single guarded UPDATE, so a code with one use
// left cannot be consumed twice.
func (s *PostgresStore) Consume(ctx context.Context, in ConsumeRecord) (Invite, error) {
	if s == nil || s.pool == nil {
		return Invite{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.CodeHash) == "" || strings.TrimSpace(in.ConsumedBy) == "" {
		return Invite{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	invites := pgIdent(s.schema, "invites")

	var out Invite
	err := s.pool.QueryRow(ctx,
		`UPDATE `+invites+`
		    SET used_count = used_count + 1,
		        consumed_at = $1,
		        consumed_by = $2
		  WHERE code_hash = $3
		    AND revoked_at IS NULL
		    AND expires_at > $1
		    AND used_count < max_uses
		RETURNING id, created_by, created_at, expires_at, max_uses, used_count, revoked_at, note, consumed_at, consumed_by`,
		in.Now, in.ConsumedBy, in.CodeHash,
	).Scan(
		&out.ID, &out.CreatedBy, &out.CreatedAt, &out.ExpiresAt, &out.MaxUses,
		&out.UsedCount, &out.RevokedAt, &out.Note, &out.ConsumedAt, &out.ConsumedBy,
	)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Invite{}, storage.Wrap(err)
	}

	// Distinguish unknown codes from inactive ones.
	if _, selErr := s.GetByCodeHash(ctx, in.CodeHash); selErr != nil {
		return Invite{}, selErr
	}
	return Invite{}, ErrNotActive
}

// Revoke stamps revoked_at, keeping the first revocation time on repeats.
func (s *PostgresStore) Revoke(ctx context.Context, inviteID string, now time.Time) (Invite, error) {
	if s == nil || s.pool == nil {
		return Invite{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	inviteID = strings.TrimSpace(inviteID)
	if inviteID == "" {
		return Invite{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	invites := pgIdent(s.schema, "invites")

	var out Invite
	err := s.pool.QueryRow(ctx,
		`UPDATE `+invites+`
		    SET revoked_at = COALESCE(revoked_at, $2)
		  WHERE id = $1
		RETURNING id, created_by, created_at, expires_at, max_uses, used_count, revoked_at, note, consumed_at, consumed_by`,
		inviteID, now,
	).Scan(
		&out.ID, &out.CreatedBy, &out.CreatedAt, &out.ExpiresAt, &out.MaxUses,
		&out.UsedCount, &out.RevokedAt, &out.Note, &out.ConsumedAt, &out.ConsumedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invite{}, ErrNotFound
	}
	if err != nil {
		return Invite{}, storage.Wrap(err)
	}
	return out, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
