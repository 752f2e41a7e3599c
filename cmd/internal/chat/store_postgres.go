package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"coterie/cmd/identity/ids"
	"coterie/cmd/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (coterie.chats,
// coterie.chat_members, coterie.messages).
//
// Ownership model: the pgx pool is owned by the caller; this store never
// closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the chat store (default "coterie").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("chat: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed chat store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
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
		return nil, fmt.Errorf("chat: nil pool")
	}
	return st, nil
}

// CreateSelfChat returns the user's self chat, creating it if absent.
func (s *PostgresStore) CreateSelfChat(ctx context.Context, now time.Time, userID string) (Chat, bool, error) {
	if s == nil || s.pool == nil {
		return Chat{}, false, fmt.Errorf("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Chat{}, false, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	chats := pgIdent(s.schema, "chats")
	key := selfKey(userID)

	existing, err := s.chatByPairKey(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Chat{}, false, err
	}

	chatID, err := ids.NewULID(now)
	if err != nil {
		return Chat{}, false, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Chat{}, false, storage.Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+chats+` (id, kind, display_name, pair_key, created_at)
		 VALUES ($1, $2, NULL, $3, $4)`,
		chatID, string(KindSelf), key, now,
	)
	if err != nil {
		if _, dup := storage.IsUniqueViolation(err); dup {
			// Lost a race with a concurrent create; surface the winner.
			return s.selfChatAfterRace(ctx, key)
		}
		if storage.IsForeignKeyViolation(err) {
			return Chat{}, false, fmt.Errorf("%w: unknown user", ErrInvalidParticipants)
		}
		return Chat{}, false, storage.Wrap(err)
	}

	if err := addMember(ctx, tx, s.schema, chatID, userID, now); err != nil {
		return Chat{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Chat{}, false, storage.Wrap(err)
	}

	return Chat{ID: chatID, Kind: KindSelf, CreatedAt: now}, true, nil
}

func (s *PostgresStore) selfChatAfterRace(ctx context.Context, key string) (Chat, bool, error) {
	c, err := s.chatByPairKey(ctx, key)
	if err != nil {
		return Chat{}, false, err
	}
	return c, false, nil
}

// CreatePrivateChat creates a two-member chat, failing ErrAlreadyExists when
// the unordered pair already has one.
func (s *PostgresStore) CreatePrivateChat(ctx context.Context, now time.Time, userA, userB string) (Chat, error) {
	if s == nil || s.pool == nil {
		return Chat{}, fmt.Errorf("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Chat{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	chats := pgIdent(s.schema, "chats")

	chatID, err := ids.NewULID(now)
	if err != nil {
		return Chat{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Chat{}, storage.Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+chats+` (id, kind, display_name, pair_key, created_at)
		 VALUES ($1, $2, NULL, $3, $4)`,
		chatID, string(KindPrivate), pairKey(userA, userB), now,
	)
	if err != nil {
		if _, dup := storage.IsUniqueViolation(err); dup {
			return Chat{}, ErrAlreadyExists
		}
		return Chat{}, storage.Wrap(err)
	}

	for _, member := range []string{userA, userB} {
		if err := addMember(ctx, tx, s.schema, chatID, member, now); err != nil {
			return Chat{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Chat{}, storage.Wrap(err)
	}

	return Chat{ID: chatID, Kind: KindPrivate, CreatedAt: now}, nil
}

// IsMember reports whether userID belongs to chatID.
func (s *PostgresStore) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	members := pgIdent(s.schema, "chat_members")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storage.Wrap(err)
	}
	return true, nil
}

// InsertMessage checks membership and inserts in one transaction.
func (s *PostgresStore) InsertMessage(ctx context.Context, now time.Time, chatID, senderID, text string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, fmt.Errorf("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	members := pgIdent(s.schema, "chat_members")
	messages := pgIdent(s.schema, "messages")

	msgID, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, storage.Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE chat_id = $1 AND user_id = $2`,
		chatID, senderID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, storage.Wrap(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+messages+` (id, chat_id, sender_id, text, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msgID, chatID, senderID, text, now,
	)
	if err != nil {
		return Message{}, storage.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, storage.Wrap(err)
	}

	return Message{ID: msgID, ChatID: chatID, SenderID: senderID, Text: text, CreatedAt: now}, nil
}

// ListMessages returns messages ordered by created_at ASC, id ASC.
func (s *PostgresStore) ListMessages(ctx context.Context, chatID string, page Page) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page = page.clamp()

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, sender_id, text, created_at
		   FROM `+messages+`
		  WHERE chat_id = $1
		  ORDER BY created_at ASC, id ASC
		  LIMIT $2 OFFSET $3`,
		chatID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, storage.Wrap(err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.CreatedAt); err != nil {
			return nil, storage.Wrap(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(err)
	}
	return out, nil
}

// ListChats returns the chats userID belongs to, ordered by chat id.
func (s *PostgresStore) ListChats(ctx context.Context, userID string, page Page) ([]Chat, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page = page.clamp()

	chats := pgIdent(s.schema, "chats")
	members := pgIdent(s.schema, "chat_members")

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.kind, c.display_name, c.created_at
		   FROM `+members+` m
		   JOIN `+chats+` c ON c.id = m.chat_id
		  WHERE m.user_id = $1
		  ORDER BY c.id
		  LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, storage.Wrap(err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.DisplayName, &c.CreatedAt); err != nil {
			return nil, storage.Wrap(err)
		}
		c.Kind = Kind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(err)
	}
	return out, nil
}

func (s *PostgresStore) chatByPairKey(ctx context.Context, key string) (Chat, error) {
	chats := pgIdent(s.schema, "chats")

	var (
		c    Chat
		kind string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, display_name, created_at FROM `+chats+` WHERE pair_key = $1`,
		key,
	).Scan(&c.ID, &kind, &c.DisplayName, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, storage.Wrap(err)
	}
	c.Kind = Kind(kind)
	return c, nil
}

func addMember(ctx context.Context, tx pgx.Tx, schema, chatID, userID string, now time.Time) error {
	members := pgIdent(schema, "chat_members")

	_, err := tx.Exec(ctx,
		`INSERT INTO `+members+` (chat_id, user_id, role, joined_at)
		 VALUES ($1, $2, 'member', $3)`,
		chatID, userID, now,
	)
	if err != nil {
		if storage.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown user", ErrInvalidParticipants)
		}
		return storage.Wrap(err)
	}
	return nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
