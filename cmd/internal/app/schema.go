package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema creates the coterie schema and tables when they do not exist.
// It is meant for dev and test environments; production schema management
// belongs to migrations.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS coterie`,

		`CREATE TABLE IF NOT EXISTS coterie.users (
		     id           VARCHAR(26) PRIMARY KEY,
		     handle       VARCHAR(30) NOT NULL UNIQUE,
		     display_name VARCHAR(30) NOT NULL,
		     invited_by   VARCHAR(26) REFERENCES coterie.users(id) ON DELETE SET NULL,
		     created_at   TIMESTAMPTZ NOT NULL
		 )`,

		`CREATE TABLE IF NOT EXISTS coterie.user_credentials (
		     user_id       VARCHAR(26) PRIMARY KEY REFERENCES coterie.users(id) ON DELETE CASCADE,
		     password_hash TEXT NOT NULL,
		     created_at    TIMESTAMPTZ NOT NULL,
		     updated_at    TIMESTAMPTZ NOT NULL
		 )`,

		`CREATE TABLE IF NOT EXISTS coterie.sessions (
		     id           UUID PRIMARY KEY,
		     user_id      VARCHAR(26) NOT NULL REFERENCES coterie.users(id) ON DELETE CASCADE,
		     secret_hash  CHAR(64) NOT NULL,
		     created_at   TIMESTAMPTZ NOT NULL,
		     last_used_at TIMESTAMPTZ NOT NULL,
		     expires_at   TIMESTAMPTZ NOT NULL
		 )`,
		`CREATE INDEX IF NOT EXISTS sessions_user_recency_idx
		     ON coterie.sessions (user_id, last_used_at DESC, created_at DESC, id DESC)`,

		`CREATE TABLE IF NOT EXISTS coterie.chats (
		     id           VARCHAR(26) PRIMARY KEY,
		     kind         TEXT NOT NULL CHECK (kind IN ('with_self', 'private', 'group', 'channel')),
		     display_name TEXT,
		     pair_key     TEXT UNIQUE,
		     created_at   TIMESTAMPTZ NOT NULL
		 )`,

		`CREATE TABLE IF NOT EXISTS coterie.chat_members (
		     chat_id   VARCHAR(26) NOT NULL REFERENCES coterie.chats(id) ON DELETE CASCADE,
		     user_id   VARCHAR(26) NOT NULL REFERENCES coterie.users(id) ON DELETE CASCADE,
		     role      TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('owner', 'moderator', 'member')),
		     joined_at TIMESTAMPTZ NOT NULL,
		     PRIMARY KEY (chat_id, user_id)
		 )`,

		`CREATE TABLE IF NOT EXISTS coterie.messages (
		     id         VARCHAR(26) PRIMARY KEY,
		     chat_id    VARCHAR(26) NOT NULL REFERENCES coterie.chats(id) ON DELETE CASCADE,
		     sender_id  VARCHAR(26) NOT NULL REFERENCES coterie.users(id),
		     text       VARCHAR(4096) NOT NULL,
		     created_at TIMESTAMPTZ NOT NULL
		 )`,
		`CREATE INDEX IF NOT EXISTS messages_chat_order_idx
		     ON coterie.messages (chat_id, created_at ASC, id ASC)`,

		`CREATE TABLE IF NOT EXISTS coterie.invites (
		     id          VARCHAR(26) PRIMARY KEY,
		     code_hash   CHAR(64) NOT NULL UNIQUE,
		     created_by  VARCHAR(26) REFERENCES coterie.users(id) ON DELETE SET NULL,
		     created_at  TIMESTAMPTZ NOT NULL,
		     expires_at  TIMESTAMPTZ NOT NULL,
		     max_uses    INTEGER NOT NULL,
		     used_count  INTEGER NOT NULL DEFAULT 0,
		     revoked_at  TIMESTAMPTZ,
		     note        VARCHAR(512),
		     consumed_at TIMESTAMPTZ,
		     consumed_by TEXT
		 )`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
