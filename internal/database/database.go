package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return pool, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		subject TEXT UNIQUE NOT NULL,
		username TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL,
		email TEXT UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS privacy_settings (
		user_id UUID PRIMARY KEY REFERENCES users(id),
		read_receipts BOOLEAN NOT NULL DEFAULT TRUE,
		last_seen_visibility TEXT NOT NULL DEFAULT 'everyone',
		who_can_message TEXT NOT NULL DEFAULT 'everyone',
		e2ee_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blocks (
		blocker_id UUID NOT NULL REFERENCES users(id),
		blocked_id UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (blocker_id, blocked_id)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		is_group BOOLEAN NOT NULL,
		name TEXT,
		creator_id UUID NOT NULL REFERENCES users(id),
		last_message_text TEXT,
		last_message_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memberships (
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		user_id UUID NOT NULL REFERENCES users(id),
		role TEXT NOT NULL DEFAULT 'member',
		joined_at TIMESTAMPTZ NOT NULL,
		last_read_at TIMESTAMPTZ,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		sender_id UUID NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		media_kind TEXT,
		media_ref TEXT,
		reply_to_id UUID REFERENCES messages(id),
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS message_edits (
		id UUID PRIMARY KEY,
		message_id UUID NOT NULL REFERENCES messages(id),
		editor_id UUID NOT NULL REFERENCES users(id),
		previous_body TEXT NOT NULL,
		edited_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS message_reactions (
		message_id UUID NOT NULL REFERENCES messages(id),
		user_id UUID NOT NULL REFERENCES users(id),
		emoji TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, user_id, emoji)
	);

	CREATE TABLE IF NOT EXISTS message_stars (
		message_id UUID NOT NULL REFERENCES messages(id),
		user_id UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_message_edits_message ON message_edits(message_id, edited_at);
	CREATE INDEX IF NOT EXISTS idx_blocks_blocked ON blocks(blocked_id);
	CREATE INDEX IF NOT EXISTS idx_message_stars_user ON message_stars(user_id, created_at DESC);
	`

	_, err := pool.Exec(ctx, schema)
	return err
}
