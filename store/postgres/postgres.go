// Package postgres implements a durable ConversationStore using
// PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigil-agent/vigil"
)

// Store persists conversations in a PostgreSQL table, one row per chat
// with the conversation serialized as JSONB.
type Store struct {
	pool *pgxpool.Pool
}

var _ vigil.ConversationStore = (*Store)(nil)

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the conversations table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS conversations (
		chat_id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, chatID string) (*vigil.Conversation, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM conversations WHERE chat_id = $1`, chatID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load conversation: %w", err)
	}
	var conv vigil.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("postgres: decode conversation %s: %w", chatID, err)
	}
	return &conv, nil
}

func (s *Store) Save(ctx context.Context, conv *vigil.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("postgres: encode conversation %s: %w", conv.ChatID, err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO conversations (chat_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chat_id) DO UPDATE SET data = excluded.data, updated_at = now()`,
		conv.ChatID, data)
	if err != nil {
		return fmt.Errorf("postgres: save conversation %s: %w", conv.ChatID, err)
	}
	return nil
}
