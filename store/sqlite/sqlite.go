// Package sqlite implements a durable ConversationStore using pure-Go
// SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vigil-agent/vigil"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. If not set, no
// logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store persists conversations in a local SQLite file, one row per chat
// with the conversation serialized as JSON.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ vigil.ConversationStore = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// A single shared connection serializes all access, eliminating
// SQLITE_BUSY errors from concurrent writers.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the conversations table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS conversations (
		chat_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, chatID string) (*vigil.Conversation, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM conversations WHERE chat_id = ?`, chatID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load conversation: %w", err)
	}
	var conv vigil.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, fmt.Errorf("sqlite: decode conversation %s: %w", chatID, err)
	}
	return &conv, nil
}

func (s *Store) Save(ctx context.Context, conv *vigil.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("sqlite: encode conversation %s: %w", conv.ChatID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO conversations (chat_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		conv.ChatID, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: save conversation %s: %w", conv.ChatID, err)
	}
	s.logger.Debug("sqlite: conversation saved", "chat_id", conv.ChatID)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
