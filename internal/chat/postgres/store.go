// Package postgres persists conversations in PostgreSQL for the prod
// profile.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/querybuddy/querybuddy/internal/chat"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("chat store dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open chat db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping chat db: %w", err)
	}

	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping chat db: %w", err)
	}
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, title string) (chat.Conversation, error) {
	conv := chat.Conversation{ID: chat.NewID(), Title: title}

	query := `
INSERT INTO conversation (conversation_id, title)
VALUES ($1, $2)
RETURNING created_at`
	if err := s.db.QueryRowContext(ctx, query, conv.ID, conv.Title).Scan(&conv.CreatedAt); err != nil {
		return chat.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	query := `
SELECT conversation_id, title, created_at
FROM conversation
WHERE conversation_id = $1`

	var conv chat.Conversation
	if err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Conversation{}, chat.ErrNotFound
		}
		return chat.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT conversation_id, title, created_at
FROM conversation
ORDER BY created_at DESC, conversation_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conversations := make([]chat.Conversation, 0)
	for rows.Next() {
		var conv chat.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return conversations, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversation WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation rows affected: %w", err)
	}
	if affected == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if msg.ID == "" {
		msg.ID = chat.NewID()
	}

	query := `
INSERT INTO message (message_id, conversation_id, role, content, sql_text, row_count)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.SQL, msg.RowCount,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT message_id, conversation_id, role, content, sql_text, row_count, created_at
FROM message
WHERE conversation_id = $1
ORDER BY created_at ASC, message_id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.SQL, &msg.RowCount, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return s.ListMessages(ctx, conversationID)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT message_id, conversation_id, role, content, sql_text, row_count, created_at
FROM (
	SELECT message_id, conversation_id, role, content, sql_text, row_count, created_at
	FROM message
	WHERE conversation_id = $1
	ORDER BY created_at DESC, message_id DESC
	LIMIT $2
) AS recent
ORDER BY created_at ASC, message_id ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]chat.Message, 0, limit)
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.SQL, &msg.RowCount, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}
