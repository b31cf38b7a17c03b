// Package redis keeps conversations in Redis lists for deployments that
// want shared but ephemeral chat history.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/querybuddy/querybuddy/internal/chat"
)

const (
	indexKey           = "querybuddy:conversations"
	conversationPrefix = "querybuddy:conversation:"
	messagesPrefix     = "querybuddy:messages:"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Store struct {
	client *redis.Client
}

func NewStore(cfg Config) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping().Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, title string) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:        chat.NewID(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(conv)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.client.Set(conversationPrefix+conv.ID, payload, 0).Err(); err != nil {
		return chat.Conversation{}, fmt.Errorf("store conversation: %w", err)
	}
	if err := s.client.LPush(indexKey, conv.ID).Err(); err != nil {
		return chat.Conversation{}, fmt.Errorf("index conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	payload, err := s.client.Get(conversationPrefix + conversationID).Result()
	if errors.Is(err, redis.Nil) {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	var conv chat.Conversation
	if err := json.Unmarshal([]byte(payload), &conv); err != nil {
		return chat.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	ids, err := s.client.LRange(indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversation ids: %w", err)
	}
	conversations := make([]chat.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.GetConversation(ctx, id)
		if errors.Is(err, chat.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	deleted, err := s.client.Del(conversationPrefix + conversationID).Result()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if deleted == 0 {
		return chat.ErrNotFound
	}
	if err := s.client.Del(messagesPrefix + conversationID).Err(); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := s.client.LRem(indexKey, 0, conversationID).Err(); err != nil {
		return fmt.Errorf("unindex conversation: %w", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if _, err := s.GetConversation(ctx, msg.ConversationID); err != nil {
		return chat.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = chat.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.RPush(messagesPrefix+msg.ConversationID, payload).Err(); err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.rangeMessages(conversationID, 0, -1)
}

func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	return s.rangeMessages(conversationID, start, -1)
}

func (s *Store) rangeMessages(conversationID string, start, stop int64) ([]chat.Message, error) {
	payloads, err := s.client.LRange(messagesPrefix+conversationID, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages := make([]chat.Message, 0, len(payloads))
	for _, payload := range payloads {
		var msg chat.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
