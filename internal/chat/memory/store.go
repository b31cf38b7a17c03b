// Package memory provides the in-process chat store used by the dev and
// test profiles.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/querybuddy/querybuddy/internal/chat"
)

type Store struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateConversation(ctx context.Context, title string) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:        chat.NewID(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	s.mu.RLock()
	conversations := make([]chat.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		conversations = append(conversations, conv)
	}
	s.mu.RUnlock()
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].ID < conversations[j].ID
		}
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})
	return conversations, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return chat.ErrNotFound
	}
	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = chat.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, chat.ErrNotFound
	}
	stored := s.messages[conversationID]
	messages := make([]chat.Message, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	messages, err := s.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
