// Package chat holds conversations and their messages so follow-up
// questions can reference earlier answers.
package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

type Conversation struct {
	ID        string    `json:"conversation_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SQL            string    `json:"sql,omitempty"`
	RowCount       int       `json:"row_count,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Store interface {
	HealthCheck(ctx context.Context) error
	CreateConversation(ctx context.Context, title string) (Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	AppendMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// NewID returns a random 128-bit hex identifier.
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// RenderContext formats the most recent messages into the plain
// transcript the prompts embed.
func RenderContext(messages []Message, limit int) string {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := "User"
		if msg.Role == RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// TitleFromQuestion derives a conversation title from its first question.
func TitleFromQuestion(question string) string {
	trimmed := strings.Join(strings.Fields(question), " ")
	if trimmed == "" {
		return "New conversation"
	}
	const maxTitle = 80
	if len(trimmed) > maxTitle {
		return trimmed[:maxTitle-3] + "..."
	}
	return trimmed
}
