package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBaseURLForProvider(t *testing.T) {
	tests := []struct {
		provider string
		override string
		want     string
		wantErr  bool
	}{
		{provider: "groq", want: "https://api.groq.com/openai"},
		{provider: "together", want: "https://api.together.xyz"},
		{provider: "openai", want: "https://api.openai.com"},
		{provider: "groq", override: "http://localhost:9090/", want: "http://localhost:9090"},
		{provider: "custom", override: "http://llm.internal", want: "http://llm.internal"},
		{provider: "custom", wantErr: true},
		{provider: "bard", wantErr: true},
	}
	for _, tc := range tests {
		got, err := BaseURLForProvider(tc.provider, tc.override)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("BaseURLForProvider(%q, %q) expected error", tc.provider, tc.override)
			}
			continue
		}
		if err != nil {
			t.Fatalf("BaseURLForProvider(%q, %q) error = %v", tc.provider, tc.override, err)
		}
		if got != tc.want {
			t.Fatalf("BaseURLForProvider(%q, %q) = %q, want %q", tc.provider, tc.override, got, tc.want)
		}
	}
}

func TestChatClientCompleteSendsMessages(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "SELECT 1"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewChatClient(ChatClientConfig{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewChatClient() error = %v", err)
	}

	completion, err := client.Complete(context.Background(), Request{
		System:      "you write SQL",
		User:        "count the users",
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completion.Content != "SELECT 1" {
		t.Fatalf("Content = %q", completion.Content)
	}
	if completion.Model != "test-model" {
		t.Fatalf("Model = %q", completion.Model)
	}

	if captured["model"] != "test-model" {
		t.Fatalf("payload model = %v", captured["model"])
	}
	messages, ok := captured["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %#v", captured["messages"])
	}
	first := messages[0].(map[string]any)
	if first["role"] != "system" {
		t.Fatalf("first message role = %v", first["role"])
	}
	if captured["max_tokens"] != float64(500) {
		t.Fatalf("max_tokens = %v", captured["max_tokens"])
	}
}

func TestChatClientCompleteRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewChatClient(ChatClientConfig{BaseURL: server.URL, APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewChatClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), Request{User: "hi"}); err == nil {
		t.Fatal("expected error for 429 response")
	} else if !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("error = %v", err)
	}
}

func TestChatClientCompleteRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client, err := NewChatClient(ChatClientConfig{BaseURL: server.URL, APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewChatClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), Request{User: "hi"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewChatClientValidatesConfig(t *testing.T) {
	if _, err := NewChatClient(ChatClientConfig{APIKey: "k", Model: "m"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewChatClient(ChatClientConfig{BaseURL: "http://x", Model: "m"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := NewChatClient(ChatClientConfig{BaseURL: "http://x", APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing model")
	}
}
