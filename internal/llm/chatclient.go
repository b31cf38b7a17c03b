package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/querybuddy/querybuddy/internal/observability"
)

const (
	groqBaseURL     = "https://api.groq.com/openai"
	togetherBaseURL = "https://api.together.xyz"
	openaiBaseURL   = "https://api.openai.com"
)

// BaseURLForProvider resolves the provider name to its API endpoint.
// An explicit override wins; the "custom" provider requires one.
func BaseURLForProvider(provider, override string) (string, error) {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return strings.TrimRight(trimmed, "/"), nil
	}
	switch provider {
	case "groq":
		return groqBaseURL, nil
	case "together":
		return togetherBaseURL, nil
	case "openai":
		return openaiBaseURL, nil
	case "custom":
		return "", fmt.Errorf("provider %q requires an explicit base URL", provider)
	default:
		return "", fmt.Errorf("unknown llm provider: %q", provider)
	}
}

type ChatClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ChatClient is a Client backed by a /v1/chat/completions endpoint.
type ChatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewChatClient(cfg ChatClientConfig) (*ChatClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *ChatClient) Model() string {
	return c.model
}

func (c *ChatClient) Complete(ctx context.Context, req Request) (Completion, error) {
	start := time.Now()
	completion, err := c.complete(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveLLMRequest(c.model, outcome, time.Since(start))
	return completion, err
}

func (c *ChatClient) complete(ctx context.Context, req Request) (Completion, error) {
	if strings.TrimSpace(req.User) == "" {
		return Completion{}, fmt.Errorf("user prompt is required")
	}

	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.User})

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": req.Temperature,
		"stream":      false,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Completion{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Completion{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, fmt.Errorf("empty chat completion choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return Completion{}, fmt.Errorf("model returned empty content")
	}
	return Completion{Content: content, Model: c.model}, nil
}
