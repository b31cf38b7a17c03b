// Package llm talks to OpenAI-compatible chat-completion APIs. Groq,
// Together AI and OpenAI all expose the same wire format, so a single
// client covers every supported provider.
package llm

import "context"

type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

type Completion struct {
	Content string
	Model   string
}

type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
	Model() string
}
