package llm

import "context"

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	JSON        bool
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Backend is a generative language model transport.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}
