package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// streamFunc is called for each token of a streamed response.
type streamFunc func(token string, done bool)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	baseURL       string
	model         string
	contextLength int
	httpClient    *http.Client
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(baseURL, model string, contextLength int) *OllamaClient {
	return &OllamaClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		contextLength: contextLength,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// ChatRequest represents an Ollama chat request
type ChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// ChatResponse represents one NDJSON chunk of an Ollama chat response
type ChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
}

func (c *OllamaClient) Name() string { return "ollama:" + c.model }

// Generate sends a system+user exchange and returns the complete reply.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	var messages []Message
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})

	payload := ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Options: map[string]any{
			"num_ctx":     c.contextLength,
			"temperature": req.Temperature,
			"top_p":       req.TopP,
		},
	}
	if req.MaxTokens > 0 {
		payload.Options["num_predict"] = req.MaxTokens
	}
	if req.JSON {
		payload.Format = "json"
	}

	var sb strings.Builder
	err := c.stream(ctx, payload, func(token string, done bool) {
		sb.WriteString(token)
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (c *OllamaClient) stream(ctx context.Context, payload ChatRequest, cb streamFunc) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrap(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode == http.StatusTooManyRequests {
			return &Error{Reason: ReasonRateLimit, Err: err}
		}
		return &Error{Reason: ReasonError, Err: err}
	}

	scanner := bufio.NewScanner(resp.Body)
	// Increase scanner buffer for long responses
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		var chunk ChatResponse
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			continue
		}
		cb(chunk.Message.Content, chunk.Done)
		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Available checks if Ollama is reachable
func (c *OllamaClient) Available(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
