package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kishlaychandan/feedback-backend/internal/llm"
)

func TestOllamaClient_Available(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		want           bool
		wantErr        bool
	}{
		{
			name:           "server available",
			serverResponse: http.StatusOK,
			want:           true,
		},
		{
			name:           "server unavailable",
			serverResponse: http.StatusServiceUnavailable,
			want:           false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/tags" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.serverResponse)
				json.NewEncoder(w).Encode(map[string]interface{}{"models": []interface{}{}})
			}))
			defer server.Close()

			client := llm.NewOllamaClient(server.URL, "test-model", 4096)

			got, err := client.Available(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Available() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOllamaClient_GenerateJSON(t *testing.T) {
	expected := `{"intent":"FEEDBACK","requiresAction":true,"action":{"deltaC":-2}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var req llm.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %v", req.Model)
		}
		if req.Format != "json" {
			t.Errorf("expected json format, got %q", req.Format)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		half := len(expected) / 2
		for i, token := range []string{expected[:half], expected[half:]} {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": map[string]string{"content": token},
				"done":    i == 1,
			})
		}
	}))
	defer server.Close()

	client := llm.NewOllamaClient(server.URL, "test-model", 4096)
	got, err := client.Generate(context.Background(), llm.Request{System: "classify", Prompt: "still hot", JSON: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != expected {
		t.Errorf("Generate() = %q, want %q", got, expected)
	}
}

func TestOllamaClient_GenerateJoinsStreamedTokens(t *testing.T) {
	expectedResponse := "Hello! I'm an AI assistant."

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		tokens := strings.Split(expectedResponse, " ")
		for i, token := range tokens {
			if i > 0 {
				token = " " + token
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": map[string]string{"content": token},
				"done":    i == len(tokens)-1,
			})
		}
	}))
	defer server.Close()

	client := llm.NewOllamaClient(server.URL, "test-model", 4096)
	response, err := client.Generate(context.Background(), llm.Request{Prompt: "Hello"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if response != expectedResponse {
		t.Errorf("Generate() = %q, want %q", response, expectedResponse)
	}
}

func TestOllamaClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   llm.Reason
	}{
		{http.StatusTooManyRequests, llm.ReasonRateLimit},
		{http.StatusInternalServerError, llm.ReasonError},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		client := llm.NewOllamaClient(server.URL, "test-model", 4096)
		_, err := client.Generate(context.Background(), llm.Request{Prompt: "hi"})
		server.Close()
		if err == nil {
			t.Fatalf("expected error for status %d", tt.status)
		}
		if got := llm.ReasonOf(err); got != tt.want {
			t.Errorf("status %d: reason = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestOllamaClient_Cancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := llm.NewOllamaClient(server.URL, "test-model", 4096)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Generate(ctx, llm.Request{Prompt: "Hi"}); err == nil {
		t.Error("expected error due to cancellation")
	}
}
