// Package llm abstracts chat and embedding providers behind a single
// interface. All supported backends speak the OpenAI-compatible HTTP API.
package llm

import (
	"context"
	"fmt"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatRequest is a request to the chat completion endpoint.
type ChatRequest struct {
	Model          string
	Messages       []Message
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "json_object" to request strict JSON
}

// ChatResponse is the model's reply plus token accounting.
type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider is a chat and embedding backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // ollama, lmstudio, openai, custom
	Model    string
	BaseURL  string
	APIKey   string
}

// New creates a provider from config. Local providers get default base
// URLs when none is set.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
	case "lmstudio":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:1234"
		}
	case "openai":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com"
		}
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm: custom provider requires base_url")
		}
	case "":
		return nil, fmt.Errorf("llm: provider not set")
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return newOpenAICompat(cfg), nil
}
