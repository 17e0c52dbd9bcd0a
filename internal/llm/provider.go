// Package llm provides the chat-completion provider used by the AI gateway.
package llm

import (
	"context"
	"time"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Chat sends a message and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model to use. Empty uses the provider default.
	Model string `json:"model"`

	// SystemPrompt sets the AI's behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages in the conversation, oldest first.
	Messages []Message `json:"messages"`

	// MaxTokens limits response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Always sent.
	Temperature float64 `json:"temperature"`

	// JSONMode asks the model for a single JSON object.
	JSONMode bool `json:"json_mode,omitempty"`

	// APIKey authenticates this request. Never serialized.
	APIKey string `json:"-"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse contains the LLM's response.
type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishReason     string        `json:"finish_reason,omitempty"`
}

// ProviderConfig contains configuration for an LLM provider.
type ProviderConfig struct {
	// Name identifies the provider.
	Name string

	// Endpoint is the API base URL.
	Endpoint string

	// Model is the default model to use.
	Model string

	// MaxTokens default for responses.
	MaxTokens int

	// Temperature default.
	Temperature float64

	// Timeout for a single API call.
	Timeout time.Duration
}

// DefaultConfig returns defaults for a provider.
func DefaultConfig(name string) *ProviderConfig {
	switch name {
	case "openai":
		return &ProviderConfig{
			Name:        "openai",
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   1000,
			Temperature: 0.6,
			Timeout:     30 * time.Second,
		}
	default:
		return &ProviderConfig{
			Name:        name,
			MaxTokens:   1000,
			Temperature: 0.6,
			Timeout:     30 * time.Second,
		}
	}
}

// applyDefaults fills zero fields of cfg from DefaultConfig(name).
func applyDefaults(cfg *ProviderConfig, name string) *ProviderConfig {
	def := DefaultConfig(name)
	if cfg == nil {
		return def
	}
	out := *cfg
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.Endpoint == "" {
		out.Endpoint = def.Endpoint
	}
	if out.Model == "" {
		out.Model = def.Model
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = def.MaxTokens
	}
	if out.Timeout == 0 {
		out.Timeout = def.Timeout
	}
	return &out
}
