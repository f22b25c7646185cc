// Package llm provides HTTP clients for chat-completion APIs used by
// the rewrite filter.
package llm

import (
	"context"
	"net/http"

	"go.aimuz.me/murmur/internal/types"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures completion behavior.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, types.Usage, error)
}

// completerConfig holds all parameters needed by completers.
type completerConfig struct {
	http        *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
}

// NewCompleter creates a Completer for the given credential type.
func NewCompleter(cred types.APICredential, model string, opts Options) Completer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = types.DefaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = types.DefaultTemperature
	}
	cfg := completerConfig{
		http:        &http.Client{},
		apiKey:      cred.APIKey,
		baseURL:     cred.BaseURL,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}

	switch cred.Type {
	case "gemini":
		return &geminiCompleter{cfg: cfg}
	case "claude":
		return &claudeCompleter{cfg: cfg}
	case "openai", "openai-compatible":
		return &openaiCompleter{cfg: cfg, isCompatible: cred.Type == "openai-compatible"}
	default:
		// Default to OpenAI format
		return &openaiCompleter{cfg: cfg}
	}
}
