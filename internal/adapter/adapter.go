// Package adapter provides a unified, non-streaming interface to the LLM
// providers a dream cycle can call.
package adapter

import (
	"context"
	"fmt"
)

// Provider name constants.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultOllamaHost is used when no host is configured.
const DefaultOllamaHost = "http://localhost:11434"

// Request holds the parameters for one generation call.
type Request struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Usage is the token report returned by a provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the result of one generation call. Usage is nil when the
// provider did not report it.
type Response struct {
	Text  string
	Model string
	Usage *Usage
}

// ModelInfo describes the default model of an adapter.
type ModelInfo struct {
	Name             string
	Provider         string
	MaxContextWindow int
}

// Generator is the common interface all provider adapters implement.
type Generator interface {
	// Generate sends one prompt and waits for the full response.
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns metadata about the adapter/model.
	Info() ModelInfo
}

// New constructs the Generator for the named provider.
//
//   - provider: "claude", "openai", "gemini", "ollama"
//   - model: default model name; empty selects the adapter's own default
//   - apiKey: provider API key (empty = read from env in the concrete adapter)
//   - ollamaHost: base URL for the Ollama server (used only when provider == "ollama")
func New(provider, model, apiKey, ollamaHost string) (Generator, error) {
	switch provider {
	case ProviderClaude:
		return NewClaude(apiKey, model), nil
	case ProviderOpenAI:
		return NewOpenAI(apiKey, model), nil
	case ProviderGemini:
		return NewGemini(apiKey, model), nil
	case ProviderOllama:
		host := ollamaHost
		if host == "" {
			host = DefaultOllamaHost
		}
		return NewOllama(host, model), nil
	default:
		return nil, fmt.Errorf("adapter: unknown provider %q; valid providers: claude, openai, gemini, ollama", provider)
	}
}

func pick(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func maxTokensOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
