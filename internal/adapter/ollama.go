package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOllamaModel = "llama3.2"

// ollamaAdapter implements Generator for a local Ollama instance.
type ollamaAdapter struct {
	host   string
	model  string
	client *http.Client
}

// NewOllama creates an Ollama adapter.
func NewOllama(host, model string) Generator {
	return &ollamaAdapter{
		host:   strings.TrimRight(host, "/"),
		model:  pick(model, defaultOllamaModel),
		client: &http.Client{},
	}
}

func (o *ollamaAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             o.model,
		Provider:         ProviderOllama,
		MaxContextWindow: 32768,
	}
}

// ollamaChatRequest is the request body for the Ollama chat API.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse is the single non-streamed response.
type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
	Error           string            `json:"error,omitempty"`
}

func (o *ollamaAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	model := pick(req.Model, o.model)

	messages := []ollamaChatMessage{}
	if req.System != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: req.Prompt})

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	body, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return Response{}, fmt.Errorf("ollama generate marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("ollama generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Provider: ProviderOllama, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &Error{Provider: ProviderOllama, StatusCode: resp.StatusCode, Err: err}
	}

	var result ollamaChatResponse
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && result.Error != "" {
			msg = result.Error
		}
		return Response{}, &Error{Provider: ProviderOllama, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return Response{}, fmt.Errorf("ollama generate decode: %w", decodeErr)
	}

	out := Response{Text: result.Message.Content, Model: pick(result.Model, model)}
	if result.PromptEvalCount > 0 || result.EvalCount > 0 {
		out.Usage = &Usage{InputTokens: result.PromptEvalCount, OutputTokens: result.EvalCount}
	}
	return out, nil
}
