package adapter

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// openaiAdapter implements Generator for OpenAI.
type openaiAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI adapter. If apiKey is empty, OPENAI_API_KEY is used.
func NewOpenAI(apiKey, model string) Generator {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return newOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

func newOpenAIWithConfig(cfg openai.ClientConfig, model string) *openaiAdapter {
	return &openaiAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  pick(model, defaultOpenAIModel),
	}
}

func (o *openaiAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             o.model,
		Provider:         ProviderOpenAI,
		MaxContextWindow: 128000,
	}
}

func (o *openaiAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	model := pick(req.Model, o.model)

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokensOr(req.MaxTokens, 4096),
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return Response{}, openaiError(err)
	}

	out := Response{Model: pick(resp.Model, model)}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		out.Usage = &Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	return out, nil
}

func openaiError(err error) error {
	e := &Error{Provider: ProviderOpenAI, Err: err}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e.StatusCode = apiErr.HTTPStatusCode
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e.StatusCode = reqErr.HTTPStatusCode
	}
	return e
}
