package adapter

import (
	"context"
	"errors"
	"os"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const defaultClaudeModel = "claude-sonnet-4-6"

// claudeAdapter implements Generator for Anthropic Claude.
type claudeAdapter struct {
	client *anthropic.Client
	model  string
}

// NewClaude creates a Claude adapter. If apiKey is empty, ANTHROPIC_API_KEY is used.
func NewClaude(apiKey, model string) Generator {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &claudeAdapter{
		client: anthropic.NewClient(apiKey),
		model:  pick(model, defaultClaudeModel),
	}
}

func (c *claudeAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             c.model,
		Provider:         ProviderClaude,
		MaxContextWindow: 200000,
	}
}

func (c *claudeAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	model := pick(req.Model, c.model)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
			},
		},
		MaxTokens: maxTokensOr(req.MaxTokens, 4096),
		System:    req.System,
	})
	if err != nil {
		return Response{}, claudeError(err)
	}

	out := Response{Model: model}
	if len(resp.Content) > 0 {
		out.Text = resp.Content[0].GetText()
	}
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		out.Usage = &Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	}
	return out, nil
}

// claudeError maps SDK errors onto *Error with an HTTP-like status.
func claudeError(err error) error {
	e := &Error{Provider: ProviderClaude, Err: err}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		e.StatusCode = reqErr.StatusCode
		return e
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr():
			e.StatusCode = 429
		case apiErr.IsOverloadedErr():
			e.StatusCode = 529
		case apiErr.IsApiErr():
			e.StatusCode = 500
		default:
			e.StatusCode = 400
		}
	}
	return e
}
