package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
)

// geminiAdapter implements Generator for Google Gemini via the REST API.
type geminiAdapter struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGemini creates a Gemini adapter. If apiKey is empty, GEMINI_API_KEY is used.
func NewGemini(apiKey, model string) Generator {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return &geminiAdapter{
		apiKey:  apiKey,
		model:   pick(model, defaultGeminiModel),
		baseURL: defaultGeminiBaseURL,
		client:  &http.Client{},
	}
}

func (g *geminiAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             g.model,
		Provider:         ProviderGemini,
		MaxContextWindow: 1000000,
	}
}

// geminiGenerateRequest is the request body for the Gemini generateContent API.
type geminiGenerateRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// geminiGenerateResponse is the response from the Gemini generateContent API.
type geminiGenerateResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
	Error         *geminiError         `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *geminiAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	model := pick(req.Model, g.model)

	body := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(g.baseURL, "/"), url.PathEscape(model), url.QueryEscape(g.apiKey))

	out, err := g.doGenerate(ctx, endpoint, payload)
	if err != nil {
		return Response{}, err
	}
	out.Model = pick(out.Model, model)
	return out, nil
}

// doGenerate posts payload to endpoint and decodes a single response.
func (g *geminiAdapter) doGenerate(ctx context.Context, endpoint string, payload []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Provider: ProviderGemini, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &Error{Provider: ProviderGemini, StatusCode: resp.StatusCode, Err: err}
	}

	var result geminiGenerateResponse
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && result.Error != nil {
			msg = result.Error.Message
		}
		return Response{}, &Error{Provider: ProviderGemini, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return Response{}, fmt.Errorf("gemini generate decode: %w", decodeErr)
	}

	var out Response
	out.Model = result.ModelVersion
	if len(result.Candidates) > 0 {
		var text strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		out.Text = text.String()
	}
	if u := result.UsageMetadata; u != nil {
		out.Usage = &Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount}
	}
	return out, nil
}
