// Package context renders memories into token-budgeted prompt text: the
// working-memory context the waking side reads and the record listing a
// dream cycle sends to the generator.
package context

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter counts and truncates text in tokens.
type Counter interface {
	Count(s string) int
	Truncate(s string, maxTokens int) string
}

// Tokenizer wraps tiktoken for approximate token counting.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer creates a Tokenizer using the cl100k_base encoding
// (used by GPT-4; a close approximation for the other providers).
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding: %w", err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the approximate number of tokens in s.
func (t *Tokenizer) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}

// Truncate truncates s to at most maxTokens tokens, returning the result.
func (t *Tokenizer) Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := t.enc.Encode(s, nil, nil)
	if len(tokens) <= maxTokens {
		return s
	}
	return t.enc.Decode(tokens[:maxTokens])
}

// DefaultCharsPerToken is the estimate used when no encoding is available.
const DefaultCharsPerToken = 4

// EstimateCounter approximates tokens as runes / CharsPerToken. It needs no
// encoding download.
type EstimateCounter struct {
	CharsPerToken int
}

func (e EstimateCounter) ratio() int {
	if e.CharsPerToken <= 0 {
		return DefaultCharsPerToken
	}
	return e.CharsPerToken
}

// Count rounds up, so any non-empty string is at least one token.
func (e EstimateCounter) Count(s string) int {
	n := len([]rune(s))
	r := e.ratio()
	return (n + r - 1) / r
}

// Truncate keeps the first maxTokens*CharsPerToken runes.
func (e EstimateCounter) Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(s)
	limit := maxTokens * e.ratio()
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// NewCounter returns the tiktoken counter, or an EstimateCounter when the
// encoding cannot be loaded (for example offline on first run). The error
// explains the fallback and may be logged; the returned Counter is always
// usable.
func NewCounter() (Counter, error) {
	tok, err := NewTokenizer()
	if err != nil {
		return EstimateCounter{}, err
	}
	return tok, nil
}
