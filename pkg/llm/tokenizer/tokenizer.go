// Package tokenizer provides client-side token counting so prompts can be
// budgeted against a model's context window before a request is sent.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// fallbackBytesPerToken approximates English text when the encoding is
// unavailable (for example, offline first run before the BPE files cache).
const fallbackBytesPerToken = 4

// Tokenizer counts and truncates text in model tokens.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New creates a tokenizer using the cl100k_base encoding, which matches the
// GPT-4 family this tool targets by default. If the encoding cannot be
// initialized the tokenizer still works using a byte-length heuristic, and
// the error is returned so callers can log it.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Tokenizer{}, err
	}
	return &Tokenizer{encoding: enc}, nil
}

// ForModel creates a tokenizer with the encoding registered for the given
// model name, falling back to cl100k_base for unknown models.
func ForModel(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New()
	}
	return &Tokenizer{encoding: enc}, nil
}

// CountTokens returns the token count of text. Never fails; uses the
// heuristic when no encoding is loaded.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.encoding == nil {
		return (len(text) + fallbackBytesPerToken - 1) / fallbackBytesPerToken
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Truncate returns text cut down to at most maxTokens tokens. Returns text
// unchanged when it already fits or when maxTokens is not positive.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	if t == nil || t.encoding == nil {
		limit := maxTokens * fallbackBytesPerToken
		if len(text) <= limit {
			return text
		}
		return text[:limit]
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.encoding.Decode(tokens[:maxTokens])
}
