// Package openai implements the llm.Provider interface for OpenAI-compatible
// chat completion APIs, including OpenRouter and local inference servers that
// speak the same protocol.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/entrhq/patrol/pkg/llm"
)

const (
	// DefaultBaseURL is the standard OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"

	defaultRequestTimeout = 120 * time.Second
)

// Provider talks to an OpenAI-compatible chat completions endpoint.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	modelInfo  *llm.ModelInfo
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model used for completions.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the provider at a custom OpenAI-compatible endpoint
// (OpenRouter, Azure, a local server, ...).
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithMaxTokens caps the completion size requested from the model.
func WithMaxTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// NewProvider creates a provider with the given API key. An empty key falls
// back to OPENAI_API_KEY; an unset base URL falls back to OPENAI_BASE_URL and
// then the public endpoint.
func NewProvider(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required (pass one or set OPENAI_API_KEY)")
	}

	p := &Provider{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if env := os.Getenv("OPENAI_BASE_URL"); env != "" {
			p.baseURL = strings.TrimRight(env, "/")
		}
	}

	p.modelInfo = &llm.ModelInfo{
		Provider: "openai",
		Name:     p.model,
		Metadata: map[string]any{},
	}
	if p.baseURL != DefaultBaseURL {
		p.modelInfo.Metadata["base_url"] = p.baseURL
	}

	return p, nil
}

// CloneWithModel returns a shallow copy of p directed at a different model.
// The clone shares the HTTP client, API key, and base URL. Implements
// llm.ModelCloner.
func (p *Provider) CloneWithModel(model string) llm.Provider {
	clone := *p
	clone.model = model
	if p.modelInfo != nil {
		mi := *p.modelInfo
		mi.Name = model
		clone.modelInfo = &mi
	}
	return &clone
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the conversation and returns the assistant's full reply.
func (p *Provider) Complete(ctx context.Context, messages []*llm.Message) (*llm.Message, error) {
	body := map[string]any{
		"model":    p.model,
		"messages": convertMessages(messages),
	}
	if p.maxTokens > 0 {
		body["max_tokens"] = p.maxTokens
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode completion response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("completion request returned %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("completion request returned %d: %s", resp.StatusCode, truncateForError(raw))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("completion response contained no choices")
	}

	msg := parsed.Choices[0].Message
	role := llm.RoleAssistant
	if msg.Role != "" {
		role = llm.Role(msg.Role)
	}
	return &llm.Message{Role: role, Content: msg.Content}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// ModelInfo returns metadata about the configured model.
func (p *Provider) ModelInfo() *llm.ModelInfo { return p.modelInfo }

// BaseURL returns the endpoint requests are sent to.
func (p *Provider) BaseURL() string { return p.baseURL }

// convertMessages maps our message type onto the openai-go union params so
// the request body matches the wire format exactly.
func convertMessages(messages []*llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func truncateForError(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
