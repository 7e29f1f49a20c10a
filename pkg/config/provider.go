package config

import (
	"fmt"
	"os"

	"github.com/entrhq/patrol/pkg/llm"
	"github.com/entrhq/patrol/pkg/llm/openai"
)

// Provider names accepted in llm.provider and --provider. All three speak
// the OpenAI wire protocol; they differ only in endpoint and credentials.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderLocal      = "local"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// KnownProvider reports whether name is a supported provider.
func KnownProvider(name string) bool {
	switch name {
	case ProviderOpenAI, ProviderOpenRouter, ProviderLocal:
		return true
	}
	return false
}

// Overrides carries per-invocation settings, typically CLI flags. Non-empty
// fields beat the loaded configuration.
type Overrides struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// BuildProvider constructs the LLM provider selected by cfg and ov. Flag
// values win over the config file, which already has environment overrides
// folded in by Load.
func BuildProvider(cfg Config, ov Overrides) (llm.Provider, error) {
	name := firstNonEmpty(ov.Provider, cfg.LLM.Provider, ProviderOpenAI)
	model := firstNonEmpty(ov.Model, cfg.LLM.Model)
	apiKey := firstNonEmpty(ov.APIKey, cfg.LLM.APIKey)
	baseURL := firstNonEmpty(ov.BaseURL, cfg.LLM.BaseURL)

	var opts []openai.Option
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if cfg.LLM.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxTokens(cfg.LLM.MaxTokens))
	}

	switch name {
	case ProviderOpenAI:
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.NewProvider(apiKey, opts...)

	case ProviderOpenRouter:
		if apiKey == "" {
			apiKey = os.Getenv("OPENROUTER_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s requires an API key (llm.api_key, --api-key, or OPENROUTER_API_KEY)", ProviderOpenRouter)
		}
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		opts = append(opts, openai.WithBaseURL(baseURL))
		return openai.NewProvider(apiKey, opts...)

	case ProviderLocal:
		if baseURL == "" {
			return nil, fmt.Errorf("provider %s requires a base URL (llm.base_url or --base-url)", ProviderLocal)
		}
		// Local inference servers usually ignore the key but the wire
		// protocol requires one.
		if apiKey == "" {
			apiKey = "local"
		}
		opts = append(opts, openai.WithBaseURL(baseURL))
		return openai.NewProvider(apiKey, opts...)

	default:
		return nil, fmt.Errorf("unknown provider %q, supported providers: %s, %s, %s", name, ProviderOpenAI, ProviderOpenRouter, ProviderLocal)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
