package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/patrol/pkg/llm/openai"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENROUTER_API_KEY"} {
		t.Setenv(key, "")
	}
}

func TestBuildProviderOpenAI(t *testing.T) {
	clearProviderEnv(t)

	cfg := Default()
	cfg.LLM.APIKey = "sk-file"

	p, err := BuildProvider(cfg, Overrides{})
	require.NoError(t, err)

	op, ok := p.(*openai.Provider)
	require.True(t, ok)
	assert.Equal(t, openai.DefaultModel, op.Model())
	assert.Equal(t, openai.DefaultBaseURL, op.BaseURL())
}

func TestBuildProviderOverridesWin(t *testing.T) {
	clearProviderEnv(t)

	cfg := Default()
	cfg.LLM.APIKey = "sk-file"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.BaseURL = "https://file.example.com/v1"

	p, err := BuildProvider(cfg, Overrides{
		Model:   "gpt-5",
		BaseURL: "https://flag.example.com/v1",
	})
	require.NoError(t, err)

	op := p.(*openai.Provider)
	assert.Equal(t, "gpt-5", op.Model())
	assert.Equal(t, "https://flag.example.com/v1", op.BaseURL())
}

func TestBuildProviderOpenRouter(t *testing.T) {
	t.Run("uses the openrouter endpoint and env key", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("OPENROUTER_API_KEY", "or-key")

		cfg := Default()
		cfg.LLM.Provider = ProviderOpenRouter
		cfg.LLM.Model = "anthropic/claude-sonnet-4"

		p, err := BuildProvider(cfg, Overrides{})
		require.NoError(t, err)

		op := p.(*openai.Provider)
		assert.Equal(t, openRouterBaseURL, op.BaseURL())
		assert.Equal(t, "anthropic/claude-sonnet-4", op.Model())
	})

	t.Run("requires a key", func(t *testing.T) {
		clearProviderEnv(t)

		cfg := Default()
		cfg.LLM.Provider = ProviderOpenRouter

		_, err := BuildProvider(cfg, Overrides{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
	})
}

func TestBuildProviderLocal(t *testing.T) {
	t.Run("requires a base URL", func(t *testing.T) {
		clearProviderEnv(t)

		cfg := Default()
		cfg.LLM.Provider = ProviderLocal

		_, err := BuildProvider(cfg, Overrides{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires a base URL")
	})

	t.Run("works without a key", func(t *testing.T) {
		clearProviderEnv(t)

		cfg := Default()
		cfg.LLM.Provider = ProviderLocal
		cfg.LLM.BaseURL = "http://localhost:11434/v1"
		cfg.LLM.Model = "llama3"

		p, err := BuildProvider(cfg, Overrides{})
		require.NoError(t, err)

		op := p.(*openai.Provider)
		assert.Equal(t, "http://localhost:11434/v1", op.BaseURL())
		assert.Equal(t, "llama3", op.Model())
	})
}

func TestBuildProviderUnknown(t *testing.T) {
	clearProviderEnv(t)

	_, err := BuildProvider(Default(), Overrides{Provider: "bedrock"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "bedrock"`)
}

func TestKnownProvider(t *testing.T) {
	assert.True(t, KnownProvider(ProviderOpenAI))
	assert.True(t, KnownProvider(ProviderOpenRouter))
	assert.True(t, KnownProvider(ProviderLocal))
	assert.False(t, KnownProvider("bedrock"))
	assert.False(t, KnownProvider(""))
}
