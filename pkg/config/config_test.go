package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/engine"
)

// clearLoaderEnv blanks every variable Load reads so tests see only what
// they set themselves.
func clearLoaderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PATROL_LOG_LEVEL",
		"PATROL_PROVIDER",
		"PATROL_MODEL",
		"PATROL_BROWSER",
		"PATROL_HEADLESS",
		"PATROL_MAX_SESSIONS",
		"PATROL_OUTPUT_DIR",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, browser.DefaultMaxSessions, cfg.Browser.MaxSessions)
	assert.Equal(t, browser.BrowserChromium, cfg.Browser.Type)
	assert.True(t, cfg.Browser.HeadlessEnabled())
	assert.Equal(t, string(engine.ModeSequential), cfg.Engine.Mode)
	assert.False(t, cfg.Engine.FailFast)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "patrol-artifacts", cfg.Output.Dir)
	assert.Equal(t, FormatText, cfg.Output.Format)
}

func TestLoad(t *testing.T) {
	t.Run("missing default path returns defaults", func(t *testing.T) {
		clearLoaderEnv(t)
		t.Setenv("HOME", t.TempDir())

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing explicit path is an error", func(t *testing.T) {
		clearLoaderEnv(t)
		path := filepath.Join(t.TempDir(), "nope.yaml")

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("file values override defaults", func(t *testing.T) {
		clearLoaderEnv(t)
		path := writeConfig(t, `
log_level: debug
browser:
  max_sessions: 2
  type: firefox
  headless: false
engine:
  mode: parallel
  fail_fast: true
  scenario_timeout: 45
llm:
  provider: openrouter
  model: anthropic/claude-sonnet-4
output:
  format: markdown
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 2, cfg.Browser.MaxSessions)
		assert.Equal(t, browser.BrowserFirefox, cfg.Browser.Type)
		assert.False(t, cfg.Browser.HeadlessEnabled())
		assert.Equal(t, string(engine.ModeParallel), cfg.Engine.Mode)
		assert.True(t, cfg.Engine.FailFast)
		assert.Equal(t, 45, cfg.Engine.ScenarioTimeout)
		assert.Equal(t, ProviderOpenRouter, cfg.LLM.Provider)
		assert.Equal(t, "anthropic/claude-sonnet-4", cfg.LLM.Model)
		assert.Equal(t, FormatMarkdown, cfg.Output.Format)

		// Sections the file never mentions keep their defaults.
		assert.Equal(t, int(engine.DefaultGlobalTimeout/time.Second), cfg.Engine.GlobalTimeout)
		assert.Equal(t, "patrol-artifacts", cfg.Output.Dir)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		clearLoaderEnv(t)
		path := writeConfig(t, "browser: [not a map")

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("invalid file values are rejected", func(t *testing.T) {
		clearLoaderEnv(t)
		path := writeConfig(t, "engine:\n  mode: turbo\n")

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `engine.mode "turbo"`)
	})
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Run("environment beats the file", func(t *testing.T) {
		clearLoaderEnv(t)
		path := writeConfig(t, "llm:\n  model: gpt-4o-mini\nbrowser:\n  max_sessions: 2\n")

		t.Setenv("PATROL_MODEL", "gpt-5")
		t.Setenv("PATROL_MAX_SESSIONS", "7")
		t.Setenv("PATROL_HEADLESS", "false")
		t.Setenv("PATROL_LOG_LEVEL", "warn")
		t.Setenv("PATROL_OUTPUT_DIR", "/tmp/patrol-out")
		t.Setenv("OPENAI_API_KEY", "sk-env")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "gpt-5", cfg.LLM.Model)
		assert.Equal(t, 7, cfg.Browser.MaxSessions)
		assert.False(t, cfg.Browser.HeadlessEnabled())
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, "/tmp/patrol-out", cfg.Output.Dir)
		assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	})

	t.Run("unparsable numeric override is an error", func(t *testing.T) {
		clearLoaderEnv(t)
		t.Setenv("HOME", t.TempDir())
		t.Setenv("PATROL_MAX_SESSIONS", "many")

		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid PATROL_MAX_SESSIONS")
	})

	t.Run("unparsable boolean override is an error", func(t *testing.T) {
		clearLoaderEnv(t)
		t.Setenv("HOME", t.TempDir())
		t.Setenv("PATROL_HEADLESS", "maybe")

		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid PATROL_HEADLESS")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: `log_level "verbose"`,
		},
		{
			name:    "negative max sessions",
			mutate:  func(c *Config) { c.Browser.MaxSessions = -1 },
			wantErr: "browser.max_sessions",
		},
		{
			name:    "unknown browser type",
			mutate:  func(c *Config) { c.Browser.Type = "netscape" },
			wantErr: `browser.type "netscape"`,
		},
		{
			name:    "unknown engine mode",
			mutate:  func(c *Config) { c.Engine.Mode = "turbo" },
			wantErr: `engine.mode "turbo"`,
		},
		{
			name:    "negative global timeout",
			mutate:  func(c *Config) { c.Engine.GlobalTimeout = -5 },
			wantErr: "engine.global_timeout",
		},
		{
			name:    "negative scenario timeout",
			mutate:  func(c *Config) { c.Engine.ScenarioTimeout = -5 },
			wantErr: "engine.scenario_timeout",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLM.Provider = "bedrock" },
			wantErr: `llm.provider "bedrock"`,
		},
		{
			name:    "unknown output format",
			mutate:  func(c *Config) { c.Output.Format = "xml" },
			wantErr: `output.format "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("all offending fields reported together", func(t *testing.T) {
		cfg := Default()
		cfg.LogLevel = "verbose"
		cfg.Engine.Mode = "turbo"
		cfg.Output.Format = "xml"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log_level")
		assert.Contains(t, err.Error(), "engine.mode")
		assert.Contains(t, err.Error(), "output.format")
	})

	t.Run("empty sections are fine", func(t *testing.T) {
		assert.NoError(t, Config{}.Validate())
	})
}

func TestHeadlessEnabled(t *testing.T) {
	off := false
	on := true

	assert.True(t, BrowserConfig{}.HeadlessEnabled())
	assert.True(t, BrowserConfig{Headless: &on}.HeadlessEnabled())
	assert.False(t, BrowserConfig{Headless: &off}.HeadlessEnabled())
}

func TestPoolConfig(t *testing.T) {
	off := false
	cfg := Config{
		Browser: BrowserConfig{
			MaxSessions:    3,
			Type:           browser.BrowserWebKit,
			Headless:       &off,
			IdleTimeout:    90,
			OpTimeout:      15,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
	}

	pc := cfg.PoolConfig()
	assert.Equal(t, 3, pc.MaxSessions)
	assert.Equal(t, browser.BrowserWebKit, pc.BrowserType)
	assert.False(t, pc.Headless)
	assert.Equal(t, 90*time.Second, pc.IdleTimeout)
	assert.Equal(t, 15*time.Second, pc.OpTimeout)
	assert.Equal(t, 1920, pc.ViewportWidth)
	assert.Equal(t, 1080, pc.ViewportHeight)
}

func TestExecutionConfig(t *testing.T) {
	cfg := Config{
		Engine: EngineConfig{
			Mode:            string(engine.ModeParallel),
			FailFast:        true,
			GlobalTimeout:   600,
			ScenarioTimeout: 60,
		},
	}

	ec := cfg.ExecutionConfig()
	assert.Equal(t, engine.ModeParallel, ec.Mode)
	assert.True(t, ec.FailFast)
	assert.Equal(t, 10*time.Minute, ec.GlobalTimeout)
	assert.Equal(t, time.Minute, ec.ScenarioTimeout)
}
