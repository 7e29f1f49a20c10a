// Package config loads patrol's configuration. Defaults come first, the
// optional YAML file at ~/.config/patrol/config.yaml overrides them, and
// PATROL_* / OPENAI_* environment variables override the file. Command-line
// flags apply on top of the loaded result in the callers.
//
// Timeouts are plain seconds in the file, the same convention suite
// documents use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/engine"
)

// Config is the fully resolved tool configuration.
type Config struct {
	LogLevel string        `yaml:"log_level,omitempty"`
	Browser  BrowserConfig `yaml:"browser,omitempty"`
	Engine   EngineConfig  `yaml:"engine,omitempty"`
	LLM      LLMConfig     `yaml:"llm,omitempty"`
	Output   OutputConfig  `yaml:"output,omitempty"`
}

// BrowserConfig shapes the session pool.
type BrowserConfig struct {
	MaxSessions    int    `yaml:"max_sessions,omitempty"`
	Type           string `yaml:"type,omitempty"`
	Headless       *bool  `yaml:"headless,omitempty"`
	IdleTimeout    int    `yaml:"idle_timeout,omitempty"`
	OpTimeout      int    `yaml:"op_timeout,omitempty"`
	ViewportWidth  int    `yaml:"viewport_width,omitempty"`
	ViewportHeight int    `yaml:"viewport_height,omitempty"`
}

// HeadlessEnabled reports the resolved headless setting. Unset means true.
func (b BrowserConfig) HeadlessEnabled() bool {
	return b.Headless == nil || *b.Headless
}

// EngineConfig shapes execution scheduling and timeouts.
type EngineConfig struct {
	Mode            string `yaml:"mode,omitempty"`
	FailFast        bool   `yaml:"fail_fast,omitempty"`
	GlobalTimeout   int    `yaml:"global_timeout,omitempty"`
	ScenarioTimeout int    `yaml:"scenario_timeout,omitempty"`
}

// LLMConfig selects and authenticates the model provider.
type LLMConfig struct {
	Provider  string `yaml:"provider,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// OutputConfig controls where artifacts land and how reports render.
type OutputConfig struct {
	Dir    string `yaml:"dir,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Report output formats accepted by Output.Format and the CLI.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ValidFormat reports whether name is a supported report format.
func ValidFormat(name string) bool {
	switch name {
	case FormatText, FormatJSON, FormatMarkdown:
		return true
	}
	return false
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		LogLevel: "info",
		Browser: BrowserConfig{
			MaxSessions:    browser.DefaultMaxSessions,
			Type:           browser.BrowserChromium,
			IdleTimeout:    int(browser.DefaultIdleTimeout / time.Second),
			OpTimeout:      int(browser.DefaultOpTimeout / time.Second),
			ViewportWidth:  browser.DefaultViewportWidth,
			ViewportHeight: browser.DefaultViewportHeight,
		},
		Engine: EngineConfig{
			Mode:            string(engine.ModeSequential),
			GlobalTimeout:   int(engine.DefaultGlobalTimeout / time.Second),
			ScenarioTimeout: int(engine.DefaultScenarioTimeout / time.Second),
		},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
		},
		Output: OutputConfig{
			Dir:    "patrol-artifacts",
			Format: FormatText,
		},
	}
}

// DefaultPath returns ~/.config/patrol/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "patrol", "config.yaml"), nil
}

// Load reads the configuration file at path, or the default location when
// path is empty. A missing default file is fine; a missing explicit path is
// an error. Environment overrides and validation always apply.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if explicit {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv folds environment variables over the loaded values.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PATROL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PATROL_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("PATROL_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("PATROL_BROWSER"); v != "" {
		c.Browser.Type = v
	}
	if v := os.Getenv("PATROL_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("PATROL_MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PATROL_MAX_SESSIONS %q: %w", v, err)
		}
		c.Browser.MaxSessions = n
	}
	if v := os.Getenv("PATROL_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PATROL_HEADLESS %q: %w", v, err)
		}
		c.Browser.Headless = &b
	}
	return nil
}

// Validate rejects values that would be silently misread downstream. All
// offending fields are reported together.
func (c Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Browser.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("browser.max_sessions must not be negative, got %d", c.Browser.MaxSessions))
	}
	if c.Browser.Type != "" && !browser.ValidBrowserType(c.Browser.Type) {
		errs = append(errs, fmt.Errorf("browser.type %q is not a supported browser", c.Browser.Type))
	}
	if c.Engine.Mode != "" && !engine.Mode(c.Engine.Mode).Valid() {
		errs = append(errs, fmt.Errorf("engine.mode %q is not one of %s, %s", c.Engine.Mode, engine.ModeSequential, engine.ModeParallel))
	}
	if c.Engine.GlobalTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.global_timeout must not be negative, got %d", c.Engine.GlobalTimeout))
	}
	if c.Engine.ScenarioTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.scenario_timeout must not be negative, got %d", c.Engine.ScenarioTimeout))
	}
	if c.LLM.Provider != "" && !KnownProvider(c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of %s, %s, %s", c.LLM.Provider, ProviderOpenAI, ProviderOpenRouter, ProviderLocal))
	}
	if c.Output.Format != "" && !ValidFormat(c.Output.Format) {
		errs = append(errs, fmt.Errorf("output.format %q is not one of %s, %s, %s", c.Output.Format, FormatText, FormatJSON, FormatMarkdown))
	}

	return errors.Join(errs...)
}

// PoolConfig converts the browser section into the session pool's shape.
func (c Config) PoolConfig() browser.Config {
	return browser.Config{
		MaxSessions:    c.Browser.MaxSessions,
		IdleTimeout:    seconds(c.Browser.IdleTimeout),
		BrowserType:    c.Browser.Type,
		Headless:       c.Browser.HeadlessEnabled(),
		OpTimeout:      seconds(c.Browser.OpTimeout),
		ViewportWidth:  c.Browser.ViewportWidth,
		ViewportHeight: c.Browser.ViewportHeight,
	}
}

// ExecutionConfig converts the engine section into the orchestrator's shape.
func (c Config) ExecutionConfig() engine.Config {
	return engine.Config{
		Mode:            engine.Mode(c.Engine.Mode),
		FailFast:        c.Engine.FailFast,
		GlobalTimeout:   seconds(c.Engine.GlobalTimeout),
		ScenarioTimeout: seconds(c.Engine.ScenarioTimeout),
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
