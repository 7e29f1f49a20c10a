package browser

import (
	"errors"
	"time"
)

// Supported browser engines.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
)

// BrowserTypes returns every supported browser engine name.
func BrowserTypes() []string {
	return []string{BrowserChromium, BrowserFirefox, BrowserWebKit}
}

// ValidBrowserType reports whether name is a supported browser engine.
func ValidBrowserType(name string) bool {
	switch name {
	case BrowserChromium, BrowserFirefox, BrowserWebKit:
		return true
	}
	return false
}

// ErrPoolBusy is returned when every session slot is checked out and no
// session became free before the caller's deadline. Callers may retry.
var ErrPoolBusy = errors.New("pool is busy: no session available")

// ErrPoolClosed is returned for any operation on a pool after Close.
var ErrPoolClosed = errors.New("browser pool is closed")

// ErrPoolNotInitialized is returned when sessions are requested before
// Initialize has run. Unlike ErrPoolBusy this is not retryable.
var ErrPoolNotInitialized = errors.New("browser pool not initialized")

// Config controls pool capacity and how sessions are launched.
type Config struct {
	// MaxSessions caps how many browser sessions may be open at once.
	MaxSessions int

	// IdleTimeout is how long a checked-in session may sit unused
	// before the sweeper closes it.
	IdleTimeout time.Duration

	// BrowserType is the engine launched when an acquire request does
	// not name one.
	BrowserType string

	// Headless controls whether browsers run without a visible window
	// unless an acquire request overrides it.
	Headless bool

	// OpTimeout is the default timeout applied to every page
	// operation on a session.
	OpTimeout time.Duration

	// ViewportWidth and ViewportHeight set the initial page size.
	ViewportWidth  int
	ViewportHeight int
}

// Default pool sizing.
const (
	DefaultMaxSessions    = 5
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultOpTimeout      = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// DefaultConfig returns the pool configuration used when the caller
// supplies nothing.
func DefaultConfig() Config {
	return Config{
		MaxSessions:    DefaultMaxSessions,
		IdleTimeout:    DefaultIdleTimeout,
		BrowserType:    BrowserChromium,
		Headless:       true,
		OpTimeout:      DefaultOpTimeout,
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSessions <= 0 {
		c.MaxSessions = d.MaxSessions
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.BrowserType == "" {
		c.BrowserType = d.BrowserType
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = d.OpTimeout
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = d.ViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = d.ViewportHeight
	}
	return c
}

// AcquireRequest describes what kind of session a caller needs.
type AcquireRequest struct {
	// BrowserType names the engine. Empty means the pool default.
	BrowserType string

	// Headless overrides the pool default when non-nil.
	Headless *bool

	// ExecutionID tags the session with its current holder for
	// observability.
	ExecutionID string
}

// SessionInfo is a point-in-time snapshot of one session's state.
type SessionInfo struct {
	ID            string    `json:"id"`
	BrowserType   string    `json:"browser_type"`
	Headless      bool      `json:"headless"`
	InUse         bool      `json:"in_use"`
	ExecutionID   string    `json:"execution_id,omitempty"`
	CurrentURL    string    `json:"current_url"`
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
	TestsExecuted int       `json:"tests_executed"`
}

// Stats is a point-in-time snapshot of pool occupancy, taken under a
// single lock acquisition. Created, Evicted, and TestsExecuted are
// lifetime counters; they keep counting across session destruction.
type Stats struct {
	MaxSessions   int            `json:"max_sessions"`
	Open          int            `json:"open"`
	InUse         int            `json:"in_use"`
	Idle          int            `json:"idle"`
	Created       int            `json:"created"`
	Evicted       int            `json:"evicted"`
	TestsExecuted int            `json:"tests_executed"`
	BrowserTypes  map[string]int `json:"browser_types"`
}
