// Package browser manages a bounded pool of Playwright browser
// sessions. Sessions are launched on demand up to a configured cap,
// reused across scenarios, and reclaimed when idle.
package browser

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/patrol/pkg/logging"
	"github.com/entrhq/patrol/pkg/metrics"
)

// LaunchFunc creates a new session. The pool's default launcher starts
// a Playwright browser; tests substitute their own.
type LaunchFunc func(browserType string, headless bool) (*Session, error)

// Pool hands out browser sessions up to a fixed capacity. Acquire
// blocks until a session is free or the caller's context expires.
type Pool struct {
	cfg     Config
	log     *logging.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	pw          *playwright.Playwright
	launch      LaunchFunc
	sessions    map[string]*Session
	launching   int
	notify      chan struct{}
	initialized bool
	closed      bool
	created     int
	evicted     int

	// testsExecuted counts checkouts for the pool's lifetime; unlike the
	// per-session counters it survives session destruction.
	testsExecuted int
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLauncher replaces the Playwright-backed launcher. Pools built
// this way skip driver installation in Initialize.
func WithLauncher(fn LaunchFunc) PoolOption {
	return func(p *Pool) { p.launch = fn }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// WithLogger attaches a logger for pool lifecycle events.
func WithLogger(log *logging.Logger) PoolOption {
	return func(p *Pool) { p.log = log }
}

// NewPool creates a pool with the given configuration. Call Initialize
// before acquiring sessions.
func NewPool(cfg Config, opts ...PoolOption) *Pool {
	p := &Pool{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
		notify:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize installs and starts the Playwright driver. It is a no-op
// when a custom launcher is configured or the pool is already running.
func (p *Pool) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.initialized {
		return nil
	}
	if p.launch != nil {
		p.initialized = true
		return nil
	}

	// Discard driver output so it cannot interfere with the terminal UI.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	p.pw = pw
	p.launch = p.launchPlaywright
	p.initialized = true
	return nil
}

// Acquire checks out a session with the pool's default browser type,
// blocking until one is free or ctx expires.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	return p.AcquireWith(ctx, AcquireRequest{})
}

// AcquireWith checks out a session matching the request. When the pool
// is at capacity it waits for a release until ctx expires, then returns
// ErrPoolBusy.
func (p *Pool) AcquireWith(ctx context.Context, req AcquireRequest) (*Session, error) {
	browserType := req.BrowserType
	if browserType == "" {
		browserType = p.cfg.BrowserType
	}
	if !ValidBrowserType(browserType) {
		return nil, fmt.Errorf("unsupported browser type %q", browserType)
	}

	headless := p.cfg.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	start := time.Now()
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if !p.initialized {
			p.mu.Unlock()
			return nil, ErrPoolNotInitialized
		}

		// Prefer reusing an idle session with matching characteristics.
		if s := p.takeIdleLocked(browserType, headless, req.ExecutionID); s != nil {
			p.mu.Unlock()
			p.debugf("session %s reused for execution %s", s.id, req.ExecutionID)
			return s, nil
		}

		if len(p.sessions)+p.launching < p.cfg.MaxSessions {
			p.launching++
			p.mu.Unlock()
			return p.launchAndCheckout(browserType, headless, req.ExecutionID)
		}

		// At capacity. An idle session of the wrong kind can be
		// recycled to make room.
		if victim := p.idleVictimLocked(); victim != nil {
			delete(p.sessions, victim.id)
			p.mu.Unlock()
			victim.closeBackend()
			p.metrics.SessionDestroyed()
			p.debugf("session %s recycled to free a slot", victim.id)
			continue
		}

		wait := p.notify
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no session available after %s: %w",
				time.Since(start).Round(time.Millisecond), ErrPoolBusy)
		case <-wait:
		}
	}
}

// takeIdleLocked checks out an idle session matching the requested
// characteristics. Caller holds the pool mutex.
func (p *Pool) takeIdleLocked(browserType string, headless bool, executionID string) *Session {
	for _, s := range p.sessions {
		if s.inUse || s.browserType != browserType || s.headless != headless {
			continue
		}
		s.inUse = true
		s.executionID = executionID
		s.mu.Lock()
		s.lastUsedAt = time.Now()
		s.testsExecuted++
		s.mu.Unlock()
		p.testsExecuted++
		return s
	}
	return nil
}

// idleVictimLocked returns the least recently used idle session, or
// nil when every session is checked out. Caller holds the pool mutex.
func (p *Pool) idleVictimLocked() *Session {
	var victim *Session
	for _, s := range p.sessions {
		if s.inUse {
			continue
		}
		if victim == nil || s.LastUsedAt().Before(victim.LastUsedAt()) {
			victim = s
		}
	}
	return victim
}

func (p *Pool) launchAndCheckout(browserType string, headless bool, executionID string) (*Session, error) {
	session, err := p.launch(browserType, headless)

	p.mu.Lock()
	p.launching--
	if err != nil {
		p.notifyAllLocked()
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	if p.closed {
		p.mu.Unlock()
		session.closeBackend()
		return nil, ErrPoolClosed
	}

	session.inUse = true
	session.executionID = executionID
	session.mu.Lock()
	session.testsExecuted++
	session.mu.Unlock()
	p.sessions[session.id] = session
	p.created++
	p.testsExecuted++
	p.mu.Unlock()

	p.metrics.SessionCreated()
	p.debugf("session %s launched (%s, headless=%t)", session.id, browserType, headless)
	return session, nil
}

// launchPlaywright is the default LaunchFunc.
func (p *Pool) launchPlaywright(browserType string, headless bool) (*Session, error) {
	var bt playwright.BrowserType
	switch browserType {
	case BrowserChromium:
		bt = p.pw.Chromium
	case BrowserFirefox:
		bt = p.pw.Firefox
	case BrowserWebKit:
		bt = p.pw.WebKit
	default:
		return nil, fmt.Errorf("unsupported browser type %q", browserType)
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  p.cfg.ViewportWidth,
			Height: p.cfg.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(p.cfg.OpTimeout.Milliseconds()))

	now := time.Now()
	return &Session{
		id:          uuid.New().String(),
		browserType: browserType,
		headless:    headless,
		browser:     browser,
		context:     context,
		page:        page,
		createdAt:   now,
		lastUsedAt:  now,
		currentURL:  "about:blank",
	}, nil
}

// Release checks a session back in so another scenario can reuse it.
// Releasing a session twice, or after the pool closed, is a no-op.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	owned, ok := p.sessions[s.id]
	if !ok || owned != s || !s.inUse {
		p.mu.Unlock()
		return
	}
	s.inUse = false
	s.executionID = ""
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
	p.notifyAllLocked()
	p.mu.Unlock()

	p.debugf("session %s released", s.id)
}

// Destroy removes a session from the pool and closes its browser. Use
// it instead of Release when the page is in an unknown state.
func (p *Pool) Destroy(s *Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.sessions[s.id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.sessions, s.id)
	p.notifyAllLocked()
	p.mu.Unlock()

	s.closeBackend()
	p.metrics.SessionDestroyed()
	p.debugf("session %s destroyed", s.id)
}

// EvictIdle closes checked-in sessions that have been unused longer
// than the idle timeout and returns how many were closed.
func (p *Pool) EvictIdle() int {
	now := time.Now()

	p.mu.Lock()
	var victims []*Session
	for _, s := range p.sessions {
		if s.inUse {
			continue
		}
		if now.Sub(s.LastUsedAt()) > p.cfg.IdleTimeout {
			victims = append(victims, s)
			delete(p.sessions, s.id)
		}
	}
	p.evicted += len(victims)
	if len(victims) > 0 {
		p.notifyAllLocked()
	}
	p.mu.Unlock()

	for _, s := range victims {
		s.closeBackend()
		p.metrics.SessionEvicted()
		p.metrics.SessionDestroyed()
		p.debugf("session %s evicted after idling", s.id)
	}
	return len(victims)
}

// Sweep runs EvictIdle on a timer until ctx is cancelled. Interval
// zero means half the idle timeout.
func (p *Pool) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = p.cfg.IdleTimeout / 2
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.EvictIdle()
		}
	}
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		MaxSessions:   p.cfg.MaxSessions,
		Open:          len(p.sessions),
		Created:       p.created,
		Evicted:       p.evicted,
		TestsExecuted: p.testsExecuted,
		BrowserTypes:  make(map[string]int, len(p.sessions)),
	}
	for _, s := range p.sessions {
		if s.inUse {
			stats.InUse++
		}
		stats.BrowserTypes[s.browserType]++
	}
	stats.Idle = stats.Open - stats.InUse
	return stats
}

// Sessions returns a snapshot of every open session, oldest first.
func (p *Pool) Sessions() []SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]SessionInfo, 0, len(p.sessions))
	for _, s := range p.sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Close destroys every session and stops the Playwright driver.
// Waiting acquirers are woken with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	victims := make([]*Session, 0, len(p.sessions))
	for id, s := range p.sessions {
		victims = append(victims, s)
		delete(p.sessions, id)
	}
	pw := p.pw
	p.pw = nil
	p.notifyAllLocked()
	p.mu.Unlock()

	for _, s := range victims {
		s.closeBackend()
		p.metrics.SessionDestroyed()
	}

	if pw != nil {
		if err := pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
	}
	return nil
}

// notifyAllLocked wakes every goroutine blocked in AcquireWith so it
// can re-contend for capacity. Caller holds the pool mutex.
func (p *Pool) notifyAllLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}

func (p *Pool) debugf(format string, args ...any) {
	if p.log != nil {
		p.log.Debugf(format, args...)
	}
}
