package browser

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// Session is one live browser checked out of the pool. A session is
// owned by at most one execution at a time; page operations are not
// safe for concurrent use by multiple goroutines.
type Session struct {
	id          string
	browserType string
	headless    bool

	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	// inUse is guarded by the pool mutex, not the session mutex.
	inUse       bool
	executionID string

	mu            sync.Mutex
	createdAt     time.Time
	lastUsedAt    time.Time
	currentURL    string
	testsExecuted int
}

// NewDetachedSession creates a session with no Playwright backing. It
// exists for custom pool launchers in tests; page operations on a
// detached session panic.
func NewDetachedSession(browserType string, headless bool) *Session {
	now := time.Now()
	return &Session{
		id:          uuid.New().String(),
		browserType: browserType,
		headless:    headless,
		createdAt:   now,
		lastUsedAt:  now,
		currentURL:  "about:blank",
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// BrowserType returns the engine this session runs on.
func (s *Session) BrowserType() string { return s.browserType }

// Headless reports whether the browser runs without a visible window.
func (s *Session) Headless() bool { return s.headless }

// URL returns the address of the current page.
func (s *Session) URL() string {
	if s.page != nil {
		return s.page.URL()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

// Title returns the current page title, or an empty string when it
// cannot be read.
func (s *Session) Title() string {
	if s.page == nil {
		return ""
	}
	title, _ := s.page.Title()
	return title
}

// LastUsedAt returns when the session last performed an operation.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// TestsExecuted returns how many scenarios have checked this session out.
func (s *Session) TestsExecuted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testsExecuted
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) setURL(url string) {
	s.mu.Lock()
	s.currentURL = url
	s.mu.Unlock()
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:            s.id,
		BrowserType:   s.browserType,
		Headless:      s.headless,
		InUse:         s.inUse,
		ExecutionID:   s.executionID,
		CurrentURL:    s.currentURL,
		CreatedAt:     s.createdAt,
		LastUsedAt:    s.lastUsedAt,
		TestsExecuted: s.testsExecuted,
	}
}

// closeBackend tears down the Playwright resources. Errors are ignored
// so cleanup always runs to completion.
func (s *Session) closeBackend() {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.context != nil {
		_ = s.context.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
}

// Navigate loads the given URL and waits for the page to settle.
func (s *Session) Navigate(url string) error {
	s.touch()

	waitUntil := playwright.WaitUntilStateLoad
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	s.setURL(s.page.URL())
	return nil
}

// Click clicks the first element matching the selector.
func (s *Session) Click(selector string) error {
	s.touch()

	if err := s.page.Click(selector, playwright.PageClickOptions{}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}

	// A click may trigger navigation.
	s.setURL(s.page.URL())
	return nil
}

// Fill clears the matching input element and types the value into it.
func (s *Session) Fill(selector, value string) error {
	s.touch()

	if err := s.page.Fill(selector, value, playwright.PageFillOptions{}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Press sends a single key press to the matching element.
func (s *Session) Press(selector, key string) error {
	s.touch()

	if err := s.page.Press(selector, key, playwright.PagePressOptions{}); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}

	s.setURL(s.page.URL())
	return nil
}

// WaitFor blocks until the matching element reaches the given state.
// Valid states are "attached", "detached", "visible" and "hidden";
// empty means visible.
func (s *Session) WaitFor(selector, state string) error {
	s.touch()

	opts := playwright.PageWaitForSelectorOptions{}
	if state != "" {
		waitState := playwright.WaitForSelectorState(state)
		opts.State = &waitState
	}

	if _, err := s.page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Text extracts the text content of the first element matching the
// selector. An empty selector extracts the whole body.
func (s *Session) Text(selector string) (string, error) {
	s.touch()

	if selector == "" {
		selector = "body"
	}

	element, err := s.page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if element == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}

	content, err := element.TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return strings.TrimSpace(content), nil
}

// Evaluate executes JavaScript in the page and returns the result
// rendered as JSON, or "undefined" when the expression produced nothing.
func (s *Session) Evaluate(script string) (string, error) {
	s.touch()

	result, err := s.page.Evaluate(script)
	if err != nil {
		return "", fmt.Errorf("javascript execution failed: %w", err)
	}

	if result == nil {
		return "undefined", nil
	}
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result), nil
	}
	return string(jsonBytes), nil
}

// Scroll moves the viewport. Direction is one of "down", "up", "top"
// or "bottom".
func (s *Session) Scroll(direction string) error {
	var script string
	switch direction {
	case "down", "":
		script = "window.scrollBy(0, window.innerHeight)"
	case "up":
		script = "window.scrollBy(0, -window.innerHeight)"
	case "top":
		script = "window.scrollTo(0, 0)"
	case "bottom":
		script = "window.scrollTo(0, document.body.scrollHeight)"
	default:
		return fmt.Errorf("unsupported scroll direction: %s", direction)
	}

	_, err := s.Evaluate(script)
	return err
}

// Screenshot captures the current page as a PNG.
func (s *Session) Screenshot(fullPage bool) ([]byte, error) {
	s.touch()

	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: &fullPage,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}
