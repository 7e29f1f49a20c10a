// Package agent implements the model-driven runner that executes one
// scenario against a live browser session.
//
// The runner works an observe-think-act loop: each iteration sends the
// system prompt, the conversation so far, and a fresh page snapshot to the
// provider, parses exactly one action out of the reply, executes it against
// the browser, and feeds the outcome back. The loop ends when the model
// issues a verdict action, the iteration budget runs out, or consecutive
// failures trip a circuit breaker.
//
// Page snapshots are ephemeral: only the latest one is sent, never stored in
// the transcript, which keeps token usage flat across iterations.
package agent

import (
	"context"

	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/llm"
	"github.com/entrhq/patrol/pkg/llm/tokenizer"
	"github.com/entrhq/patrol/pkg/logging"
	"github.com/entrhq/patrol/pkg/suite"
)

const (
	// defaultMaxIterations bounds the observe-think-act loop.
	defaultMaxIterations = 20

	// maxParseFailures aborts the scenario after this many consecutive
	// replies without a usable action block.
	maxParseFailures = 3

	// maxActionFailures aborts the scenario after this many consecutive
	// browser action errors. The last browser error is returned so the
	// caller can classify the real cause.
	maxActionFailures = 5

	// maxResultTokens bounds extracted text and script results before they
	// enter the transcript.
	maxResultTokens = 1000
)

// Browser is the slice of a browser session the runner drives. Implemented
// by *browser.Session; tests substitute fakes.
type Browser interface {
	Navigate(url string) error
	Click(selector string) error
	Fill(selector, value string) error
	Press(selector, key string) error
	WaitFor(selector, state string) error
	Text(selector string) (string, error)
	Evaluate(script string) (string, error)
	Scroll(direction string) error
	Screenshot(fullPage bool) ([]byte, error)
	Snapshot(maxChars int) (*browser.Snapshot, error)
	URL() string
	Title() string
}

var _ Browser = (*browser.Session)(nil)

// Runner executes a single scenario against a browser session. The engine
// depends on this interface so orchestration can be tested without a model.
type Runner interface {
	RunScenario(ctx context.Context, b Browser, sc suite.Scenario) (*Result, error)
}

// Step records one executed action for the test narrative.
type Step struct {
	Action   string            `json:"action"`
	Args     map[string]string `json:"args,omitempty"`
	Outcome  string            `json:"outcome,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration float64           `json:"duration_seconds"`
}

// Result is the runner's judgement of one scenario. A failed verdict is a
// valid result, not an error: errors are reserved for the scenario not
// completing at all.
type Result struct {
	Passed      bool
	Narrative   string
	Steps       []Step
	Screenshots [][]byte
	Iterations  int
	Transcript  []*llm.Message
}

// Agent drives scenarios through an LLM provider.
type Agent struct {
	provider      llm.Provider
	tok           *tokenizer.Tokenizer
	log           *logging.Logger
	maxIterations int
	snapshotChars int
}

var _ Runner = (*Agent)(nil)

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIterations overrides the iteration budget per scenario.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithLogger attaches a logger for per-iteration diagnostics.
func WithLogger(log *logging.Logger) Option {
	return func(a *Agent) {
		a.log = log
	}
}

// WithTokenizer overrides the tokenizer used to bound extracted text.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(a *Agent) {
		a.tok = tok
	}
}

// WithSnapshotLength overrides the page snapshot character budget.
func WithSnapshotLength(chars int) Option {
	return func(a *Agent) {
		if chars > 0 {
			a.snapshotChars = chars
		}
	}
}

// New creates a scenario runner backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Agent {
	a := &Agent{
		provider:      provider,
		maxIterations: defaultMaxIterations,
		snapshotChars: browser.DefaultSnapshotLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tok == nil {
		// The tokenizer degrades to a byte heuristic when the encoding is
		// unavailable, so the error only matters for logging.
		tok, err := tokenizer.New()
		if err != nil {
			a.debugf("tokenizer encoding unavailable, using byte heuristic: %v", err)
		}
		a.tok = tok
	}
	return a
}

func (a *Agent) debugf(format string, v ...any) {
	if a.log != nil {
		a.log.Debugf(format, v...)
	}
}
