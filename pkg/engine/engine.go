// Package engine orchestrates the execution of scenario suites against the
// browser session pool.
//
// Submitting a suite returns immediately with an execution id; the engine
// runs the suite in the background, sequentially or in parallel, and records
// exactly one terminal result per scenario. Observers follow along through
// Status, Report (incremental while running, frozen afterwards), and
// Subscribe, which streams ordered progress events.
//
// Failure policy is fail-open: a failing scenario never stops its siblings
// unless fail-fast was requested. Only orchestrator-level faults (a closed
// pool, a panicking run loop) abort a whole execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/entrhq/patrol/pkg/agent"
	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/logging"
	"github.com/entrhq/patrol/pkg/metrics"
	"github.com/entrhq/patrol/pkg/progress"
	"github.com/entrhq/patrol/pkg/report"
	"github.com/entrhq/patrol/pkg/suite"
)

// ErrExecutionNotFound is returned when an execution id is unknown.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrEngineClosed rejects submissions after Close.
var ErrEngineClosed = errors.New("engine is closed")

// Engine runs scenario suites. Safe for concurrent use.
type Engine struct {
	pool    *browser.Pool
	runner  agent.Runner
	runners map[string]agent.Runner
	cfg     Config
	log     *logging.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	executions map[string]*execution
	closed     bool
	wg         sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches metric collectors.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithProviderRunner registers a runner for scenarios that name a specific
// provider. Scenarios without an override use the default runner.
func WithProviderRunner(provider string, r agent.Runner) EngineOption {
	return func(e *Engine) { e.runners[provider] = r }
}

// New creates an engine that executes scenarios with runner against sessions
// from pool.
func New(pool *browser.Pool, runner agent.Runner, cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		pool:       pool,
		runner:     runner,
		runners:    make(map[string]agent.Runner),
		cfg:        cfg.withDefaults(),
		executions: make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit registers the suite and starts executing it in the background. The
// returned id is valid for Status, Report, and Subscribe immediately.
func (e *Engine) Submit(ctx context.Context, st *suite.Suite, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if st == nil || len(st.Scenarios) == 0 {
		return "", fmt.Errorf("suite has no scenarios")
	}

	id := ulid.Make().String()
	exec := newExecution(id, st, e.cfg.resolve(opts))

	runCtx, cancel := context.WithTimeout(context.Background(), exec.cfg.GlobalTimeout)
	exec.cancel = cancel

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return "", ErrEngineClosed
	}
	e.executions[id] = exec
	e.wg.Add(1)
	e.mu.Unlock()

	e.infof("execution %s submitted: suite %q, %d scenarios, %s mode",
		id, st.Name, len(st.Scenarios), exec.cfg.Mode)

	go e.run(runCtx, exec)
	return id, nil
}

// Status returns the current snapshot of an execution.
func (e *Engine) Status(id string) (StatusInfo, error) {
	exec, err := e.lookup(id)
	if err != nil {
		return StatusInfo{}, err
	}
	return exec.snapshot(), nil
}

// Report returns the execution's report: incremental while Running, the
// frozen final report once terminal.
func (e *Engine) Report(id string) (*report.Report, error) {
	exec, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return exec.reportSnapshot(), nil
}

// Subscribe streams the execution's progress events from this moment
// forward. The channel closes after the terminal event; the returned cancel
// releases the subscription early.
func (e *Engine) Subscribe(id string) (<-chan progress.Event, func(), error) {
	exec, err := e.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := exec.bc.Subscribe()
	return ch, cancel, nil
}

// List returns a snapshot of every known execution, oldest first.
func (e *Engine) List() []StatusInfo {
	e.mu.Lock()
	execs := make([]*execution, 0, len(e.executions))
	for _, exec := range e.executions {
		execs = append(execs, exec)
	}
	e.mu.Unlock()

	// ULIDs sort lexicographically by creation time.
	sort.Slice(execs, func(i, j int) bool { return execs[i].id < execs[j].id })

	out := make([]StatusInfo, len(execs))
	for i, exec := range execs {
		out[i] = exec.snapshot()
	}
	return out
}

// Close stops accepting submissions, cancels running executions
// cooperatively, and waits for them to reach a terminal state. Reports of
// finished executions remain retrievable.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.closed = true
	cancels := make([]context.CancelFunc, 0, len(e.executions))
	for _, exec := range e.executions {
		if !exec.currentStatus().Terminal() {
			cancels = append(cancels, exec.cancel)
		}
	}
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine) lookup(id string) (*execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return exec, nil
}

// runnerFor resolves the runner for a scenario, honoring a per-scenario
// provider override when one is registered.
func (e *Engine) runnerFor(sc suite.Scenario) agent.Runner {
	if sc.Provider != "" {
		if r, ok := e.runners[sc.Provider]; ok {
			return r
		}
	}
	return e.runner
}

func (e *Engine) infof(format string, v ...any) {
	if e.log != nil {
		e.log.Infof(format, v...)
	}
}

func (e *Engine) warnf(format string, v ...any) {
	if e.log != nil {
		e.log.Warnf(format, v...)
	}
}
