package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/patrol/pkg/agent"
	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/suite"
)

// runnerFunc adapts a function to the agent.Runner interface.
type runnerFunc func(ctx context.Context, b agent.Browser, sc suite.Scenario) (*agent.Result, error)

func (f runnerFunc) RunScenario(ctx context.Context, b agent.Browser, sc suite.Scenario) (*agent.Result, error) {
	return f(ctx, b, sc)
}

type scriptOutcome struct {
	res *agent.Result
	err error
}

// scriptRunner returns canned outcomes by scenario name, passing anything
// not scripted. It records start order, the session each scenario ran on,
// and the peak number of concurrent runs.
type scriptRunner struct {
	outcomes map[string]scriptOutcome

	// arrive, when set, reports each scenario as it enters the runner.
	// proceed, when set, holds each run until the test releases it.
	arrive  chan string
	proceed chan struct{}

	mu       sync.Mutex
	started  []string
	sessions []string

	active atomic.Int32
	peak   atomic.Int32
}

func (r *scriptRunner) RunScenario(ctx context.Context, b agent.Browser, sc suite.Scenario) (*agent.Result, error) {
	cur := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if cur <= peak || r.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	r.mu.Lock()
	r.started = append(r.started, sc.Name)
	if s, ok := b.(*browser.Session); ok {
		r.sessions = append(r.sessions, s.ID())
	}
	out, scripted := r.outcomes[sc.Name]
	r.mu.Unlock()

	if r.arrive != nil {
		r.arrive <- sc.Name
	}
	if r.proceed != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.proceed:
		}
	}

	if !scripted {
		return passResult(), nil
	}
	return out.res, out.err
}

func (r *scriptRunner) startOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func (r *scriptRunner) sessionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sessions...)
}

func passResult() *agent.Result {
	return &agent.Result{Passed: true, Narrative: "all expected outcomes verified", Iterations: 2}
}

func failedVerdict(narrative string) *agent.Result {
	return &agent.Result{Passed: false, Narrative: narrative, Iterations: 3}
}

// blockUntilCanceled holds every scenario until its context expires.
func blockUntilCanceled(ctx context.Context, _ agent.Browser, _ suite.Scenario) (*agent.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func stubLaunch(launches *atomic.Int32) browser.LaunchFunc {
	return func(browserType string, headless bool) (*browser.Session, error) {
		if launches != nil {
			launches.Add(1)
		}
		return browser.NewDetachedSession(browserType, headless), nil
	}
}

func newTestPool(t *testing.T, maxSessions int, launches *atomic.Int32) *browser.Pool {
	t.Helper()
	p := browser.NewPool(browser.Config{MaxSessions: maxSessions},
		browser.WithLauncher(stubLaunch(launches)))
	require.NoError(t, p.Initialize())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newTestEngine(t *testing.T, pool *browser.Pool, r agent.Runner, cfg Config, opts ...EngineOption) *Engine {
	t.Helper()
	eng := New(pool, r, cfg, opts...)
	t.Cleanup(eng.Close)
	return eng
}

func testSuite(names ...string) *suite.Suite {
	scenarios := make([]suite.Scenario, len(names))
	for i, name := range names {
		scenarios[i] = suite.Scenario{
			Name:        name,
			Requirement: "the page should respond correctly",
			URL:         "https://app.example.com",
			Type:        suite.TypeFunctional,
		}
	}
	return &suite.Suite{Name: "checkout", Scenarios: scenarios}
}

func waitTerminal(t *testing.T, eng *Engine, id string) StatusInfo {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		info, err := eng.Status(id)
		require.NoError(t, err)
		if info.Status.Terminal() {
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach a terminal state", id)
	return StatusInfo{}
}

func boolPtr(v bool) *bool { return &v }

func TestSubmitRejectsEmptySuite(t *testing.T) {
	eng := newTestEngine(t, newTestPool(t, 1, nil), runnerFunc(blockUntilCanceled), Config{})

	_, err := eng.Submit(context.Background(), nil, Options{})
	require.Error(t, err)

	_, err = eng.Submit(context.Background(), &suite.Suite{Name: "empty"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenarios")
}

func TestSubmitAfterCloseIsRejected(t *testing.T) {
	eng := newTestEngine(t, newTestPool(t, 1, nil), &scriptRunner{}, Config{})
	eng.Close()

	_, err := eng.Submit(context.Background(), testSuite("login"), Options{})
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestLookupUnknownExecution(t *testing.T) {
	eng := newTestEngine(t, newTestPool(t, 1, nil), &scriptRunner{}, Config{})

	_, err := eng.Status("01K00000000000000000000000")
	require.ErrorIs(t, err, ErrExecutionNotFound)

	_, err = eng.Report("01K00000000000000000000000")
	require.ErrorIs(t, err, ErrExecutionNotFound)

	_, _, err = eng.Subscribe("01K00000000000000000000000")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestStatusReflectsLifecycle(t *testing.T) {
	r := &scriptRunner{
		arrive:  make(chan string, 1),
		proceed: make(chan struct{}),
	}
	eng := newTestEngine(t, newTestPool(t, 1, nil), r, Config{})

	id, err := eng.Submit(context.Background(), testSuite("login"), Options{})
	require.NoError(t, err)

	<-r.arrive
	info, err := eng.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Equal(t, "checkout", info.SuiteName)
	assert.False(t, info.StartedAt.IsZero())
	assert.True(t, info.CompletedAt.IsZero())

	r.proceed <- struct{}{}
	info = waitTerminal(t, eng, id)
	assert.Equal(t, StatusCompleted, info.Status)
	assert.False(t, info.CompletedAt.Before(info.StartedAt))
	assert.Equal(t, 1, info.Totals.Passed)
	assert.Empty(t, info.Error)
}

func TestReportIncrementalThenFinal(t *testing.T) {
	r := &scriptRunner{
		arrive:  make(chan string, 2),
		proceed: make(chan struct{}),
	}
	eng := newTestEngine(t, newTestPool(t, 1, nil), r, Config{})

	id, err := eng.Submit(context.Background(), testSuite("login", "search"), Options{})
	require.NoError(t, err)

	<-r.arrive
	r.proceed <- struct{}{}
	<-r.arrive

	// First scenario recorded, second still running.
	rep, err := eng.Report(id)
	require.NoError(t, err)
	assert.Equal(t, string(StatusRunning), rep.Status)
	assert.Equal(t, 1, rep.Passed)
	assert.True(t, rep.CompletedAt.After(rep.StartedAt))

	r.proceed <- struct{}{}
	waitTerminal(t, eng, id)

	final, err := eng.Report(id)
	require.NoError(t, err)
	assert.Equal(t, string(StatusCompleted), final.Status)
	assert.Equal(t, 2, final.Total)
	assert.Equal(t, 2, final.Passed)
	assert.Len(t, final.Results, 2)

	// Terminal reports are frozen.
	again, err := eng.Report(id)
	require.NoError(t, err)
	assert.Same(t, final, again)
}

func TestListOrdersExecutionsByCreation(t *testing.T) {
	eng := newTestEngine(t, newTestPool(t, 1, nil), &scriptRunner{}, Config{})

	first, err := eng.Submit(context.Background(), testSuite("login"), Options{})
	require.NoError(t, err)
	waitTerminal(t, eng, first)

	second, err := eng.Submit(context.Background(), testSuite("search"), Options{})
	require.NoError(t, err)
	waitTerminal(t, eng, second)

	infos := eng.List()
	require.Len(t, infos, 2)
	assert.Equal(t, first, infos[0].ID)
	assert.Equal(t, second, infos[1].ID)
}

func TestSubscribeAfterTerminalClosesImmediately(t *testing.T) {
	eng := newTestEngine(t, newTestPool(t, 1, nil), &scriptRunner{}, Config{})

	id, err := eng.Submit(context.Background(), testSuite("login"), Options{})
	require.NoError(t, err)
	waitTerminal(t, eng, id)

	ch, cancel, err := eng.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestCloseCancelsRunningExecutions(t *testing.T) {
	r := &scriptRunner{
		arrive:  make(chan string, 1),
		proceed: make(chan struct{}),
	}
	eng := newTestEngine(t, newTestPool(t, 1, nil), r, Config{})

	id, err := eng.Submit(context.Background(), testSuite("login", "search"), Options{})
	require.NoError(t, err)
	<-r.arrive

	eng.Close()

	info, err := eng.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "canceled")

	rep, err := eng.Report(id)
	require.NoError(t, err)
	assert.Len(t, rep.Results, 2)

	_, err = eng.Submit(context.Background(), testSuite("again"), Options{})
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestSubmitHonorsCanceledContext(t *testing.T) {
	eng := newTestEngine(t, newTestPool(t, 1, nil), &scriptRunner{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Submit(ctx, testSuite("login"), Options{})
	require.ErrorIs(t, err, context.Canceled)
}
