package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/patrol/pkg/agent"
	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/faults"
	"github.com/entrhq/patrol/pkg/progress"
	"github.com/entrhq/patrol/pkg/report"
	"github.com/entrhq/patrol/pkg/suite"
)

// run drives one execution from start to its terminal state. It owns the
// execution's context and always finalizes, whatever the scenarios did.
func (e *Engine) run(ctx context.Context, exec *execution) {
	defer e.wg.Done()
	defer exec.cancel()

	recorded := make([]bool, len(exec.suite.Scenarios))
	runErr := e.dispatch(ctx, exec, recorded)
	e.finalize(ctx, exec, recorded, runErr)
}

// dispatch marks the execution running and hands the suite to the mode's
// loop. A non-nil return is an orchestrator fault and fails the whole
// execution; individual scenario failures never surface here.
func (e *Engine) dispatch(ctx context.Context, exec *execution, recorded []bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execution runner panicked: %v", r)
		}
	}()

	if err := exec.transition(StatusRunning); err != nil {
		return err
	}
	exec.bc.Publish("info", progress.EventExecutionStarted,
		fmt.Sprintf("executing suite %q: %d scenarios, %s mode",
			exec.suite.Name, len(exec.suite.Scenarios), exec.cfg.Mode),
		map[string]any{
			"suite":     exec.suite.Name,
			"mode":      string(exec.cfg.Mode),
			"scenarios": len(exec.suite.Scenarios),
		})

	if exec.cfg.Mode == ModeParallel {
		return e.runParallel(ctx, exec, recorded)
	}
	return e.runSequential(ctx, exec, recorded)
}

// runSequential executes scenarios in suite order on a single session,
// re-acquiring only when a scenario needs different browser characteristics
// or the previous scenario poisoned the session.
func (e *Engine) runSequential(ctx context.Context, exec *execution, recorded []bool) error {
	var sess *browser.Session
	var sessHeadless bool
	defer func() {
		if sess != nil {
			e.pool.Release(sess)
		}
	}()

	for i := range exec.suite.Scenarios {
		sc := exec.suite.Scenarios[i]
		if ctx.Err() != nil || exec.stop.Load() {
			return nil
		}

		if sess != nil && sessHeadless != sc.HeadlessEnabled() {
			e.pool.Release(sess)
			sess = nil
		}
		if sess == nil {
			s, err := e.acquire(ctx, exec, sc)
			if err != nil {
				if abort := e.acquireFailed(exec, sc, err, ctx.Err(), &recorded[i]); abort != nil {
					return abort
				}
				continue
			}
			sess = s
			sessHeadless = sc.HeadlessEnabled()
		}

		if poisoned := e.runScenario(ctx, exec, sc, sess, &recorded[i]); poisoned {
			e.pool.Destroy(sess)
			sess = nil
		}
	}
	return nil
}

// runParallel executes scenarios concurrently, bounded by the pool's
// capacity so workers never exceed the sessions available to them.
func (e *Engine) runParallel(ctx context.Context, exec *execution, recorded []bool) error {
	limit := e.pool.Stats().MaxSessions
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range exec.suite.Scenarios {
		sc := exec.suite.Scenarios[i]
		slot := &recorded[i]
		g.Go(func() error {
			if gctx.Err() != nil || exec.stop.Load() {
				return nil
			}
			sess, err := e.acquire(gctx, exec, sc)
			if err != nil {
				return e.acquireFailed(exec, sc, err, gctx.Err(), slot)
			}
			if poisoned := e.runScenario(gctx, exec, sc, sess, slot); poisoned {
				e.pool.Destroy(sess)
			} else {
				e.pool.Release(sess)
			}
			return nil
		})
	}
	return g.Wait()
}

// acquire checks out a session matching the scenario, retrying with doubling
// backoff while the pool is merely busy.
func (e *Engine) acquire(ctx context.Context, exec *execution, sc suite.Scenario) (*browser.Session, error) {
	headless := sc.HeadlessEnabled()
	req := browser.AcquireRequest{
		Headless:    &headless,
		ExecutionID: exec.id,
	}

	backoff := acquireBackoff
	var lastErr error
	for attempt := 0; attempt <= exec.cfg.AcquireRetries; attempt++ {
		if attempt > 0 {
			e.warnf("execution %s: pool busy, retrying acquire for scenario %q in %s (attempt %d of %d)",
				exec.id, sc.Name, backoff, attempt, exec.cfg.AcquireRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		actx, cancel := context.WithTimeout(ctx, exec.cfg.AcquireTimeout)
		sess, err := e.pool.AcquireWith(actx, req)
		cancel()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if !errors.Is(err, browser.ErrPoolBusy) {
			return nil, err
		}
	}
	return nil, lastErr
}

// acquireFailed turns an acquire error into either an execution abort (pool
// gone), a silent early exit (deadline or shutdown, finalize will account
// for the scenario), or a recorded failure for this scenario alone.
func (e *Engine) acquireFailed(exec *execution, sc suite.Scenario, err, ctxErr error, recorded *bool) error {
	switch {
	case errors.Is(err, browser.ErrPoolClosed), errors.Is(err, browser.ErrPoolNotInitialized):
		return fmt.Errorf("browser pool unavailable: %w", err)
	case ctxErr != nil:
		return nil
	default:
		cls := faults.Classify(fmt.Errorf("could not obtain a browser session: %w", err))
		e.record(exec, newScenarioResult(sc.Name, report.StatusFailed, 0, nil, cls), recorded)
		return nil
	}
}

// runScenario executes one scenario on the given session and records exactly
// one result for it. The return value reports whether the session's page is
// in an unknown state and must not be reused.
func (e *Engine) runScenario(ctx context.Context, exec *execution, sc suite.Scenario, sess *browser.Session, recorded *bool) (poisoned bool) {
	timeout := sc.TimeoutDuration()
	if timeout <= 0 {
		timeout = exec.cfg.ScenarioTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec.bc.Publish("info", progress.EventScenarioStarted,
		fmt.Sprintf("scenario %q started", sc.Name),
		map[string]any{"scenario": sc.Name, "type": string(sc.Type)})

	type outcome struct {
		res *agent.Result
		err error
	}
	// Buffered so an abandoned runner can still deliver and exit.
	done := make(chan outcome, 1)
	start := time.Now()
	runner := e.runnerFor(sc)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("scenario runner panicked: %v", r)}
			}
		}()
		res, err := runner.RunScenario(sctx, sess, sc)
		done <- outcome{res: res, err: err}
	}()

	var result report.ScenarioResult
	select {
	case <-sctx.Done():
		// The runner is abandoned mid-action; the page state is unknown.
		poisoned = true
		result = newScenarioResult(sc.Name, report.StatusFailed, time.Since(start), nil, e.timeoutFault(ctx, timeout))

	case out := <-done:
		elapsed := time.Since(start)
		switch {
		case out.err != nil:
			cls := faults.Classify(out.err)
			if cls.Category == faults.CategoryBrowser {
				poisoned = true
			}
			result = newScenarioResult(sc.Name, report.StatusFailed, elapsed, out.res, cls)
		case out.res.Passed:
			result = newScenarioResult(sc.Name, report.StatusPassed, elapsed, out.res, nil)
		default:
			// The agent reached a failed verdict: the run itself worked,
			// the application did not behave as required.
			cls := faults.New(faults.CategoryValidation, out.res.Narrative)
			result = newScenarioResult(sc.Name, report.StatusFailed, elapsed, out.res, cls)
		}
	}

	for i := range result.ScreenshotData {
		exec.bc.Publish("info", progress.EventScreenshotTaken,
			fmt.Sprintf("screenshot %d captured for scenario %q", i+1, sc.Name),
			map[string]any{"scenario": sc.Name})
	}

	e.record(exec, result, recorded)
	return poisoned
}

// timeoutFault distinguishes a scenario outliving its own budget from one
// cut off by the execution-wide deadline or a shutdown.
func (e *Engine) timeoutFault(ctx context.Context, timeout time.Duration) *faults.Classified {
	switch {
	case ctx.Err() == nil:
		return faults.New(faults.CategoryTimeout, fmt.Sprintf("scenario timed out after %s", timeout))
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return faults.New(faults.CategoryTimeout, "execution deadline reached mid-scenario")
	default:
		return faults.New(faults.CategoryUnknown, "scenario interrupted: execution canceled")
	}
}

// record stores a scenario result, publishes its terminal event, and updates
// metrics. Live results pass their recorded slot; synthesized ones pass nil,
// which also keeps them from tripping fail-fast.
func (e *Engine) record(exec *execution, res report.ScenarioResult, recorded *bool) {
	exec.agg.Add(res)
	e.metrics.ScenarioFinished(string(res.Status), res.Duration)
	for _, cls := range res.Errors {
		e.metrics.ErrorClassified(string(cls.Category))
	}

	switch res.Status {
	case report.StatusPassed:
		exec.bc.Publish("info", progress.EventScenarioCompleted,
			fmt.Sprintf("scenario %q passed in %s", res.Name, res.Duration.Round(time.Millisecond)),
			map[string]any{"scenario": res.Name, "duration_seconds": res.Duration.Seconds()})

	case report.StatusFailed:
		fields := map[string]any{"scenario": res.Name, "duration_seconds": res.Duration.Seconds()}
		msg := fmt.Sprintf("scenario %q failed", res.Name)
		if len(res.Errors) > 0 {
			fields["category"] = string(res.Errors[0].Category)
			msg = fmt.Sprintf("scenario %q failed: %s", res.Name, res.Errors[0].Message)
		}
		exec.bc.Publish("error", progress.EventScenarioFailed, msg, fields)

	case report.StatusSkipped:
		exec.bc.Publish("warn", progress.EventScenarioSkipped,
			fmt.Sprintf("scenario %q skipped", res.Name),
			map[string]any{"scenario": res.Name})
	}

	if recorded != nil {
		*recorded = true
		if exec.cfg.FailFast && res.Status == report.StatusFailed && exec.stop.CompareAndSwap(false, true) {
			exec.bc.Publish("warn", progress.EventLog,
				"fail-fast: scenarios that have not started will be skipped",
				map[string]any{"scenario": res.Name})
		}
	}
}

// finalize accounts for every scenario that never recorded a result, settles
// the terminal status, freezes the report, and closes the event stream. It
// publishes the terminal event last so subscribers always see it.
func (e *Engine) finalize(ctx context.Context, exec *execution, recorded []bool, runErr error) {
	deadline := errors.Is(ctx.Err(), context.DeadlineExceeded)
	for i := range exec.suite.Scenarios {
		if recorded[i] {
			continue
		}
		name := exec.suite.Scenarios[i].Name
		if deadline {
			cls := faults.New(faults.CategoryTimeout, "execution deadline reached before the scenario started")
			e.record(exec, newScenarioResult(name, report.StatusFailed, 0, nil, cls), nil)
		} else {
			e.record(exec, newScenarioResult(name, report.StatusSkipped, 0, nil, nil), nil)
		}
	}

	if runErr != nil {
		exec.setError(runErr)
	}
	var status Status
	switch {
	case deadline:
		status = StatusTimedOut
		exec.setError(fmt.Errorf("execution exceeded its %s global timeout", exec.cfg.GlobalTimeout))
	case runErr != nil:
		status = StatusFailed
	case ctx.Err() != nil:
		status = StatusFailed
		exec.setError(errors.New("execution canceled"))
	default:
		status = StatusCompleted
	}

	if err := exec.transition(status); err != nil {
		e.warnf("execution %s: %v", exec.id, err)
	}

	info := exec.snapshot()
	final := exec.agg.Build(report.Meta{
		ExecutionID: exec.id,
		SuiteName:   exec.suite.Name,
		Status:      string(status),
		StartedAt:   info.StartedAt,
		CompletedAt: info.CompletedAt,
	})
	exec.setFinalReport(final)

	e.metrics.ExecutionFinished(string(status))
	e.metrics.EventsDropped(exec.bc.Dropped())

	fields := map[string]any{
		"total":        final.Total,
		"passed":       final.Passed,
		"failed":       final.Failed,
		"skipped":      final.Skipped,
		"success_rate": final.SuccessRate,
	}
	switch status {
	case StatusCompleted:
		exec.bc.Publish("info", progress.EventExecutionComplete,
			fmt.Sprintf("execution completed: %d/%d scenarios passed", final.Passed, final.Total), fields)
	case StatusTimedOut:
		exec.bc.Publish("error", progress.EventExecutionTimedOut,
			fmt.Sprintf("execution timed out after %s", exec.cfg.GlobalTimeout), fields)
	default:
		fields["error"] = info.Error
		exec.bc.Publish("error", progress.EventExecutionFailed,
			fmt.Sprintf("execution failed: %s", info.Error), fields)
	}
	exec.bc.Close()

	e.infof("execution %s finished %s: %d/%d passed, %d failed, %d skipped",
		exec.id, status, final.Passed, final.Total, final.Failed, final.Skipped)
}

// newScenarioResult assembles the recorded form of one scenario outcome.
func newScenarioResult(name string, status report.Status, d time.Duration, res *agent.Result, cls *faults.Classified) report.ScenarioResult {
	out := report.ScenarioResult{
		Name:     name,
		Status:   status,
		Success:  status == report.StatusPassed,
		Duration: d,
	}
	if res != nil {
		out.Narrative = res.Narrative
		out.Steps = res.Steps
		out.ScreenshotData = res.Screenshots
	}
	if cls != nil {
		out.Errors = []*faults.Classified{cls}
	}
	return out
}
