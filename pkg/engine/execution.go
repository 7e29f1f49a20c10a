package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/patrol/pkg/progress"
	"github.com/entrhq/patrol/pkg/report"
	"github.com/entrhq/patrol/pkg/suite"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to.Terminal()
	}
	return false
}

// StatusInfo is the externally visible snapshot of an execution.
type StatusInfo struct {
	ID          string        `json:"id"`
	SuiteName   string        `json:"suite_name"`
	Mode        Mode          `json:"mode"`
	Status      Status        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Totals      report.Totals `json:"totals"`
	Error       string        `json:"error,omitempty"`
}

// execution is the engine-owned state of one submitted suite. External
// observers only ever see snapshots.
type execution struct {
	id    string
	suite *suite.Suite
	cfg   Config

	agg    *report.Aggregator
	bc     *progress.Broadcaster
	cancel context.CancelFunc

	// stop trips when fail-fast sees the first failure. Pending scenarios
	// check it before starting; in-flight ones are left to finish.
	stop atomic.Bool

	mu          sync.Mutex
	status      Status
	startedAt   time.Time
	completedAt time.Time
	finalReport *report.Report
	execErr     error
}

func newExecution(id string, st *suite.Suite, cfg Config) *execution {
	order := make([]string, len(st.Scenarios))
	for i, sc := range st.Scenarios {
		order[i] = sc.Name
	}
	return &execution{
		id:     id,
		suite:  st,
		cfg:    cfg,
		status: StatusPending,
		agg:    report.NewAggregator(order),
		bc:     progress.NewBroadcaster(id),
	}
}

// transition advances the state machine, stamping start and completion
// times. Illegal transitions indicate an engine bug.
func (e *execution) transition(to Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !validTransition(e.status, to) {
		return fmt.Errorf("invalid execution transition from %s to %s", e.status, to)
	}
	e.status = to
	switch {
	case to == StatusRunning:
		e.startedAt = time.Now()
	case to.Terminal():
		e.completedAt = time.Now()
	}
	return nil
}

func (e *execution) currentStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *execution) setError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.execErr == nil {
		e.execErr = err
	}
}

func (e *execution) setFinalReport(r *report.Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalReport = r
}

func (e *execution) snapshot() StatusInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := StatusInfo{
		ID:          e.id,
		SuiteName:   e.suite.Name,
		Mode:        e.cfg.Mode,
		Status:      e.status,
		StartedAt:   e.startedAt,
		CompletedAt: e.completedAt,
		Totals:      e.agg.Totals(),
	}
	if e.execErr != nil {
		info.Error = e.execErr.Error()
	}
	return info
}

// reportSnapshot returns the final report once terminal, or an incremental
// report reflecting results so far while still running.
func (e *execution) reportSnapshot() *report.Report {
	e.mu.Lock()
	status := e.status
	final := e.finalReport
	startedAt := e.startedAt
	e.mu.Unlock()

	if final != nil {
		return final
	}
	asOf := startedAt
	if !startedAt.IsZero() {
		asOf = time.Now()
	}
	return e.agg.Build(report.Meta{
		ExecutionID: e.id,
		SuiteName:   e.suite.Name,
		Status:      string(status),
		StartedAt:   startedAt,
		CompletedAt: asOf,
	})
}
