// Package report accumulates scenario results into running totals and renders
// the final execution report. All rendered forms derive from the same Report
// value so counts can never drift between formats.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/entrhq/patrol/pkg/agent"
	"github.com/entrhq/patrol/pkg/faults"
)

// Status is the terminal outcome of one scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ScenarioResult is the recorded outcome of a single scenario.
type ScenarioResult struct {
	Name        string               `json:"name"`
	Status      Status               `json:"status"`
	Success     bool                 `json:"success"`
	Duration    time.Duration        `json:"duration"`
	Errors      []*faults.Classified `json:"errors,omitempty"`
	Screenshots []string             `json:"screenshots,omitempty"`
	Narrative   string               `json:"narrative,omitempty"`
	Steps       []agent.Step         `json:"steps,omitempty"`

	// ScreenshotData holds captured images until an ArtifactWriter persists
	// them and fills Screenshots with the written paths.
	ScreenshotData [][]byte `json:"-"`
}

// Report is the final form of an execution. Total counts terminal results
// only, so Total == Passed + Failed holds even when fail-fast skips the tail
// of the suite.
type Report struct {
	ExecutionID string           `json:"execution_id"`
	SuiteName   string           `json:"suite_name"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Duration    time.Duration    `json:"duration"`
	Total       int              `json:"total"`
	Passed      int              `json:"passed"`
	Failed      int              `json:"failed"`
	Skipped     int              `json:"skipped"`
	SuccessRate float64          `json:"success_rate"`
	Results     []ScenarioResult `json:"results"`
}

// Totals is a point-in-time summary of an aggregator, safe to query while
// the execution is still running.
type Totals struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
}

// Meta identifies the execution a report is built for.
type Meta struct {
	ExecutionID string
	SuiteName   string
	Status      string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Aggregator accumulates scenario results as they complete. Add is safe for
// concurrent use; parallel executions feed it from many goroutines.
type Aggregator struct {
	mu      sync.Mutex
	order   map[string]int
	results []ScenarioResult
}

// NewAggregator creates an aggregator that presents results in the given
// scenario order regardless of completion order.
func NewAggregator(scenarioOrder []string) *Aggregator {
	order := make(map[string]int, len(scenarioOrder))
	for i, name := range scenarioOrder {
		order[name] = i
	}
	return &Aggregator{order: order}
}

// Add records one terminal scenario result.
func (a *Aggregator) Add(result ScenarioResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
}

// Totals returns the running counts. Skipped scenarios are tracked separately
// from Total so the success rate reflects scenarios that actually ran.
func (a *Aggregator) Totals() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalsLocked()
}

func (a *Aggregator) totalsLocked() Totals {
	var t Totals
	for _, r := range a.results {
		switch r.Status {
		case StatusPassed:
			t.Passed++
		case StatusFailed:
			t.Failed++
		case StatusSkipped:
			t.Skipped++
		}
	}
	t.Total = t.Passed + t.Failed
	t.SuccessRate = successRate(t.Passed, t.Total)
	return t
}

// Results returns a copy of the recorded results in presentation order.
func (a *Aggregator) Results() []ScenarioResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedLocked()
}

func (a *Aggregator) sortedLocked() []ScenarioResult {
	out := make([]ScenarioResult, len(a.results))
	copy(out, a.results)
	rank := func(name string) int {
		if i, ok := a.order[name]; ok {
			return i
		}
		return len(a.order)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Name) < rank(out[j].Name)
	})
	return out
}

// Build freezes the aggregator into the final report.
func (a *Aggregator) Build(meta Meta) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	totals := a.totalsLocked()
	return &Report{
		ExecutionID: meta.ExecutionID,
		SuiteName:   meta.SuiteName,
		Status:      meta.Status,
		StartedAt:   meta.StartedAt,
		CompletedAt: meta.CompletedAt,
		Duration:    meta.CompletedAt.Sub(meta.StartedAt),
		Total:       totals.Total,
		Passed:      totals.Passed,
		Failed:      totals.Failed,
		Skipped:     totals.Skipped,
		SuccessRate: totals.SuccessRate,
		Results:     a.sortedLocked(),
	}
}

func successRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}
