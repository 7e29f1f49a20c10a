package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/patrol/pkg/report"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusTimedOut.Terminal())
}

func TestValidTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusTimedOut, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusTimedOut, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
		{StatusTimedOut, StatusRunning, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, validTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionStampsTimes(t *testing.T) {
	exec := newExecution("exec-1", testSuite("login"), Config{}.withDefaults())

	require.NoError(t, exec.transition(StatusRunning))
	info := exec.snapshot()
	assert.False(t, info.StartedAt.IsZero())
	assert.True(t, info.CompletedAt.IsZero())

	require.NoError(t, exec.transition(StatusCompleted))
	info = exec.snapshot()
	assert.False(t, info.CompletedAt.IsZero())
	assert.False(t, info.CompletedAt.Before(info.StartedAt))
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	exec := newExecution("exec-1", testSuite("login"), Config{}.withDefaults())

	err := exec.transition(StatusCompleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid execution transition from pending to completed")

	require.NoError(t, exec.transition(StatusRunning))
	require.NoError(t, exec.transition(StatusTimedOut))
	err = exec.transition(StatusRunning)
	require.Error(t, err)
}

func TestSetErrorKeepsTheFirst(t *testing.T) {
	exec := newExecution("exec-1", testSuite("login"), Config{}.withDefaults())
	exec.setError(errors.New("pool vanished"))
	exec.setError(errors.New("later noise"))

	assert.Equal(t, "pool vanished", exec.snapshot().Error)
}

func TestReportSnapshotIncrementalThenFinal(t *testing.T) {
	exec := newExecution("exec-1", testSuite("login", "search"), Config{}.withDefaults())
	require.NoError(t, exec.transition(StatusRunning))

	exec.agg.Add(report.ScenarioResult{
		Name:     "login",
		Status:   report.StatusPassed,
		Success:  true,
		Duration: 2 * time.Second,
	})

	partial := exec.reportSnapshot()
	assert.Equal(t, string(StatusRunning), partial.Status)
	assert.Equal(t, 1, partial.Total)
	assert.GreaterOrEqual(t, partial.Duration, time.Duration(0))

	final := &report.Report{ExecutionID: "exec-1", Status: string(StatusCompleted)}
	exec.setFinalReport(final)
	assert.Same(t, final, exec.reportSnapshot())
}
