package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/patrol/pkg/progress"
)

func testInfo() RunInfo {
	return RunInfo{
		ExecutionID: "01TEST",
		SuiteName:   "checkout",
		Scenarios:   []string{"login", "add-to-cart", "pay"},
	}
}

func event(t progress.EventType, fields map[string]any) eventMsg {
	return eventMsg(progress.Event{
		ExecutionID: "01TEST",
		Timestamp:   time.Now(),
		Level:       "info",
		Type:        t,
		Fields:      fields,
	})
}

func TestModelTracksScenarioLifecycle(t *testing.T) {
	m := newModel(testInfo(), nil)

	next, _ := m.Update(event(progress.EventScenarioStarted, map[string]any{"scenario": "login"}))
	m = next.(model)
	assert.Equal(t, stateRunning, m.states["login"])
	assert.Equal(t, statePending, m.states["pay"])

	next, _ = m.Update(event(progress.EventScenarioCompleted, map[string]any{"scenario": "login"}))
	m = next.(model)
	assert.Equal(t, statePassed, m.states["login"])
	assert.Equal(t, 1, m.passed)

	next, _ = m.Update(event(progress.EventScenarioFailed, map[string]any{
		"scenario": "add-to-cart",
		"category": "element_not_found",
	}))
	m = next.(model)
	assert.Equal(t, stateFailed, m.states["add-to-cart"])
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, "element_not_found", m.notes["add-to-cart"])

	next, _ = m.Update(event(progress.EventScenarioSkipped, map[string]any{"scenario": "pay"}))
	m = next.(model)
	assert.Equal(t, stateSkipped, m.states["pay"])
	assert.Equal(t, 1, m.skipped)
}

func TestModelQuitsOnTerminalEvent(t *testing.T) {
	m := newModel(testInfo(), nil)

	next, cmd := m.Update(event(progress.EventExecutionComplete, map[string]any{"passed": 3}))
	m = next.(model)
	assert.True(t, m.done)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelQuitsWhenStreamCloses(t *testing.T) {
	m := newModel(testInfo(), nil)

	next, cmd := m.Update(closedMsg{})
	m = next.(model)
	assert.True(t, m.done)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelDetachesOnQuitKey(t *testing.T) {
	m := newModel(testInfo(), nil)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = next.(model)
	assert.True(t, m.detached)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelIgnoresUnknownScenarioNames(t *testing.T) {
	m := newModel(testInfo(), nil)

	next, _ := m.Update(event(progress.EventScenarioStarted, map[string]any{"scenario": "not-in-suite"}))
	m = next.(model)
	assert.Len(t, m.states, 3)
}

func TestViewListsEveryScenario(t *testing.T) {
	m := newModel(testInfo(), nil)
	next, _ := m.Update(event(progress.EventScenarioCompleted, map[string]any{"scenario": "login"}))
	m = next.(model)

	out := m.View()
	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, "login")
	assert.Contains(t, out, "add-to-cart")
	assert.Contains(t, out, "pay")
	assert.Contains(t, out, "1 passed")
}
