// Package tui renders a live view of one running execution: a spinner per
// in-flight scenario, status lines as results land, and running totals. It is
// used by `patrol run` on a TTY; everywhere else the CLI prints plain event
// lines.
//
// The view is a pure consumer: it only reads the execution's progress events
// and never influences the run. Quitting the view detaches from the stream,
// it does not cancel the execution.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/patrol/pkg/progress"
)

// RunInfo identifies the execution the view follows.
type RunInfo struct {
	ExecutionID string
	SuiteName   string

	// Scenarios is the suite's scenario names in input order; the view
	// keeps this order no matter when results arrive.
	Scenarios []string
}

// scenarioState is the view's notion of one scenario's progress.
type scenarioState int

const (
	statePending scenarioState = iota
	stateRunning
	statePassed
	stateFailed
	stateSkipped
)

// eventMsg delivers the next progress event to the model.
type eventMsg progress.Event

// closedMsg signals that the event stream ended without a terminal event
// (subscription canceled or broadcaster shut down).
type closedMsg struct{}

type model struct {
	info    RunInfo
	events  <-chan progress.Event
	spinner spinner.Model

	states   map[string]scenarioState
	notes    map[string]string // short failure note per scenario
	passed   int
	failed   int
	skipped  int
	started  time.Time
	done     bool
	detached bool
	final    string // terminal event message
}

func newModel(info RunInfo, events <-chan progress.Event) model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	states := make(map[string]scenarioState, len(info.Scenarios))
	for _, name := range info.Scenarios {
		states[name] = statePending
	}

	return model{
		info:    info,
		events:  events,
		spinner: sp,
		states:  states,
		notes:   make(map[string]string),
		started: time.Now(),
	}
}

// waitForEvent blocks on the subscription channel and hands the next event
// to Update. Re-issued after every event until the stream closes.
func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.detached = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(progress.Event(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case closedMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one progress event into the view state.
func (m *model) apply(ev progress.Event) {
	name, _ := ev.Fields["scenario"].(string)

	switch ev.Type {
	case progress.EventScenarioStarted:
		m.setState(name, stateRunning)

	case progress.EventScenarioCompleted:
		m.setState(name, statePassed)
		m.passed++

	case progress.EventScenarioFailed:
		m.setState(name, stateFailed)
		m.failed++
		if cat, ok := ev.Fields["category"].(string); ok {
			m.notes[name] = cat
		}

	case progress.EventScenarioSkipped:
		m.setState(name, stateSkipped)
		m.skipped++
	}

	if ev.Terminal() {
		m.done = true
		m.final = ev.Message
	}
}

func (m *model) setState(name string, s scenarioState) {
	if _, known := m.states[name]; known {
		m.states[name] = s
	}
}
