// Package progress fans out ordered progress events for a running execution
// to any number of observers.
package progress

import "time"

// EventType names a lifecycle edge of an execution or one of its scenarios.
type EventType string

const (
	EventExecutionStarted  EventType = "execution.started"
	EventScenarioStarted   EventType = "scenario.started"
	EventScenarioCompleted EventType = "scenario.completed"
	EventScenarioFailed    EventType = "scenario.failed"
	EventScenarioSkipped   EventType = "scenario.skipped"
	EventScreenshotTaken   EventType = "screenshot.taken"
	EventLog               EventType = "log"
	EventExecutionComplete EventType = "execution.completed"
	EventExecutionFailed   EventType = "execution.failed"
	EventExecutionTimedOut EventType = "execution.timed_out"
)

// Event is one progress record for an execution. Seq increases by one per
// event within an execution, so observers can detect drops and reorder.
type Event struct {
	ExecutionID string         `json:"execution_id"`
	Seq         uint64         `json:"seq"`
	Timestamp   time.Time      `json:"timestamp"`
	Level       string         `json:"level"`
	Type        EventType      `json:"type"`
	Message     string         `json:"message"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// Terminal reports whether this event ends its execution's stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventExecutionComplete, EventExecutionFailed, EventExecutionTimedOut:
		return true
	}
	return false
}
