// Package suite defines the declarative scenario suite model and its parser.
//
// A suite is authored as YAML: a name, shared defaults, and an ordered list
// of natural-language scenarios. Parsing validates the document and resolves
// suite-level defaults into each scenario, so downstream consumers never
// re-implement the cascade.
package suite

import (
	"fmt"
	"time"
)

// TestType tags what kind of check a scenario performs.
type TestType string

const (
	TypeFunctional    TestType = "functional"
	TypeUI            TestType = "ui"
	TypeIntegration   TestType = "integration"
	TypeAccessibility TestType = "accessibility"
	TypePerformance   TestType = "performance"
)

// TestTypes returns all recognized test types in a stable order.
func TestTypes() []TestType {
	return []TestType{TypeFunctional, TypeUI, TypeIntegration, TypeAccessibility, TypePerformance}
}

// Valid reports whether t is one of the recognized test types.
func (t TestType) Valid() bool {
	switch t {
	case TypeFunctional, TypeUI, TypeIntegration, TypeAccessibility, TypePerformance:
		return true
	}
	return false
}

// Suite is an ordered collection of scenarios plus shared defaults. The
// provider, headless, timeout, and take_screenshots fields cascade into any
// scenario that leaves them unset.
type Suite struct {
	Name            string     `yaml:"name" json:"name"`
	Description     string     `yaml:"description,omitempty" json:"description,omitempty"`
	Provider        string     `yaml:"provider,omitempty" json:"provider,omitempty"`
	Headless        *bool      `yaml:"headless,omitempty" json:"headless,omitempty"`
	Timeout         int        `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	TakeScreenshots *bool      `yaml:"take_screenshots,omitempty" json:"take_screenshots,omitempty"`
	Scenarios       []Scenario `yaml:"scenarios" json:"scenarios"`
}

// Scenario is one declarative natural-language browser test case. Scenarios
// are immutable once parsed; the engine receives them by value.
type Scenario struct {
	Name             string   `yaml:"name" json:"name"`
	Requirement      string   `yaml:"requirement" json:"requirement"`
	URL              string   `yaml:"url" json:"url"`
	Type             TestType `yaml:"test_type" json:"test_type"`
	Context          string   `yaml:"context,omitempty" json:"context,omitempty"`
	Steps            []string `yaml:"steps,omitempty" json:"steps,omitempty"`
	ExpectedOutcomes []string `yaml:"expected_outcomes,omitempty" json:"expected_outcomes,omitempty"`
	TakeScreenshots  *bool    `yaml:"take_screenshots,omitempty" json:"take_screenshots,omitempty"`
	Timeout          int      `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Provider         string   `yaml:"provider,omitempty" json:"provider,omitempty"`
	Headless         *bool    `yaml:"headless,omitempty" json:"headless,omitempty"`
}

// HeadlessEnabled reports the resolved headless setting. Unset means true.
func (s Scenario) HeadlessEnabled() bool {
	return s.Headless == nil || *s.Headless
}

// ScreenshotsEnabled reports whether the scenario asked for screenshots.
func (s Scenario) ScreenshotsEnabled() bool {
	return s.TakeScreenshots != nil && *s.TakeScreenshots
}

// TimeoutDuration returns the per-scenario timeout, or zero when unset.
func (s Scenario) TimeoutDuration() time.Duration {
	if s.Timeout <= 0 {
		return 0
	}
	return time.Duration(s.Timeout) * time.Second
}

// ValidationError describes a rejected suite document. Scenario is empty for
// suite-level problems.
type ValidationError struct {
	Scenario string
	Field    string
	Reason   string
}

// Error names the offending scenario and field.
func (e *ValidationError) Error() string {
	if e.Scenario == "" {
		return fmt.Sprintf("invalid suite: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid scenario %q: %s %s", e.Scenario, e.Field, e.Reason)
}

func suiteErr(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func scenarioErr(scenario, field, reason string) *ValidationError {
	return &ValidationError{Scenario: scenario, Field: field, Reason: reason}
}
