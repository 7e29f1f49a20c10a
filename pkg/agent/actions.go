package agent

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Action names the agent may emit.
const (
	ActionNavigate    = "navigate"
	ActionClick       = "click"
	ActionFill        = "fill"
	ActionPress       = "press"
	ActionWaitFor     = "wait_for"
	ActionExtractText = "extract_text"
	ActionEvaluate    = "evaluate"
	ActionScroll      = "scroll"
	ActionScreenshot  = "screenshot"
	ActionVerdict     = "verdict"
)

// Verdict statuses.
const (
	VerdictPassed = "passed"
	VerdictFailed = "failed"
)

// Action is one browser operation requested by the model, parsed from
// the XML block in its reply.
type Action struct {
	XMLName   xml.Name `xml:"action"`
	Name      string   `xml:"name"`
	URL       string   `xml:"url"`
	Selector  string   `xml:"selector"`
	Value     string   `xml:"value"`
	Key       string   `xml:"key"`
	State     string   `xml:"state"`
	Script    string   `xml:"script"`
	Direction string   `xml:"direction"`
	FullPage  bool     `xml:"full_page"`
	Status    string   `xml:"status"`
	Reason    string   `xml:"reason"`
}

// Validate checks that the action carries the parameters its name
// requires.
func (a *Action) Validate() error {
	switch a.Name {
	case "":
		return fmt.Errorf("action name is required")
	case ActionNavigate:
		if a.URL == "" {
			return fmt.Errorf("navigate requires a url")
		}
	case ActionClick:
		if a.Selector == "" {
			return fmt.Errorf("click requires a selector")
		}
	case ActionFill:
		if a.Selector == "" {
			return fmt.Errorf("fill requires a selector")
		}
		if a.Value == "" {
			return fmt.Errorf("fill requires a value")
		}
	case ActionPress:
		if a.Selector == "" {
			return fmt.Errorf("press requires a selector")
		}
		if a.Key == "" {
			return fmt.Errorf("press requires a key")
		}
	case ActionWaitFor:
		if a.Selector == "" {
			return fmt.Errorf("wait_for requires a selector")
		}
	case ActionExtractText:
		// Selector is optional; empty extracts the whole body.
	case ActionEvaluate:
		if a.Script == "" {
			return fmt.Errorf("evaluate requires a script")
		}
	case ActionScroll, ActionScreenshot:
		// No required parameters.
	case ActionVerdict:
		if a.Status != VerdictPassed && a.Status != VerdictFailed {
			return fmt.Errorf("verdict requires status %q or %q", VerdictPassed, VerdictFailed)
		}
		if a.Reason == "" {
			return fmt.Errorf("verdict requires a reason")
		}
	default:
		return fmt.Errorf("unknown action %q", a.Name)
	}
	return nil
}

// Describe renders the action and its salient parameter for logs and
// step records.
func (a *Action) Describe() string {
	switch a.Name {
	case ActionNavigate:
		return fmt.Sprintf("navigate to %s", a.URL)
	case ActionClick:
		return fmt.Sprintf("click %s", a.Selector)
	case ActionFill:
		return fmt.Sprintf("fill %s", a.Selector)
	case ActionPress:
		return fmt.Sprintf("press %s on %s", a.Key, a.Selector)
	case ActionWaitFor:
		state := a.State
		if state == "" {
			state = "visible"
		}
		return fmt.Sprintf("wait for %s to be %s", a.Selector, state)
	case ActionExtractText:
		if a.Selector == "" {
			return "extract page text"
		}
		return fmt.Sprintf("extract text from %s", a.Selector)
	case ActionEvaluate:
		script := a.Script
		if len(script) > 60 {
			script = script[:60] + "..."
		}
		return fmt.Sprintf("evaluate %s", script)
	case ActionScroll:
		direction := a.Direction
		if direction == "" {
			direction = "down"
		}
		return fmt.Sprintf("scroll %s", direction)
	case ActionScreenshot:
		return "take screenshot"
	case ActionVerdict:
		return fmt.Sprintf("verdict: %s", a.Status)
	}
	return a.Name
}

// args returns the action parameters that were set, for step records.
func (a *Action) args() map[string]string {
	out := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("url", a.URL)
	set("selector", a.Selector)
	set("value", a.Value)
	set("key", a.Key)
	set("state", a.State)
	set("direction", a.Direction)
	set("status", a.Status)
	if a.Script != "" {
		script := a.Script
		if len(script) > 120 {
			script = script[:120] + "..."
		}
		out["script"] = script
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ActionNames lists every action the agent understands, in the order
// they appear in the system prompt.
func ActionNames() []string {
	return []string{
		ActionNavigate, ActionClick, ActionFill, ActionPress, ActionWaitFor,
		ActionExtractText, ActionEvaluate, ActionScroll, ActionScreenshot, ActionVerdict,
	}
}

// String implements fmt.Stringer.
func (a *Action) String() string {
	return strings.TrimSpace(a.Describe())
}
