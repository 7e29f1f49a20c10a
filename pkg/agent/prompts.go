package agent

import (
	"fmt"
	"strings"

	"github.com/entrhq/patrol/pkg/suite"
)

// capabilitiesPrompt outlines what the test agent can do.
const capabilitiesPrompt = `<system_capabilities>
- Drive a real browser session to verify a requirement against a live web application
- Observe the current page through cleaned HTML snapshots with targeting attributes preserved
- Interact with pages by navigating, clicking, filling forms, pressing keys and scrolling
- Extract text and evaluate JavaScript to inspect application state
- Capture screenshots as evidence
- Judge whether the scenario's expected outcomes hold and deliver a verdict
</system_capabilities>`

// loopPrompt describes the observe-think-act cycle.
const loopPrompt = `<agent_loop>
You operate in a test loop, iteratively working through the scenario:
1. Observe: Study the page snapshot in the latest message and the results of previous actions
2. Think: Reason about what the scenario requires next and which element to target
3. Act: Emit exactly one action per reply
4. Iterate: Repeat until every expected outcome has been checked
5. Verdict: Finish with the verdict action, stating whether the scenario passed or failed and why

**CRITICAL:** Every reply MUST end with exactly one action block. There are no exceptions.
**CRITICAL:** Verify each expected outcome against the page before issuing a passed verdict. If an expected outcome does not hold, or the application misbehaves, issue a failed verdict with the evidence you saw.
</agent_loop>`

// thinkingPrompt asks for reasoning ahead of the action.
const thinkingPrompt = `<reasoning>
Before the action block, briefly explain what you observed and why you chose the next action. Keep it to a few sentences in plain prose. This reasoning becomes part of the test narrative, so name the elements and outcomes you are checking.
</reasoning>`

// actionCallingPrompt specifies the action wire format.
const actionCallingPrompt = `<action_calling>
Actions are formatted in pure XML. One action per reply, always the last thing in the reply:

<action>
  <name>action_name_here</name>
  <selector>#css-selector</selector>
</action>

**CONTENT ENCODING RULES:**
Escape special XML characters in every field value:
  & (ampersand) → &amp;
  < (less than) → &lt;
  > (greater than) → &gt;

**CRITICAL RULES:**
1. ALWAYS follow the action schema exactly as specified
2. NEVER emit an action that is not listed in <available_actions>
3. Use CSS selectors built from id, class, name, placeholder or data-* attributes visible in the snapshot
4. Do not guess selectors for elements you have not seen in a snapshot
</action_calling>`

// verdictPrompt defines how scenarios end.
const verdictPrompt = `<verdict_rules>
The verdict action ends the scenario. Issue it when:
- Every expected outcome has been verified on the page → status "passed"
- An expected outcome does not hold, or the application errors, or the scenario cannot proceed → status "failed"

The reason field must summarize what was tested and what you observed, in one or two sentences. A failed verdict must name the outcome that did not hold.

Do not keep interacting after the outcomes are settled. Do not issue a verdict before checking the outcomes.
</verdict_rules>`

// actionCatalog renders the available actions with their parameters.
func actionCatalog() string {
	var b strings.Builder
	b.WriteString("<available_actions>\n")
	b.WriteString(`navigate: load a URL
  <url> (required) absolute URL to open

click: click the first element matching a selector
  <selector> (required) CSS selector

fill: clear an input and type a value into it
  <selector> (required) CSS selector
  <value> (required) text to enter

press: send a key press to an element
  <selector> (required) CSS selector
  <key> (required) key name, e.g. Enter, Tab, ArrowDown

wait_for: wait until an element reaches a state
  <selector> (required) CSS selector
  <state> (optional) visible (default), hidden, attached or detached

extract_text: read text content from the page
  <selector> (optional) CSS selector; omit for the whole page body

evaluate: run JavaScript in the page and observe the result
  <script> (required) JavaScript expression or IIFE

scroll: move the viewport
  <direction> (optional) down (default), up, top or bottom

screenshot: capture the current page as evidence
  <full_page> (optional) true to capture beyond the viewport

verdict: end the scenario with a judgement
  <status> (required) passed or failed
  <reason> (required) what was tested and what you observed
`)
	b.WriteString("</available_actions>")
	return b.String()
}

// formatScenario renders the scenario brief handed to the model.
func formatScenario(sc *suite.Scenario) string {
	var b strings.Builder
	b.WriteString("<scenario>\n")
	fmt.Fprintf(&b, "Name: %s\n", sc.Name)
	fmt.Fprintf(&b, "Type: %s\n", sc.Type)
	fmt.Fprintf(&b, "Requirement: %s\n", sc.Requirement)
	fmt.Fprintf(&b, "Starting URL: %s\n", sc.URL)
	if sc.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", sc.Context)
	}
	if len(sc.Steps) > 0 {
		b.WriteString("Suggested steps:\n")
		for i, step := range sc.Steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}
	if len(sc.ExpectedOutcomes) > 0 {
		b.WriteString("Expected outcomes (each one must be verified):\n")
		for _, outcome := range sc.ExpectedOutcomes {
			fmt.Fprintf(&b, "  - %s\n", outcome)
		}
	}
	b.WriteString("</scenario>")
	return b.String()
}

// buildSystemPrompt assembles the full system prompt for a scenario.
func buildSystemPrompt(sc *suite.Scenario) string {
	sections := []string{
		capabilitiesPrompt,
		loopPrompt,
		thinkingPrompt,
		actionCallingPrompt,
		actionCatalog(),
		verdictPrompt,
		formatScenario(sc),
	}
	return strings.Join(sections, "\n\n")
}

// buildObservation renders the page snapshot, and optionally a note
// about the previous action, as the next user message. Observations are
// ephemeral: only the latest one is sent, so the transcript stays small.
func buildObservation(snapshot, note string) string {
	var b strings.Builder
	if note != "" {
		b.WriteString("<execution_note>\n")
		b.WriteString(note)
		b.WriteString("\n</execution_note>\n\n")
	}
	b.WriteString("<observation>\n")
	b.WriteString(snapshot)
	b.WriteString("\n</observation>")
	return b.String()
}

// buildRecoveryNote describes a failed action so the model can adjust.
func buildRecoveryNote(action *Action, err error) string {
	return fmt.Sprintf(
		"The previous action (%s) failed: %v\nAnalyse the snapshot again and try a different approach. If the failure indicates the expected outcome cannot hold, issue a failed verdict.",
		action.Describe(), err)
}

// buildParseRecoveryNote nudges the model back onto the wire format.
func buildParseRecoveryNote(err error) string {
	return fmt.Sprintf(
		"Your previous reply could not be executed: %v\nReply with your reasoning followed by exactly one <action> block as specified in <action_calling>.",
		err)
}
