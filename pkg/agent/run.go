package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/patrol/pkg/llm"
	"github.com/entrhq/patrol/pkg/suite"
)

// RunScenario drives one scenario to a verdict. A *Result is returned for
// both passed and failed verdicts; an error means the scenario could not be
// completed (provider failure, repeated malformed replies, repeated browser
// errors, context cancellation, or iteration budget exhausted).
func (a *Agent) RunScenario(ctx context.Context, b Browser, sc suite.Scenario) (*Result, error) {
	system := llm.NewSystemMessage(buildSystemPrompt(&sc))
	res := &Result{}

	var history []*llm.Message
	var note string
	var lastActionErr error
	parseFailures := 0
	actionFailures := 0

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations = iteration

		observation := llm.NewUserMessage(buildObservation(a.observe(b), note))
		note = ""

		messages := make([]*llm.Message, 0, len(history)+2)
		messages = append(messages, system)
		messages = append(messages, history...)
		messages = append(messages, observation)

		reply, err := a.provider.Complete(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("model request failed on iteration %d: %w", iteration, err)
		}
		history = append(history, reply)
		res.Transcript = history

		action, thinking, err := ParseAction(reply.Content)
		if err != nil {
			parseFailures++
			a.debugf("scenario %q iteration %d: unusable reply: %v", sc.Name, iteration, err)
			if parseFailures >= maxParseFailures {
				return nil, fmt.Errorf("model produced %d consecutive replies without a usable action: %w", parseFailures, err)
			}
			note = buildParseRecoveryNote(err)
			continue
		}
		parseFailures = 0

		if thinking != "" {
			a.debugf("scenario %q iteration %d: %s", sc.Name, iteration, firstLine(thinking))
		}
		a.debugf("scenario %q iteration %d: %s", sc.Name, iteration, action.Describe())

		if action.Name == ActionVerdict {
			a.finishVerdict(res, action, b, sc)
			return res, nil
		}

		start := time.Now()
		outcome, shot, err := a.execute(b, action)
		step := Step{
			Action:   action.Name,
			Args:     action.args(),
			Duration: time.Since(start).Seconds(),
		}
		if err != nil {
			actionFailures++
			lastActionErr = err
			step.Error = err.Error()
			res.Steps = append(res.Steps, step)
			a.debugf("scenario %q iteration %d: action failed: %v", sc.Name, iteration, err)
			if actionFailures >= maxActionFailures {
				return nil, fmt.Errorf("aborting after %d consecutive action failures: %w", actionFailures, lastActionErr)
			}
			note = buildRecoveryNote(action, err)
			continue
		}
		actionFailures = 0

		step.Outcome = outcome
		res.Steps = append(res.Steps, step)
		if shot != nil {
			res.Screenshots = append(res.Screenshots, shot)
		}

		history = append(history, llm.NewUserMessage(fmt.Sprintf("Action '%s' result:\n%s", action.Name, outcome)))
		res.Transcript = history
	}

	return nil, fmt.Errorf("scenario did not reach a verdict within %d iterations", a.maxIterations)
}

// observe renders the current page for the next observation message. A
// snapshot failure is reported to the model rather than aborting, since the
// model may recover by navigating elsewhere.
func (a *Agent) observe(b Browser) string {
	snap, err := b.Snapshot(a.snapshotChars)
	if err != nil {
		return fmt.Sprintf("(page snapshot unavailable: %v)\nCurrent URL: %s", err, b.URL())
	}
	return snap.String()
}

// finishVerdict turns the verdict action into the scenario result and
// captures closing evidence when the scenario asked for screenshots.
func (a *Agent) finishVerdict(res *Result, action *Action, b Browser, sc suite.Scenario) {
	res.Passed = action.Status == VerdictPassed
	res.Narrative = action.Reason
	res.Steps = append(res.Steps, Step{
		Action:  action.Name,
		Args:    action.args(),
		Outcome: action.Reason,
	})
	if sc.ScreenshotsEnabled() {
		if shot, err := b.Screenshot(false); err == nil {
			res.Screenshots = append(res.Screenshots, shot)
		} else {
			a.debugf("scenario %q: closing screenshot failed: %v", sc.Name, err)
		}
	}
}

// execute runs a single non-verdict action against the browser and returns a
// short outcome description for the transcript. Screenshot data rides back
// separately so it lands in the result instead of the conversation.
func (a *Agent) execute(b Browser, action *Action) (outcome string, shot []byte, err error) {
	switch action.Name {
	case ActionNavigate:
		if err := b.Navigate(action.URL); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("navigated to %s", action.URL), nil, nil

	case ActionClick:
		if err := b.Click(action.Selector); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("clicked %s", action.Selector), nil, nil

	case ActionFill:
		if err := b.Fill(action.Selector, action.Value); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("filled %s", action.Selector), nil, nil

	case ActionPress:
		if err := b.Press(action.Selector, action.Key); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("pressed %s on %s", action.Key, action.Selector), nil, nil

	case ActionWaitFor:
		state := action.State
		if state == "" {
			state = "visible"
		}
		if err := b.WaitFor(action.Selector, state); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("element %s reached state %s", action.Selector, state), nil, nil

	case ActionExtractText:
		text, err := b.Text(action.Selector)
		if err != nil {
			return "", nil, err
		}
		return a.bound(text), nil, nil

	case ActionEvaluate:
		value, err := b.Evaluate(action.Script)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("script result:\n%s", a.bound(value)), nil, nil

	case ActionScroll:
		direction := action.Direction
		if direction == "" {
			direction = "down"
		}
		if err := b.Scroll(direction); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("scrolled %s", direction), nil, nil

	case ActionScreenshot:
		data, err := b.Screenshot(action.FullPage)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("captured screenshot (%d bytes)", len(data)), data, nil
	}

	// Validate catches unknown actions at parse time; reaching here means a
	// new action constant was added without an execute branch.
	return "", nil, fmt.Errorf("action %q has no executor", action.Name)
}

// bound truncates long page text so a single extraction cannot flood the
// context window.
func (a *Agent) bound(text string) string {
	bounded := a.tok.Truncate(text, maxResultTokens)
	if len(bounded) < len(text) {
		return bounded + "\n[result truncated]"
	}
	return bounded
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
