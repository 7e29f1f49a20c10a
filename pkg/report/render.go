package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// RenderJSON renders the report as stable indented JSON.
func RenderJSON(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// RenderMarkdown renders a human-readable markdown report.
func RenderMarkdown(r *Report) string {
	var md strings.Builder

	md.WriteString("# Test Execution Report\n\n")
	md.WriteString(fmt.Sprintf("**Suite:** %s\n\n", r.SuiteName))
	md.WriteString(fmt.Sprintf("**Execution:** %s\n\n", r.ExecutionID))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", r.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", r.StartedAt.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", r.CompletedAt.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", r.Duration.Round(time.Millisecond)))

	md.WriteString("## Summary\n\n")
	md.WriteString(fmt.Sprintf("- **Total:** %d\n", r.Total))
	md.WriteString(fmt.Sprintf("- **Passed:** %d\n", r.Passed))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", r.Failed))
	if r.Skipped > 0 {
		md.WriteString(fmt.Sprintf("- **Skipped:** %d\n", r.Skipped))
	}
	md.WriteString(fmt.Sprintf("- **Success rate:** %.1f%%\n\n", r.SuccessRate))

	md.WriteString("## Scenarios\n\n")
	for _, res := range r.Results {
		md.WriteString(fmt.Sprintf("### %s %s (%s)\n\n", statusIcon(res.Status), res.Name, res.Duration.Round(time.Millisecond)))

		if res.Narrative != "" {
			md.WriteString(res.Narrative + "\n\n")
		}

		if len(res.Steps) > 0 {
			md.WriteString("**Steps:**\n\n")
			for i, step := range res.Steps {
				line := step.Action
				if step.Outcome != "" {
					line += " — " + firstLine(step.Outcome)
				}
				if step.Error != "" {
					line += " — " + step.Error
				}
				md.WriteString(fmt.Sprintf("%d. %s\n", i+1, line))
			}
			md.WriteString("\n")
		}

		if len(res.Errors) > 0 {
			md.WriteString("**Errors:**\n\n")
			for _, e := range res.Errors {
				md.WriteString(fmt.Sprintf("- **%s** (%s): %s\n", e.Category, e.Severity, e.Message))
				if e.SuggestedFix != "" {
					md.WriteString(fmt.Sprintf("  - Suggested fix: %s\n", e.SuggestedFix))
				}
			}
			md.WriteString("\n")
		}

		if len(res.Screenshots) > 0 {
			md.WriteString("**Screenshots:**\n\n")
			for _, ref := range res.Screenshots {
				md.WriteString(fmt.Sprintf("- `%s`\n", ref))
			}
			md.WriteString("\n")
		}
	}

	return md.String()
}

// RenderText renders a terminal-friendly report. Styling degrades to plain
// text automatically when output is not a TTY.
func RenderText(r *Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s — %s", r.SuiteName, strings.ToUpper(r.Status))))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("execution %s", r.ExecutionID)))
	b.WriteString("\n\n")

	summary := fmt.Sprintf("%d/%d passed (%.1f%%) in %s", r.Passed, r.Total, r.SuccessRate, r.Duration.Round(time.Millisecond))
	if r.Skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", r.Skipped)
	}
	if r.Failed > 0 {
		b.WriteString(failStyle.Render(summary))
	} else {
		b.WriteString(passStyle.Render(summary))
	}
	b.WriteString("\n\n")

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "SCENARIO", "STATUS", "DURATION", "ERRORS"})
	for i, res := range r.Results {
		t.AppendRow(table.Row{
			i + 1,
			res.Name,
			statusLabel(res.Status),
			res.Duration.Round(time.Millisecond),
			len(res.Errors),
		})
	}
	b.WriteString(t.Render())
	b.WriteString("\n")

	for _, res := range r.Results {
		if res.Status != StatusFailed {
			continue
		}
		b.WriteString("\n")
		b.WriteString(failStyle.Render(fmt.Sprintf("✗ %s", res.Name)))
		b.WriteString("\n")
		if res.Narrative != "" {
			b.WriteString("  " + firstLine(res.Narrative) + "\n")
		}
		for _, e := range res.Errors {
			b.WriteString(fmt.Sprintf("  [%s] %s\n", e.Category, e.Message))
			if e.SuggestedFix != "" {
				b.WriteString(dimStyle.Render(fmt.Sprintf("    fix: %s", e.SuggestedFix)))
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

func statusIcon(s Status) string {
	switch s {
	case StatusPassed:
		return "✅"
	case StatusFailed:
		return "❌"
	default:
		return "⏭️"
	}
}

func statusLabel(s Status) string {
	switch s {
	case StatusPassed:
		return text.FgGreen.Sprint("PASSED")
	case StatusFailed:
		return text.FgRed.Sprint("FAILED")
	default:
		return text.FgYellow.Sprint("SKIPPED")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
