package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.info.SuiteName))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  execution %s", m.info.ExecutionID)))
	b.WriteString("\n\n")

	for _, name := range m.info.Scenarios {
		b.WriteString("  ")
		switch m.states[name] {
		case stateRunning:
			b.WriteString(m.spinner.View() + " " + name)
		case statePassed:
			b.WriteString(passStyle.Render("✓") + " " + name)
		case stateFailed:
			line := failStyle.Render("✗") + " " + name
			if note := m.notes[name]; note != "" {
				line += dimStyle.Render("  [" + note + "]")
			}
			b.WriteString(line)
		case stateSkipped:
			b.WriteString(skipStyle.Render("-") + " " + dimStyle.Render(name))
		default:
			b.WriteString(dimStyle.Render("· " + name))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d passed · %d failed", m.passed, m.failed)
	if m.skipped > 0 {
		summary += fmt.Sprintf(" · %d skipped", m.skipped)
	}
	summary += fmt.Sprintf(" · %s", time.Since(m.started).Round(time.Second))
	b.WriteString(dimStyle.Render("  " + summary))
	b.WriteString("\n")

	if m.done && m.final != "" {
		b.WriteString("\n" + m.final + "\n")
	} else if !m.done {
		b.WriteString(dimStyle.Render("  q to detach (the run keeps going)"))
		b.WriteString("\n")
	}

	return b.String()
}
