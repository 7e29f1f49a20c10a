package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/patrol/pkg/progress"
)

// Run renders the live view until the execution's terminal event arrives or
// the user detaches. It returns detached=true when the user quit early; the
// caller should keep draining the event channel in that case so the stream
// does not back up.
func Run(ctx context.Context, info RunInfo, events <-chan progress.Event) (detached bool, err error) {
	p := tea.NewProgram(newModel(info, events), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("live view failed: %w", err)
	}
	m, ok := final.(model)
	if !ok {
		return false, nil
	}
	return m.detached, nil
}
