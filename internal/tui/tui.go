// Package tui is the interactive drag surface for a changelist.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"treesort/internal/surface"
)

// Run shows the rows of an attached adapter until the user quits. Errors reported
// to sink while the program runs land in the status line.
func Run(ctx context.Context, a *surface.Adapter, sink *StatusSink, title string) error {
	ConfigureColor()
	m := newModel(ctx, a, title)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if sink != nil {
		sink.attach(p)
		defer sink.attach(nil)
	}
	_, err := p.Run()
	return err
}
