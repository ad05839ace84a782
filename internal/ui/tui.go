// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the monitoring dashboard
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tidepool-labs/urtp-streamer/internal/pipeline"
)

// Run starts the dashboard program and feeds it snapshots from monitor
// until ctx is cancelled or the user quits.
func Run(ctx context.Context, monitor *pipeline.Monitor) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(), tea.WithAltScreen())
	snapshots := monitor.Subscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				p.Quit()
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				p.Send(SnapshotMsg(snap))
			}
		}
	}()

	return p, nil
}
