// ABOUTME: Bubbletea model for the pipeline monitoring dashboard
// ABOUTME: Defines dashboard state and update logic
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tidepool-labs/urtp-streamer/internal/pipeline"
)

// Model represents the dashboard state, refreshed once per second from a
// pipeline.Snapshot.
type Model struct {
	haveSnapshot bool

	poolSize      int
	poolAvailable int

	gainShift         int
	gainUnusedBitsMin int

	senderState     pipeline.SenderState
	sentDatagrams   int64
	sendFailures    int64
	lastSendMillis  float64

	recentEvents []pipeline.Event

	showDebug bool

	width  int
	height int
}

// NewModel creates an empty dashboard model.
func NewModel() Model {
	return Model{}
}

// SnapshotMsg carries one Monitor sample into the bubbletea update loop.
type SnapshotMsg pipeline.Snapshot

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case SnapshotMsg:
		m.applySnapshot(msg)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderPool()
	s += m.renderGain()
	s += m.renderSender()

	if m.showDebug {
		s += m.renderEvents()
	}

	s += m.renderHelp()

	return s
}

func (m Model) renderHeader() string {
	status := "Waiting for data"
	if m.haveSnapshot {
		status = "Streaming"
	}

	return fmt.Sprintf(`┌─ URTP Streamer ──────────────────────────────────────┐
│ Status: %-45s │
├──────────────────────────────────────────────────────┤
`, status)
}

func (m Model) renderPool() string {
	bar := renderBar(m.poolAvailable, max(m.poolSize, 1), 20)
	return fmt.Sprintf("│ Pool:   [%s] %d/%d%-10s │\n", bar, m.poolAvailable, m.poolSize, "")
}

func (m Model) renderGain() string {
	return fmt.Sprintf("│ Gain:   shift=%-3d unusedBitsMin=%-3d%-14s │\n",
		m.gainShift, m.gainUnusedBitsMin, "")
}

func (m Model) renderSender() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Sender: %-10s sent=%-8d failed=%-8d │
│ Last send: %6.2fms%-32s │
`, m.senderState, m.sentDatagrams, m.sendFailures, m.lastSendMillis, "")
}

func (m Model) renderEvents() string {
	s := "├─ Recent events ───────────────────────────────────────┤\n"
	start := 0
	if len(m.recentEvents) > 5 {
		start = len(m.recentEvents) - 5
	}
	for _, e := range m.recentEvents[start:] {
		s += fmt.Sprintf("│ %-52s │\n", truncate(e.String(), 52))
	}
	return s
}

func (m Model) renderHelp() string {
	return `│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

func (m *Model) applySnapshot(msg SnapshotMsg) {
	m.haveSnapshot = true
	m.poolSize = msg.PoolSize
	m.poolAvailable = msg.PoolAvailable
	m.gainShift = msg.GainShift
	m.gainUnusedBitsMin = msg.GainUnusedBitsMin
	m.senderState = msg.SenderState
	m.sentDatagrams = msg.SentDatagrams
	m.sendFailures = msg.SendFailures
	m.lastSendMillis = float64(msg.LastSendElapsed.Microseconds()) / 1000.0
	m.recentEvents = msg.RecentEvents
}

func renderBar(value, total, width int) string {
	filled := (value * width) / total
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
