// ABOUTME: Tests for the dashboard model's state transitions
package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tidepool-labs/urtp-streamer/internal/pipeline"
)

func TestNewModel(t *testing.T) {
	model := NewModel()

	if model.haveSnapshot {
		t.Error("expected haveSnapshot to be false initially")
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
}

func TestApplySnapshot(t *testing.T) {
	model := NewModel()

	msg := SnapshotMsg{
		PoolSize:          200,
		PoolAvailable:     12,
		GainShift:         6,
		GainUnusedBitsMin: 4,
		SenderState:       pipeline.SenderConnected,
		SentDatagrams:     1000,
		SendFailures:      3,
		LastSendElapsed:   1500 * time.Microsecond,
	}

	model.applySnapshot(msg)

	if !model.haveSnapshot {
		t.Error("expected haveSnapshot to be true after a snapshot")
	}
	if model.poolAvailable != 12 {
		t.Errorf("expected poolAvailable 12, got %d", model.poolAvailable)
	}
	if model.gainShift != 6 {
		t.Errorf("expected gainShift 6, got %d", model.gainShift)
	}
	if model.senderState != pipeline.SenderConnected {
		t.Errorf("expected SenderConnected, got %v", model.senderState)
	}
	if model.sentDatagrams != 1000 {
		t.Errorf("expected sentDatagrams 1000, got %d", model.sentDatagrams)
	}
	if model.lastSendMillis != 1.5 {
		t.Errorf("expected lastSendMillis 1.5, got %v", model.lastSendMillis)
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten c", 14, "exactly ten c"},
		{"this is longer than allowed", 10, "this is..."},
		{"", 10, ""},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestRenderBarFillsProportionally(t *testing.T) {
	bar := renderBar(5, 10, 10)
	if len(bar) == 0 {
		t.Fatal("expected non-empty bar")
	}

	full := renderBar(10, 10, 10)
	empty := renderBar(0, 10, 10)
	if full == empty {
		t.Error("expected full and empty bars to differ")
	}
}

func TestShowDebugTogglesOnKey(t *testing.T) {
	model := NewModel()
	model.width = 80

	if model.showDebug {
		t.Fatal("expected showDebug false initially")
	}

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	if !updated.(Model).showDebug {
		t.Error("expected showDebug true after pressing d")
	}
}
