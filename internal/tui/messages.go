package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/snapetech/streamcheck/internal/checker"
)

// ProgressMsg reports one recorded result.
type ProgressMsg checker.Progress

// DoneMsg signals the run has returned.
type DoneMsg struct {
	Outcome *checker.Outcome
	Err     error
}

// progressClosedMsg is delivered once the progress channel is closed.
type progressClosedMsg struct{}

// waitForProgress reads one update from ch.
func waitForProgress(ch <-chan checker.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return progressClosedMsg{}
		}
		return ProgressMsg(p)
	}
}
