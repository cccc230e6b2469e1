// Package tui shows live check progress with Bubble Tea and renders the
// styled run summary.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/checker"
	"github.com/snapetech/streamcheck/internal/safeurl"
)

// RunFunc runs the batch; it is called once from Init.
type RunFunc func(ctx context.Context) (*checker.Outcome, error)

// Model is the Bubble Tea model for a check run.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	run        RunFunc
	progressCh chan checker.Progress
	spinner    spinner.Model
	bar        progress.Model

	total        int
	checked      int
	counts       catalog.Summary
	current      string
	interrupting bool
	done         bool
	outcome      *checker.Outcome
	err          error
}

// NewModel wires a model to run. progressCh must be the channel the checker
// publishes on; the model closes it when run returns.
func NewModel(ctx context.Context, cancel context.CancelFunc, total int, run RunFunc, progressCh chan checker.Progress) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:        ctx,
		cancel:     cancel,
		run:        run,
		progressCh: progressCh,
		spinner:    spin,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total:      total,
	}
}

// Init starts the spinner, the run and the progress listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun(), waitForProgress(m.progressCh))
}

func (m Model) startRun() tea.Cmd {
	return func() tea.Msg {
		out, err := m.run(m.ctx)
		close(m.progressCh)
		return DoneMsg{Outcome: out, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The run drains and saves its checkpoint; quit once it returns.
			m.interrupting = true
			m.cancel()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-20))

	case ProgressMsg:
		m.checked = msg.Checked
		m.counts = msg.Counts
		m.current = safeurl.RedactURL(msg.Last.URL)
		if msg.Total > 0 {
			m.total = msg.Total
		}
		return m, waitForProgress(m.progressCh)

	case progressClosedMsg:
		return m, nil

	case DoneMsg:
		m.done = true
		m.outcome = msg.Outcome
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.checked) / float64(m.total)
}

// View renders the current state.
func (m Model) View() string {
	if m.done {
		if m.err != nil {
			return errorStyle.Render("Error: "+m.err.Error()) + "\n"
		}
		return ""
	}
	status := "Checking"
	if m.interrupting {
		status = "Interrupted, finishing in-flight checks"
	}
	return fmt.Sprintf("%s %s %d/%d\n%s\n%s %s %s %s\n%s\n",
		m.spinner.View(), status, m.checked, m.total,
		m.bar.ViewAs(m.percent()),
		validStyle.Render(fmt.Sprintf("valid %d", m.counts.Valid)),
		invalidStyle.Render(fmt.Sprintf("invalid %d", m.counts.Invalid)),
		timeoutStyle.Render(fmt.Sprintf("timeout %d", m.counts.Timeout)),
		errorStyle.Render(fmt.Sprintf("error %d", m.counts.Error)),
		dimStyle.Render("  "+m.current))
}

// Outcome returns the run outcome once done.
func (m Model) Outcome() *checker.Outcome { return m.outcome }

// Err returns the run error once done.
func (m Model) Err() error { return m.err }
