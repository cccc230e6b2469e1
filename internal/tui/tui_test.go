package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/checker"
	"github.com/snapetech/streamcheck/internal/report"
)

func newTestModel(run RunFunc) (Model, chan checker.Progress, *bool) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelled := new(bool)
	ch := make(chan checker.Progress, 4)
	m := NewModel(ctx, func() { *cancelled = true; cancel() }, 10, run, ch)
	return m, ch, cancelled
}

func TestNewModel(t *testing.T) {
	m, ch, _ := newTestModel(nil)
	if m.progressCh != ch || m.total != 10 {
		t.Errorf("model not wired: total=%d", m.total)
	}
	if m.checked != 0 || m.done {
		t.Error("expected a fresh model")
	}
}

func TestUpdate_progress(t *testing.T) {
	m, _, _ := newTestModel(nil)
	msg := ProgressMsg{
		Checked: 3, Total: 10,
		Last:   catalog.CheckResult{Candidate: catalog.Candidate{URL: "http://u:p@x.example/live"}},
		Counts: catalog.Summary{Total: 3, Valid: 2, Timeout: 1},
	}
	next, cmd := m.Update(msg)
	got := next.(Model)
	if got.checked != 3 || got.counts.Valid != 2 {
		t.Errorf("progress not applied: %+v", got.counts)
	}
	if strings.Contains(got.current, "u:p") {
		t.Errorf("credentials shown: %q", got.current)
	}
	if cmd == nil {
		t.Error("expected a follow-up waitForProgress command")
	}
	view := got.View()
	if !strings.Contains(view, "3/10") || !strings.Contains(view, "valid 2") {
		t.Errorf("view = %q", view)
	}
}

func TestUpdate_interruptWaitsForRun(t *testing.T) {
	m, _, cancelled := newTestModel(nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	got := next.(Model)
	if !*cancelled || !got.interrupting {
		t.Fatal("ctrl+c should cancel the run")
	}
	if cmd != nil {
		t.Error("model must not quit before the run returns")
	}
	if !strings.Contains(got.View(), "saving progress") {
		t.Errorf("view = %q", got.View())
	}

	out := &checker.Outcome{Interrupted: true}
	next, cmd = got.Update(DoneMsg{Outcome: out})
	got = next.(Model)
	if !got.done || got.Outcome() != out || cmd == nil {
		t.Errorf("done=%v outcome=%v", got.done, got.Outcome())
	}
}

func TestUpdate_doneWithError(t *testing.T) {
	m, _, _ := newTestModel(nil)
	next, _ := m.Update(DoneMsg{Err: errors.New("disk full")})
	got := next.(Model)
	if got.Err() == nil || !strings.Contains(got.View(), "disk full") {
		t.Errorf("view = %q", got.View())
	}
}

func TestStartRun_closesProgress(t *testing.T) {
	want := &checker.Outcome{Checked: 1}
	m, ch, _ := newTestModel(func(ctx context.Context) (*checker.Outcome, error) { return want, nil })
	msg := m.startRun()()
	done, ok := msg.(DoneMsg)
	if !ok || done.Outcome != want {
		t.Fatalf("msg = %#v", msg)
	}
	select {
	case _, open := <-ch:
		if open {
			t.Error("progress channel still open")
		}
	case <-time.After(time.Second):
		t.Error("progress channel not closed")
	}
	if _, ok := waitForProgress(ch)().(progressClosedMsg); !ok {
		t.Error("closed channel should yield progressClosedMsg")
	}
}

func TestUpdate_spinnerTick(t *testing.T) {
	m, _, _ := newTestModel(nil)
	_, cmd := m.Update(spinner.TickMsg{ID: m.spinner.ID()})
	if cmd == nil {
		t.Error("spinner tick should schedule the next tick")
	}
}

func TestRenderSummary(t *testing.T) {
	s := catalog.Summary{Total: 4, Valid: 3, Error: 1, Elapsed: 2 * time.Second}
	out := RenderSummary(s, report.RunStats{Checked: 4, CatalogPath: "final.txt", Entries: 3, Categories: 1, Interrupted: true})
	for _, want := range []string{"Interrupted", "Checked 4 streams", "Status", "75.0%", "25.0%", "Catalog: final.txt"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
