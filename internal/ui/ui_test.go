package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/services"
)

type fakeSource struct {
	tasks     []models.TaskView
	listErr   error
	submitted []services.SubmitRequest
	actions   []string
}

func (f *fakeSource) ListTasks(context.Context) ([]models.TaskView, error) {
	return f.tasks, f.listErr
}

func (f *fakeSource) Submit(_ context.Context, req services.SubmitRequest) (*services.SubmitResponse, error) {
	f.submitted = append(f.submitted, req)
	return &services.SubmitResponse{IDs: []string{"new1"}}, nil
}

func (f *fakeSource) TaskAction(_ context.Context, id, action string) (*services.SubmitResponse, error) {
	f.actions = append(f.actions, action+":"+id)
	if action == "pause" {
		return nil, errors.New("409 task is not running")
	}
	return &services.SubmitResponse{}, nil
}

func (f *fakeSource) RetryFailed(context.Context) (*services.SubmitResponse, error) {
	f.actions = append(f.actions, "retry-failed")
	return &services.SubmitResponse{IDs: []string{"r1", "r2"}}, nil
}

func sampleTasks() []models.TaskView {
	return []models.TaskView{
		{ID: "aaaa1111", Title: "First", Status: models.StatusDownloading, Progress: 50, Speed: "2 MB/s", CreatedAt: time.Now()},
		{ID: "bbbb2222", SourceURL: "https://example.com/b", Status: models.StatusFailed, Error: "boom", CreatedAt: time.Now()},
	}
}

func keyRunes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// run executes cmd and feeds a resulting [Msg] back into the model.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg, ok := cmd().(Msg)
	if !ok {
		t.Fatal("expected a ui message")
	}
	m.Update(msg)
}

func loaded(t *testing.T, src *fakeSource) *Model {
	t.Helper()
	m := NewModel(context.Background(), src, "720p", time.Hour)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	run(t, m, m.fetchTasks())
	return m
}

func TestModel(t *testing.T) {
	t.Run("Lists Tasks", func(t *testing.T) {
		m := loaded(t, &fakeSource{tasks: sampleTasks()})
		if len(m.list.Items()) != 2 {
			t.Fatalf("expected 2 items, got %d", len(m.list.Items()))
		}
		out := m.View()
		for _, want := range []string{"First", "50.0%", "2 MB/s", "https://example.com/b", "boom"} {
			if !strings.Contains(out, want) {
				t.Errorf("view missing %q", want)
			}
		}
	})

	t.Run("Fetch Error Keeps Previous Tasks", func(t *testing.T) {
		src := &fakeSource{tasks: sampleTasks()}
		m := loaded(t, src)
		src.listErr = errors.New("connection refused")
		run(t, m, m.fetchTasks())
		if m.err == nil || len(m.tasks) != 2 {
			t.Errorf("expected error with stale tasks, got err=%v tasks=%d", m.err, len(m.tasks))
		}
		if !strings.Contains(m.View(), "connection refused") {
			t.Error("error should be rendered")
		}
	})

	t.Run("Detail View", func(t *testing.T) {
		m := loaded(t, &fakeSource{tasks: sampleTasks()})
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.view != DetailView || m.selected != "aaaa1111" {
			t.Fatalf("expected detail of first task, got view=%d selected=%q", m.view, m.selected)
		}
		if out := m.View(); !strings.Contains(out, "aaaa1111") || !strings.Contains(out, "█") {
			t.Errorf("detail should show id and progress bar:\n%s", out)
		}
		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != TaskListView {
			t.Error("esc should return to the list")
		}
	})

	t.Run("Submit", func(t *testing.T) {
		src := &fakeSource{}
		m := loaded(t, src)
		m.Update(keyRunes("a"))
		if m.view != SubmitView {
			t.Fatal("a should open the submit view")
		}
		m.input.SetValue("https://example.com/1  https://example.com/2")
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		run(t, m, cmd)

		if len(src.submitted) != 1 || len(src.submitted[0].URLs) != 2 || src.submitted[0].Quality != "720p" {
			t.Errorf("unexpected submission %+v", src.submitted)
		}
		if m.view != TaskListView || !strings.Contains(m.status, "1 task(s) queued") {
			t.Errorf("unexpected state view=%d status=%q", m.view, m.status)
		}
	})

	t.Run("Empty Submit Does Nothing", func(t *testing.T) {
		src := &fakeSource{}
		m := loaded(t, src)
		m.Update(keyRunes("a"))
		if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
			t.Error("blank input should not submit")
		}
	})

	t.Run("Cancel Requires Confirmation", func(t *testing.T) {
		src := &fakeSource{tasks: sampleTasks()}
		m := loaded(t, src)
		m.Update(keyRunes("x"))
		if m.view != ConfirmView {
			t.Fatal("x should ask for confirmation")
		}
		m.Update(keyRunes("n"))
		if m.view != TaskListView || len(src.actions) != 0 {
			t.Fatal("n should abort without calling the server")
		}

		m.Update(keyRunes("x"))
		_, cmd := m.Update(keyRunes("y"))
		run(t, m, cmd)
		if len(src.actions) != 1 || src.actions[0] != "cancel:aaaa1111" {
			t.Errorf("unexpected actions %v", src.actions)
		}
	})

	t.Run("Action Errors Are Reported", func(t *testing.T) {
		m := loaded(t, &fakeSource{tasks: sampleTasks()})
		_, cmd := m.Update(keyRunes("p"))
		run(t, m, cmd)
		if !strings.Contains(m.status, "pause failed") {
			t.Errorf("expected failure status, got %q", m.status)
		}
	})

	t.Run("Retry Failed", func(t *testing.T) {
		src := &fakeSource{tasks: sampleTasks()}
		m := loaded(t, src)
		_, cmd := m.Update(keyRunes("R"))
		run(t, m, cmd)
		if !strings.Contains(m.status, "2 task(s) queued") {
			t.Errorf("unexpected status %q", m.status)
		}
	})

	t.Run("Quit", func(t *testing.T) {
		m := loaded(t, &fakeSource{})
		_, cmd := m.Update(keyRunes("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("q should quit")
		}
	})
}

func TestBar(t *testing.T) {
	tc := []struct {
		pct    float64
		filled int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{150, 10},
		{-5, 0},
	}
	for _, tt := range tc {
		got := strings.Count(bar(tt.pct, 10), "█")
		if got != tt.filled {
			t.Errorf("bar(%v) filled %d cells, want %d", tt.pct, got, tt.filled)
		}
	}
}
