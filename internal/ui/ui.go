package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TaskListView ViewState = iota
	DetailView
	SubmitView
	ConfirmView
)

// DefaultRefresh is the polling interval of the task list.
const DefaultRefresh = time.Second

// TaskSource is the slice of the task API the monitor needs. [*services.APIService] implements it.
type TaskSource interface {
	ListTasks(ctx context.Context) ([]models.TaskView, error)
	Submit(ctx context.Context, req services.SubmitRequest) (*services.SubmitResponse, error)
	TaskAction(ctx context.Context, id, action string) (*services.SubmitResponse, error)
	RetryFailed(ctx context.Context) (*services.SubmitResponse, error)
}

var _ TaskSource = (*services.APIService)(nil)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	source   TaskSource
	quality  string
	interval time.Duration

	view     ViewState
	width    int
	height   int
	list     list.Model
	tasks    []models.TaskView
	selected string
	input    textinput.Model
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a monitor polling source every interval. quality applies to submissions.
func NewModel(ctx context.Context, source TaskSource, quality string, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultRefresh
	}

	input := textinput.New()
	input.Placeholder = "https://www.douyin.com/video/... (space separated for several)"
	input.CharLimit = 4096

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Downloads"
	l.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		source:   source,
		quality:  quality,
		interval: interval,
		view:     TaskListView,
		list:     l,
		input:    input,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init fetches the task list and starts the refresh timer.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchTasks(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		m.input.Width = max(msg.Width-8, 20)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case TaskListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		case SubmitView:
			return m.handleSubmitKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateComponents(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTasksFetched:
		data := msg.data.(tasksFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.tasks = data.tasks
		return m, m.list.SetItems(toItems(data.tasks))

	case MsgActionDone:
		data := msg.data.(actionDone)
		if data.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("%s failed: %v", data.action, data.err))
		} else {
			m.status = styles.ok.Render(actionSummary(data.action, data.ids))
		}
		return m, m.fetchTasks()

	case MsgTick:
		return m, tea.Batch(m.fetchTasks(), m.tick())
	}
	return m, nil
}

func actionSummary(action string, ids []string) string {
	switch action {
	case "submit", "retry", "retry-failed":
		return fmt.Sprintf("%s: %d task(s) queued", action, len(ids))
	}
	return action + " requested"
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.add):
		m.view = SubmitView
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.retryFailed):
		return m, m.retryFailed()
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchTasks()
	}

	if t, ok := m.current(); ok {
		switch {
		case key.Matches(msg, m.keys.enter):
			m.selected = t.ID
			m.view = DetailView
			return m, nil
		case key.Matches(msg, m.keys.pause):
			return m, m.action(t.ID, "pause")
		case key.Matches(msg, m.keys.retry):
			return m, m.action(t.ID, "retry")
		case key.Matches(msg, m.keys.cancel):
			m.selected = t.ID
			m.view = ConfirmView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = TaskListView
	case key.Matches(msg, m.keys.pause):
		return m, m.action(m.selected, "pause")
	case key.Matches(msg, m.keys.retry):
		return m, m.action(m.selected, "retry")
	case key.Matches(msg, m.keys.cancel):
		m.view = ConfirmView
	}
	return m, nil
}

func (m *Model) handleSubmitKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.view = TaskListView
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		urls := strings.Fields(m.input.Value())
		m.input.Blur()
		m.view = TaskListView
		if len(urls) == 0 {
			return m, nil
		}
		return m, m.submit(urls)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = TaskListView
		return m, m.action(m.selected, "cancel")
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = TaskListView
	}
	return m, nil
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case TaskListView:
		m.list, cmd = m.list.Update(msg)
	case SubmitView:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m *Model) current() (models.TaskView, bool) {
	if item, ok := m.list.SelectedItem().(taskItem); ok {
		return item.task, true
	}
	return models.TaskView{}, false
}

func (m *Model) find(id string) (models.TaskView, bool) {
	for _, t := range m.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.TaskView{}, false
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetchTasks() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.source.ListTasks(m.ctx)
		return tasksFetchedMsg(tasks, err)
	}
}

func (m *Model) submit(urls []string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.source.Submit(m.ctx, services.SubmitRequest{URLs: urls, Quality: m.quality})
		if err != nil {
			return actionDoneMsg("submit", nil, err)
		}
		return actionDoneMsg("submit", res.IDs, nil)
	}
}

func (m *Model) action(id, action string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.source.TaskAction(m.ctx, id, action)
		if err != nil {
			return actionDoneMsg(action, nil, err)
		}
		return actionDoneMsg(action, res.IDs, nil)
	}
}

func (m *Model) retryFailed() tea.Cmd {
	return func() tea.Msg {
		res, err := m.source.RetryFailed(m.ctx)
		if err != nil {
			return actionDoneMsg("retry-failed", nil, err)
		}
		return actionDoneMsg("retry-failed", res.IDs, nil)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case DetailView:
		return m.renderDetail()
	case SubmitView:
		return m.renderSubmit()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return m.renderList()
	}
}

func (m *Model) footer(keys ...key.Binding) string {
	var lines []string
	if m.err != nil {
		lines = append(lines, styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if m.status != "" {
		lines = append(lines, m.status)
	}
	lines = append(lines, m.help.ShortHelpView(keys))
	return strings.Join(lines, "\n")
}

func (m *Model) renderList() string {
	k := m.keys
	return fmt.Sprintf("%s\n\n%s", m.list.View(),
		m.footer(k.add, k.enter, k.pause, k.cancel, k.retry, k.retryFailed, k.quit))
}

func (m *Model) renderDetail() string {
	t, ok := m.find(m.selected)
	if !ok {
		return fmt.Sprintf("%s\n\n%s", styles.warn.Render("Task no longer exists"), m.footer(m.keys.back, m.keys.quit))
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(t.DisplayTitle()))
	b.WriteString("\n")
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s %s\n", styles.label.Render(label), value)
		}
	}
	row("ID", t.ID)
	row("Owner", t.Owner)
	row("URL", t.SourceURL)
	row("Quality", t.Quality)
	row("Status", statusIcon(t.Status)+" "+t.Status.String())
	if t.Status == models.StatusDownloading {
		row("Progress", fmt.Sprintf("%s %.1f%%", bar(t.Progress, 30), t.Progress))
		row("Speed", t.Speed)
		row("ETA", t.ETA)
	}
	if t.Status == models.StatusCompleted {
		row("File", t.OutputPath)
		row("Size", shared.FormatSize(t.OutputSize))
	}
	if t.Error != "" {
		row("Error", styles.err.Render(t.Error))
	}
	row("Created", t.CreatedAt.Local().Format(time.DateTime))

	k := m.keys
	return fmt.Sprintf("%s\n%s", b.String(), m.footer(k.pause, k.cancel, k.retry, k.back, k.quit))
}

func (m *Model) renderSubmit() string {
	title := styles.title.Render("Add downloads")
	quality := m.quality
	if quality == "" {
		quality = "server default"
	}
	enter := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "queue"))
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, m.input.View(),
		styles.help.Render("Quality: "+quality), m.help.ShortHelpView([]key.Binding{enter, m.keys.back}))
}

func (m *Model) renderConfirm() string {
	name := m.selected
	if t, ok := m.find(m.selected); ok {
		name = t.DisplayTitle()
	}
	title := styles.title.Render(fmt.Sprintf("Cancel '%s'?", name))
	info := styles.warn.Render("The task will be marked failed and can only be retried as a new task.")
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no}))
}
