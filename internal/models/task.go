package models

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a [Task].
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no run is expected to change the status further.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPaused
}

func (s Status) String() string { return string(s) }

// ParseStatus converts a name into a [Status].
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusDownloading, StatusPaused, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Task is a single download job.
type Task struct {
	id        string
	owner     string
	sourceURL string
	createdAt time.Time
	dir       string

	mu         sync.RWMutex
	title      string
	quality    string
	status     Status
	progress   float64
	speed      string
	eta        string
	errMsg     string
	outputPath string
	outputSize int64
	startedAt  time.Time
	finishedAt time.Time
}

// NewTask creates a pending task. dir is the task's working directory.
func NewTask(id, owner, sourceURL, dir string, createdAt time.Time) *Task {
	return &Task{
		id:        id,
		owner:     owner,
		sourceURL: sourceURL,
		dir:       dir,
		createdAt: createdAt,
		status:    StatusPending,
	}
}

func (t *Task) ID() string           { return t.id }
func (t *Task) Owner() string        { return t.owner }
func (t *Task) SourceURL() string    { return t.sourceURL }
func (t *Task) CreatedAt() time.Time { return t.createdAt }
func (t *Task) Dir() string          { return t.dir }

// Validate checks the immutable identity fields.
func (t *Task) Validate() error {
	switch {
	case t.id == "":
		return fmt.Errorf("task id is required")
	case t.owner == "":
		return fmt.Errorf("task owner is required")
	case t.sourceURL == "":
		return fmt.Errorf("task source url is required")
	}
	return nil
}

func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Task) Title() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.title
}

func (t *Task) OutputPath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outputPath
}

func (t *Task) SetTitle(title string) {
	t.mu.Lock()
	t.title = title
	t.mu.Unlock()
}

func (t *Task) SetQuality(q string) {
	t.mu.Lock()
	t.quality = q
	t.mu.Unlock()
}

// MarkDownloading starts a run: progress resets and any previous result is cleared.
func (t *Task) MarkDownloading() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusDownloading
	t.progress = 0
	t.speed, t.eta, t.errMsg = "", "", ""
	t.outputPath, t.outputSize = "", 0
	t.startedAt = time.Now()
	t.finishedAt = time.Time{}
}

// SetProgress records a progress tick. Percent is clamped to [0,100] and never moves backwards within a run.
// Ticks arriving outside the downloading state are dropped.
func (t *Task) SetProgress(percent float64, speed, eta string) {
	if percent < 0 || percent != percent {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusDownloading {
		return
	}
	if percent > t.progress {
		t.progress = percent
	}
	t.speed = speed
	t.eta = eta
}

// MarkCompleted records the artifact. size must be the on-disk size of path.
// A task already failed (e.g. cancelled by the user) stays failed.
func (t *Task) MarkCompleted(path string, size int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusFailed {
		return false
	}
	t.status = StatusCompleted
	t.progress = 100
	t.outputPath = path
	t.outputSize = size
	t.errMsg = ""
	t.speed, t.eta = "", ""
	t.finishedAt = time.Now()
	return true
}

// MarkFailed records msg and drops any artifact reference.
func (t *Task) MarkFailed(msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
	t.errMsg = msg
	t.outputPath, t.outputSize = "", 0
	t.speed, t.eta = "", ""
	t.finishedAt = time.Now()
}

// MarkPaused stops a run without a result. Failed tasks stay failed.
func (t *Task) MarkPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusFailed || t.status == StatusCompleted {
		return false
	}
	t.status = StatusPaused
	t.speed, t.eta = "", ""
	t.finishedAt = time.Now()
	return true
}

// Snapshot returns a consistent copy of the task.
func (t *Task) Snapshot() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskView{
		ID:         t.id,
		Owner:      t.owner,
		SourceURL:  t.sourceURL,
		Title:      t.title,
		Quality:    t.quality,
		Status:     t.status,
		Progress:   t.progress,
		Speed:      t.speed,
		ETA:        t.eta,
		Error:      t.errMsg,
		OutputPath: t.outputPath,
		OutputSize: t.outputSize,
		Dir:        t.dir,
		CreatedAt:  t.createdAt,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
	}
}

// TaskView is a read-only copy of a [Task].
type TaskView struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	SourceURL  string    `json:"url"`
	Title      string    `json:"title"`
	Quality    string    `json:"quality,omitempty"`
	Status     Status    `json:"status"`
	Progress   float64   `json:"progress"`
	Speed      string    `json:"speed,omitempty"`
	ETA        string    `json:"eta,omitempty"`
	Error      string    `json:"error,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	OutputSize int64     `json:"output_size,omitempty"`
	Dir        string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// DisplayTitle falls back to the source URL when the title is not yet known.
func (v TaskView) DisplayTitle() string {
	if v.Title != "" {
		return v.Title
	}
	return v.SourceURL
}
