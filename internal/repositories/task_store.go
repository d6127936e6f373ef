package repositories

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// RunControl is the flag shared between a scheduled run and the callers that may stop it.
//
// It exists from the moment a task is handed to the pool until its run finishes.
type RunControl struct {
	stop       atomic.Bool
	userCancel atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// RequestStop marks the run for stopping and cancels its context if one is bound.
// byUser distinguishes a cancel (task ends failed) from a pause.
func (c *RunControl) RequestStop(byUser bool) {
	if byUser {
		c.userCancel.Store(true)
	}
	c.stop.Store(true)

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// StopRequested reports whether a pause or cancel was requested.
func (c *RunControl) StopRequested() bool { return c.stop.Load() }

// CancelledByUser reports whether the stop came from a cancel.
func (c *RunControl) CancelledByUser() bool { return c.userCancel.Load() }

// Bind attaches the run's context cancel function. A stop requested earlier fires immediately.
func (c *RunControl) Bind(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	if c.stop.Load() {
		cancel()
	}
}

// TaskStore is the authoritative in-memory registry of tasks and their run controls.
//
// A single lock covers the task map, the issued-id set, and the control map, so batch
// deduplication and id issuance are atomic with respect to each other.
type TaskStore struct {
	baseDir string

	mu       sync.RWMutex
	tasks    map[string]*models.Task
	order    []string
	issued   map[string]struct{}
	controls map[string]*RunControl

	newID func() string
	now   func() time.Time
}

// NewTaskStore creates an empty store whose task directories live under baseDir.
func NewTaskStore(baseDir string) *TaskStore {
	return &TaskStore{
		baseDir:  baseDir,
		tasks:    make(map[string]*models.Task),
		issued:   make(map[string]struct{}),
		controls: make(map[string]*RunControl),
		newID:    shared.GenerateShortID,
		now:      time.Now,
	}
}

// BaseDir returns the root directory for task working directories.
func (s *TaskStore) BaseDir() string { return s.baseDir }

// TaskDir returns <base>/<owner>/<id>.
func (s *TaskStore) TaskDir(owner, id string) string {
	return filepath.Join(s.baseDir, owner, id)
}

// Create registers a pending task for owner and url with a fresh id.
func (s *TaskStore) Create(owner, url string) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(owner, url)
}

func (s *TaskStore) createLocked(owner, url string) *models.Task {
	id := s.newID()
	for {
		if _, taken := s.issued[id]; !taken {
			break
		}
		id = s.newID()
	}
	s.issued[id] = struct{}{}

	task := models.NewTask(id, owner, url, s.TaskDir(owner, id), s.now())
	s.tasks[id] = task
	s.order = append(s.order, id)
	return task
}

// CreateIfNew creates tasks for the urls that owner does not already have, in input order.
// Repeats within urls count as skipped.
func (s *TaskStore) CreateIfNew(owner string, urls []string) ([]*models.Task, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, id := range s.order {
		if t := s.tasks[id]; t.Owner() == owner {
			seen[t.SourceURL()] = struct{}{}
		}
	}

	var created []*models.Task
	skipped := 0
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			skipped++
			continue
		}
		seen[u] = struct{}{}
		created = append(created, s.createLocked(owner, u))
	}
	return created, skipped
}

// Get returns the task with id.
func (s *TaskStore) Get(id string) (*models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// ForOwner returns owner's tasks in creation order.
func (s *TaskStore) ForOwner(owner string) []*models.Task {
	return s.filter(func(t *models.Task) bool { return t.Owner() == owner })
}

// All returns every task in creation order.
func (s *TaskStore) All() []*models.Task {
	return s.filter(func(*models.Task) bool { return true })
}

// Completed returns owner's completed tasks.
func (s *TaskStore) Completed(owner string) []*models.Task {
	return s.filter(func(t *models.Task) bool {
		return t.Owner() == owner && t.Status() == models.StatusCompleted
	})
}

func (s *TaskStore) filter(keep func(*models.Task) bool) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Task, 0, len(s.order))
	for _, id := range s.order {
		if t := s.tasks[id]; keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Delete removes a single task record. Its id stays reserved.
func (s *TaskStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	s.removeLocked(map[string]struct{}{id: {}})
	return true
}

// Clear removes owner's tasks (every task when all is set) and returns the working
// directories of removed tasks that exist on disk. In-flight runs are asked to stop.
// The filesystem is left untouched.
func (s *TaskStore) Clear(owner string, all bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[string]struct{})
	var dirs []string
	for _, id := range s.order {
		t := s.tasks[id]
		if !all && t.Owner() != owner {
			continue
		}
		doomed[id] = struct{}{}
		if ctrl, ok := s.controls[id]; ok {
			ctrl.RequestStop(true)
		}
		if info, err := os.Stat(t.Dir()); err == nil && info.IsDir() {
			dirs = append(dirs, t.Dir())
		}
	}
	s.removeLocked(doomed)
	return dirs
}

func (s *TaskStore) removeLocked(ids map[string]struct{}) {
	kept := s.order[:0]
	for _, id := range s.order {
		if _, gone := ids[id]; gone {
			delete(s.tasks, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Acquire installs the run control for id. A task has at most one scheduled run.
func (s *TaskStore) Acquire(id string) (*RunControl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if _, busy := s.controls[id]; busy {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlreadyScheduled, id)
	}
	ctrl := &RunControl{}
	s.controls[id] = ctrl
	return ctrl, nil
}

// Control returns the run control for id if a run is scheduled or in flight.
func (s *TaskStore) Control(id string) (*RunControl, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controls[id]
	return c, ok
}

// RequestStop flags the run for id. It returns false when no run is scheduled.
func (s *TaskStore) RequestStop(id string, byUser bool) bool {
	ctrl, ok := s.Control(id)
	if !ok {
		return false
	}
	ctrl.RequestStop(byUser)
	return true
}

// Release drops the run control for id.
func (s *TaskStore) Release(id string) {
	s.mu.Lock()
	delete(s.controls, id)
	s.mu.Unlock()
}

// InFlight reports whether id has a scheduled or running run.
func (s *TaskStore) InFlight(id string) bool {
	_, ok := s.Control(id)
	return ok
}
