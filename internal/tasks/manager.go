package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/repositories"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"golang.org/x/sync/errgroup"
)

// MaxProbeURLs caps a single metadata preview request.
const MaxProbeURLs = 10

// SubmitResult reports the tasks created by a submission.
type SubmitResult struct {
	IDs     []string `json:"ids"`
	Skipped int      `json:"skipped"`
}

// ManagerOpts configures a [Manager].
type ManagerOpts struct {
	Store          *repositories.TaskStore
	Extractor      services.Extractor
	Logger         *log.Logger
	Recorder       Recorder
	Events         chan<- ProgressUpdate
	Workers        int
	UseArchive     bool
	Trash          bool // Move cleared task directories to the trash instead of deleting them
	DefaultQuality string
}

// Manager is the entry point for submitting, querying and controlling tasks.
type Manager struct {
	store          *repositories.TaskStore
	extractor      services.Extractor
	orch           *Orchestrator
	pool           *Pool
	logger         *log.Logger
	trash          bool
	defaultQuality string
}

// NewManager wires the store, orchestrator and pool together. Call [Manager.Start] to begin running tasks.
func NewManager(opts ManagerOpts) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	quality := opts.DefaultQuality
	if quality == "" {
		quality = "best"
	}

	orch := NewOrchestrator(OrchestratorOpts{
		Store:      opts.Store,
		Extractor:  opts.Extractor,
		Logger:     logger,
		Recorder:   opts.Recorder,
		Events:     opts.Events,
		UseArchive: opts.UseArchive,
	})

	return &Manager{
		store:          opts.Store,
		extractor:      opts.Extractor,
		orch:           orch,
		pool:           NewPool(opts.Workers, orch.Run, logger),
		logger:         logger,
		trash:          opts.Trash,
		defaultQuality: quality,
	}
}

// Start launches the pool workers.
func (m *Manager) Start(ctx context.Context) { m.pool.Start(ctx) }

// Shutdown stops accepting submissions and waits for queued runs.
// Runs still queued when ctx ends are marked paused.
func (m *Manager) Shutdown(ctx context.Context) error {
	dropped, err := m.pool.Shutdown(ctx)
	for _, job := range dropped {
		job.Task.MarkPaused()
		m.store.Release(job.Task.ID())
	}
	if len(dropped) > 0 {
		m.logger.Warn("abandoned queued tasks", "count", len(dropped))
	}
	return err
}

// Stats reports the pool state.
func (m *Manager) Stats() PoolStats { return m.pool.Stats() }

// Store exposes the underlying task store.
func (m *Manager) Store() *repositories.TaskStore { return m.store }

// Submit normalizes input, skips URLs the owner already has and schedules the rest.
func (m *Manager) Submit(owner string, input []string, quality string, opts models.Options) (SubmitResult, error) {
	if strings.TrimSpace(owner) == "" {
		return SubmitResult{}, fmt.Errorf("%w: owner is required", shared.ErrInvalidInput)
	}
	urls := NormalizeBatch(input)
	if len(urls) == 0 {
		return SubmitResult{}, shared.ErrEmptyURLList
	}

	created, skipped := m.store.CreateIfNew(owner, urls)
	res := SubmitResult{IDs: make([]string, 0, len(created)), Skipped: skipped}
	for _, t := range created {
		m.schedule(t, m.quality(quality), opts)
		res.IDs = append(res.IDs, t.ID())
	}
	m.logger.Info("tasks submitted", "owner", owner, "created", len(created), "skipped", skipped)
	return res, nil
}

func (m *Manager) quality(q string) string {
	if q = strings.ToLower(strings.TrimSpace(q)); q == "" {
		return m.defaultQuality
	}
	return q
}

// schedule installs the run control and enqueues the run. Failures are recorded on the task.
func (m *Manager) schedule(t *models.Task, quality string, opts models.Options) {
	t.SetQuality(quality)
	ctrl, err := m.store.Acquire(t.ID())
	if err != nil {
		m.logger.Warn("task not scheduled", "task", t.ID(), "err", err)
		return
	}
	sendProgress(m.orch.events, queuedUpdate(t.ID(), t.SourceURL()))
	job := Job{Task: t, Quality: quality, Options: opts, Control: ctrl}
	if err := m.pool.Submit(job); err != nil {
		m.store.Release(t.ID())
		t.MarkFailed(err.Error())
		m.logger.Error("task not scheduled", "task", t.ID(), "err", err)
	}
}

// Retry resubmits a task's URL as a new task. An empty quality reuses the original one.
func (m *Manager) Retry(id, quality string, opts models.Options) (SubmitResult, error) {
	old, ok := m.store.Get(id)
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if strings.TrimSpace(quality) == "" {
		quality = old.Snapshot().Quality
	}
	t := m.store.Create(old.Owner(), old.SourceURL())
	m.schedule(t, m.quality(quality), opts)
	return SubmitResult{IDs: []string{t.ID()}}, nil
}

// RetryFailed retries every failed task of owner, or of everyone when owner is empty.
func (m *Manager) RetryFailed(owner, quality string, opts models.Options) SubmitResult {
	res := SubmitResult{IDs: []string{}}
	for _, v := range m.views(owner, owner == "") {
		if v.Status != models.StatusFailed {
			continue
		}
		r, err := m.Retry(v.ID, quality, opts)
		if err != nil {
			continue
		}
		res.IDs = append(res.IDs, r.IDs...)
	}
	return res
}

// Get returns a snapshot of the task with id.
func (m *Manager) Get(id string) (models.TaskView, bool) {
	t, ok := m.store.Get(id)
	if !ok {
		return models.TaskView{}, false
	}
	return t.Snapshot(), true
}

// ForOwner returns owner's tasks, newest first.
func (m *Manager) ForOwner(owner string) []models.TaskView { return m.views(owner, false) }

// All returns every task, newest first.
func (m *Manager) All() []models.TaskView { return m.views("", true) }

func (m *Manager) views(owner string, all bool) []models.TaskView {
	var list []*models.Task
	if all {
		list = m.store.All()
	} else {
		list = m.store.ForOwner(owner)
	}
	out := make([]models.TaskView, 0, len(list))
	for _, t := range list {
		out = append(out, t.Snapshot())
	}
	slices.SortStableFunc(out, func(a, b models.TaskView) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Pause asks the in-flight run of id to stop. It reports false when no run is scheduled.
func (m *Manager) Pause(id string) bool {
	ok := m.store.RequestStop(id, false)
	if ok {
		m.logger.Info("pause requested", "task", id)
	}
	return ok
}

// Cancel stops any run of id and marks the task failed. Completed tasks are left alone.
func (m *Manager) Cancel(id string) bool {
	t, ok := m.store.Get(id)
	if !ok || t.Status() == models.StatusCompleted {
		return false
	}
	m.store.RequestStop(id, true)
	t.MarkFailed(shared.ErrCancelledByUser.Error())
	m.logger.Info("task cancelled", "task", id)
	return true
}

// Clear removes owner's tasks (every task when all is set) and returns their working directories.
func (m *Manager) Clear(owner string, all bool) []string {
	return m.store.Clear(owner, all)
}

// Probe previews metadata for a single URL using the network config derived from opts.
func (m *Manager) Probe(ctx context.Context, rawURL string, opts models.Options) (*models.Metadata, error) {
	url := Normalize(rawURL)
	if url == "" {
		return nil, shared.ErrEmptyURLList
	}
	meta, _, err := ProbeStrategies(ctx, m.extractor, url, ResolveNetwork(opts, url), m.logger, nil)
	return meta, err
}

// ProbeMany previews up to [MaxProbeURLs] URLs concurrently. Per-URL failures are reported inline.
func (m *Manager) ProbeMany(ctx context.Context, input []string, opts models.Options) ([]services.ProbeResult, error) {
	urls := NormalizeBatch(input)
	if len(urls) == 0 {
		return nil, shared.ErrEmptyURLList
	}
	if len(urls) > MaxProbeURLs {
		urls = urls[:MaxProbeURLs]
	}

	results := make([]services.ProbeResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultWorkers)
	for i, u := range urls {
		g.Go(func() error {
			results[i].URL = u
			meta, err := m.Probe(gctx, u, opts)
			if err != nil {
				results[i].Error = shared.CleanText(err.Error())
				return nil
			}
			results[i].Metadata = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
