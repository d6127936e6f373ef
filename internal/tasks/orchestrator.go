package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/repositories"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// ArchiveName is the per-owner download archive kept next to the owner's task directories.
const ArchiveName = ".download_archive.txt"

// Recorder persists the terminal state of a run.
type Recorder interface {
	Record(v models.TaskView) error
}

// Job is one scheduled run of a task.
type Job struct {
	Task    *models.Task
	Quality string
	Options models.Options
	Control *repositories.RunControl
}

// OrchestratorOpts configures an [Orchestrator].
type OrchestratorOpts struct {
	Store      *repositories.TaskStore
	Extractor  services.Extractor
	Logger     *log.Logger
	Recorder   Recorder              // Optional run history
	Events     chan<- ProgressUpdate // Optional, never blocks
	UseArchive bool                  // Enable the download archive for every run
}

// Orchestrator drives a single task from PENDING to a terminal state.
type Orchestrator struct {
	store      *repositories.TaskStore
	extractor  services.Extractor
	logger     *log.Logger
	recorder   Recorder
	events     chan<- ProgressUpdate
	useArchive bool
}

// NewOrchestrator creates an orchestrator from opts.
func NewOrchestrator(opts OrchestratorOpts) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Orchestrator{
		store:      opts.Store,
		extractor:  opts.Extractor,
		logger:     logger,
		recorder:   opts.Recorder,
		events:     opts.Events,
		useArchive: opts.UseArchive,
	}
}

// Run executes job. It never returns an error: every outcome is recorded on the task.
// The task's run control is released when Run returns.
func (o *Orchestrator) Run(ctx context.Context, job Job) {
	task := job.Task
	if job.Control == nil {
		ctrl, err := o.store.Acquire(task.ID())
		if err != nil {
			o.logger.Warn("task not scheduled", "task", task.ID(), "err", err)
			return
		}
		job.Control = ctrl
	}

	logger := shared.WithLogger(o.logger, "task", task.ID(), "owner", task.Owner())
	defer o.finish(task, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	job.Control.Bind(cancel)

	err := o.execute(ctx, cancel, job, logger)

	ctrl := job.Control
	switch {
	case ctrl.CancelledByUser():
		task.MarkFailed(shared.ErrCancelledByUser.Error())
	case err == nil:
	case ctrl.StopRequested(), services.KindOf(err) == services.KindCancelled && ctx.Err() != nil:
		task.MarkPaused()
	default:
		task.MarkFailed(shared.CleanText(err.Error()))
	}
}

func (o *Orchestrator) execute(ctx context.Context, cancel context.CancelFunc, job Job, logger *log.Logger) error {
	task := job.Task
	ctrl := job.Control
	opts := job.Options.WithDefaults()

	if ctrl.StopRequested() {
		return context.Canceled
	}
	if err := os.MkdirAll(task.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	url := task.SourceURL()
	configs := ResolveNetwork(opts, url)
	meta, net, err := ProbeStrategies(ctx, o.extractor, url, configs, logger, func(step int, net models.NetworkConfig) {
		sendProgress(o.events, probingUpdate(task.ID(), step, len(configs), net))
	})
	if err != nil {
		return err
	}
	task.SetTitle(meta.Title)

	if ctrl.StopRequested() {
		return context.Canceled
	}
	task.MarkDownloading()
	logger.Info("download started", "title", meta.Title, "quality", job.Quality, "network", net.Label())

	req := o.fetchRequest(job, opts, net, meta.Title)
	req.Progress = o.progressFunc(task, ctrl, cancel)

	res, err := o.extractor.Fetch(ctx, req)
	if err != nil {
		return err
	}

	sendProgress(o.events, resolvingUpdate(task.ID()))
	path, ok := ResolveArtifact(task.Dir(), res.Paths)
	if !ok && req.ArchivePath != "" {
		if path, ok = o.reuseCompleted(task); ok {
			logger.Warn("archive skipped the download, reusing earlier artifact", "path", path)
		}
	}
	if !ok && req.ArchivePath != "" {
		logger.Warn("no output found, retrying without the archive")
		sendProgress(o.events, retryingUpdate(task.ID()))
		req.ArchivePath = ""
		if res, err = o.extractor.Fetch(ctx, req); err != nil {
			return err
		}
		path, ok = ResolveArtifact(task.Dir(), res.Paths)
	}
	if !ok {
		return shared.ErrOutputNotFound
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrOutputNotFound, err)
	}
	if !task.MarkCompleted(path, info.Size()) {
		return shared.ErrCancelledByUser
	}
	return nil
}

func (o *Orchestrator) fetchRequest(job Job, opts models.Options, net models.NetworkConfig, title string) services.FetchRequest {
	task := job.Task
	req := services.FetchRequest{
		URL:                 task.SourceURL(),
		Network:             net,
		Format:              FormatSelector(job.Quality),
		OutputTemplate:      filepath.Join(task.Dir(), SanitizeTitle(title)+".%(ext)s"),
		AudioOnly:           opts.AudioOnly || job.Quality == "audio",
		AudioFormat:         opts.AudioFormat,
		WriteSubs:           opts.WriteSubs,
		SubLangs:            opts.SubtitleLangs(),
		WriteThumbnail:      opts.WriteThumbnail,
		EmbedThumbnail:      opts.EmbedThumbnail,
		EmbedMetadata:       opts.EmbedMetadata,
		DownloadPlaylist:    opts.DownloadPlaylist,
		RateLimit:           opts.RateLimit,
		Retries:             opts.Retries,
		FragmentRetries:     opts.FragmentRetries,
		ConcurrentFragments: opts.ConcurrentFragments,
	}
	if o.useArchive || opts.UseDownloadArchive {
		req.ArchivePath = filepath.Join(o.store.BaseDir(), task.Owner(), ArchiveName)
	}
	return req
}

// progressFunc polls the run control on every tick and records download progress.
func (o *Orchestrator) progressFunc(task *models.Task, ctrl *repositories.RunControl, cancel context.CancelFunc) func(services.ProgressEvent) {
	return func(ev services.ProgressEvent) {
		if ctrl.StopRequested() {
			cancel()
			return
		}
		if ev.Status != "downloading" {
			return
		}
		speed, eta := shared.CleanText(ev.Speed), shared.CleanText(ev.ETA)
		task.SetProgress(ev.Percent(), speed, eta)
		v := task.Snapshot()
		sendProgress(o.events, downloadingUpdate(task.ID(), v.Progress, speed, eta))
	}
}

// reuseCompleted finds the most recently created other completed task of the same owner and URL whose file still exists.
func (o *Orchestrator) reuseCompleted(task *models.Task) (string, bool) {
	var (
		best  models.TaskView
		found bool
	)
	for _, t := range o.store.Completed(task.Owner()) {
		if t.ID() == task.ID() || t.SourceURL() != task.SourceURL() {
			continue
		}
		v := t.Snapshot()
		if info, err := os.Stat(v.OutputPath); err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !found || v.CreatedAt.After(best.CreatedAt) {
			best, found = v, true
		}
	}
	return best.OutputPath, found
}

func (o *Orchestrator) finish(task *models.Task, logger *log.Logger) {
	if r := recover(); r != nil {
		logger.Error("run panicked", "panic", r)
		task.MarkFailed(fmt.Sprintf("internal error: %v", r))
	} else if !task.Status().Terminal() {
		task.MarkFailed("run ended without a result")
	}
	o.store.Release(task.ID())

	v := task.Snapshot()
	switch v.Status {
	case models.StatusCompleted:
		logger.Info("download completed", "path", v.OutputPath, "size", shared.FormatSize(v.OutputSize))
	case models.StatusPaused:
		logger.Info("download paused")
	default:
		logger.Error("download failed", "err", v.Error)
	}
	sendProgress(o.events, finishedUpdate(v))

	if o.recorder != nil {
		if err := o.recorder.Record(v); err != nil {
			logger.Warn("failed to record run history", "err", err)
		}
	}
}
