package tasks

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/repositories"
	"github.com/desertthunder/videofetcher/internal/services"
)

// fakeExtractor writes a fixed payload for every fetch and reports progress like the real gateway.
type fakeExtractor struct {
	mu sync.Mutex

	title     string
	content   []byte
	probeErrs []error // consumed one per probe call
	fetchErr  error
	// hold keeps Fetch reporting progress until closed or the context ends.
	hold chan struct{}
	// skipWrite simulates an archive hit: nothing is written while an archive path is set.
	skipWrite bool
	// noReport leaves FetchResult.Paths empty.
	noReport bool

	probes   []models.NetworkConfig
	requests []services.FetchRequest
}

func newFakeExtractor(title string) *fakeExtractor {
	return &fakeExtractor{title: title, content: []byte("fake media payload")}
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Probe(ctx context.Context, url string, net models.NetworkConfig) (*models.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, net)
	if len(f.probeErrs) > 0 {
		err := f.probeErrs[0]
		f.probeErrs = f.probeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.Metadata{Title: f.title, WebpageURL: url}, nil
}

func (f *fakeExtractor) Fetch(ctx context.Context, req services.FetchRequest) (*services.FetchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	hold, fetchErr, skip, noReport, content := f.hold, f.fetchErr, f.skipWrite, f.noReport, f.content
	f.mu.Unlock()

	total := int64(len(content))
	tick := func(done int64) {
		if req.Progress != nil {
			req.Progress(services.ProgressEvent{Status: "downloading", DownloadedBytes: done, TotalBytes: total, Speed: "1.0 MB/s\x1b[0m", ETA: "00:01"})
		}
	}

	tick(0)
	if hold != nil {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
	wait:
		for {
			select {
			case <-ctx.Done():
				return nil, services.NewExtractError(services.KindCancelled, "fetch", context.Canceled)
			case <-hold:
				break wait
			case <-ticker.C:
				tick(total / 2)
			}
		}
	}
	if ctx.Err() != nil {
		return nil, services.NewExtractError(services.KindCancelled, "fetch", context.Canceled)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	tick(total)
	if skip && req.ArchivePath != "" {
		return &services.FetchResult{}, nil
	}

	path := strings.ReplaceAll(req.OutputTemplate, "%(ext)s", "mp4")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, err
	}
	if noReport {
		return &services.FetchResult{}, nil
	}
	return &services.FetchResult{Paths: []string{path}}, nil
}

func (f *fakeExtractor) fetches() []services.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.FetchRequest(nil), f.requests...)
}

// memRecorder collects recorded runs.
type memRecorder struct {
	mu   sync.Mutex
	runs []models.TaskView
	err  error
}

func (r *memRecorder) Record(v models.TaskView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, v)
	return r.err
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

var errAuthExpired = services.NewExtractError(services.KindAuthExpired, "probe", errors.New("Fresh cookies are needed"))

func quietLogger() *log.Logger { return log.New(io.Discard) }

func newTestStore(t *testing.T) *repositories.TaskStore {
	t.Helper()
	return repositories.NewTaskStore(filepath.Join(t.TempDir(), "data"))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
