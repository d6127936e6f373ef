package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/repositories"
	"github.com/desertthunder/videofetcher/internal/server"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/desertthunder/videofetcher/internal/tasks"
	tu "github.com/desertthunder/videofetcher/internal/testing"
)

// stubExtractor writes a small file for every fetch and serves a fixed cookie jar.
type stubExtractor struct {
	fail    bool
	cookies map[string][]services.Cookie
}

func (s *stubExtractor) Name() string { return "stub" }

func (s *stubExtractor) Probe(_ context.Context, url string, _ models.NetworkConfig) (*models.Metadata, error) {
	if strings.Contains(url, "missing") {
		return nil, services.NewExtractError(services.KindNotFound, "probe", errors.New("Video unavailable"))
	}
	return &models.Metadata{Title: "Clip", WebpageURL: url}, nil
}

func (s *stubExtractor) Fetch(_ context.Context, req services.FetchRequest) (*services.FetchResult, error) {
	if s.fail {
		return nil, errors.New("boom")
	}
	path := strings.ReplaceAll(req.OutputTemplate, "%(ext)s", "mp4")
	if err := os.WriteFile(path, []byte("clip bytes for "+req.URL), 0o644); err != nil {
		return nil, err
	}
	return &services.FetchResult{Paths: []string{path}}, nil
}

func (s *stubExtractor) BrowserCookies(_ context.Context, browser, _ string) ([]services.Cookie, error) {
	jar, ok := s.cookies[browser]
	if !ok {
		return nil, errors.New("no cookie store")
	}
	return jar, nil
}

// testRunner builds a runner whose downloads, database, and output live under a temp dir.
func testRunner(t *testing.T, ext services.Extractor) (*Runner, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	config := shared.DefaultConfig()
	config.Download.BaseDir = filepath.Join(dir, "downloads")
	config.Download.MaxConcurrent = 2
	config.Database.Path = filepath.Join(dir, "vf.db")
	config.Server.SubmitRate = 0
	config.Users = []shared.UserConfig{
		{Name: "root", Role: "admin"},
		{Name: "alice", Role: "user"},
	}

	output := &bytes.Buffer{}
	return NewRunner(RunnerOpts{
		Config:    config,
		Extractor: ext,
		Logger:    log.New(io.Discard),
		Output:    output,
	}), output
}

func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	return r.app("test").Run(context.Background(), append([]string{"vf"}, args...))
}

func TestDownload(t *testing.T) {
	t.Run("Completes And Records History", func(t *testing.T) {
		r, out := testRunner(t, &stubExtractor{})

		err := run(t, r, "download", "--as", "alice",
			"https://www.douyin.com/video/1", "https://www.douyin.com/video/2", "https://www.douyin.com/video/1")
		if err != nil {
			t.Fatalf("download failed: %v\n%s", err, out.String())
		}
		if !strings.Contains(out.String(), "completed") || !strings.Contains(out.String(), "Clip") {
			t.Errorf("summary missing completed tasks:\n%s", out.String())
		}

		entries, _ := filepath.Glob(filepath.Join(r.config.Download.BaseDir, "alice", "*", "*.mp4"))
		if len(entries) != 2 {
			t.Errorf("expected 2 downloaded files, got %v", entries)
		}

		out.Reset()
		if err := run(t, r, "history", "list", "--user", "alice", "--csv"); err != nil {
			t.Fatalf("history list failed: %v", err)
		}
		if got := strings.Count(out.String(), "alice"); got != 2 {
			t.Errorf("expected 2 recorded runs, got %d:\n%s", got, out.String())
		}

		out.Reset()
		if err := run(t, r, "history", "stats"); err != nil {
			t.Fatalf("history stats failed: %v", err)
		}
		if !strings.Contains(out.String(), "completed  2") {
			t.Errorf("unexpected stats:\n%s", out.String())
		}
	})

	t.Run("Failures Are Reported", func(t *testing.T) {
		r, out := testRunner(t, &stubExtractor{fail: true})

		err := run(t, r, "download", "--format", "txt", "https://www.douyin.com/video/9")
		if err == nil || !strings.Contains(err.Error(), "1 of 1 download(s) failed") {
			t.Errorf("expected failure summary error, got %v", err)
		}
		if !strings.Contains(out.String(), "[failed]") {
			t.Errorf("expected text summary, got:\n%s", out.String())
		}
	})

	t.Run("Reads Input File", func(t *testing.T) {
		r, out := testRunner(t, &stubExtractor{})
		r.config.Database.Enabled = false

		if err := os.WriteFile("urls.txt", []byte("https://www.douyin.com/video/3\n# skip\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := run(t, r, "download", "-i", "urls.txt", "--format", "json"); err != nil {
			t.Fatalf("download failed: %v", err)
		}

		raw := out.String()
		var views []models.TaskView
		if err := json.Unmarshal([]byte(raw[strings.Index(raw, "[\n"):]), &views); err != nil {
			t.Fatalf("summary is not JSON: %v\n%s", err, raw)
		}
		if len(views) != 1 || views[0].Owner != "root" || views[0].Status != models.StatusCompleted {
			t.Errorf("unexpected views %+v", views)
		}
	})

	t.Run("Input Errors", func(t *testing.T) {
		r, _ := testRunner(t, &stubExtractor{})

		if err := run(t, r, "download"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := run(t, r, "download", "--format", "yaml", "https://x.test/1"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
		if err := run(t, r, "download", "   "); !errors.Is(err, shared.ErrEmptyURLList) {
			t.Errorf("expected ErrEmptyURLList, got %v", err)
		}
		if err := run(t, r, "download", "", " \n "); !errors.Is(err, shared.ErrEmptyURLList) {
			t.Errorf("blank arguments: expected ErrEmptyURLList, got %v", err)
		}
	})
}

func TestProbe(t *testing.T) {
	r, out := testRunner(t, &stubExtractor{})
	r.config.Database.Enabled = false

	if err := run(t, r, "probe", "--pretty=false", "https://www.douyin.com/video/1", "https://www.douyin.com/video/missing"); err != nil {
		t.Fatalf("probe failed: %v", err)
	}

	var results []services.ProbeResult
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(results) != 2 || results[0].Metadata == nil || results[0].Metadata.Title != "Clip" {
		t.Errorf("unexpected first result %+v", results)
	}
	if results[1].Error == "" {
		t.Error("missing video should report an inline error")
	}
}

// remote starts a server backed by a real manager and points r at it.
func remote(t *testing.T, r *Runner) *tasks.Manager {
	t.Helper()
	mgr := tasks.NewManager(tasks.ManagerOpts{
		Store:     repositories.NewTaskStore(r.config.Download.BaseDir),
		Extractor: r.extractor,
		Workers:   2,
		Trash:     true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	hs := httptest.NewServer(server.New(server.ServerOpts{Config: r.config, Manager: mgr, Logger: log.New(io.Discard)}))
	t.Cleanup(func() {
		hs.Close()
		cancel()
		mgr.Shutdown(context.Background())
	})
	r.httpClient = hs.Client()
	t.Setenv("VF_SERVER", hs.URL)
	return mgr
}

func TestTasks(t *testing.T) {
	r, out := testRunner(t, &stubExtractor{})
	mgr := remote(t, r)

	if err := run(t, r, "--owner", "alice", "tasks", "add", "https://www.douyin.com/video/1", "https://www.douyin.com/video/1"); err != nil {
		t.Fatalf("tasks add failed: %v", err)
	}
	if !strings.Contains(out.String(), "queued ") {
		t.Fatalf("expected queued id, got %q", out.String())
	}
	id := strings.Fields(strings.TrimPrefix(out.String(), "queued "))[0]
	if !allSettledWithin(mgr, id) {
		t.Fatal("task did not finish")
	}

	t.Run("List", func(t *testing.T) {
		out.Reset()
		if err := run(t, r, "--owner", "alice", "tasks", "list", "--format", "csv", "--status", "completed"); err != nil {
			t.Fatalf("tasks list failed: %v", err)
		}
		if !strings.Contains(out.String(), id) {
			t.Errorf("list missing %s:\n%s", id, out.String())
		}

		if err := run(t, r, "--owner", "alice", "tasks", "list", "--status", "bogus"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("Export", func(t *testing.T) {
		out.Reset()
		if err := run(t, r, "--owner", "alice", "tasks", "list", "--export", "report.md"); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, "report.md"), "**Completed**: 1") {
			t.Error("export should contain the status summary")
		}
	})

	t.Run("Get", func(t *testing.T) {
		out.Reset()
		if err := run(t, r, "--owner", "alice", "tasks", "get", id); err != nil {
			t.Fatalf("tasks get failed: %v", err)
		}
		if !strings.Contains(out.String(), `"status": "completed"`) {
			t.Errorf("unexpected task JSON:\n%s", out.String())
		}
		if err := run(t, r, "--owner", "alice", "tasks", "get", "ffffffff"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Actions", func(t *testing.T) {
		if err := run(t, r, "--owner", "alice", "tasks", "pause", id); err == nil {
			t.Error("pausing a finished task should fail")
		}
		if err := run(t, r, "--owner", "alice", "tasks", "cancel", id); err == nil {
			t.Error("cancelling a completed task should fail")
		}

		out.Reset()
		if err := run(t, r, "--owner", "alice", "tasks", "retry", id); err != nil {
			t.Fatalf("retry failed: %v", err)
		}
		if !strings.Contains(out.String(), "retrying "+id+" as ") {
			t.Errorf("unexpected retry output %q", out.String())
		}

		out.Reset()
		if err := run(t, r, "--owner", "alice", "tasks", "retry-failed"); err != nil {
			t.Fatalf("retry-failed failed: %v", err)
		}
		if !strings.Contains(out.String(), "retrying 0 failed task(s)") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("Bundle", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clips.zip")
		if err := run(t, r, "--owner", "alice", "tasks", "bundle", "-o", path); err != nil {
			t.Fatalf("bundle failed: %v", err)
		}
		zr, err := zip.OpenReader(path)
		if err != nil {
			t.Fatalf("invalid zip: %v", err)
		}
		defer zr.Close()
		if len(zr.File) != 1 {
			t.Errorf("expected 1 entry, got %d", len(zr.File))
		}

		empty := filepath.Join(t.TempDir(), "empty.zip")
		if err := run(t, r, "--owner", "root", "tasks", "bundle", "-o", empty); err == nil {
			t.Error("bundle with nothing completed should fail")
		}
		tu.AssertNotExists(t, empty)
	})

	t.Run("Clear", func(t *testing.T) {
		if err := run(t, r, "--owner", "alice", "tasks", "clear"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("clear without --yes should refuse, got %v", err)
		}

		for _, v := range mgr.ForOwner("alice") {
			allSettledWithin(mgr, v.ID)
		}
		out.Reset()
		if err := run(t, r, "--owner", "alice", "tasks", "clear", "--yes"); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if !strings.Contains(out.String(), "cleared ") || len(mgr.ForOwner("alice")) != 0 {
			t.Errorf("expected alice's tasks to be gone, output %q", out.String())
		}
	})

	t.Run("Raw API", func(t *testing.T) {
		out.Reset()
		if err := run(t, r, "api", "get", "/health"); err != nil {
			t.Fatalf("api get failed: %v", err)
		}
		if !strings.Contains(out.String(), `"status": "ok"`) {
			t.Errorf("unexpected health output %q", out.String())
		}

		if err := run(t, r, "api", "post", "/api/probe", "-d", "{not json"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := run(t, r, "--owner", "alice", "api", "post", "/api/probe", "-d", `{"urls":[]}`); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func allSettledWithin(mgr *tasks.Manager, ids ...string) bool {
	for range 500 {
		if allSettled(mgr, ids) {
			return true
		}
		<-time.After(10 * time.Millisecond)
	}
	return false
}

func TestCookies(t *testing.T) {
	session := []services.Cookie{{Domain: ".douyin.com", Name: "s_v_web_id", Value: "x"}}

	tc := []struct {
		name    string
		cookies map[string][]services.Cookie
		want    string
	}{
		{"Second Browser Has Session", map[string][]services.Cookie{"safari": {}, "chrome": session}, "chrome\n"},
		{"No Session", map[string][]services.Cookie{"firefox": {{Domain: ".example.com", Name: "s_v_web_id"}}}, ""},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			r, out := testRunner(t, &stubExtractor{cookies: tt.cookies})
			err := run(t, r, "cookies", "detect")
			if tt.want == "" {
				if !errors.Is(err, shared.ErrMissingConfig) {
					t.Errorf("expected ErrMissingConfig, got %v", err)
				}
				return
			}
			if err != nil || out.String() != tt.want {
				t.Errorf("detect = %q, %v; want %q", out.String(), err, tt.want)
			}
		})
	}
}

func TestSetup(t *testing.T) {
	t.Run("Config", func(t *testing.T) {
		r, out := testRunner(t, nil)
		path := filepath.Join("conf", "vf.toml")

		if err := run(t, r, "setup", "config", "-o", path); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(out.String(), "Wrote "+path) {
			t.Errorf("unexpected output %q", out.String())
		}
		if err := run(t, NewRunner(RunnerOpts{Logger: r.logger, Output: io.Discard}), "setup", "config", "-o", path); err == nil {
			t.Error("existing config should not be overwritten")
		}
	})

	t.Run("Database", func(t *testing.T) {
		r, _ := testRunner(t, nil)
		if err := run(t, r, "setup", "database"); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, "config.toml")
		tu.AssertFileExists(t, "videofetcher.db")

		if err := run(t, r, "setup", "database", "--rollback"); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		if err := run(t, r, "setup", "database", "--rollback"); err == nil {
			t.Error("rolling back with nothing applied should fail")
		}
	})

	t.Run("History Requires Database", func(t *testing.T) {
		r, _ := testRunner(t, nil)
		r.config.Database.Enabled = false
		if err := run(t, r, "history", "list"); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}
