package repositories

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTaskStore(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		store := NewTaskStore("/data")
		task := store.Create("alice", "https://example.com/a")

		if len(task.ID()) != 8 {
			t.Errorf("expected 8 char id, got %q", task.ID())
		}
		if task.Status() != models.StatusPending {
			t.Errorf("expected pending, got %s", task.Status())
		}
		if want := filepath.Join("/data", "alice", task.ID()); task.Dir() != want {
			t.Errorf("expected dir %s, got %s", want, task.Dir())
		}
		if got, ok := store.Get(task.ID()); !ok || got != task {
			t.Error("Get should return the created task")
		}
	})

	t.Run("Ids Are Never Reused", func(t *testing.T) {
		store := NewTaskStore(t.TempDir())
		ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb", "aaaaaaaa", "bbbbbbbb", "cccccccc"}
		i := 0
		store.newID = func() string {
			id := ids[i]
			i++
			return id
		}

		first := store.Create("alice", "u1")
		store.Clear("alice", false)
		second := store.Create("alice", "u2")
		third := store.Create("alice", "u3")

		got := []string{first.ID(), second.ID(), third.ID()}
		want := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}
		if !slices.Equal(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
	})

	t.Run("Concurrent Creates Yield Unique Ids", func(t *testing.T) {
		store := NewTaskStore(t.TempDir())
		const n = 10000

		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids[i] = store.Create(fmt.Sprintf("owner-%d", i%7), "https://example.com").ID()
			}()
		}
		wg.Wait()

		seen := make(map[string]bool, n)
		for _, id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %s", id)
			}
			seen[id] = true
		}
		if len(store.All()) != n {
			t.Errorf("expected %d tasks, got %d", n, len(store.All()))
		}
	})

	t.Run("CreateIfNew", func(t *testing.T) {
		tc := []struct {
			name        string
			existing    []string
			batch       []string
			wantCreated []string
			wantSkipped int
		}{
			{
				name:        "existing and repeated",
				existing:    []string{"X"},
				batch:       []string{"X", "Y", "X"},
				wantCreated: []string{"Y"},
				wantSkipped: 2,
			},
			{
				name:        "all new keeps order",
				batch:       []string{"C", "A", "B"},
				wantCreated: []string{"C", "A", "B"},
			},
			{
				name:        "empty batch",
				existing:    []string{"X"},
				wantCreated: nil,
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				store := NewTaskStore(t.TempDir())
				for _, u := range tt.existing {
					store.Create("alice", u)
				}
				store.Create("bob", "Y")

				created, skipped := store.CreateIfNew("alice", tt.batch)
				var urls []string
				for _, c := range created {
					urls = append(urls, c.SourceURL())
				}
				if !slices.Equal(urls, tt.wantCreated) {
					t.Errorf("created = %v, want %v", urls, tt.wantCreated)
				}
				if skipped != tt.wantSkipped {
					t.Errorf("skipped = %d, want %d", skipped, tt.wantSkipped)
				}
			})
		}
	})

	t.Run("Concurrent CreateIfNew Creates Each URL Once", func(t *testing.T) {
		store := NewTaskStore(t.TempDir())
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.CreateIfNew("alice", []string{"A", "B", "C"})
			}()
		}
		wg.Wait()

		if n := len(store.ForOwner("alice")); n != 3 {
			t.Errorf("expected 3 tasks, got %d", n)
		}
	})

	t.Run("Owner Scoping", func(t *testing.T) {
		store := NewTaskStore(t.TempDir())
		a := store.Create("alice", "1")
		store.Create("bob", "2")
		store.Create("alice", "3")

		if n := len(store.ForOwner("alice")); n != 2 {
			t.Errorf("alice has %d tasks, want 2", n)
		}
		a.MarkCompleted("x", 1)
		if got := store.Completed("alice"); len(got) != 1 || got[0] != a {
			t.Errorf("Completed(alice) = %v", got)
		}
		if n := len(store.Completed("bob")); n != 0 {
			t.Errorf("bob has %d completed, want 0", n)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		base := t.TempDir()
		store := NewTaskStore(base)
		withDir := store.Create("alice", "1")
		store.Create("alice", "2")
		bobs := store.Create("bob", "3")

		if err := os.MkdirAll(withDir.Dir(), 0755); err != nil {
			t.Fatal(err)
		}
		ctrl, err := store.Acquire(withDir.ID())
		if err != nil {
			t.Fatal(err)
		}

		dirs := store.Clear("alice", false)
		if !slices.Equal(dirs, []string{withDir.Dir()}) {
			t.Errorf("dirs = %v, want only existing dir %s", dirs, withDir.Dir())
		}
		if !ctrl.StopRequested() || !ctrl.CancelledByUser() {
			t.Error("in-flight run should be stopped on clear")
		}
		if _, err := os.Stat(withDir.Dir()); err != nil {
			t.Errorf("Clear must not touch the filesystem: %v", err)
		}
		if n := len(store.ForOwner("alice")); n != 0 {
			t.Errorf("alice still has %d tasks", n)
		}
		if _, ok := store.Get(bobs.ID()); !ok {
			t.Error("bob's task should survive")
		}

		store.Clear("", true)
		if n := len(store.All()); n != 0 {
			t.Errorf("expected empty store, got %d", n)
		}
	})

	t.Run("Run Controls", func(t *testing.T) {
		store := NewTaskStore(t.TempDir())
		task := store.Create("alice", "1")

		if store.RequestStop(task.ID(), false) {
			t.Error("RequestStop without a run should return false")
		}

		ctrl, err := store.Acquire(task.ID())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if _, err := store.Acquire(task.ID()); err == nil {
			t.Error("second Acquire should fail")
		}
		if _, err := store.Acquire("missing"); err == nil {
			t.Error("Acquire for unknown task should fail")
		}

		cancelled := false
		ctrl.Bind(func() { cancelled = true })
		if !store.RequestStop(task.ID(), false) {
			t.Error("RequestStop should report the run")
		}
		if !cancelled || ctrl.CancelledByUser() {
			t.Errorf("pause should cancel context without user flag (cancelled=%v)", cancelled)
		}

		store.Release(task.ID())
		if store.InFlight(task.ID()) {
			t.Error("control should be gone after Release")
		}
	})

	t.Run("Bind After Stop Fires Immediately", func(t *testing.T) {
		ctrl := &RunControl{}
		ctrl.RequestStop(true)
		fired := false
		ctrl.Bind(func() { fired = true })
		if !fired {
			t.Error("Bind should cancel at once when a stop was requested earlier")
		}
	})
}

func TestHistoryRepository(t *testing.T) {
	finished := func(id, owner string, status models.Status) models.TaskView {
		task := models.NewTask(id, owner, "https://example.com/"+id, "/d/"+id, time.Now())
		task.SetTitle("title " + id)
		task.MarkDownloading()
		switch status {
		case models.StatusCompleted:
			task.MarkCompleted("/d/"+id+"/v.mp4", 99)
		case models.StatusFailed:
			task.MarkFailed("boom")
		default:
			task.MarkPaused()
		}
		return task.Snapshot()
	}

	t.Run("Record And Get", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		run := models.NewTaskRun("", finished("t1", "alice", models.StatusCompleted))
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if run.ID() == "" {
			t.Fatal("run id should be generated")
		}

		got, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.TaskID != "t1" || got.Status != models.StatusCompleted || got.OutputSize != 99 {
			t.Errorf("unexpected run: %+v", got)
		}
		if got.StartedAt.IsZero() || got.FinishedAt.IsZero() {
			t.Error("timestamps should round trip")
		}
	})

	t.Run("Rejects Non Terminal", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		pending := models.NewTask("p", "alice", "u", "/d", time.Now()).Snapshot()
		if err := repo.Record(pending); err == nil {
			t.Error("expected validation error for pending task")
		}
	})

	t.Run("List And Stats", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		for _, v := range []models.TaskView{
			finished("a1", "alice", models.StatusCompleted),
			finished("a2", "alice", models.StatusFailed),
			finished("a3", "alice", models.StatusCompleted),
			finished("b1", "bob", models.StatusPaused),
		} {
			if err := repo.Record(v); err != nil {
				t.Fatalf("Record(%s) error = %v", v.ID, err)
			}
		}

		runs, err := repo.List(map[string]any{"owner": "alice"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(runs) != 3 {
			t.Errorf("expected 3 alice runs, got %d", len(runs))
		}

		limited, _ := repo.List(map[string]any{"limit": 2})
		if len(limited) != 2 {
			t.Errorf("expected limit 2, got %d", len(limited))
		}

		failed, _ := repo.List(map[string]any{"status": "failed"})
		if len(failed) != 1 || failed[0].Error != "boom" {
			t.Errorf("unexpected failed runs: %+v", failed)
		}

		stats, err := repo.Stats("alice")
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats[models.StatusCompleted] != 2 || stats[models.StatusFailed] != 1 {
			t.Errorf("unexpected stats: %v", stats)
		}
		all, _ := repo.Stats("")
		if all[models.StatusPaused] != 1 {
			t.Errorf("expected one paused run overall, got %v", all)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		run := models.NewTaskRun("", finished("d1", "alice", models.StatusFailed))
		if err := repo.Create(run); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(run.ID()); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := repo.Get(run.ID()); err == nil {
			t.Error("expected error after delete")
		}
		if err := repo.Delete(run.ID()); err == nil {
			t.Error("second delete should fail")
		}
	})
}
