package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// TrashDir is the directory under the base dir that receives cleared task directories.
const TrashDir = ".trash"

// ClearToTrash clears tasks like [Manager.Clear] and disposes of their directories:
// moved to <base>/.trash/<owner>/<id> when trash is enabled, deleted otherwise.
// It returns how many directories were disposed of.
func (m *Manager) ClearToTrash(ctx context.Context, owner string, all bool) (int, error) {
	dirs := m.Clear(owner, all)
	if len(dirs) == 0 {
		return 0, nil
	}

	base := m.store.BaseDir()
	stamp := time.Now().Format("20060102150405")
	var moved atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !m.trash {
				if err := os.RemoveAll(dir); err != nil {
					return fmt.Errorf("failed to remove %s: %w", dir, err)
				}
				moved.Add(1)
				return nil
			}
			dest, err := trashDest(base, dir, stamp)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("failed to create trash directory: %w", err)
			}
			if err := os.Rename(dir, dest); err != nil {
				return fmt.Errorf("failed to move %s to trash: %w", dir, err)
			}
			moved.Add(1)
			return nil
		})
	}
	err := g.Wait()

	n := int(moved.Load())
	m.logger.Info("cleared task directories", "owner", owner, "all", all, "count", n, "trash", m.trash)
	return n, err
}

// trashDest maps <base>/<owner>/<id> to <base>/.trash/<owner>/<id>, appending stamp when taken.
func trashDest(base, dir, stamp string) (string, error) {
	rel, err := filepath.Rel(base, dir)
	if err != nil {
		return "", fmt.Errorf("task directory %s is outside %s: %w", dir, base, err)
	}
	dest := filepath.Join(base, TrashDir, rel)
	if _, err := os.Stat(dest); err == nil {
		dest += "_" + stamp
	}
	return dest, nil
}
