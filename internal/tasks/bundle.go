package tasks

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// BundleResult summarizes a written archive.
type BundleResult struct {
	Files      int   // Entries written
	Duplicates int   // Completed tasks whose content was already in the archive
	Bytes      int64 // Uncompressed bytes written
}

type bundleEntry struct {
	view models.TaskView
	sum  [blake2b.Size256]byte
}

// Bundle writes a zip of the completed artifacts of owner (everyone when all is set) to w.
// Files with identical content are stored once. It fails with [shared.ErrOutputNotFound]
// when there is nothing to bundle.
func (m *Manager) Bundle(ctx context.Context, owner string, all bool, w io.Writer) (BundleResult, error) {
	var entries []bundleEntry
	for _, v := range m.views(owner, all) {
		if v.Status != models.StatusCompleted {
			continue
		}
		if info, err := os.Stat(v.OutputPath); err != nil || !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, bundleEntry{view: v})
	}
	if len(entries) == 0 {
		return BundleResult{}, fmt.Errorf("%w: no completed downloads", shared.ErrOutputNotFound)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := hashFile(entries[i].view.OutputPath)
			if err != nil {
				return err
			}
			entries[i].sum = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BundleResult{}, err
	}

	var res BundleResult
	zw := zip.NewWriter(w)
	seen := make(map[[blake2b.Size256]byte]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.sum]; dup {
			res.Duplicates++
			continue
		}
		seen[e.sum] = struct{}{}

		n, err := addToZip(zw, e.view)
		if err != nil {
			zw.Close()
			return res, err
		}
		res.Files++
		res.Bytes += n
	}
	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("failed to finish archive: %w", err)
	}
	m.logger.Info("bundle written", "owner", owner, "files", res.Files, "duplicates", res.Duplicates)
	return res, nil
}

func hashFile(path string) ([blake2b.Size256]byte, error) {
	var sum [blake2b.Size256]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return sum, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return sum, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func addToZip(zw *zip.Writer, v models.TaskView) (int64, error) {
	f, err := os.Open(v.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", v.OutputPath, err)
	}
	defer f.Close()

	hdr := &zip.FileHeader{
		Name:     DownloadName(v),
		Method:   zip.Deflate,
		Modified: v.FinishedAt,
	}
	// Media containers are already compressed.
	if IsMedia(v.OutputPath) {
		hdr.Method = zip.Store
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, fmt.Errorf("failed to add %s: %w", hdr.Name, err)
	}
	n, err := io.Copy(dst, f)
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", hdr.Name, err)
	}
	return n, nil
}
