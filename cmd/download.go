package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/videofetcher/internal/formatter"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/desertthunder/videofetcher/internal/tasks"
	"github.com/urfave/cli/v3"
)

const waitInterval = 250 * time.Millisecond

// optionsFromFlags collects the per-submission settings shared by download commands.
func optionsFromFlags(cmd *cli.Command) models.Options {
	return models.Options{
		AudioOnly:           cmd.Bool("audio-only"),
		AudioFormat:         cmd.String("audio-format"),
		WriteSubs:           cmd.Bool("subs"),
		SubLangs:            cmd.String("sub-langs"),
		WriteThumbnail:      cmd.Bool("thumbnail"),
		EmbedThumbnail:      cmd.Bool("embed-thumbnail"),
		EmbedMetadata:       cmd.Bool("embed-metadata"),
		DownloadPlaylist:    cmd.Bool("playlist"),
		Proxy:               cmd.String("proxy"),
		CookieFile:          cmd.String("cookies"),
		CookiesFromBrowser:  cmd.String("cookies-from-browser"),
		RateLimit:           cmd.String("rate-limit"),
		Retries:             int(cmd.Int("retries")),
		FragmentRetries:     int(cmd.Int("fragment-retries")),
		ConcurrentFragments: int(cmd.Int("concurrent-fragments")),
		UseDownloadArchive:  cmd.Bool("archive"),
	}
}

// inputLines gathers positional arguments and, with --input, the lines of a file.
func inputLines(cmd *cli.Command) ([]string, error) {
	lines := cmd.Args().Slice()
	path := cmd.String("input")
	if path == "" {
		return lines, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// Download runs the submitted URLs on a local manager and waits until each one is terminal.
// Interrupting pauses the remaining tasks.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 && cmd.String("input") == "" {
		return fmt.Errorf("%w: at least one URL is required", shared.ErrMissingArgument)
	}
	input, err := inputLines(cmd)
	if err != nil {
		return err
	}
	if len(tasks.NormalizeBatch(input)) == 0 {
		return shared.ErrEmptyURLList
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	events := make(chan tasks.ProgressUpdate, 64)
	mgr, closeFn, err := r.newManager(cmd.String("dir"), int(cmd.Int("workers")), events)
	if err != nil {
		return err
	}
	defer closeFn()

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	mgr.Start(workCtx)

	owner := r.localOwner(cmd.String("as"))
	res, err := mgr.Submit(owner, input, cmd.String("quality"), optionsFromFlags(cmd))
	if err != nil {
		return err
	}
	if res.Skipped > 0 {
		r.writePlain("Skipped %d duplicate URL(s)\n", res.Skipped)
	}

	stopPrinting := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		r.printUpdates(events, stopPrinting)
	}()

	interrupted := r.waitFor(ctx, mgr, res.IDs)
	if interrupted {
		r.logger.Warn("interrupted, pausing remaining downloads")
		for _, id := range res.IDs {
			mgr.Pause(id)
		}
		cancelWork()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("task manager shutdown", "err", err)
	}
	close(stopPrinting)
	<-printed

	views := make([]models.TaskView, 0, len(res.IDs))
	failed := 0
	for _, id := range res.IDs {
		if v, ok := mgr.Get(id); ok {
			views = append(views, v)
			if v.Status == models.StatusFailed {
				failed++
			}
		}
	}
	if len(views) > 0 {
		r.writePlain("\n")
		if err := formatter.Render(r.output, views, format); err != nil {
			return err
		}
	}

	switch {
	case interrupted:
		return context.Canceled
	case failed > 0:
		return fmt.Errorf("%d of %d download(s) failed", failed, len(views))
	}
	return nil
}

// waitFor polls until every id is terminal with no run in flight. It reports whether ctx ended first.
func (r *Runner) waitFor(ctx context.Context, mgr *tasks.Manager, ids []string) bool {
	ticker := time.NewTicker(waitInterval)
	defer ticker.Stop()
	for {
		if allSettled(mgr, ids) {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}
	}
}

func allSettled(mgr *tasks.Manager, ids []string) bool {
	for _, id := range ids {
		v, ok := mgr.Get(id)
		if !ok {
			continue
		}
		if !v.Status.Terminal() || mgr.Store().InFlight(id) {
			return false
		}
	}
	return true
}

// printUpdates prints events until stop closes, then drains what is already buffered.
// The channel is never closed since late runs may still send on it.
func (r *Runner) printUpdates(events <-chan tasks.ProgressUpdate, stop <-chan struct{}) {
	for {
		select {
		case u := <-events:
			r.printUpdate(u)
		case <-stop:
			for {
				select {
				case u := <-events:
					r.printUpdate(u)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) printUpdate(u tasks.ProgressUpdate) {
	switch u.Phase {
	case tasks.Downloading:
		r.logger.Debug(u.Message, "task", u.TaskID)
	case tasks.Probing:
		r.writePlain("[%s] %s (%d/%d)\n", u.TaskID, u.Message, u.Step, u.Total)
	default:
		r.writePlain("[%s] %s\n", u.TaskID, u.Message)
	}
}

// Probe previews metadata for URLs, locally or through the server with --remote.
func (r *Runner) Probe(ctx context.Context, cmd *cli.Command) error {
	input := cmd.Args().Slice()
	if len(input) == 0 {
		return fmt.Errorf("%w: at least one URL is required", shared.ErrMissingArgument)
	}
	opts := models.Options{
		Proxy:              cmd.String("proxy"),
		CookieFile:         cmd.String("cookies"),
		CookiesFromBrowser: cmd.String("cookies-from-browser"),
	}

	var (
		results []services.ProbeResult
		err     error
	)
	if cmd.Bool("remote") {
		results, err = r.api.Probe(ctx, services.ProbeRequest{URLs: input, Options: opts})
	} else {
		mgr, closeFn, merr := r.newManager("", 0, nil)
		if merr != nil {
			return merr
		}
		defer closeFn()
		results, err = mgr.ProbeMany(ctx, input, opts)
	}
	if err != nil {
		if errors.Is(err, shared.ErrEmptyURLList) {
			return fmt.Errorf("%w: no recognizable URLs in input", shared.ErrInvalidArgument)
		}
		return err
	}
	return r.writeJSON(results, cmd.Bool("pretty"))
}
