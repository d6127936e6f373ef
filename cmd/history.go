package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/videofetcher/internal/formatter"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/repositories"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) history() (*repositories.HistoryRepository, func(), error) {
	if !r.config.Database.Enabled {
		return nil, nil, fmt.Errorf("%w: database.enabled is false", shared.ErrMissingConfig)
	}
	return r.openHistory()
}

// HistoryList prints recorded runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	repo, closeFn, err := r.history()
	if err != nil {
		return err
	}
	defer closeFn()

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if owner := cmd.String("user"); owner != "" {
		criteria["owner"] = owner
	}
	if task := cmd.String("task"); task != "" {
		criteria["task_id"] = task
	}
	if s := cmd.String("status"); s != "" {
		status, err := models.ParseStatus(s)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
		}
		criteria["status"] = string(status)
	}

	runs, err := repo.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("csv") {
		data, err := formatter.RunsToCSV(runs)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}
	if len(runs) == 0 {
		return r.writePlain("No runs recorded\n")
	}
	_, err = r.output.Write(formatter.RunsToTable(runs))
	return err
}

// HistoryStats prints run counts per status.
func (r *Runner) HistoryStats(ctx context.Context, cmd *cli.Command) error {
	repo, closeFn, err := r.history()
	if err != nil {
		return err
	}
	defer closeFn()

	counts, err := repo.Stats(cmd.String("user"))
	if err != nil {
		return err
	}

	total := 0
	for _, st := range []models.Status{models.StatusCompleted, models.StatusFailed, models.StatusPaused} {
		r.writePlain("%-10s %d\n", st, counts[st])
		total += counts[st]
	}
	return r.writePlain("%-10s %d\n", "total", total)
}
