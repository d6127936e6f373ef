package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/videofetcher/internal/formatter"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/urfave/cli/v3"
)

// TasksAdd queues URLs on the server.
func (r *Runner) TasksAdd(ctx context.Context, cmd *cli.Command) error {
	urls := cmd.Args().Slice()
	if len(urls) == 0 {
		return fmt.Errorf("%w: at least one URL is required", shared.ErrMissingArgument)
	}

	res, err := r.api.Submit(ctx, services.SubmitRequest{
		URLs:    urls,
		Quality: cmd.String("quality"),
		Options: optionsFromFlags(cmd),
	})
	if err != nil {
		return err
	}

	for _, id := range res.IDs {
		r.writePlain("queued %s\n", id)
	}
	if res.Skipped > 0 {
		r.writePlain("skipped %d duplicate URL(s)\n", res.Skipped)
	}
	return nil
}

// TasksList prints the caller's tasks, optionally filtered by status or exported to a file.
func (r *Runner) TasksList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	views, err := r.api.ListTasks(ctx)
	if err != nil {
		return err
	}

	if s := cmd.String("status"); s != "" {
		status, err := models.ParseStatus(s)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
		}
		filtered := views[:0]
		for _, v := range views {
			if v.Status == status {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}

	if cmd.IsSet("export") {
		path, err := formatter.WriteExport(views, cmd.String("export"))
		if err != nil {
			return err
		}
		r.logger.Info("exported tasks", "path", path, "count", len(views))
		return r.writePlain("Exported %d task(s) to %s\n", len(views), path)
	}

	return formatter.Render(r.output, views, format)
}

// TasksGet prints a single task as JSON.
func (r *Runner) TasksGet(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	v, err := r.api.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return r.writeJSON(v, cmd.Bool("pretty"))
}

// TasksAction returns an action that posts the named task action (pause, cancel, retry).
func (r *Runner) TasksAction(action string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id := cmd.StringArg("id")
		if id == "" {
			return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
		}

		res, err := r.api.TaskAction(ctx, id, action)
		if err != nil {
			return fmt.Errorf("%s %s: %w", action, id, err)
		}

		if action == "retry" && len(res.IDs) > 0 {
			return r.writePlain("retrying %s as %s\n", id, res.IDs[0])
		}
		return r.writePlain("%s requested for %s\n", action, id)
	}
}

// TasksRetryFailed resubmits every failed task.
func (r *Runner) TasksRetryFailed(ctx context.Context, cmd *cli.Command) error {
	res, err := r.api.RetryFailed(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("retrying %d failed task(s)\n", len(res.IDs))
}

// TasksClear removes the caller's tasks. Requires --yes.
func (r *Runner) TasksClear(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to remove all tasks and their files", shared.ErrMissingArgument)
	}

	res, err := r.api.ClearTasks(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("cleared %d task(s)\n", res.Cleared)
}

// TasksBundle saves the server's zip of completed downloads.
func (r *Runner) TasksBundle(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = fmt.Sprintf("videos_%s.zip", time.Now().Format("20060102_150405"))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := r.api.DownloadBundle(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	r.logger.Info("bundle saved", "path", path, "bytes", n)
	return r.writePlain("Saved %s (%s)\n", path, shared.FormatSize(n))
}
