package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/desertthunder/videofetcher/internal/ui"
	"github.com/urfave/cli/v3"
)

// Watch launches the interactive task monitor against the server.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	if r.api == nil {
		return fmt.Errorf("%w: API client not initialized", shared.ErrServiceUnavailable)
	}

	resp, err := r.api.Get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrServiceUnavailable, r.api.BaseURL(), err)
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.ApplyLogLevel(fileLogger, r.config.Logging.Level)
	r.SetLogger(fileLogger)

	quality := cmd.String("quality")
	if quality == "" {
		quality = r.config.Download.DefaultQuality
	}

	model := ui.NewModel(ctx, r.api, quality, cmd.Duration("interval"))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
