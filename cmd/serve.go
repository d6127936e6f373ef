package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/videofetcher/internal/server"
	"github.com/urfave/cli/v3"
)

const shutdownGrace = 15 * time.Second

// Serve runs the HTTP API with a task manager until ctx ends.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if len(r.config.Users) == 0 {
		r.logger.Warn("no users configured; every request will be rejected")
	}

	mgr, closeFn, err := r.newManager(cmd.String("dir"), int(cmd.Int("workers")), nil)
	if err != nil {
		return err
	}
	defer closeFn()

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	mgr.Start(workCtx)

	srv := server.New(server.ServerOpts{
		Config:  r.config,
		Manager: mgr,
		Logger:  r.logger,
	})

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	serveErr := srv.ListenAndServe(ctx, addr)

	// Running downloads are interrupted so they end paused and can be resumed with retry.
	cancelWork()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		r.logger.Warn("task manager shutdown", "err", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	r.logger.Info("server stopped")
	return nil
}
