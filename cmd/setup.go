package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) targetConfigPath(cmd *cli.Command) string {
	if path := cmd.String("config"); path != "" {
		return path
	}
	return "config.toml"
}

// SetupConfig writes the example configuration to --output, or the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = r.targetConfigPath(cmd)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Wrote %s\n", path)
	r.writePlain("Next steps:\n")
	r.writePlain("1. Add yourself under [[users]] with role = \"admin\"\n")
	r.writePlain("2. Run 'vf setup database' if database.enabled is true\n")
	return r.writePlain("3. Run 'vf serve'\n")
}

// SetupDatabase initializes the database and runs migrations.
//
// A missing config file is created from the template first.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.targetConfigPath(cmd)
	config := r.config

	if r.configPath == "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			r.logger.Info("config file not found, creating from template", "path", path)
			if err := shared.CreateConfigFile(path); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else if loaded, err := shared.LoadConfig(path); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			} else {
				config = loaded
			}
		}
	}

	if dir := filepath.Dir(config.Database.Path); dir != "." && config.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return r.writePlain("✓ Rolled back latest migration on %s\n", config.Database.Path)
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !config.Database.Enabled {
		r.logger.Warn("database.enabled is false; runs will not be recorded until it is set")
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return nil
}
