package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		mig, err := shared.RollbackMigration(db)
		if err != nil {
			return err
		}
		r.logger.Warn("rolled back migration", "version", mig.Version, "name", mig.Name)
		return r.writePlain("✓ rolled back %04d_%s\n", mig.Version, mig.Name)
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, applied, err := shared.CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ schema version %d (%d migrations applied)\n", version, applied)
}

// SetupConfig writes the embedded example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		return fmt.Errorf("%w: --config is empty", shared.ErrMissingArgument)
	}
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	return r.writePlain("✓ wrote %s\n", path)
}

// SetupLibrary creates the directories the pipeline writes to.
func (r *Runner) SetupLibrary(ctx context.Context, cmd *cli.Command) error {
	lib := r.config.Library
	for _, dir := range []string{lib.Root, lib.PlaylistsPath(), lib.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		r.writePlain("✓ %s\n", dir)
	}
	return nil
}
