package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Configuration written to %s\n", r.configPath)
	r.writePlain("Set [server] url, username and password, then run 'agin setup database'.\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		version, err := shared.SchemaVersion(db)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		r.writePlain("✓ Rolled back to schema version %d\n", version)
		return nil
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := shared.SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s (schema version %d)\n", r.config.Database.Path, version)
	return nil
}

// SetupServer pings the configured server to verify the URL and credentials.
func (r *Runner) SetupServer(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}

	svc := services.NewSubsonicServiceFromConfig(r.config, r.logger)
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach %s: %w", r.config.Server.URL, err)
	}
	r.writePlain("✓ Connected to %s as %s\n", r.config.Server.URL, r.config.Server.Username)
	return nil
}
