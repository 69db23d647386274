package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	statuses, err := shared.ListMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	for _, s := range statuses {
		r.logger.Debug("migration", "version", s.Version, "name", s.Name, "applied", s.Applied)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (%d migrations)\n", r.config.Database.Path, len(statuses))
}

// SetupConfig writes the default configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Add playlist URLs under [sync] playlists or run 'tunesync playlists add <url>'\n")
	r.writePlain("2. Run 'tunesync serve' to start the daemon\n")
	return nil
}
