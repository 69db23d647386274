package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/metrics"
	"github.com/desertthunder/tunesync/internal/reconcile"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
)

// engine bundles the database, catalog and orchestrator of an in-process run.
type engine struct {
	db           *sql.DB
	catalog      *repositories.Catalog
	orchestrator *tasks.Orchestrator
	metrics      *metrics.Manager
}

// Close waits for background work and closes the database.
func (e *engine) Close() error {
	e.orchestrator.Wait()
	return e.db.Close()
}

// openCatalog opens and migrates the configured database.
func (r *Runner) openCatalog() (*sql.DB, *repositories.Catalog, error) {
	db, err := shared.OpenCatalog(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, repositories.NewCatalog(db), nil
}

// newReconciler wires the YouTube Music proxy as primary and yt-dlp flat extraction as secondary.
func (r *Runner) newReconciler(logger *log.Logger) tasks.Reconciler {
	if r.reconciler != nil {
		return r.reconciler
	}

	p := r.config.Providers
	primary := services.NewYouTubeMusicService(
		p.ProxyURL,
		services.WithAuthFile(p.HeadersPath),
		services.WithLocalization(p.Language, p.Location),
		services.WithRetry(p.RetryAttempts, 500*time.Millisecond),
		services.WithHTTPClient(r.httpClient),
	)
	secondary := services.NewYTDLPService(r.config.Download.YTDLPPath, r.config.Download.Timeout(), nil)
	return reconcile.New(primary, secondary, p.EnrichRate, shared.WithLogger(logger, "component", "reconcile"))
}

func (r *Runner) newDownloader(logger *log.Logger) services.Downloader {
	if r.downloader != nil {
		return r.downloader
	}
	opts := services.DownloaderOptsFromConfig(r.config.Download)
	return services.NewYTDLPDownloader(opts, nil, services.NewTaglibTagger(), shared.WithLogger(logger, "component", "downloader"))
}

// buildEngine opens the catalog and assembles the orchestrator. Background work started by the
// orchestrator is parented to ctx.
func (r *Runner) buildEngine(ctx context.Context, withMetrics bool) (*engine, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	db, catalog, err := r.openCatalog()
	if err != nil {
		return nil, err
	}

	opts := tasks.OptionsFromConfig(r.config)
	opts.BaseContext = ctx
	opts.Logger = shared.WithLogger(r.logger, "component", "engine")

	e := &engine{db: db, catalog: catalog}
	if withMetrics && r.config.Metrics.Enabled {
		e.metrics = metrics.NewManager(catalog, r.logger)
		opts.Recorder = e.metrics.Recorder()
	}

	e.orchestrator = tasks.NewOrchestrator(catalog, r.newReconciler(r.logger), r.newDownloader(r.logger), opts)
	return e, nil
}

// prepare recovers interrupted tracks and registers the configured default playlists.
func (r *Runner) prepare(ctx context.Context, e *engine) error {
	reset, err := e.orchestrator.Recover(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	if reset > 0 {
		r.logger.Info("reset interrupted tracks", "count", reset)
	}

	created, err := e.orchestrator.EnsurePlaylists(ctx, r.config.Sync.Playlists)
	if err != nil {
		return fmt.Errorf("failed to register default playlists: %w", err)
	}
	if created > 0 {
		r.logger.Info("registered default playlists", "count", created)
	}
	return nil
}
