package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/desertthunder/tunesync/internal/watcher"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the daemon until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return r.serve(ctx, ln)
}

// serve recovers interrupted state, then runs the scheduler, the download directory watcher and
// the HTTP server on ln until ctx is canceled or one of them fails.
func (r *Runner) serve(ctx context.Context, ln net.Listener) error {
	e, err := r.buildEngine(ctx, true)
	if err != nil {
		ln.Close()
		return err
	}
	defer e.Close()

	if err := r.prepare(ctx, e); err != nil {
		ln.Close()
		return err
	}

	o := e.orchestrator
	scheduler := tasks.NewScheduler(o, r.config.Sync.CheckInterval(), r.config.Sync.ScanOnStart,
		shared.WithLogger(r.logger, "component", "scheduler"))
	fw := watcher.New(r.config.Download.Dir, o, 0, shared.WithLogger(r.logger, "component", "watcher"))

	var metricsHandler http.Handler
	if e.metrics != nil {
		metricsHandler = e.metrics.Handler()
	}
	api := server.NewAPI(o, e.catalog, scheduler, server.SettingsFromConfig(r.config), r.logger)
	srv := server.NewHTTPServer(ln.Addr().String(), server.NewRouter(api, metricsHandler, r.config.Metrics.Path, r.logger))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return fw.Run(gctx) })
	g.Go(func() error {
		r.logger.Info("listening", "addr", ln.Addr().String(), "metrics", e.metrics != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	r.logger.Info("shutting down", "error", err)
	return err
}
