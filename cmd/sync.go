package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync runs one scan against the local database without a daemon.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := r.runSync(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	r.printScan(result)
	return nil
}

func (r *Runner) runSync(ctx context.Context) (*tasks.ScanResult, error) {
	e, err := r.buildEngine(ctx, false)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	if err := r.prepare(ctx, e); err != nil {
		return nil, err
	}
	return e.orchestrator.RunScheduledScan(ctx)
}

func (r *Runner) printScan(result *tasks.ScanResult) {
	r.writePlainHeader("Scan " + result.RunID)
	if v := result.Validation; v != nil {
		r.writePlain("Validated %d files, %d missing\n", v.Checked, v.Missing)
	}

	for _, p := range result.Playlists {
		name := p.Title
		if name == "" {
			name = p.URL
		}
		if p.Error != "" {
			r.writePlain("✗ %s: %s\n", name, p.Error)
			continue
		}
		r.writePlain("✓ %s: %d entries, %d new, %d requeued\n", name, p.Entries, p.New, p.Requeued)
	}

	t := result.Totals
	r.writePlainln("Downloaded %d, duplicates %d, failed %d, restricted %d",
		t.Downloaded, t.Duplicates, t.Failed, t.Restricted)
	if result.Canceled {
		r.writePlain("Scan was canceled before it finished\n")
	}
}
