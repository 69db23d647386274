package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

var exportFormats = []string{"json", "csv", "markdown", "txt"}

// PlaylistsExport writes playlists from the local database to files. It does not need a daemon.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	format := strings.ToLower(cmd.String("format"))
	if !validFormat(format) {
		return fmt.Errorf("%w: format must be one of %s", shared.ErrInvalidArgument, strings.Join(exportFormats, ", "))
	}

	db, catalog, err := r.openCatalog()
	if err != nil {
		return err
	}
	defer db.Close()

	ids := cmd.Args().Slice()
	if cmd.Bool("all") {
		playlists, err := catalog.Playlists.List(true)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: pass playlist ids or --all", shared.ErrMissingArgument)
	}

	progress := make(chan tasks.ProgressUpdate, len(ids)*2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	exporter := tasks.NewCatalogExporter(catalog)
	result, err := exporter.BulkExport(ctx, progress, ids, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		WithCovers: cmd.Bool("covers"),
	})
	close(progress)
	wg.Wait()

	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	m := result.Manifest
	r.writePlainHeader(fmt.Sprintf("Exported %d of %d playlists", m.Successful, m.Total))
	for _, entry := range m.Entries {
		if entry.Success {
			r.writePlain("✓ %s (%d files)\n", entry.Name, len(entry.Files))
		} else {
			r.writePlain("✗ %s: %s\n", entry.Name, entry.Error)
		}
	}
	r.writePlainln("Manifest: %s", result.ManifestPath)
	return nil
}

func validFormat(format string) bool {
	for _, f := range exportFormats {
		if f == format {
			return true
		}
	}
	return false
}
