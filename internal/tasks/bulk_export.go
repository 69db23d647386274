package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/time/rate"
)

// BulkExportOpts contains configuration for catalog exports.
type BulkExportOpts struct {
	Format     string  // Export format: json, csv, markdown, txt
	OutputDir  string  // Base output directory (default: tunesync_export_{epoch})
	NumWorkers int     // Concurrent workers (default: 4)
	RateLimit  float64 // Cover image downloads per second (default: 5)
	WithCovers bool    // Download the first thumbnail as cover.jpg for markdown exports
}

// BulkExportResult summarizes a multi-playlist export.
type BulkExportResult struct {
	Manifest     *formatter.Manifest
	ManifestPath string
}

type exportJob struct {
	index   int
	catalog *formatter.Catalog
}

type exportOutcome struct {
	index int
	entry formatter.ManifestEntry
}

// CatalogExporter writes the local catalog of playlists to files.
type CatalogExporter struct {
	catalog *repositories.Catalog
}

// NewCatalogExporter creates an exporter reading from catalog.
func NewCatalogExporter(catalog *repositories.Catalog) *CatalogExporter {
	return &CatalogExporter{catalog: catalog}
}

// Load reads one playlist with its tracks and counts.
func (e *CatalogExporter) Load(playlistID string) (*formatter.Catalog, error) {
	p, err := e.catalog.Playlists.Get(playlistID)
	if err != nil {
		return nil, err
	}
	tracks, err := e.catalog.Tracks.ListByPlaylist(p.ID)
	if err != nil {
		return nil, err
	}
	counts, err := e.catalog.Tracks.Counts(p.ID)
	if err != nil {
		return nil, err
	}
	return &formatter.Catalog{Playlist: *p, Counts: counts, Tracks: tracks, ExportedAt: time.Now().UTC()}, nil
}

// BulkExport exports playlists concurrently and writes a manifest.
//
// Catalogs are read sequentially from the database and handed to a pool of workers that
// render and write files. Partial failures are recorded in the manifest.
func (e *CatalogExporter) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	ids []string,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no playlists to export", shared.ErrMissingArgument)
	}

	if opts.Format == "" {
		opts.Format = "json"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("tunesync_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manifest := &formatter.Manifest{
		Format:    opts.Format,
		OutputDir: opts.OutputDir,
		Total:     len(ids),
		Entries:   make([]formatter.ManifestEntry, len(ids)),
		CreatedAt: time.Now().UTC(),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan exportJob, len(ids))
	results := make(chan exportOutcome, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- exportOutcome{job.index, exportOne(ctx, limiter, job.catalog, opts)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			if ctx.Err() != nil {
				return
			}

			c, err := e.Load(id)
			if err != nil {
				manifest.Entries[i] = formatter.ManifestEntry{PlaylistID: id, Name: fmt.Sprintf("Unknown (%s)", id), Error: err.Error()}
				continue
			}

			sendProgress(prog, exportingPlaylistUpdate(i+1, len(ids), c.Name()))
			jobs <- exportJob{index: i, catalog: c}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		manifest.Entries[res.index] = res.entry

		if res.entry.Success {
			sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.entry.Name, len(res.entry.Files)))
		} else {
			sendProgress(prog, exportFailedUpdate(completed, len(ids), res.entry.Name, fmt.Errorf("%s", res.entry.Error)))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, entry := range manifest.Entries {
		if entry.PlaylistID == "" {
			manifest.Entries[i] = formatter.ManifestEntry{PlaylistID: ids[i], Error: "not exported"}
		}
		if manifest.Entries[i].Success {
			manifest.Successful++
		} else {
			manifest.Failed++
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(manifest, manifestPath); err != nil {
		return &BulkExportResult{Manifest: manifest}, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	return &BulkExportResult{Manifest: manifest, ManifestPath: manifestPath}, nil
}

// exportOne renders a single catalog in the requested format.
func exportOne(ctx context.Context, limiter *rate.Limiter, c *formatter.Catalog, opts BulkExportOpts) formatter.ManifestEntry {
	entry := formatter.ManifestEntry{PlaylistID: c.Playlist.ID, Name: c.Name(), Files: []string{}}
	base := filepath.Join(opts.OutputDir, c.Playlist.ID)

	switch opts.Format {
	case "csv":
		res, err := formatter.WriteCSVExport(c, base)
		if err != nil {
			entry.Error = fmt.Sprintf("CSV export failed: %v", err)
			return entry
		}
		entry.Files = []string{res.TracksFile, res.MetadataFile}

	case "markdown":
		var cover string
		if opts.WithCovers {
			if err := limiter.Wait(ctx); err == nil {
				cover = c.Cover()
			}
		}
		res, err := formatter.WriteMarkdownExport(c, base, cover)
		if err != nil {
			entry.Error = fmt.Sprintf("markdown export failed: %v", err)
			return entry
		}
		entry.Files = res.Files

	case "txt":
		path, err := formatter.WriteTextExport(c, base+"_tracks.txt")
		if err != nil {
			entry.Error = fmt.Sprintf("text export failed: %v", err)
			return entry
		}
		entry.Files = []string{path}

	case "json":
		fallthrough
	default:
		path, err := formatter.WriteJSONExport(c, base+".json")
		if err != nil {
			entry.Error = fmt.Sprintf("JSON export failed: %v", err)
			return entry
		}
		entry.Files = []string{path}
	}

	entry.Success = true
	return entry
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
