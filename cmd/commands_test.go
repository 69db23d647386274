package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/reconcile"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	tu "github.com/desertthunder/tunesync/internal/testing"
	"github.com/urfave/cli/v3"
)

const playlistURL = "https://www.youtube.com/playlist?list=PLcmd"

// newTestRunner returns a runner over a file database in a temp dir, backed by a mock provider
// listing two tracks and a mock downloader.
func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "tunesync.db")
	config.Download.Dir = filepath.Join(dir, "music")
	config.Download.DelayEnabled = false
	config.Sync.ScanOnStart = false
	config.Metrics.Enabled = true

	if err := os.MkdirAll(config.Download.Dir, 0o755); err != nil {
		t.Fatalf("failed to create download dir: %v", err)
	}

	provider := &tu.MockProvider{
		Playlists: map[string]*models.PlaylistListing{
			playlistURL: {
				ID:    "PLcmd",
				Title: "Road Trip",
				Entries: []models.CanonicalEntry{
					{ID: "vid1", Title: "Song A", Artist: "Artist A", Duration: 200},
					{ID: "vid2", Title: "Song B", Artist: "Artist B", Duration: 185},
				},
			},
		},
	}

	logger := shared.NewLogger(io.Discard)
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:     config,
		Logger:     logger,
		Output:     output,
		LookupEnv:  envMap(nil),
		Reconciler: reconcile.New(provider, nil, 0, logger),
		Downloader: &tu.MockDownloader{Dir: config.Download.Dir},
	})
	return runner, output
}

// run executes args against the runner's command tree without the Before hook.
func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "tunesync", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"tunesync"}, args...))
}

func openTestCatalog(t *testing.T, r *Runner) *repositories.Catalog {
	t.Helper()
	db, catalog, err := r.openCatalog()
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return catalog
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSetup(t *testing.T) {
	t.Run("database", func(t *testing.T) {
		runner, output := newTestRunner(t)

		if err := run(t, runner, "setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, runner.config.Database.Path)
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("config", func(t *testing.T) {
		runner, output := newTestRunner(t)
		runner.configPath = filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, runner, "setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, runner.configPath)
		if _, err := shared.LoadConfig(runner.configPath); err != nil {
			t.Errorf("expected a loadable config, got %v", err)
		}
		if !strings.Contains(output.String(), "Configuration written") {
			t.Errorf("unexpected output %q", output.String())
		}

		if err := run(t, runner, "setup", "config"); err == nil {
			t.Error("expected an error when the file already exists")
		}
	})
}

func TestSync(t *testing.T) {
	t.Run("imports default playlists and downloads", func(t *testing.T) {
		runner, output := newTestRunner(t)
		runner.config.Sync.Playlists = []string{playlistURL}

		if err := run(t, runner, "sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := output.String()
		for _, want := range []string{"Road Trip", "2 entries, 2 new", "Downloaded 2"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}

		catalog := openTestCatalog(t, runner)
		counts, err := catalog.Tracks.Counts("")
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if counts.Downloaded != 2 {
			t.Errorf("expected 2 downloaded tracks, got %+v", counts)
		}
	})

	t.Run("second run finds nothing new", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		runner.config.Sync.Playlists = []string{playlistURL}

		if _, err := runner.runSync(context.Background()); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		result, err := runner.runSync(context.Background())
		if err != nil {
			t.Fatalf("second sync failed: %v", err)
		}
		if len(result.Playlists) != 1 || result.Playlists[0].New != 0 {
			t.Errorf("expected no new tracks, got %+v", result.Playlists)
		}
		if result.Totals.Attempted != 0 {
			t.Errorf("expected no download attempts, got %+v", result.Totals)
		}
	})

	t.Run("json output", func(t *testing.T) {
		runner, output := newTestRunner(t)
		runner.config.Sync.Playlists = []string{playlistURL}

		if err := run(t, runner, "sync", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), `"run_id"`) {
			t.Errorf("expected scan JSON, got %s", output.String())
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		runner.config.Download.Dir = ""

		err := run(t, runner, "sync")
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestPlaylistsExport(t *testing.T) {
	runner, output := newTestRunner(t)
	runner.config.Sync.Playlists = []string{playlistURL}
	if _, err := runner.runSync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	t.Run("exports every active playlist", func(t *testing.T) {
		output.Reset()
		dir := filepath.Join(t.TempDir(), "export")

		if err := run(t, runner, "playlists", "export", "--all", "--format", "csv", "--output", dir); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
		if !strings.Contains(output.String(), "Exported 1 of 1 playlists") {
			t.Errorf("unexpected output:\n%s", output.String())
		}
		if !strings.Contains(output.String(), "Road Trip") {
			t.Errorf("expected playlist name in output:\n%s", output.String())
		}
	})

	t.Run("unknown id is reported in the manifest", func(t *testing.T) {
		output.Reset()
		dir := filepath.Join(t.TempDir(), "export")

		if err := run(t, runner, "playlists", "export", "--output", dir, "nope"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Exported 0 of 1 playlists") {
			t.Errorf("unexpected output:\n%s", output.String())
		}
	})

	t.Run("requires ids", func(t *testing.T) {
		err := run(t, runner, "playlists", "export")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		err := run(t, runner, "playlists", "export", "--all", "--format", "pdf")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestServe(t *testing.T) {
	runner, output := newTestRunner(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	baseURL := "http://" + ln.Addr().String()
	runner.api = services.NewAPIService(baseURL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve returned %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("serve did not stop")
		}
	})

	waitFor(t, "daemon health", func() bool {
		var health server.HealthResponse
		return runner.api.GetInto(ctx, "/health", &health) == nil && health.Scheduler
	})

	status := func() server.StatusResponse {
		var res server.StatusResponse
		if err := runner.api.GetInto(ctx, "/api/status", &res); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		return res
	}

	t.Run("playlists add imports in the background", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "playlists", "add", playlistURL); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Importing") {
			t.Errorf("unexpected output %q", output.String())
		}

		waitFor(t, "two downloads", func() bool {
			s := status()
			return s.Totals.Downloaded == 2 && !s.Engine.Busy
		})
	})

	var playlistID string
	t.Run("playlists list", func(t *testing.T) {
		var summaries []models.PlaylistSummary
		if err := runner.api.GetInto(ctx, "/api/playlists", &summaries); err != nil || len(summaries) != 1 {
			t.Fatalf("expected one playlist, got %v (%v)", summaries, err)
		}
		playlistID = summaries[0].ID

		output.Reset()
		if err := run(t, runner, "playlists", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Road Trip") {
			t.Errorf("expected playlist title, got:\n%s", output.String())
		}
	})

	t.Run("playlists tracks filtered by status", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "playlists", "tracks", "--status", "downloaded", playlistID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"Song A", "Song B", "2 downloaded"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected %q in output:\n%s", want, output.String())
			}
		}

		if err := run(t, runner, "playlists", "tracks", "--status", "bogus", playlistID); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := run(t, runner, "playlists", "tracks", "missing"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("status downloads and log", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "status"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "2 downloaded") || !strings.Contains(output.String(), "running") {
			t.Errorf("unexpected status output:\n%s", output.String())
		}

		output.Reset()
		if err := run(t, runner, "downloads", "--limit", "5"); err != nil {
			t.Fatalf("downloads failed: %v", err)
		}
		if !strings.Contains(output.String(), "Song A") {
			t.Errorf("unexpected downloads output:\n%s", output.String())
		}

		output.Reset()
		if err := run(t, runner, "log", "--limit", "50"); err != nil {
			t.Fatalf("log failed: %v", err)
		}
		if !strings.Contains(output.String(), string(models.ActionDownloaded)) {
			t.Errorf("unexpected log output:\n%s", output.String())
		}
	})

	t.Run("watcher demotes deleted files", func(t *testing.T) {
		path := filepath.Join(runner.config.Download.Dir, "vid1.mp3")
		if err := os.Remove(path); err != nil {
			t.Fatalf("failed to remove file: %v", err)
		}

		waitFor(t, "demotion", func() bool {
			return status().Totals.Pending == 1
		})
	})

	t.Run("drain downloads the demoted track again", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "playlists", "drain", playlistID); err != nil {
			t.Fatalf("drain failed: %v", err)
		}
		if !strings.Contains(output.String(), "downloaded 1") {
			t.Errorf("unexpected drain output %q", output.String())
		}
		tu.AssertFileExists(t, filepath.Join(runner.config.Download.Dir, "vid1.mp3"))
	})

	t.Run("validate", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "validate"); err != nil {
			t.Fatalf("validate failed: %v", err)
		}
		if !strings.Contains(output.String(), "Checked 2 files, 0 missing") {
			t.Errorf("unexpected validate output %q", output.String())
		}
	})

	t.Run("api get", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "api", "get", "--json", "health"); err != nil {
			t.Fatalf("api get failed: %v", err)
		}
		if !strings.Contains(output.String(), `"status":"ok"`) {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/metrics")
		if err != nil {
			t.Fatalf("metrics request failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		for _, want := range []string{"tunesync_catalog_tracks", "tunesync_downloads_tracks_total"} {
			if !strings.Contains(string(body), want) {
				t.Errorf("expected %s in metrics", want)
			}
		}
	})

	t.Run("scan", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "scan"); err != nil && !errors.Is(err, shared.ErrAlreadyRunning) {
			t.Fatalf("scan failed: %v", err)
		}
		waitFor(t, "scan to finish", func() bool {
			s := status()
			return !s.Engine.Busy && s.Engine.LastScan != nil
		})
	})

	t.Run("playlists remove", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "playlists", "remove", playlistID); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if !strings.Contains(output.String(), "removed") {
			t.Errorf("unexpected output %q", output.String())
		}
		if got := status().Playlists; got != 0 {
			t.Errorf("expected no active playlists, got %d", got)
		}
	})
}

func TestClientErrors(t *testing.T) {
	t.Run("daemon unreachable", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		runner.api = services.NewAPIService("http://127.0.0.1:1", nil)

		err := run(t, runner, "status")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("missing arguments", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		runner.api = services.NewAPIService("http://127.0.0.1:1", nil)

		for _, args := range [][]string{
			{"playlists", "add"},
			{"playlists", "remove"},
			{"playlists", "tracks"},
			{"playlists", "drain"},
			{"api", "get"},
		} {
			if err := run(t, runner, args...); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("%v: expected ErrMissingArgument, got %v", args, err)
			}
		}
	})
}
