package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	tu "github.com/desertthunder/tunesync/internal/testing"
	"github.com/urfave/cli/v3"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			api := &services.APIService{}
			downloader := &tu.MockDownloader{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				API:        api,
				Downloader: downloader,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
			if runner.newDownloader(logger) != downloader {
				t.Error("expected downloader override to be used")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Fatal("expected default config to be set")
			}
			if runner.config.Server.Port != 8080 {
				t.Errorf("expected default port 8080, got %d", runner.config.Server.Port)
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("without overrides builds real providers", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if _, ok := runner.newDownloader(runner.logger).(*services.YTDLPDownloader); !ok {
				t.Error("expected the yt-dlp downloader")
			}
			if runner.newReconciler(runner.logger) == nil {
				t.Error("expected a reconciler")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("writes surrounding newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlainln("Next steps:"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "\nNext steps:\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writeTable", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writeTable([]string{"ID", "Name"}, [][]string{{"p1", "Road Trip"}}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"ID", "Name", "p1", "Road Trip"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected table to contain %q, got:\n%s", want, output.String())
			}
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		seen := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			if seen[cmd.Name] {
				t.Errorf("command %q registered twice", cmd.Name)
			}
			seen[cmd.Name] = true
		}

		for _, name := range []string{"serve", "sync", "setup", "playlists", "scan", "validate", "downloads", "status", "log", "tui"} {
			if !seen[name] {
				t.Errorf("expected command %q to be registered", name)
			}
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{
			ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
			LookupEnv:  envMap(nil),
		})

		config, err := runner.loadConfig()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if config.Sync.CheckIntervalSeconds != shared.DefaultConfig().Sync.CheckIntervalSeconds {
			t.Errorf("expected default interval, got %d", config.Sync.CheckIntervalSeconds)
		}
	})

	t.Run("file values then environment overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := "[sync]\ncheck_interval_seconds = 120\n\n[download]\ndir = \"/from/file\"\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{
			ConfigPath: path,
			LookupEnv:  envMap(map[string]string{"DOWNLOAD_DIR": "/from/env"}),
		})

		config, err := runner.loadConfig()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if config.Sync.CheckIntervalSeconds != 120 {
			t.Errorf("expected interval from file, got %d", config.Sync.CheckIntervalSeconds)
		}
		if config.Download.Dir != "/from/env" {
			t.Errorf("expected dir from env, got %s", config.Download.Dir)
		}
	})

	t.Run("invalid environment value", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{LookupEnv: envMap(map[string]string{"CHECK_INTERVAL": "soon"})})

		_, err := runner.loadConfig()
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[sync\n"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{ConfigPath: path, LookupEnv: envMap(nil)})
		if _, err := runner.loadConfig(); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestBefore(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nhost = \"127.0.0.1\"\nport = 9191\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Run("loads config and derives the daemon URL", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{LookupEnv: envMap(nil), Output: &bytes.Buffer{}})
		app := &cli.Command{
			Name:   "tunesync",
			Flags:  globalFlags(),
			Before: runner.Before,
			Action: func(context.Context, *cli.Command) error { return nil },
		}

		if err := app.Run(context.Background(), []string{"tunesync", "--config", path, "--log-level", "debug"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.config.Server.Port != 9191 {
			t.Errorf("expected port from file, got %d", runner.config.Server.Port)
		}
		if runner.config.Log.Level != "debug" {
			t.Errorf("expected log level override, got %s", runner.config.Log.Level)
		}
		if runner.api == nil || runner.api.BaseURL() != "http://127.0.0.1:9191" {
			t.Errorf("unexpected daemon URL: %+v", runner.api)
		}
	})

	t.Run("server flag wins", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{LookupEnv: envMap(nil), Output: &bytes.Buffer{}})
		app := &cli.Command{
			Name:   "tunesync",
			Flags:  globalFlags(),
			Before: runner.Before,
			Action: func(context.Context, *cli.Command) error { return nil },
		}

		args := []string{"tunesync", "--config", path, "--server", "http://daemon.local:7000"}
		if err := app.Run(context.Background(), args); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.api.BaseURL() != "http://daemon.local:7000" {
			t.Errorf("expected flag URL, got %s", runner.api.BaseURL())
		}
	})

	t.Run("log file is rotated through lumberjack", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "logs", "tunesync.log")
		runner := NewRunner(RunnerOpts{
			LookupEnv: envMap(nil),
			Output:    &bytes.Buffer{},
		})
		app := &cli.Command{
			Name:   "tunesync",
			Flags:  globalFlags(),
			Before: runner.Before,
			After:  func(context.Context, *cli.Command) error { return runner.Close() },
			Action: func(ctx context.Context, cmd *cli.Command) error {
				runner.logger.Info("hello from the log file")
				return nil
			},
		}

		cfgPath := filepath.Join(t.TempDir(), "config.toml")
		content := "[log]\nlevel = \"info\"\nfile = \"" + filepath.ToSlash(logPath) + "\"\n"
		if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		if err := app.Run(context.Background(), []string{"tunesync", "--config", cfgPath}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, logPath), "hello from the log file") {
			t.Error("expected the entry in the log file")
		}
	})
}
