package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	api        *services.APIService
	httpClient *http.Client
	logger     *log.Logger
	logCloser  io.Closer
	output     io.Writer
	lookupEnv  func(string) (string, bool)

	// reconciler and downloader replace the yt-dlp backed providers when set.
	reconciler tasks.Reconciler
	downloader services.Downloader
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	API        *services.APIService
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	LookupEnv  func(string) (string, bool)
	Reconciler tasks.Reconciler
	Downloader services.Downloader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		lookupEnv:  opts.LookupEnv,
		reconciler: opts.Reconciler,
		downloader: opts.Downloader,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, syncCommand, setupCommand, playlistsCommand, scanCommand, validateCommand,
		downloadsCommand, statusCommand, logCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads .env, the configuration file and environment overrides, then builds the daemon
// client. It runs once before any command action.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if err := shared.LoadDotEnv(".env"); err != nil {
		r.logger.Warn("failed to load .env", "error", err)
	}

	config, err := r.loadConfig()
	if err != nil {
		return ctx, err
	}
	if level := cmd.String("log-level"); level != "" {
		config.Log.Level = level
	}
	r.config = config

	if config.Log.File != "" {
		logger, closer := shared.ConfigureLogger(config.Log, os.Stderr)
		r.SetLogger(logger)
		r.logCloser = closer
	} else {
		r.logger.SetLevel(shared.ParseLogLevel(config.Log.Level))
	}

	baseURL := cmd.String("server")
	if baseURL == "" {
		baseURL = config.Server.BaseURL()
	}
	if r.api == nil {
		r.api = services.NewAPIService(baseURL, r.httpClient)
	}
	return ctx, nil
}

// Close releases the log file, if any.
func (r *Runner) Close() error {
	if r.logCloser == nil {
		return nil
	}
	return r.logCloser.Close()
}

// loadConfig reads the configuration file when it exists, falling back to defaults, and applies
// environment overrides.
func (r *Runner) loadConfig() (*shared.Config, error) {
	config := shared.DefaultConfig()
	if r.configPath != "" && shared.FileExists(r.configPath) {
		loaded, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	if err := config.ApplyEnv(r.lookupEnv); err != nil {
		return nil, err
	}
	return config, nil
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// writeTable renders rows under headers with a rounded border.
func (r *Runner) writeTable(headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...)
	return r.writePlain("%s\n", t.Render())
}
