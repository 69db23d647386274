// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// globalFlags are accepted by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("TUNESYNC_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Daemon URL used by client commands (default: derived from [server])",
			Sources: cli.EnvVars("TUNESYNC_SERVER"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Override the configured log level (debug, info, warn, error)",
		},
	}
}

// serveCommand runs the daemon.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"daemon"},
		Usage:   "Run the scheduler, file watcher and HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: [server] host and port)",
			},
		},
		Action: r.Serve,
	}
}

// syncCommand runs one scan in-process.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Scan every active playlist once and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Sync,
	}
}

// setupCommand handles setup operations for the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write the default configuration file",
				Action: r.SetupConfig,
			},
		},
	}
}

// playlistsCommand manages registered playlists.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Manage tracked playlists",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a playlist and import it in the background",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name (default: the playlist title)",
					},
				},
				Action: r.PlaylistsAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List active playlists with track counts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlaylistsList,
			},
			{
				Name:    "remove",
				Aliases: []string{"rm"},
				Usage:   "Stop tracking a playlist; files are kept",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.PlaylistsRemove,
			},
			{
				Name:  "tracks",
				Usage: "Show the tracks of one playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show tracks in this status",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlaylistsTracks,
			},
			{
				Name:  "drain",
				Usage: "Download the pending tracks of one playlist now",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.PlaylistsDrain,
			},
			{
				Name:      "export",
				Usage:     "Export playlists from the local database",
				ArgsUsage: "[playlist-id...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: json, csv, markdown, txt",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: tunesync_export_{epoch})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent export workers",
						Value: 4,
					},
					&cli.BoolFlag{
						Name:  "covers",
						Usage: "Download a cover image for markdown exports",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Export every active playlist",
					},
				},
				Action: r.PlaylistsExport,
			},
		},
	}
}

// scanCommand asks the daemon for a manual scan.
func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "scan",
		Aliases: []string{"check-now"},
		Usage:   "Trigger a manual scan on the running daemon",
		Action:  r.Scan,
	}
}

// validateCommand asks the daemon to check files on disk.
func validateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Demote downloaded tracks whose file is missing",
		Action: r.Validate,
	}
}

// downloadsCommand lists recent downloads.
func downloadsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "downloads",
		Usage: "List recently downloaded tracks",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of tracks to return",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Downloads,
	}
}

// statusCommand prints daemon status.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show engine state and track totals",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// logCommand prints the action log.
func logCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Show the most recent action log entries",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries to return",
				Value: 50,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Log,
	}
}

// apiCommand handles direct API calls to the daemon.
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API calls to the daemon",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET to the daemon, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for the interactive dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive dashboard for a running daemon",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval (default: 5s)",
			},
		},
		Action: r.TUI,
	}
}
