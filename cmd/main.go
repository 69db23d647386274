package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "tunesync",
		Usage:    "Keep local audio libraries in sync with YouTube playlists",
		Version:  "0.3.0",
		Flags:    globalFlags(),
		Before:   runner.Before,
		After:    func(context.Context, *cli.Command) error { return runner.Close() },
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
