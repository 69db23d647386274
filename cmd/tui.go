package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogFile = "./tmp/tunesync-tui.log"

// TUI launches the interactive dashboard against a running daemon.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.api == nil {
		return fmt.Errorf("%w: daemon client not initialized", shared.ErrServiceUnavailable)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	logCfg := r.config.Log
	if logCfg.File == "" {
		logCfg.File = tuiLogFile
	}
	fileLogger, closer := shared.NewFileLogger(logCfg, nil)
	defer closer.Close()
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, r.api, cmd.Duration("interval"))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
