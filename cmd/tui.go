package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/shared"
	"github.com/desertthunder/pubkytree/internal/tasks"
	"github.com/desertthunder/pubkytree/internal/ui"
)

const tuiEventBuffer = 16

// TUI launches the interactive dashboard.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if level, err := shared.ParseLogLevel(r.config.Log.Level); err == nil {
		shared.SetLogLevel(fileLogger, level)
	}
	r.SetLogger(fileLogger)

	if r.engine == nil {
		r.updates = make(chan tasks.SyncEvent, tuiEventBuffer)
	}
	engine, err := r.Engine(ctx)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, engine, ui.Options{
		Updates:       r.updates,
		PublicBaseURL: r.config.Server.PublicBaseURL,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
