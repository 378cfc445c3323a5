package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/ui"
	"github.com/urfave/cli/v3"
)

// Watch launches the interactive job watcher.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	return r.runWatcher(ctx, cmd.StringArg("id"), cmd.Bool("active"), cmd.String("log-file"))
}

func (r *Runner) runWatcher(ctx context.Context, jobID string, activeOnly bool, logFile string) error {
	api, err := r.client()
	if err != nil {
		return err
	}

	// Log lines would tear the full-screen view, so they go to a file or nowhere.
	logger := log.New(io.Discard)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logger = shared.NewLogger(f)
		shared.ApplyLogConfig(logger, r.config.Log)
	}
	r.SetLogger(logger)

	model := ui.NewModel(ctx, api, ui.Options{
		JobID:      jobID,
		ActiveOnly: activeOnly,
		BufferSize: r.config.Logs.BufferSize,
		Logger:     logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
