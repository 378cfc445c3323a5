package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "ytlib",
		Usage:    "Download, tag and organize a music library from YouTube Music",
		Version:  "0.1.0",
		Flags:    globalFlags(),
		Before:   runner.Before,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Errorf("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error kind to a process status so scripts can tell rejections apart.
func exitCode(err error) int {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return 2
	case shared.KindNotFound:
		return 3
	case shared.KindConflict:
		return 4
	default:
		return 1
	}
}
