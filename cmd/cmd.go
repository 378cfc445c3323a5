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
			Sources: cli.EnvVars("YTLIB_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Base URL of a running ytlib server (default: from [server] config)",
			Sources: cli.EnvVars("YTLIB_SERVER"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Override log level (debug, info, warn, error)",
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func prettyFlag() cli.Flag {
	return &cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true}
}

// setupCommand handles setup operations for the database and config file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "rollback", Usage: "Revert the most recent migration instead"},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write the default configuration file to --config",
				Action: r.SetupConfig,
			},
			{
				Name:   "library",
				Usage:  "Create the library, playlist and temp directories",
				Action: r.SetupLibrary,
			},
		},
	}
}

// serveCommand runs the API, worker pool and scheduler.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the API server, job workers and subscription scheduler",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Disable periodic subscription syncs for this run",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload [scheduler] and [log] when the config file changes",
			},
		},
		Action: r.Serve,
	}
}

// jobsCommand handles job submission and control.
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "jobs",
		Aliases: []string{"job"},
		Usage:   "Submit and manage download jobs",
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Aliases:   []string{"add"},
				Usage:     "Submit a track, album, playlist or artist URL",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Override the detected kind (track, album, playlist, discography)",
					},
					&cli.IntFlag{
						Name:  "max-items",
						Usage: "Only take the first N tracks (0 = all)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Audio format (default: from [library] config)",
					},
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Follow the job in the watcher after submitting",
					},
				},
				Action: r.JobsSubmit,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List jobs",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "active",
						Usage: "Only show pending and running jobs",
					},
					jsonFlag(),
				},
				Action: r.JobsList,
			},
			{
				Name:      "show",
				Usage:     "Show one job with its result",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.JobsShow,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a pending or running job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.JobsCancel,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a finished job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.JobsDelete,
			},
			{
				Name:   "clear",
				Usage:  "Delete every finished job",
				Action: r.JobsClear,
			},
		},
	}
}

// subscriptionsCommand handles subscription management and syncs.
func subscriptionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "subscriptions",
		Aliases: []string{"subs", "sub"},
		Usage:   "Manage playlist subscriptions",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List subscriptions",
				Flags:   []cli.Flag{jsonFlag()},
				Action:  r.SubscriptionsList,
			},
			{
				Name:      "add",
				Usage:     "Subscribe to a playlist or album URL",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name (default: catalog title)",
					},
					&cli.IntFlag{
						Name:  "max-items",
						Usage: "Only sync the first N tracks (0 = all)",
					},
					&cli.BoolFlag{
						Name:  "disabled",
						Usage: "Create the subscription without periodic syncs",
					},
				},
				Action: r.SubscriptionsAdd,
			},
			{
				Name:      "update",
				Usage:     "Change a subscription",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					&cli.IntFlag{Name: "max-items", Usage: "Only sync the first N tracks (0 = all)"},
					&cli.BoolFlag{Name: "enable", Usage: "Include in periodic syncs"},
					&cli.BoolFlag{Name: "disable", Usage: "Exclude from periodic syncs"},
				},
				Action: r.SubscriptionsUpdate,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a subscription; its jobs are kept",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.SubscriptionsRemove,
			},
			{
				Name:      "sync",
				Usage:     "Sync one subscription, or every enabled one when no id is given",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.SubscriptionsSync,
			},
		},
	}
}

// schedulerCommand reports the periodic sync loop.
func schedulerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "Show the subscription scheduler status",
		Flags:  []cli.Flag{jsonFlag()},
		Action: r.SchedulerStatus,
	}
}

// libraryCommand inspects the organized library.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Inspect the organized library",
		Commands: []*cli.Command{
			{
				Name:  "tracks",
				Usage: "List indexed tracks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "album", Usage: "Filter by album key"},
					&cli.StringFlag{Name: "artist", Usage: "Filter by artist key"},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: table, json, csv or text",
						Value:   "table",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.LibraryTracks,
			},
		},
	}
}

// watchCommand returns the top-level watcher for following jobs.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"ui"},
		Usage:     "Follow jobs and their logs in an interactive TUI",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "active",
				Usage: "Only list pending and running jobs",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write client logs to this file",
			},
		},
		Action: r.Watch,
	}
}

// apiCommand handles raw API calls for debugging.
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the ytlib API",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "GET a path and print the response",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags:     []cli.Flag{prettyFlag()},
				Action:    r.APIGet,
			},
			{
				Name:      "post",
				Usage:     "POST a JSON body to a path",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON body to send",
						Value:   "{}",
					},
				},
				Action: r.APIPost,
			},
		},
	}
}
