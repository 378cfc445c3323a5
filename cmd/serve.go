package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/ytlib/internal/cache"
	"github.com/desertthunder/ytlib/internal/dedup"
	"github.com/desertthunder/ytlib/internal/jobs"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/repositories"
	"github.com/desertthunder/ytlib/internal/scheduler"
	"github.com/desertthunder/ytlib/internal/server"
	"github.com/desertthunder/ytlib/internal/services"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
	"github.com/desertthunder/ytlib/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve wires every component and runs until interrupted.
//
// On shutdown the API stops accepting requests, the scheduler stops, and running jobs are failed as interrupted.
// Pending jobs stay pending and are re-admitted on the next start.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := r.config
	lib := cfg.Library
	for _, dir := range []string{lib.Root, lib.PlaylistsPath(), lib.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	db, err := shared.OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := stream.NewBroker(cfg.Logs.BufferSize)
	jobRepo := repositories.NewJobRepository(db)
	subRepo := repositories.NewSubscriptionRepository(db)
	trackRepo := repositories.NewTrackRecordRepository(db)

	catalog := services.NewCachedCatalog(
		services.NewHTTPCatalog(services.CatalogOptions{
			BaseURL:      cfg.Catalog.BaseURL,
			TokenURL:     cfg.Catalog.TokenURL,
			ClientID:     cfg.Catalog.ClientID,
			ClientSecret: cfg.Catalog.ClientSecret,
			RateLimit:    cfg.Retry.RateLimit,
			RetryMax:     cfg.Retry.MaxAttempts - 1,
			RetryWaitMin: cfg.Retry.InitialBackoff(),
			RetryWaitMax: cfg.Retry.MaxBackoff(),
			Logger:       shared.WithLogger(r.logger, "component", "catalog"),
		}),
		cache.New[*models.CatalogItem](cfg.Catalog.CacheSize, cfg.Catalog.CacheTTL()),
	)

	index := dedup.New(trackRepo, dedup.Options{Root: lib.Root, Verify: lib.VerifyFingerprints}, shared.WithLogger(r.logger, "component", "dedup"))
	pipeline := tasks.NewPipeline(
		catalog,
		services.NewYTDLPRetriever(lib.AudioFormat, shared.WithLogger(r.logger, "component", "yt-dlp")),
		services.NewID3Tagger(),
		index,
		broker,
		r.logger,
		tasks.Options{
			TempDir:      lib.TempDir,
			PlaylistsDir: lib.PlaylistsPath(),
			AudioFormat:  lib.AudioFormat,
			RateLimit:    cfg.Retry.RateLimit,
			Retry:        tasks.RetryPolicyFrom(cfg.Retry),
		},
	)

	store := jobs.NewStore(jobRepo, broker)
	queue := jobs.NewQueue(store, pipeline, jobs.QueueOpts{
		Workers:    cfg.Queue.Workers,
		Capacity:   cfg.Queue.Capacity,
		JobTimeout: cfg.Queue.JobTimeout(),
	}, shared.WithLogger(r.logger, "component", "queue"))
	manager := jobs.NewManager(store, queue, r.logger)

	schedCfg := cfg.Scheduler
	if cmd.Bool("no-scheduler") {
		schedCfg.Enabled = false
	}
	sched := scheduler.New(subRepo, manager, schedCfg, shared.WithLogger(r.logger, "component", "scheduler"))
	subs := scheduler.NewSubscriptions(subRepo, catalog, r.logger)

	srv := server.New(cfg.Server, server.Deps{
		Jobs:          manager,
		Scheduler:     sched,
		Subscriptions: subs,
		Tracks:        trackRepo,
		Broker:        broker,
	}, shared.WithLogger(r.logger, "component", "api"))

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer manager.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if !cmd.Bool("no-watch") && r.configPath != "" {
		if _, err := os.Stat(r.configPath); err == nil {
			err := shared.WatchConfig(gctx, r.configPath, r.logger, func(c *shared.Config) {
				shared.ApplyLogConfig(r.logger, c.Log)
				if cmd.Bool("no-scheduler") {
					c.Scheduler.Enabled = false
				}
				if err := sched.Apply(c.Scheduler); err != nil {
					r.logger.Warn("scheduler config rejected", "error", err)
				}
			})
			if err != nil {
				r.logger.Warn("config hot reload disabled", "error", err)
			}
		}
	}

	r.logger.Info("ytlib started",
		"addr", cfg.Server.Addr(),
		"library", lib.Root,
		"workers", cfg.Queue.Workers,
		"scheduler", schedCfg.Enabled,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Info("shutting down")
	return nil
}
