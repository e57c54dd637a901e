package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tastythames/credcheck/internal/api"
	"github.com/tastythames/credcheck/internal/batch"
	"github.com/tastythames/credcheck/internal/cache"
	"github.com/tastythames/credcheck/internal/config"
	"github.com/tastythames/credcheck/internal/metrics"
	"github.com/tastythames/credcheck/internal/notify"
	"github.com/tastythames/credcheck/internal/scheduler"
)

// results older than this are not exported
const resultTTL = 24 * time.Hour

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch API and metrics",
		Args:  cobra.NoArgs,
		RunE:  doServe,
	}
	f := cmd.Flags()
	f.String("listen", ":9222", "HTTP listen address")
	f.String("ntfy-url", "", "ntfy server base URL; messages are logged when empty")
	f.String("ntfy-topic-prefix", "credcheck-", "ntfy topic prefix, followed by the owner")
	f.String("api-key", "", "required X-API-Key for /api/v1, disabled when empty")
	f.Duration("schedule-interval", 0, "start a batch on this interval, 0 disables")
	f.Duration("schedule-jitter", 0, "random delay added to each scheduled start")
	f.String("schedule-owner", "scheduler", "owner of scheduled batches")
	bind(f.Lookup("listen"), config.KeyListen)
	bind(f.Lookup("ntfy-url"), config.KeyNtfyURL)
	bind(f.Lookup("ntfy-topic-prefix"), config.KeyNtfyTopicPrefix)
	bind(f.Lookup("api-key"), config.KeyAPIKey)
	bind(f.Lookup("schedule-interval"), config.KeyScheduleEvery)
	bind(f.Lookup("schedule-jitter"), config.KeyScheduleJitter)
	bind(f.Lookup("schedule-owner"), config.KeyScheduleOwner)
	return cmd
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	lister, closeLister, err := openLister(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLister() }()

	results := cache.NewMemCache(resultTTL)
	notifier := notify.New(notify.NtfyConfig{
		BaseURL:     cfg.NtfyURL,
		TopicPrefix: cfg.NtfyTopicPrefix,
	}, logger)
	opts, err := batchOptions(cfg, notifier, results, logger)
	if err != nil {
		return err
	}

	d := batch.NewDispatcher(ctx, batch.NewRegistry(), lister, opts)
	renderer := metrics.NewRenderer(results, d)
	if cfg.ScheduleInterval > 0 {
		sched := scheduler.New(d, scheduler.Options{
			Owner:    cfg.ScheduleOwner,
			Interval: cfg.ScheduleInterval,
			Jitter:   cfg.ScheduleJitter,
			Logger:   logger,
		})
		renderer.Schedule = sched
		go sched.Run(ctx)
	}
	srv := api.NewServer(api.Options{
		Addr:       cfg.Listen,
		APIKey:     cfg.APIKey,
		Dispatcher: d,
		Metrics:    renderer,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err = <-errCh:
		stop()
	case <-ctx.Done():
		logger.Info("shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}

	// ctx is done here, so every job is cancelled and only in-flight
	// validations remain.
	d.Close()
	st := d.Stats()
	logger.Info("stopped", "started", st.Started, "completed", st.Completed, "cancelled", st.Cancelled)
	return err
}
