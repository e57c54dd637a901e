package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"
	"golang.org/x/sync/semaphore"

	"github.com/tastythames/credcheck/internal/batch"
	"github.com/tastythames/credcheck/internal/cache"
	"github.com/tastythames/credcheck/internal/config"
	"github.com/tastythames/credcheck/internal/inventory"
	"github.com/tastythames/credcheck/internal/notify"
	"github.com/tastythames/credcheck/internal/store"
	"github.com/tastythames/credcheck/internal/validator"
)

func bind(f *pflag.Flag, key string) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// openLister returns the configured target source. The returned close
// function is never nil.
func openLister(ctx context.Context, c config.Config) (inventory.Lister, func() error, error) {
	if c.Inventory != "" {
		return inventory.FileLister{Path: c.Inventory, Protocol: c.Protocol}, func() error { return nil }, nil
	}
	st, err := store.Open(ctx, c.Database)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

// batchOptions builds the job options shared by serve and check.
func batchOptions(c config.Config, n notify.Notifier, results cache.Cache, logger *slog.Logger) (batch.Options, error) {
	val, err := validator.New(c.Protocol, c.ValidatorConfig())
	if err != nil {
		return batch.Options{}, fmt.Errorf("validator: %w", err)
	}
	opts := batch.Options{
		MaxWorkers: c.MaxWorkers,
		Validator:  val,
		Notifier:   n,
		Results:    results,
		Logger:     logger,
	}
	if c.GlobalLimit > 0 {
		opts.Limiter = semaphore.NewWeighted(int64(c.GlobalLimit))
	}
	return opts, nil
}
