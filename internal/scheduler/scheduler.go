// Package scheduler starts a batch for a fixed owner on an interval so that
// exported results stay fresh without anyone asking for a run.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/tastythames/credcheck/internal/batch"
)

// Starter is implemented by *batch.Dispatcher.
type Starter interface {
	Start(ctx context.Context, owner string, opts batch.StartOptions) (batch.Outcome, *batch.Job, error)
}

type Scheduler struct {
	starter  Starter
	owner    string
	interval time.Duration
	jitter   time.Duration
	logger   *slog.Logger

	started atomic.Uint64
	skipped atomic.Uint64
}

type Options struct {
	Owner    string
	Interval time.Duration
	// Jitter adds a random delay (0..Jitter) to each tick.
	Jitter time.Duration
	Logger *slog.Logger
}

func New(s Starter, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Owner == "" {
		opts.Owner = "scheduler"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		starter:  s,
		owner:    opts.Owner,
		interval: opts.Interval,
		jitter:   opts.Jitter,
		logger:   opts.Logger,
	}
}

// Run triggers once immediately, then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.trigger(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.jitter > 0 {
				timer := time.NewTimer(rand.N(s.jitter))
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			s.trigger(ctx)
		}
	}
}

// trigger never waits for the previous batch; a run still in progress
// makes this tick a skip.
func (s *Scheduler) trigger(ctx context.Context) {
	outcome, _, err := s.starter.Start(ctx, s.owner, batch.StartOptions{})
	switch {
	case err != nil:
		s.skipped.Add(1)
		s.logger.WarnContext(ctx, "scheduled batch failed", "owner", s.owner, "err", err)
	case outcome == batch.OutcomeStarted:
		s.started.Add(1)
	default:
		s.skipped.Add(1)
		s.logger.InfoContext(ctx, "scheduled batch skipped", "owner", s.owner, "outcome", outcome)
	}
}

func (s *Scheduler) Stats() (started, skipped uint64) {
	return s.started.Load(), s.skipped.Load()
}
