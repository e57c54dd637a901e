package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tastythames/credcheck/internal/cache"
	"github.com/tastythames/credcheck/internal/inventory"
	"github.com/tastythames/credcheck/internal/log"
	"github.com/tastythames/credcheck/internal/notify"
	"github.com/tastythames/credcheck/internal/validator"
)

// DefaultMaxWorkers caps the workers of one job.
const DefaultMaxWorkers = 10

// ErrNoTargets is returned by NewJob for an empty target list.
var ErrNoTargets = errors.New("no targets")

type State int32

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Options configure a Job. Validator and Notifier are required.
type Options struct {
	MaxWorkers int
	Validator  validator.Validator
	Notifier   notify.Notifier
	// TargetTimeout bounds one validation on top of the validator's own
	// timeout. Zero leaves it to the validator.
	TargetTimeout time.Duration
	// Limiter, when set, is shared by all jobs and bounds the validations in
	// flight process wide.
	Limiter *semaphore.Weighted
	// Results, when set, receives every outcome.
	Results cache.Cache
	Logger  *slog.Logger
}

func (o Options) width(n int) int {
	limit := o.MaxWorkers
	if limit <= 0 {
		limit = DefaultMaxWorkers
	}
	return min(limit, n)
}

// Job validates a fixed list of targets for one owner.
type Job struct {
	ID      string
	owner   string
	targets []inventory.Target
	queue   chan inventory.Target
	width   int
	opts    Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	registry *Registry
	slot     *Slot

	state       atomic.Int32
	interrupted atomic.Bool
	succeeded   atomic.Int64
	failed      atomic.Int64
	outbox      atomic.Pointer[notify.Outbox]
	done        chan struct{}
}

// NewJob creates a pending job. Cancelling ctx cancels the job.
func NewJob(ctx context.Context, owner string, targets []inventory.Target, opts Options) (*Job, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if opts.Validator == nil || opts.Notifier == nil {
		return nil, errors.New("batch: validator and notifier are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	ctx = log.ContextAttrs(ctx, slog.String("owner", owner), slog.String("job_id", id))
	ctx, cancel := context.WithCancel(ctx)

	// the queue is filled and closed before any worker starts
	queue := make(chan inventory.Target, len(targets))
	for _, t := range targets {
		queue <- t
	}
	close(queue)

	return &Job{
		ID:      id,
		owner:   owner,
		targets: targets,
		queue:   queue,
		width:   opts.width(len(targets)),
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

func (j *Job) Owner() string { return j.owner }

// Width is the number of workers the job runs.
func (j *Job) Width() int { return j.width }

func (j *Job) Len() int { return len(j.targets) }

func (j *Job) State() State { return State(j.state.Load()) }

// Done is closed when the job reached a terminal state and its messages
// were handed to the notifier.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel asks the workers to stop. It does not touch the registry; use
// Registry.Cancel for that.
func (j *Job) Cancel() { j.cancel() }

type Stats struct {
	Succeeded int64
	Failed    int64
	Outbox    notify.OutboxStats
}

func (j *Job) Stats() Stats {
	st := Stats{
		Succeeded: j.succeeded.Load(),
		Failed:    j.failed.Load(),
	}
	if out := j.outbox.Load(); out != nil {
		st.Outbox = out.Stats()
	}
	return st
}

// Run executes the job and returns once it is terminal. It must be called
// at most once.
func (j *Job) Run() {
	defer close(j.done)
	if !j.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return
	}

	// room for every per-target message plus the start and finish ones
	out := notify.NewOutbox(j.ctx, j.opts.Notifier, j.owner, notify.OutboxOptions{
		Size:   len(j.targets) + 2,
		Logger: j.logger,
	})
	j.outbox.Store(out)
	defer out.Close()

	start := time.Now()
	j.logger.InfoContext(j.ctx, "batch started", "targets", len(j.targets), "workers", j.width)
	out.Post(msgStarted(len(j.targets)))

	var g errgroup.Group
	for i := range j.width {
		g.Go(func() error {
			j.work(i)
			return nil
		})
	}
	_ = g.Wait()

	j.finish(time.Since(start))
}

func (j *Job) finish(elapsed time.Duration) {
	defer j.cancel()

	released := true
	if j.registry != nil {
		released = j.registry.Release(j.slot)
	}

	attrs := []any{
		"succeeded", j.succeeded.Load(),
		"failed", j.failed.Load(),
		"elapsed", elapsed.Round(time.Millisecond).String(),
	}
	if j.interrupted.Load() || !released {
		j.state.Store(int32(StateCancelled))
		j.logger.InfoContext(j.ctx, "batch cancelled", attrs...)
		// Registry.Cancel drops the slot and its caller acknowledges the
		// stop; a slot still held here means the parent context ended.
		if released {
			j.outbox.Load().Post(MsgStopped)
		}
		return
	}
	j.state.Store(int32(StateCompleted))
	j.logger.InfoContext(j.ctx, "batch finished", attrs...)
	j.outbox.Load().Post(MsgFinished)
}
