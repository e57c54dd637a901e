package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tastythames/credcheck/internal/inventory"
	"github.com/tastythames/credcheck/internal/validator"
)

type Outcome int

const (
	OutcomeStarted Outcome = iota
	OutcomeAlreadyRunning
	OutcomeNoTargets
	// OutcomeCancelled means a cancel arrived while targets were being listed,
	// or the dispatcher is shutting down.
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeAlreadyRunning:
		return "already running"
	case OutcomeNoTargets:
		return "no targets"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type StartOptions struct {
	// Recipient receives the test message of validators supporting one.
	Recipient string
}

// Dispatcher maps start and cancel commands onto the Registry.
type Dispatcher struct {
	ctx      context.Context
	registry *Registry
	lister   inventory.Lister
	opts     Options
	logger   *slog.Logger

	// busy counts Start calls and running jobs; idle is closed whenever it
	// is zero. Both are guarded by mu.
	mu      sync.Mutex
	busy    int
	idle    chan struct{}
	closing bool

	started   atomic.Uint64
	completed atomic.Uint64
	cancelled atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher returns a dispatcher whose jobs are children of ctx;
// cancelling ctx cancels every running job.
func NewDispatcher(ctx context.Context, registry *Registry, lister inventory.Lister, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger
	idle := make(chan struct{})
	close(idle)
	return &Dispatcher{
		ctx:      ctx,
		registry: registry,
		lister:   lister,
		opts:     opts,
		logger:   logger,
		idle:     idle,
	}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Start begins a batch for owner. The job is returned only with
// OutcomeStarted; it may already be terminal by the time Start returns.
// The error is set only for OutcomeFailed.
func (d *Dispatcher) Start(ctx context.Context, owner string, so StartOptions) (Outcome, *Job, error) {
	if !d.enter() {
		d.tell(ctx, owner, MsgShuttingDown)
		return OutcomeCancelled, nil, nil
	}
	defer d.leave()

	slot, ok := d.registry.TryStart(owner)
	if !ok {
		d.tell(ctx, owner, MsgAlreadyRunning)
		return OutcomeAlreadyRunning, nil, nil
	}

	targets, err := d.lister.List(ctx)
	if err != nil {
		d.registry.Release(slot)
		d.logger.ErrorContext(ctx, "listing targets failed", "owner", owner, "err", err)
		d.tell(ctx, owner, msgStoreFailed(err))
		return OutcomeFailed, nil, fmt.Errorf("list targets: %w", err)
	}

	opts := d.opts
	if so.Recipient != "" {
		if rs, ok := opts.Validator.(validator.RecipientSetter); ok {
			opts.Validator = rs.WithRecipient(so.Recipient)
		}
	}

	job, err := NewJob(d.ctx, owner, targets, opts)
	if errors.Is(err, ErrNoTargets) {
		d.registry.Release(slot)
		d.tell(ctx, owner, MsgNoTargets)
		return OutcomeNoTargets, nil, nil
	}
	if err != nil {
		d.registry.Release(slot)
		return OutcomeFailed, nil, err
	}

	if !d.registry.Attach(slot, job) {
		job.Cancel()
		d.logger.InfoContext(ctx, "batch cancelled before start", "owner", owner)
		return OutcomeCancelled, nil, nil
	}

	d.started.Add(1)
	d.hold()
	go func() {
		defer d.leave()
		job.Run()
		st := job.Stats()
		d.dropped.Add(st.Outbox.Dropped)
		if job.State() == StateCompleted {
			d.completed.Add(1)
		} else {
			d.cancelled.Add(1)
		}
	}()
	return OutcomeStarted, job, nil
}

// Cancel stops owner's batch. It reports false when nothing was running.
func (d *Dispatcher) Cancel(ctx context.Context, owner string) bool {
	if !d.registry.Cancel(owner) {
		d.tell(ctx, owner, MsgNothingToCancel)
		return false
	}
	d.logger.InfoContext(ctx, "batch stop requested", "owner", owner)
	d.tell(ctx, owner, MsgStopped)
	return true
}

// Wait blocks until no Start call is in progress and every started job
// has returned.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()
	<-idle
}

// Close makes every later Start return OutcomeCancelled, then waits like Wait.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	d.Wait()
}

// enter takes a busy token unless the dispatcher is closing or its context
// is done.
func (d *Dispatcher) enter() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing || d.ctx.Err() != nil {
		return false
	}
	d.holdLocked()
	return true
}

// hold takes a token; the caller must already own one.
func (d *Dispatcher) hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holdLocked()
}

func (d *Dispatcher) holdLocked() {
	if d.busy == 0 {
		d.idle = make(chan struct{})
	}
	d.busy++
}

func (d *Dispatcher) leave() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy--
	if d.busy == 0 {
		close(d.idle)
	}
}

type DispatcherStats struct {
	Active    int
	Started   uint64
	Completed uint64
	Cancelled uint64
	Dropped   uint64
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Active:    d.registry.Active(),
		Started:   d.started.Load(),
		Completed: d.completed.Load(),
		Cancelled: d.cancelled.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// tell sends a command acknowledgement. Failures are logged and dropped.
func (d *Dispatcher) tell(ctx context.Context, owner, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := d.opts.Notifier.Notify(ctx, owner, text); err != nil {
		d.logger.WarnContext(ctx, "notification failed", "owner", owner, "err", err)
	}
}
