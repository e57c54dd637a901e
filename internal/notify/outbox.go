package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Outbox queues messages for one owner and delivers them in order from a
// single goroutine. Post never blocks: when the buffer is full the message
// is dropped and counted.
type Outbox struct {
	n       Notifier
	owner   string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan string
	done   chan struct{}

	// stats (atomic)
	enqueued  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

type OutboxOptions struct {
	// Size is the buffer length, at least 1.
	Size int
	// Timeout bounds each delivery, 10s when zero.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewOutbox starts the delivery goroutine. Deliveries use a context derived
// from ctx without its cancellation, so messages posted before Close are
// still sent after the caller's context ends.
func NewOutbox(ctx context.Context, n Notifier, owner string, opts OutboxOptions) *Outbox {
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	o := &Outbox{
		n:       n,
		owner:   owner,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		ch:      make(chan string, opts.Size),
		done:    make(chan struct{}),
	}
	go o.run(context.WithoutCancel(ctx))
	return o
}

// Post queues text. It reports false when the message was dropped.
func (o *Outbox) Post(text string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped.Add(1)
		return false
	}
	select {
	case o.ch <- text:
		o.enqueued.Add(1)
		return true
	default:
		o.dropped.Add(1)
		o.logger.Warn("outbox full, message dropped", "owner", o.owner, "dropped", o.dropped.Load())
		return false
	}
}

// Close stops accepting messages and waits until the queued ones are delivered.
func (o *Outbox) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
	o.mu.Unlock()
	<-o.done
}

// Done is closed once every queued message has been handled after Close.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

func (o *Outbox) run(ctx context.Context) {
	defer close(o.done)
	for text := range o.ch {
		dctx, cancel := context.WithTimeout(ctx, o.timeout)
		err := o.n.Notify(dctx, o.owner, text)
		cancel()
		if err != nil {
			o.failed.Add(1)
			o.logger.WarnContext(ctx, "notification failed", "owner", o.owner, "err", err)
			continue
		}
		o.delivered.Add(1)
	}
}

type OutboxStats struct {
	Enqueued  uint64
	Delivered uint64
	Failed    uint64
	Dropped   uint64
}

func (o *Outbox) Stats() OutboxStats {
	return OutboxStats{
		Enqueued:  o.enqueued.Load(),
		Delivered: o.delivered.Load(),
		Failed:    o.failed.Load(),
		Dropped:   o.dropped.Load(),
	}
}
