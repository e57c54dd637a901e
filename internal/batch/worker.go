package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/tastythames/credcheck/internal/cache"
	"github.com/tastythames/credcheck/internal/inventory"
	"github.com/tastythames/credcheck/internal/validator"
)

// work pulls targets until the queue is empty or the job is cancelled.
// Cancellation is checked once per iteration, never during a validation.
func (j *Job) work(id int) {
	j.logger.DebugContext(j.ctx, "worker started", "worker", id)
	for {
		if j.ctx.Err() != nil {
			j.interrupted.Store(true)
			return
		}
		if j.opts.Limiter != nil {
			if err := j.opts.Limiter.Acquire(j.ctx, 1); err != nil {
				j.interrupted.Store(true)
				return
			}
		}
		t, ok := <-j.queue
		if !ok {
			j.releaseLimiter()
			return
		}
		j.validate(id, t)
		j.releaseLimiter()
	}
}

func (j *Job) releaseLimiter() {
	if j.opts.Limiter != nil {
		j.opts.Limiter.Release(1)
	}
}

func (j *Job) validate(worker int, t inventory.Target) {
	start := time.Now()
	err := j.check(t)
	took := time.Since(start)

	if j.opts.Results != nil {
		j.opts.Results.Set(t.ID, cache.Result{
			At:       time.Now(),
			Owner:    j.owner,
			Host:     t.Host,
			Duration: took,
			Err:      err,
		})
	}

	if err != nil {
		j.failed.Add(1)
		j.logger.DebugContext(j.ctx, "target failed", "worker", worker, "target", t.ID, "host", t.Host, "err", err)
		j.outbox.Load().Post(msgFailure(t.ID, validator.Reason(err)))
		return
	}
	j.succeeded.Add(1)
	j.logger.DebugContext(j.ctx, "target ok", "worker", worker, "target", t.ID, "host", t.Host, "took", took)
	j.outbox.Load().Post(msgSuccess(t.ID))
}

// check runs one validation. It is detached from the job's cancellation so
// an in-flight attempt completes; a panicking validator counts as a failure.
func (j *Job) check(t inventory.Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panic: %v", r)
		}
	}()
	ctx := context.WithoutCancel(j.ctx)
	if j.opts.TargetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.opts.TargetTimeout)
		defer cancel()
	}
	return j.opts.Validator.Validate(ctx, t)
}
