package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tastythames/credcheck/internal/batch"
	"github.com/tastythames/credcheck/internal/log"
	"github.com/tastythames/credcheck/internal/scheduler"
)

type fakeStarter struct {
	mu       sync.Mutex
	owners   []string
	outcomes []batch.Outcome
}

func (f *fakeStarter) Start(_ context.Context, owner string, _ batch.StartOptions) (batch.Outcome, *batch.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, owner)
	if len(f.outcomes) == 0 {
		return batch.OutcomeStarted, nil, nil
	}
	o := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return o, nil, nil
}

func (f *fakeStarter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.owners)
}

func TestRunTriggersImmediatelyAndOnTicks(t *testing.T) {
	t.Parallel()
	f := &fakeStarter{outcomes: []batch.Outcome{batch.OutcomeStarted, batch.OutcomeAlreadyRunning}}
	s := scheduler.New(f, scheduler.Options{
		Owner:    "ops",
		Interval: 5 * time.Millisecond,
		Jitter:   time.Millisecond,
		Logger:   log.Discard(),
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return f.calls() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done

	started, skipped := s.Stats()
	require.Equal(t, uint64(1), skipped)
	require.GreaterOrEqual(t, started, uint64(2))
	require.Equal(t, "ops", f.owners[0])
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := &fakeStarter{}
	s := scheduler.New(f, scheduler.Options{Interval: time.Hour, Logger: log.Discard()})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	s.Run(ctx)

	require.Equal(t, 1, f.calls())
	require.Equal(t, "scheduler", f.owners[0])
}
