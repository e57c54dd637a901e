package batch_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tastythames/credcheck/internal/batch"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := batch.NewRegistry()

	slot, ok := r.TryStart("u1")
	require.True(t, ok)
	require.Equal(t, "u1", slot.Owner())
	require.Equal(t, 1, r.Active())

	_, ok = r.TryStart("u1")
	require.False(t, ok, "reserved slot must reject a second start")

	job, err := batch.NewJob(t.Context(), "u1", targets(1), batch.Options{Validator: okValidator(), Notifier: newInbox()})
	require.NoError(t, err)
	require.True(t, r.Attach(slot, job))

	got, ok := r.Job("u1")
	require.True(t, ok)
	require.Same(t, job, got)
	require.Len(t, r.Jobs(), 1)

	_, _ = r.TryStart("u2")
	require.Len(t, r.Jobs(), 1, "reservations have no job")
	require.Equal(t, 2, r.Active())
	require.True(t, r.Cancel("u2"))

	_, ok = r.TryStart("u1")
	require.False(t, ok, "running job must reject a second start")

	require.True(t, r.Release(slot))
	require.False(t, r.Release(slot), "release is idempotent")
	require.Zero(t, r.Active())
	require.False(t, r.Cancel("u1"))
	require.False(t, r.Release(nil))
	job.Cancel()
}

func TestRegistryCancelReservation(t *testing.T) {
	t.Parallel()
	r := batch.NewRegistry()

	slot, ok := r.TryStart("u1")
	require.True(t, ok)
	require.True(t, r.Cancel("u1"))

	job, err := batch.NewJob(t.Context(), "u1", targets(1), batch.Options{Validator: okValidator(), Notifier: newInbox()})
	require.NoError(t, err)
	require.False(t, r.Attach(slot, job))
	job.Cancel()

	// a new reservation is not removed by releasing the stale slot
	fresh, ok := r.TryStart("u1")
	require.True(t, ok)
	require.False(t, r.Release(slot))
	require.Equal(t, 1, r.Active())
	require.True(t, r.Release(fresh))
}

func TestRegistryCancelRunningJob(t *testing.T) {
	t.Parallel()
	r := batch.NewRegistry()
	g := newGate()

	slot, _ := r.TryStart("u1")
	job, err := batch.NewJob(t.Context(), "u1", targets(5), batch.Options{
		Validator:  g,
		Notifier:   newInbox(),
		MaxWorkers: 1,
	})
	require.NoError(t, err)
	require.True(t, r.Attach(slot, job))
	go job.Run()

	require.Eventually(t, func() bool { return g.inFlight.Load() == 1 }, testTimeout, tick)
	require.True(t, r.Cancel("u1"))
	close(g.open)
	<-job.Done()

	require.Equal(t, batch.StateCancelled, job.State())
	require.Equal(t, int64(1), job.Stats().Succeeded)
	require.Zero(t, r.Active())
}

func TestRegistryTryStartRace(t *testing.T) {
	t.Parallel()
	r := batch.NewRegistry()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.TryStart("u1"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}
