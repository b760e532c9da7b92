package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueMetricsSnapshotTracksMinMaxAvgAndSuccessRate(t *testing.T) {
	m := newQueueMetrics()

	m.recordCompletion(true, 0, 10*time.Millisecond)
	m.recordCompletion(true, 0, 30*time.Millisecond)
	m.recordCompletion(false, 2, 20*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Completed)
	assert.Equal(t, int64(2), snap.Succeeded)
	assert.Equal(t, int64(1), snap.Failed)
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 0.010, snap.MinDurationSeconds, 1e-9)
	assert.InDelta(t, 0.030, snap.MaxDurationSeconds, 1e-9)
	assert.InDelta(t, 0.020, snap.AvgDurationSeconds, 1e-9)
	assert.InDelta(t, 2.0, snap.AvgRetriesForFailed, 1e-9)
}

func TestQueueMetricsSnapshotEmptyIsZeroValue(t *testing.T) {
	snap := newQueueMetrics().Snapshot()
	assert.Equal(t, int64(0), snap.Completed)
	assert.Equal(t, 0.0, snap.SuccessRate)
	assert.Equal(t, 0.0, snap.AvgRetriesForFailed)
}

func TestWorkerPoolSnapshotReflectsCompletedJobs(t *testing.T) {
	backend := NewMemory()
	pool := NewWorkerPool(backend, 1, 5*time.Millisecond, nil)
	pool.RegisterHandler("ok", func(ctx context.Context, entry JobEntry) error { return nil })
	pool.RegisterHandler("bad", func(ctx context.Context, entry JobEntry) error { return errors.New("boom") })

	okEntry := NewJobEntry("ok", nil, Normal, 0, 0)
	_, err := backend.Enqueue(okEntry)
	require.NoError(t, err)

	badEntry := NewJobEntry("bad", nil, Normal, 0, 0)
	badEntry.Retry = FixedRetry{Delay: time.Millisecond, MaxAttempts: 0}
	_, err = backend.Enqueue(badEntry)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return pool.Snapshot().Completed == 2
	}, 400*time.Millisecond, 5*time.Millisecond)

	snap := pool.Snapshot()
	assert.Equal(t, int64(1), snap.Succeeded)
	assert.Equal(t, int64(1), snap.Failed)
}

func TestSchedulerIncrementsScheduledCounterWhenMetricsAttached(t *testing.T) {
	backend := NewMemory()
	pool := NewWorkerPool(backend, 1, 5*time.Millisecond, nil)
	store := NewMemoryScheduleStore()
	s := NewSchedulerWithStore(backend, store, 0, nil)
	s.SetMetrics(pool.Metrics())

	require.NoError(t, s.Add(ScheduledJob{
		Id:       "due-now",
		CronExpr: "* * * * * *",
		JobType:  "tick",
		Priority: Normal,
		Enabled:  true,
	}))
	job, ok, err := store.Get("due-now")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.RecordRun("due-now", job.LastRun, time.Now().Add(-time.Second)))

	s.tickOnce()

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.scheduled))
}
