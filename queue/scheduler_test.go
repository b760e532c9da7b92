package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerNextRunTimeMatchesCronFiveMinuteGrid(t *testing.T) {
	s := NewScheduler(NewMemory(), 0, nil)
	require.NoError(t, s.Add(ScheduledJob{
		Id:       "every-5-min",
		CronExpr: "0 */5 * * * *",
		JobType:  "heartbeat",
	}))

	after := time.Date(2026, 7, 30, 12, 3, 7, 0, time.UTC)
	next, err := s.NextRunTime("every-5-min", after)
	require.NoError(t, err)

	want := time.Date(2026, 7, 30, 12, 5, 0, 0, time.UTC)
	assert.True(t, next.Equal(want), "got %v, want %v", next, want)
}

func TestSchedulerNextRunTimesReturnsConsecutiveFirings(t *testing.T) {
	s := NewScheduler(NewMemory(), 0, nil)
	require.NoError(t, s.Add(ScheduledJob{
		Id:       "hourly",
		CronExpr: "0 0 * * * *",
		JobType:  "rollup",
	}))

	after := time.Date(2026, 7, 30, 12, 3, 7, 0, time.UTC)
	times, err := s.NextRunTimes("hourly", after, 3)
	require.NoError(t, err)
	require.Len(t, times, 3)

	assert.True(t, times[0].Equal(time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)))
	assert.True(t, times[1].Equal(time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)))
	assert.True(t, times[2].Equal(time.Date(2026, 7, 30, 15, 0, 0, 0, time.UTC)))
}

func TestSchedulerAddRejectsInvalidCron(t *testing.T) {
	s := NewScheduler(NewMemory(), 0, nil)
	err := s.Add(ScheduledJob{Id: "bad", CronExpr: "not a cron expression", JobType: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCron)
}

func TestSchedulerTickEnqueuesDueJobsOntoBackend(t *testing.T) {
	backend := NewMemory()
	store := NewMemoryScheduleStore()
	s := NewSchedulerWithStore(backend, store, 0, nil)

	require.NoError(t, s.Add(ScheduledJob{
		Id:       "due-now",
		CronExpr: "* * * * * *",
		JobType:  "tick",
		Priority: Normal,
		Enabled:  true,
	}))

	// Force the job due by rewinding its NextRun.
	job, ok, err := store.Get("due-now")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.RecordRun("due-now", job.LastRun, time.Now().Add(-time.Second)))

	s.tickOnce()

	stats, err := backend.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestSchedulerRemoveAndSetEnabledDelegateToStore(t *testing.T) {
	backend := NewMemory()
	store := NewMemoryScheduleStore()
	s := NewSchedulerWithStore(backend, store, 0, nil)

	require.NoError(t, s.Add(ScheduledJob{
		Id:       "toggle-me",
		CronExpr: "0 0 * * * *",
		JobType:  "rollup",
		Enabled:  true,
	}))

	require.NoError(t, s.SetEnabled("toggle-me", false))
	job, ok, err := store.Get("toggle-me")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, job.Enabled)

	require.NoError(t, s.Remove("toggle-me"))
	_, ok, err = store.Get("toggle-me")
	require.NoError(t, err)
	assert.False(t, ok)
}
