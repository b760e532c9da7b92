package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the six-field form (seconds included), per spec §6.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ScheduledJob is a cron-driven template for JobEntry creation.
type ScheduledJob struct {
	Id       string
	CronExpr string
	JobType  string
	Payload  []byte
	Priority Priority
	Retry    RetryStrategy
	Timeout  time.Duration
	Enabled  bool
	NextRun  time.Time
	LastRun  time.Time

	schedule cron.Schedule
}

// Scheduler ticks periodically and enqueues JobEntry instances from due
// ScheduledJob templates, persisted through a ScheduleStore rather than
// kept only in the Scheduler's own memory.
type Scheduler struct {
	store   ScheduleStore
	backend Backend
	tick    time.Duration
	logger  *slog.Logger
	metrics *queueMetrics
}

// NewScheduler creates a Scheduler backed by a MemoryScheduleStore,
// ticking every tick (defaulting to 30s, per spec §4.4, when tick <= 0)
// and enqueuing due jobs onto backend.
func NewScheduler(backend Backend, tick time.Duration, logger *slog.Logger) *Scheduler {
	return NewSchedulerWithStore(backend, NewMemoryScheduleStore(), tick, logger)
}

// NewSchedulerWithStore is NewScheduler with an explicit ScheduleStore,
// for callers that need schedule state to outlive the process (e.g. a
// Redis-backed store alongside a queue.Redis backend).
func NewSchedulerWithStore(backend Backend, store ScheduleStore, tick time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:   store,
		backend: backend,
		tick:    tick,
		logger:  logger,
	}
}

// SetMetrics attaches a metrics collector so enqueues driven by this
// scheduler are counted against the same "scheduled" counter a
// WorkerPool's Collectors() exposes. Pass the value returned by a
// WorkerPool's Metrics() method to share one collector across both.
func (s *Scheduler) SetMetrics(m *queueMetrics) {
	s.metrics = m
}

// Add parses job's cron expression and registers it, computing its
// first NextRun from now.
func (s *Scheduler) Add(job ScheduledJob) error {
	schedule, err := cronParser.Parse(job.CronExpr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, job.CronExpr, err)
	}
	job.schedule = schedule
	job.NextRun = schedule.Next(time.Now())
	return s.store.Save(&job)
}

// Remove deletes a scheduled job by id.
func (s *Scheduler) Remove(id string) error {
	return s.store.Delete(id)
}

// SetEnabled toggles whether a scheduled job fires on tick.
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	return s.store.SetEnabled(id, enabled)
}

// NextRunTime returns the smallest time strictly after `after` that
// matches id's cron expression.
func (s *Scheduler) NextRunTime(id string, after time.Time) (time.Time, error) {
	j, ok, err := s.store.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("scheduled job %q not found", id)
	}
	return j.schedule.Next(after), nil
}

// NextRunTimes returns the next n run times after `after`.
func (s *Scheduler) NextRunTimes(id string, after time.Time, n int) ([]time.Time, error) {
	j, ok, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("scheduled job %q not found", id)
	}

	out := make([]time.Time, 0, n)
	t := after
	for i := 0; i < n; i++ {
		t = j.schedule.Next(t)
		out = append(out, t)
	}
	return out, nil
}

// Run ticks every s.tick until ctx is cancelled, enqueuing a JobEntry
// for every enabled schedule whose NextRun has passed.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickOnce()
		}
	}
}

func (s *Scheduler) tickOnce() {
	now := time.Now()

	all, err := s.store.List()
	if err != nil {
		s.logger.Error("scheduler failed to list schedules", "error", err)
		return
	}

	due := make([]*ScheduledJob, 0)
	for _, j := range all {
		if j.Enabled && !j.NextRun.After(now) {
			due = append(due, j)
		}
	}

	for _, j := range due {
		entry := NewJobEntry(j.JobType, j.Payload, j.Priority, 0, j.Timeout)
		if j.Retry != nil {
			entry.Retry = j.Retry
		}
		if _, err := s.backend.Enqueue(entry); err != nil {
			s.logger.Error("scheduler failed to enqueue job", "schedule", j.Id, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.scheduled.Inc()
		}

		nextRun := j.schedule.Next(now)
		if err := s.store.RecordRun(j.Id, now, nextRun); err != nil {
			s.logger.Error("scheduler failed to record run", "schedule", j.Id, "error", err)
		}
	}
}
