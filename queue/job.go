// Package queue implements the Job Queue & Scheduler: a priority- and
// delay-aware job backend abstraction with an in-process reference
// implementation, a distributed Redis implementation, retry strategies,
// a cron scheduler, and a worker pool with cooperative cancellation.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobId is a process-globally unique job identifier.
type JobId string

// NewJobId generates a fresh, random JobId.
func NewJobId() JobId {
	return JobId(uuid.NewString())
}

// Priority layers score over run_at at enqueue time (see JobEntry.Score):
// within one priority, earlier run_at wins; across priorities, the
// higher one wins unless the lower-priority job's run_at is earlier by
// more than the gap between their weights in seconds (9,000 s
// Low/Normal, 90,000 s Normal/High, 900,000 s High/Critical).
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

// weight returns the priority's contribution to a job's ready-queue
// score, per spec §4.4.
func (p Priority) weight() float64 {
	switch p {
	case Critical:
		return 1_000_000
	case High:
		return 100_000
	case Normal:
		return 10_000
	case Low:
		return 1_000
	default:
		return 0
	}
}

func (p Priority) String() string {
	switch p {
	case Critical:
		return "Critical"
	case High:
		return "High"
	case Normal:
		return "Normal"
	case Low:
		return "Low"
	default:
		return "Unknown"
	}
}

// JobState is a job's position in its lifecycle state machine.
type JobState int

const (
	Pending JobState = iota
	Processing
	Completed
	JobFailed
	Dead
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Processing:
		return "Processing"
	case Completed:
		return "Completed"
	case JobFailed:
		return "Failed"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// JobEntry is one unit of work, tracked from enqueue through to a
// terminal state.
type JobEntry struct {
	Id           JobId
	JobType      string
	Payload      []byte
	Priority     Priority
	State        JobState
	Attempts     int
	MaxRetries   int
	RunAt        time.Time
	Timeout      time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Retry        RetryStrategy
}

// Score computes the ready-queue score at enqueue time: priority weight
// layered over run_at, so it only needs recomputing on re-enqueue.
func (j JobEntry) Score() float64 {
	return j.Priority.weight() - float64(j.RunAt.UnixMicro())/1_000_000
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// affecting the backend's stored copy.
func (j JobEntry) Clone() JobEntry {
	cp := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Payload = append([]byte(nil), j.Payload...)
	return cp
}

// NewJobEntry builds a Pending JobEntry ready for enqueue.
func NewJobEntry(jobType string, payload []byte, priority Priority, maxRetries int, timeout time.Duration) JobEntry {
	now := time.Now()
	return JobEntry{
		Id:         NewJobId(),
		JobType:    jobType,
		Payload:    payload,
		Priority:   priority,
		State:      Pending,
		MaxRetries: maxRetries,
		RunAt:      now,
		Timeout:    timeout,
		CreatedAt:  now,
		UpdatedAt:  now,
		Retry:      FixedRetry{Delay: time.Second, MaxAttempts: maxRetries},
	}
}

// Delayed returns a copy of the entry scheduled to run at runAt instead
// of immediately.
func (j JobEntry) Delayed(runAt time.Time) JobEntry {
	cp := j
	cp.RunAt = runAt
	return cp
}

// jobEntryWire is JobEntry's JSON wire shape, substituting the
// RetryStrategy interface field for a concrete retryWire so the
// standard encoding/json package can round-trip it.
type jobEntryWire struct {
	Id           JobId
	JobType      string
	Payload      []byte
	Priority     Priority
	State        JobState
	Attempts     int
	MaxRetries   int
	RunAt        time.Time
	Timeout      time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Retry        *retryWire
}

func (j JobEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobEntryWire{
		Id:           j.Id,
		JobType:      j.JobType,
		Payload:      j.Payload,
		Priority:     j.Priority,
		State:        j.State,
		Attempts:     j.Attempts,
		MaxRetries:   j.MaxRetries,
		RunAt:        j.RunAt,
		Timeout:      j.Timeout,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CompletedAt:  j.CompletedAt,
		ErrorMessage: j.ErrorMessage,
		Retry:        encodeRetry(j.Retry),
	})
}

func (j *JobEntry) UnmarshalJSON(data []byte) error {
	var w jobEntryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*j = JobEntry{
		Id:           w.Id,
		JobType:      w.JobType,
		Payload:      w.Payload,
		Priority:     w.Priority,
		State:        w.State,
		Attempts:     w.Attempts,
		MaxRetries:   w.MaxRetries,
		RunAt:        w.RunAt,
		Timeout:      w.Timeout,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
		CompletedAt:  w.CompletedAt,
		ErrorMessage: w.ErrorMessage,
		Retry:        decodeRetry(w.Retry),
	}
	return nil
}
