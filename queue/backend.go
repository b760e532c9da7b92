package queue

// Result is the outcome of a job execution handed to Backend.Complete.
type Result struct {
	Success bool
	Err     error
}

// Succeeded builds a successful Result.
func Succeeded() Result { return Result{Success: true} }

// Failed builds a failed Result wrapping cause.
func Failed(cause error) Result { return Result{Success: false, Err: cause} }

// QueueStats enumerates job counts per state plus a total, per spec §6.
type QueueStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Dead       int
	Total      int
}

// Backend is the storage abstraction spec §4.4 names. Implementations
// (Memory, Redis) must uphold the five atomic transitions (enqueue,
// dequeue, complete-success, complete-failure, process-delayed) as
// documented on each method.
type Backend interface {
	// Enqueue stores entry and makes it eligible for Dequeue once its
	// RunAt has passed, returning its JobId.
	Enqueue(entry JobEntry) (JobId, error)

	// Dequeue pops the highest-scored ready job and transitions it to
	// Processing, or returns ok=false if nothing is ready.
	Dequeue() (entry JobEntry, ok bool, err error)

	// Complete applies result to a Processing job: success moves it to
	// Completed; failure increments Attempts and either re-enqueues it
	// (Pending/delayed) per its RetryStrategy or moves it to Dead.
	Complete(id JobId, result Result) error

	// GetJob returns a job by id.
	GetJob(id JobId) (entry JobEntry, ok bool, err error)

	// GetJobsByState returns up to limit jobs in state, in no
	// guaranteed order beyond what the backend finds cheapest.
	GetJobsByState(state JobState, limit int) ([]JobEntry, error)

	// RemoveJob deletes a job outright, returning whether it existed.
	RemoveJob(id JobId) (bool, error)

	// Clear removes every job from the backend.
	Clear() error

	// Stats summarizes job counts per state.
	Stats() (QueueStats, error)

	// RequeueJob atomically transitions a Dead job back to Pending
	// with entry as its new body (Attempts typically reset to 0),
	// returning false without mutation if id is missing or not Dead.
	RequeueJob(id JobId, entry JobEntry) (bool, error)

	// ClearJobsByState removes every job in state, returning the count
	// removed.
	ClearJobsByState(state JobState) (int, error)

	// ProcessDelayed moves every delayed job whose RunAt has passed
	// into the ready collection, atomically per job, returning the
	// count promoted.
	ProcessDelayed() (int, error)
}
