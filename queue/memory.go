package queue

import (
	"container/heap"
	"sync"
	"time"
)

// memJob is the heap-indexed wrapper around a stored JobEntry.
type memJob struct {
	entry JobEntry
	index int
}

// readyHeap is a max-heap by JobEntry.Score(): higher score pops first.
type readyHeap []*memJob

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, j int) bool  { return h[i].entry.Score() > h[j].entry.Score() }
func (h readyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *readyHeap) Push(x interface{}) {
	mj := x.(*memJob)
	mj.index = len(*h)
	*h = append(*h, mj)
}
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	mj := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return mj
}

// delayedHeap is a min-heap by JobEntry.RunAt: earliest-due pops first.
type delayedHeap []*memJob

func (h delayedHeap) Len() int           { return len(h) }
func (h delayedHeap) Less(i, j int) bool { return h[i].entry.RunAt.Before(h[j].entry.RunAt) }
func (h delayedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *delayedHeap) Push(x interface{}) {
	mj := x.(*memJob)
	mj.index = len(*h)
	*h = append(*h, mj)
}
func (h *delayedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	mj := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return mj
}

// Memory is the reference in-process Backend, guarded by a single mutex
// covering each critical section (enqueue, dequeue, complete, delayed
// promotion), per spec §5's locking discipline.
type Memory struct {
	mu      sync.Mutex
	jobs    map[JobId]*memJob
	ready   readyHeap
	delayed delayedHeap
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[JobId]*memJob)}
}

func (m *Memory) Enqueue(entry JobEntry) (JobId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.State = Pending
	entry.UpdatedAt = time.Now()
	mj := &memJob{entry: entry}
	m.jobs[entry.Id] = mj
	m.placeLocked(mj)
	return entry.Id, nil
}

// placeLocked inserts mj into the ready heap if due, else the delayed
// heap. Callers must hold m.mu.
func (m *Memory) placeLocked(mj *memJob) {
	if !mj.entry.RunAt.After(time.Now()) {
		heap.Push(&m.ready, mj)
	} else {
		heap.Push(&m.delayed, mj)
	}
}

func (m *Memory) Dequeue() (JobEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.promoteDueLocked()

	if m.ready.Len() == 0 {
		return JobEntry{}, false, nil
	}
	mj := heap.Pop(&m.ready).(*memJob)
	mj.entry.State = Processing
	mj.entry.UpdatedAt = time.Now()
	return mj.entry.Clone(), true, nil
}

// promoteDueLocked moves every delayed job whose RunAt has passed into
// the ready heap. Each candidate is popped from delayed and only then
// pushed to ready, so no job is ever counted in both collections at
// once. Callers must hold m.mu.
func (m *Memory) promoteDueLocked() int {
	now := time.Now()
	promoted := 0
	for m.delayed.Len() > 0 && !m.delayed[0].entry.RunAt.After(now) {
		mj := heap.Pop(&m.delayed).(*memJob)
		heap.Push(&m.ready, mj)
		promoted++
	}
	return promoted
}

func (m *Memory) ProcessDelayed() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promoteDueLocked(), nil
}

func (m *Memory) Complete(id JobId, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok {
		return &BackendError{Op: "complete", JobId: id, Cause: ErrJobNotFound}
	}

	now := time.Now()
	mj.entry.UpdatedAt = now

	if result.Success {
		mj.entry.State = Completed
		mj.entry.CompletedAt = &now
		mj.entry.ErrorMessage = ""
		return nil
	}

	if result.Err != nil {
		mj.entry.ErrorMessage = result.Err.Error()
	}

	attemptIndex := mj.entry.Attempts
	mj.entry.Attempts++

	strategy := mj.entry.Retry
	if strategy == nil {
		strategy = FixedRetry{Delay: time.Second, MaxAttempts: mj.entry.MaxRetries}
	}

	delay, retry := strategy.NextDelay(attemptIndex)
	if !retry {
		mj.entry.State = Dead
		return nil
	}

	mj.entry.RunAt = now.Add(delay)
	mj.entry.State = Pending
	m.placeLocked(mj)
	return nil
}

func (m *Memory) GetJob(id JobId) (JobEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mj, ok := m.jobs[id]
	if !ok {
		return JobEntry{}, false, nil
	}
	return mj.entry.Clone(), true, nil
}

func (m *Memory) GetJobsByState(state JobState, limit int) ([]JobEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]JobEntry, 0, limit)
	for _, mj := range m.jobs {
		if mj.entry.State != state {
			continue
		}
		out = append(out, mj.entry.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) RemoveJob(id JobId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return false, nil
	}
	delete(m.jobs, id)
	m.removeFromHeapsLocked(id)
	return true, nil
}

func (m *Memory) removeFromHeapsLocked(id JobId) {
	for i, mj := range m.ready {
		if mj.entry.Id == id {
			heap.Remove(&m.ready, i)
			break
		}
	}
	for i, mj := range m.delayed {
		if mj.entry.Id == id {
			heap.Remove(&m.delayed, i)
			break
		}
	}
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = make(map[JobId]*memJob)
	m.ready = nil
	m.delayed = nil
	return nil
}

func (m *Memory) ClearJobsByState(state JobState) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var toRemove []JobId
	for id, mj := range m.jobs {
		if mj.entry.State == state {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(m.jobs, id)
		m.removeFromHeapsLocked(id)
	}
	return len(toRemove), nil
}

func (m *Memory) Stats() (QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats QueueStats
	for _, mj := range m.jobs {
		switch mj.entry.State {
		case Pending:
			stats.Pending++
		case Processing:
			stats.Processing++
		case Completed:
			stats.Completed++
		case JobFailed:
			stats.Failed++
		case Dead:
			stats.Dead++
		}
		stats.Total++
	}
	return stats, nil
}

func (m *Memory) RequeueJob(id JobId, entry JobEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok || mj.entry.State != Dead {
		return false, nil
	}

	entry.Id = id
	entry.Attempts = 0
	entry.State = Pending
	entry.UpdatedAt = time.Now()
	entry.CompletedAt = nil
	mj.entry = entry
	m.placeLocked(mj)
	return true, nil
}
