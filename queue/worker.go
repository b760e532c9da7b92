package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Handler executes a job's payload. It should observe ctx and return
// promptly once ctx is cancelled, but a Handler that ignores ctx only
// costs the worker pool a goroutine until the handler eventually
// returns — the worker itself abandons the job at its timeout and
// records a TimeoutError.
type Handler func(ctx context.Context, entry JobEntry) error

// CancelToken lets a caller cooperatively cancel a single in-flight
// job by id, independent of the pool-wide Stop.
type CancelToken struct {
	cancel context.CancelFunc
}

// Cancel requests cancellation of the job's context.
func (t CancelToken) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// WorkerPool repeatedly dequeues from a Backend and runs jobs of a
// registered type through its Handler, honoring per-job timeouts and
// cooperative cancellation.
type WorkerPool struct {
	backend  Backend
	handlers map[string]Handler
	logger   *slog.Logger
	metrics  *queueMetrics

	concurrency int
	pollInterval time.Duration

	mu      sync.Mutex
	tokens  map[JobId]CancelToken
	stopCh  chan struct{}
	stopped bool
	group   *errgroup.Group
}

// NewWorkerPool creates a pool with the given concurrency (number of
// dequeue loops run concurrently) and poll interval (how long a loop
// sleeps after finding the backend empty).
func NewWorkerPool(backend Backend, concurrency int, pollInterval time.Duration, logger *slog.Logger) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		backend:      backend,
		handlers:     make(map[string]Handler),
		logger:       logger,
		metrics:      newQueueMetrics(),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		tokens:       make(map[JobId]CancelToken),
		stopCh:       make(chan struct{}),
	}
}

// RegisterHandler binds a job type to the Handler that processes it.
// Jobs whose type has no registered handler are failed immediately.
func (p *WorkerPool) RegisterHandler(jobType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = h
}

// Collectors exposes the pool's Prometheus collectors.
func (p *WorkerPool) Collectors() []prometheus.Collector {
	return p.metrics.collectors()
}

// Metrics exposes the pool's metrics collector, so a Scheduler driving
// the same backend can share it (see Scheduler.SetMetrics) and so the
// plain-value Snapshot can be read without a Prometheus scrape.
func (p *WorkerPool) Metrics() *queueMetrics {
	return p.metrics
}

// Snapshot returns the current plain-value metrics snapshot spec §4.4
// "Metrics" requires: min/max/avg duration, success rate, and average
// retries for failed jobs.
func (p *WorkerPool) Snapshot() Snapshot {
	return p.metrics.Snapshot()
}

// Start launches p.concurrency worker loops under an errgroup, so Stop
// can wait for every loop to actually exit rather than merely
// signaling them to. It returns immediately; call Stop to request a
// graceful shutdown.
func (p *WorkerPool) Start(ctx context.Context) {
	group, groupCtx := errgroup.WithContext(ctx)
	p.group = group
	for i := 0; i < p.concurrency; i++ {
		group.Go(func() error {
			p.loop(groupCtx)
			return nil
		})
	}
}

// Stop signals every worker loop to exit and waits for in-flight jobs
// to finish or abandon via their timeout.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	group := p.group
	p.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
}

// CancelJob requests cooperative cancellation of a specific in-flight
// job, if it is still running on this pool.
func (p *WorkerPool) CancelJob(id JobId) bool {
	p.mu.Lock()
	tok, ok := p.tokens[id]
	p.mu.Unlock()
	if !ok {
		return false
	}
	tok.Cancel()
	p.metrics.cancelled.Inc()
	return true
}

func (p *WorkerPool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		// Promote any now-ready delayed/retried jobs before attempting to
		// dequeue, per spec §4.4 ("before each dequeue attempt, the
		// backend moves now-ready jobs into the priority collection").
		// Memory.Dequeue already does this internally, so this is a
		// harmless no-op there; Redis.Dequeue does not, so this is the
		// only thing that ever moves a due Redis job out of :delayed.
		if _, err := p.backend.ProcessDelayed(); err != nil {
			p.logger.Error("worker failed to process delayed jobs", "error", err)
		}

		entry, ok, err := p.backend.Dequeue()
		if err != nil {
			p.logger.Error("worker dequeue failed", "error", err)
			p.sleep(ctx)
			continue
		}
		if !ok {
			p.sleep(ctx)
			continue
		}

		p.run(ctx, entry)
	}
}

func (p *WorkerPool) sleep(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-p.stopCh:
	case <-timer.C:
	}
}

func (p *WorkerPool) run(ctx context.Context, entry JobEntry) {
	p.metrics.started.Inc()
	p.metrics.byType(entry.JobType).Inc()
	p.metrics.byPriority(entry.Priority).Inc()

	p.mu.Lock()
	h, known := p.handlers[entry.JobType]
	p.mu.Unlock()

	if !known {
		cause := fmt.Errorf("no handler registered for job type %q", entry.JobType)
		p.finish(entry, Failed(cause), 0)
		return
	}

	jobCtx := ctx
	cancel := func() {}
	if entry.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, entry.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}

	p.mu.Lock()
	p.tokens[entry.Id] = CancelToken{cancel: cancel}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.tokens, entry.Id)
		p.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- h(jobCtx, entry)
	}()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		if err != nil {
			p.finish(entry, Failed(err), elapsed)
			return
		}
		p.finish(entry, Succeeded(), elapsed)

	case <-jobCtx.Done():
		elapsed := time.Since(start)
		if entry.Timeout > 0 && jobCtx.Err() == context.DeadlineExceeded {
			p.metrics.timedOut.Inc()
			p.finish(entry, Failed(&TimeoutError{JobId: entry.Id, Timeout: entry.Timeout.String()}), elapsed)
			return
		}
		p.finish(entry, Failed(jobCtx.Err()), elapsed)
	}
}

func (p *WorkerPool) finish(entry JobEntry, result Result, elapsed time.Duration) {
	completeErr := p.backend.Complete(entry.Id, result)
	if completeErr != nil {
		p.logger.Error("worker failed to record completion", "job", entry.Id, "error", completeErr)
	}

	p.metrics.recordCompletion(result.Success, entry.Attempts, elapsed)
	if result.Success {
		p.metrics.succeeded.Inc()
		return
	}
	p.metrics.failed.Inc()
	strategy := entry.Retry
	if strategy == nil {
		strategy = FixedRetry{Delay: time.Second, MaxAttempts: entry.MaxRetries}
	}
	if _, retry := strategy.NextDelay(entry.Attempts); retry && completeErr == nil {
		p.metrics.retried.Inc()
	}
}
