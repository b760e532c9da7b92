package queue

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the plain-value metrics snapshot spec §4.4 "Metrics"
// describes: min/max/avg execution duration and a success rate,
// computed only over completed job attempts ("timing windows bracket
// only completed jobs"), plus the average number of prior attempts a
// failed job had accumulated by the time it failed.
type Snapshot struct {
	Completed           int64
	Succeeded           int64
	Failed              int64
	SuccessRate         float64
	MinDurationSeconds  float64
	MaxDurationSeconds  float64
	AvgDurationSeconds  float64
	AvgRetriesForFailed float64
}

// queueMetrics collects the worker pool counters and histograms named
// in spec §7: scheduled/started/succeeded/failed/retried/timed-out/
// cancelled counts, per-type and per-priority tallies, and execution
// duration. It also accumulates the plain-value Snapshot spec §4.4
// requires, since min/max/avg aren't recoverable from a Prometheus
// histogram's fixed buckets alone.
type queueMetrics struct {
	scheduled prometheus.Counter
	started   prometheus.Counter
	succeeded prometheus.Counter
	failed    prometheus.Counter
	retried   prometheus.Counter
	timedOut  prometheus.Counter
	cancelled prometheus.Counter

	byJobType     *prometheus.CounterVec
	byPriorityVec *prometheus.CounterVec
	duration      prometheus.Histogram

	mu             sync.Mutex
	completedCount int64
	succeededCount int64
	failedCount    int64
	totalSeconds   float64
	minSeconds     float64
	maxSeconds     float64
	failedAttempts int64
}

func newQueueMetrics() *queueMetrics {
	return &queueMetrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_scheduled_total",
			Help: "Total jobs enqueued by the cron scheduler.",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_started_total",
			Help: "Total jobs dequeued and handed to a worker.",
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_succeeded_total",
			Help: "Total jobs completed successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total job attempts that failed.",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_retried_total",
			Help: "Total failed attempts that were re-enqueued for retry.",
		}),
		timedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_timed_out_total",
			Help: "Total job attempts abandoned after exceeding their timeout.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_cancelled_total",
			Help: "Total job attempts cancelled cooperatively.",
		}),
		byJobType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_jobs_by_type_total",
			Help: "Jobs started, labeled by job type.",
		}, []string{"job_type"}),
		byPriorityVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_jobs_by_priority_total",
			Help: "Jobs started, labeled by priority.",
		}, []string{"priority"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Job execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *queueMetrics) byType(jobType string) prometheus.Counter {
	return m.byJobType.WithLabelValues(jobType)
}

func (m *queueMetrics) byPriority(p Priority) prometheus.Counter {
	return m.byPriorityVec.WithLabelValues(p.String())
}

// recordCompletion folds a finished attempt into both the Prometheus
// histogram and the plain-value Snapshot accumulators. attempts is the
// number of prior attempts the job had accumulated before this one.
func (m *queueMetrics) recordCompletion(success bool, attempts int, elapsed time.Duration) {
	seconds := elapsed.Seconds()
	m.duration.Observe(seconds)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.completedCount == 0 || seconds < m.minSeconds {
		m.minSeconds = seconds
	}
	if seconds > m.maxSeconds {
		m.maxSeconds = seconds
	}
	m.totalSeconds += seconds
	m.completedCount++

	if success {
		m.succeededCount++
	} else {
		m.failedCount++
		m.failedAttempts += int64(attempts)
	}
}

// Snapshot returns the current plain-value metrics snapshot.
func (m *queueMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Completed:          m.completedCount,
		Succeeded:          m.succeededCount,
		Failed:             m.failedCount,
		MinDurationSeconds: m.minSeconds,
		MaxDurationSeconds: m.maxSeconds,
	}
	if m.completedCount > 0 {
		s.SuccessRate = float64(m.succeededCount) / float64(m.completedCount)
		s.AvgDurationSeconds = m.totalSeconds / float64(m.completedCount)
	}
	if m.failedCount > 0 {
		s.AvgRetriesForFailed = float64(m.failedAttempts) / float64(m.failedCount)
	}
	return s
}

func (m *queueMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.scheduled, m.started, m.succeeded, m.failed, m.retried, m.timedOut, m.cancelled,
		m.byJobType, m.byPriorityVec, m.duration,
	}
}
