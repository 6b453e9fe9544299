package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmittedCounter = prometheus.NewCounter(prometheus.CounterOpts{Name: "complaints_submitted_total", Help: "Complaint submissions accepted"})
	RejectedCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "complaints_rejected_total", Help: "Submissions rejected before a job was created"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "complaints_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	SearchCounter    = prometheus.NewCounter(prometheus.CounterOpts{Name: "complaints_search_requests_total", Help: "Search requests served"})

	JobsCompleted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_completed_total", Help: "Jobs that reached completed"})
	JobsFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_failed_total", Help: "Jobs that reached failed"})
	JobsRetried    = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_retried_total", Help: "Job attempts that failed and were requeued"})
	JobsDeadLetter = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_dead_letter_total", Help: "Jobs pushed to the DLQ after exhausting attempts"})

	QueueDepthGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_queue_depth", Help: "Ready queue depth"})
	InFlightGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_inflight", Help: "Jobs currently leased by workers"})
	IndexPendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "complaints_index_pending", Help: "Complaint records awaiting a search index write"})

	AnalyzeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyze_duration_seconds",
		Help:    "Analyzer round-trip latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})
	CommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "commit_duration_seconds",
		Help:    "Dual-write commit latency (relational plus index attempt)",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmittedCounter,
			RejectedCounter,
			RateLimitRejects,
			SearchCounter,
			JobsCompleted,
			JobsFailed,
			JobsRetried,
			JobsDeadLetter,
			QueueDepthGauge,
			InFlightGauge,
			IndexPendingGauge,
			AnalyzeDuration,
			CommitDuration,
		)
	})
	return promhttp.Handler()
}
