// Package telemetry provides the Prometheus metrics of the archiver.
// All methods are safe to call on a nil *Metrics, which records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the archiver's collectors
type Metrics struct {
	PagesFetched      *prometheus.CounterVec
	WorkItemsEmitted  *prometheus.CounterVec
	RateLimitWaits    *prometheus.CounterVec
	TraversalStops    *prometheus.CounterVec
	TraversalFailures *prometheus.CounterVec

	ArchivesWritten prometheus.Counter
	DuplicateSkips  prometheus.Counter
	MediaStored     *prometheus.CounterVec
	MediaFailed     prometheus.Counter
	FetchDuration   prometheus.Observer

	TasksProcessed *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_traversal_pages_total", Help: "Message history pages requested from upstream",
		}, []string{"direction", "status"}),
		WorkItemsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_work_items_emitted_total", Help: "Archive work items queued by traversals",
		}, []string{"direction"}),
		RateLimitWaits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_rate_limit_waits_total", Help: "Times a traversal paused for upstream rate limits",
		}, []string{"direction"}),
		TraversalStops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_traversal_stops_total", Help: "Traversal invocations by stop reason",
		}, []string{"direction", "reason"}),
		TraversalFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_traversal_failures_total", Help: "Traversal invocations aborted by an error",
		}, []string{"direction"}),
		ArchivesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "archiver_archives_written_total", Help: "Archive records written to the ledger",
		}),
		DuplicateSkips: f.NewCounter(prometheus.CounterOpts{
			Name: "archiver_duplicate_skips_total", Help: "Work items skipped because the message was already archived",
		}),
		MediaStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_media_stored_total", Help: "Media objects written to object storage",
		}, []string{"source"}),
		MediaFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "archiver_media_failed_total", Help: "Media that failed on both primary and backup URL",
		}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "archiver_media_fetch_duration_seconds", Help: "Media fetch duration seconds", Buckets: prometheus.DefBuckets,
		}),
		TasksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_queue_tasks_total", Help: "Queue tasks by queue and outcome",
		}, []string{"queue", "outcome"}),
	}
}

// PageFetched counts one history request
func (m *Metrics) PageFetched(direction, status string) {
	if m != nil {
		m.PagesFetched.WithLabelValues(direction, status).Inc()
	}
}

// WorkItemEmitted counts one queued archive work item
func (m *Metrics) WorkItemEmitted(direction string) {
	if m != nil {
		m.WorkItemsEmitted.WithLabelValues(direction).Inc()
	}
}

// RateLimitWait counts one rate limit pause
func (m *Metrics) RateLimitWait(direction string) {
	if m != nil {
		m.RateLimitWaits.WithLabelValues(direction).Inc()
	}
}

// TraversalStopped counts a finished traversal invocation
func (m *Metrics) TraversalStopped(direction, reason string) {
	if m != nil {
		m.TraversalStops.WithLabelValues(direction, reason).Inc()
	}
}

// TraversalFailed counts an aborted traversal invocation
func (m *Metrics) TraversalFailed(direction string) {
	if m != nil {
		m.TraversalFailures.WithLabelValues(direction).Inc()
	}
}

// ArchiveWritten counts a ledger write
func (m *Metrics) ArchiveWritten() {
	if m != nil {
		m.ArchivesWritten.Inc()
	}
}

// DuplicateSkipped counts an idempotency short-circuit
func (m *Metrics) DuplicateSkipped() {
	if m != nil {
		m.DuplicateSkips.Inc()
	}
}

// MediaStoredFrom counts a stored object by the URL that served it
func (m *Metrics) MediaStoredFrom(usedBackup bool) {
	if m == nil {
		return
	}
	source := "primary"
	if usedBackup {
		source = "backup"
	}
	m.MediaStored.WithLabelValues(source).Inc()
}

// MediaFetchFailed counts media lost on both URLs
func (m *Metrics) MediaFetchFailed() {
	if m != nil {
		m.MediaFailed.Inc()
	}
}

// ObserveFetch records a fetch duration
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m != nil {
		m.FetchDuration.Observe(d.Seconds())
	}
}

// TaskProcessed counts a queue task outcome (acked, released, invalid)
func (m *Metrics) TaskProcessed(queue, outcome string) {
	if m != nil {
		m.TasksProcessed.WithLabelValues(queue, outcome).Inc()
	}
}
