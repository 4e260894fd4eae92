package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WAL metrics
	WALAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cave_wal_append_duration_seconds",
			Help:    "Time taken to append and fsync a WAL frame in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WALFramesAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cave_wal_frames_appended_total",
			Help: "Total number of WAL frames appended",
		},
	)

	WALBytesAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cave_wal_bytes_appended_total",
			Help: "Total number of bytes appended to the WAL",
		},
	)

	// RLS metrics
	RLSEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cave_rls_evaluations_total",
			Help: "Total number of RLS row evaluations by table and outcome (allow/deny)",
		},
		[]string{"table", "outcome"},
	)

	// Sandbox kernel metrics
	SandboxesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cave_sandboxes_total",
			Help: "Total number of sandboxes by status",
		},
		[]string{"status"},
	)

	SandboxCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cave_sandbox_create_duration_seconds",
			Help:    "Time taken to create a sandbox record in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cave_sandbox_exec_duration_seconds",
			Help:    "Exec call duration in seconds by outcome (ok/timeout/error)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	ExecsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cave_sandbox_execs_total",
			Help: "Total number of exec calls by outcome (ok/timeout/error)",
		},
		[]string{"outcome"},
	)

	// Table engine metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cave_query_duration_seconds",
			Help:    "Query execution duration in seconds by operation (insert/select/update/delete)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cave_queries_total",
			Help: "Total number of queries executed by operation and status",
		},
		[]string{"operation", "status"},
	)

	// Realtime hub metrics
	RealtimeEventsPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cave_realtime_events_published_total",
			Help: "Total number of change events published to the realtime hub",
		},
	)

	RealtimeSubscribersLaggedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cave_realtime_subscribers_lagged_total",
			Help: "Total number of times a realtime subscriber's queue overflowed",
		},
	)

	// Audit log metrics
	AuditAppendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cave_audit_append_failures_total",
			Help: "Total number of non-fatal audit log append failures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WALAppendDuration,
		WALFramesAppendedTotal,
		WALBytesAppendedTotal,
		RLSEvaluationsTotal,
		SandboxesTotal,
		SandboxCreateDuration,
		ExecDuration,
		ExecsTotal,
		QueryDuration,
		QueriesTotal,
		RealtimeEventsPublishedTotal,
		RealtimeSubscribersLaggedTotal,
		AuditAppendFailuresTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
