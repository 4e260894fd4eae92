/*
Package metrics provides Prometheus metrics collection and exposition for
CAVE, plus lightweight liveness/readiness/health HTTP handlers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  WAL: append duration, frames, bytes        │          │
	│  │  RLS: evaluations by table/outcome          │          │
	│  │  Sandboxes: count by status, create/exec    │          │
	│  │             duration                        │          │
	│  │  Query: duration and count by operation     │          │
	│  │  Realtime: events published, lagged subs    │          │
	│  │  Audit: non-fatal append failures           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics, promhttp.Handler()        │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Collection model

Counters and histograms (exec duration, WAL append latency, RLS
evaluations, query duration) are updated inline by the package that owns
the event — pkg/wal, pkg/rls, pkg/sandbox and pkg/table each hold a
reference to the relevant prometheus collector and Observe/Inc it at the
call site, timed with Timer. Collector instead polls: sandbox counts by
status are cheaper to recompute from metastore every 15s than to keep in
sync incrementally across create/start/stop/delete.

# Health endpoints

HealthHandler, ReadyHandler and LivenessHandler serve /health, /ready and
/live respectively. Readiness treats "metastore", "kernel" and "audit" as
critical components: RegisterComponent must be called for each during
daemon startup before readiness reports healthy.

# Usage

	metrics.RegisterComponent("metastore", true, "opened")
	metrics.RegisterComponent("kernel", true, "ready")
	metrics.RegisterComponent("audit", true, "ready")

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDurationVec(metrics.ExecDuration, "ok")

	collector := metrics.NewCollector(kernel)
	collector.Start()
	defer collector.Stop()

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
