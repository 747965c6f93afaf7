// Package telemetry provides application-level observability for the module
// marketplace pipeline.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<MKT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped every 15–60 seconds. It is
// NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Module registration and download counters
//   - QA run counters, durations, and score distributions
//   - Approval decision counters
//   - QA queue depth gauge (polled by the worker)
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/modules/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as module slugs or version strings.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/modules/:id),
// NOT the raw URL, to prevent unbounded cardinality.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Registration and download metrics — recorded by the plugin registration
// handlers and the module detail/download endpoints.
//
// ModuleRegistrationsTotal counts accepted submissions by source
// ("upload", "vcs", "url", "folder") and outcome ("accepted", "duplicate",
// "invalid", "error").
var (
	ModuleRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "module_registrations_total",
			Help: "Total number of module registration attempts, by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	ModuleDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "module_downloads_total",
			Help: "Total number of module package downloads, by category.",
		},
		[]string{"category"},
	)
)

// QA pipeline metrics — recorded by the QA worker.
//
// QARunsTotal counts completed QA runs by recommendation ("approve", "review",
// "reject") plus the special value "error" for runs the worker could not
// finish. QARunDuration measures the full analyze-score-persist cycle for one
// module; buckets stretch to 10 minutes because the test probe may run
// submitted suites.
//
// Example PromQL queries:
//   - Reject rate:       sum(rate(qa_runs_total{recommendation="reject"}[1h])) / sum(rate(qa_runs_total[1h]))
//   - p95 run duration:  histogram_quantile(0.95, rate(qa_run_duration_seconds_bucket[1h]))
var (
	QARunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_runs_total",
			Help: "Total number of completed QA runs, by recommendation.",
		},
		[]string{"recommendation"},
	)

	QARunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qa_run_duration_seconds",
			Help:    "Duration of a single QA run (analysis, scoring, and persistence).",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	QAOverallScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qa_overall_score",
			Help:    "Distribution of overall QA scores across completed runs.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// QAQueueDepth reflects the number of module IDs waiting in the QA queue.
	// Sampled by the worker each poll cycle; a steadily growing gauge means
	// the worker cannot keep up with submission volume.
	QAQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qa_queue_depth",
			Help: "Current number of modules waiting in the QA queue.",
		},
	)
)

// ApprovalDecisionsTotal counts workflow decisions by target kind and final
// status ("approved", "rejected", "cancelled").
var ApprovalDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "approval_decisions_total",
		Help: "Total number of approval workflow decisions, by target kind and status.",
	},
	[]string{"target_kind", "status"},
)

// NotificationsSentTotal counts outbound notification emails by event type
// ("qa_completed", "approval_decided"). A stalled counter alongside pending
// approvals is a useful SMTP failure signal.
var NotificationsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notification emails successfully sent, by event type.",
	},
	[]string{"event"},
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool. Sampled every 30 seconds by StartDBStatsCollector rather
// than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates DBOpenConnections.
// The goroutine exits when the database becomes unreachable, which happens
// automatically when the application shuts down and defers db.Close().
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
