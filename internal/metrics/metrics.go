// Package metrics provides Prometheus instrumentation for the trustline service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustline",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trustline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EventsIngestedTotal counts ledgered events by kind.
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustline",
			Name:      "events_ingested_total",
			Help:      "Total events appended to the ledger by kind.",
		},
		[]string{"kind"},
	)

	// EventsDuplicateTotal counts idempotent replays dropped at ingestion.
	EventsDuplicateTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trustline",
		Name:      "events_duplicate_total",
		Help:      "Total events dropped because the external event ID was already ledgered.",
	})

	// ScoresComputedTotal counts scoring engine invocations.
	ScoresComputedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trustline",
		Name:      "scores_computed_total",
		Help:      "Total trust score computations.",
	})

	// ScoreComputeDuration observes scoring latency.
	ScoreComputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trustline",
		Name:      "score_compute_duration_seconds",
		Help:      "Trust score computation duration in seconds.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})

	// PreflightDecisionsTotal counts preflight verdicts by outcome.
	PreflightDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustline",
			Name:      "preflight_decisions_total",
			Help:      "Total preflight decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// PolicyExclusionsTotal counts events excluded from scoring by reason.
	PolicyExclusionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustline",
			Name:      "policy_exclusions_total",
			Help:      "Total events excluded from trust scoring by policy reason.",
		},
		[]string{"reason"},
	)

	// SnapshotsSavedTotal counts persisted trust snapshots.
	SnapshotsSavedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trustline",
		Name:      "snapshots_saved_total",
		Help:      "Total trust score snapshots persisted by the worker.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trustline", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trustline", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trustline", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EventsIngestedTotal,
		EventsDuplicateTotal,
		ScoresComputedTotal,
		ScoreComputeDuration,
		PreflightDecisionsTotal,
		PolicyExclusionsTotal,
		SnapshotsSavedTotal,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
