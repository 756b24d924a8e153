// Package metrics provides Prometheus instrumentation for the investigation
// service.
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
			Namespace: "amlsift",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amlsift",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransactionsIngestedTotal counts committed transactions by risk level.
	TransactionsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlsift",
			Name:      "transactions_ingested_total",
			Help:      "Total transactions committed to the session store, by risk level.",
		},
		[]string{"risk_level"},
	)

	// BatchesRejectedTotal counts rejected ingestion batches by cause.
	BatchesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlsift",
			Name:      "batches_rejected_total",
			Help:      "Total ingestion batches rejected, by cause (validation, scoring, cancelled).",
		},
		[]string{"cause"},
	)

	// BatchSize observes the size of submitted ingestion batches.
	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "amlsift",
		Name:      "ingest_batch_size",
		Help:      "Number of raw transactions per ingestion batch.",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	// ScoringDuration observes end-to-end scoring latency per transaction.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "amlsift",
		Name:      "scoring_duration_seconds",
		Help:      "Risk scorer call duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// SimulationsTotal counts what-if scoring calls.
	SimulationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "amlsift",
		Name:      "simulations_total",
		Help:      "Total non-committing simulation scoring calls.",
	})

	// GraphRebuildDuration observes full graph rebuild latency.
	GraphRebuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "amlsift",
		Name:      "graph_rebuild_duration_seconds",
		Help:      "Account graph rebuild duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// SessionTransactions tracks the current size of the session store.
	SessionTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlsift",
		Name:      "session_transactions",
		Help:      "Number of transactions in the current analysis session.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlsift",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlsift", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlsift", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlsift", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransactionsIngestedTotal,
		BatchesRejectedTotal,
		BatchSize,
		ScoringDuration,
		SimulationsTotal,
		GraphRebuildDuration,
		SessionTransactions,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and the goroutine
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
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
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

// Handler returns the Prometheus metrics handler for the /metrics endpoint.
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
