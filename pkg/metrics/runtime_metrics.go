package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Infrastructure metrics shared by middleware and rate limiting
var (
	// CockroachDB connection pool metrics
	DBConnectionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_in_use",
		Help: "Current number of database connections in use",
	})

	DBConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_idle",
		Help: "Current number of idle database connections",
	})

	DBPoolExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "db_pool_exhausted_total",
		Help: "Total number of requests shed because the database pool was near exhaustion",
	})

	// Request timeout metrics
	RequestTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "request_timeout_total",
		Help: "Total number of request timeouts",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "Request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path", "status"})

	RequestTimeoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "request_timeout_duration_seconds",
		Help:    "Request timeout duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	// Rate limiting falls back to an in-memory window when Redis is
	// degraded; this counts how often that path is taken
	RedisFallbackHitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_fallback_hits_total",
		Help: "Total number of rate limit checks served by the in-memory fallback",
	})
)

// RecordDBConnectionsInUse sets the number of database connections in use
func RecordDBConnectionsInUse(count int) {
	DBConnectionsInUse.Set(float64(count))
}

// RecordDBConnectionsIdle sets the number of idle database connections
func RecordDBConnectionsIdle(count int) {
	DBConnectionsIdle.Set(float64(count))
}

// RecordDBPoolExhausted records a request shed by the pool guard
func RecordDBPoolExhausted() {
	DBPoolExhaustedTotal.Inc()
}

// RecordRequestTimeout records a request timeout
func RecordRequestTimeout(timeout time.Duration, duration time.Duration, method, path string) {
	RequestTimeoutTotal.Inc()
	RequestTimeoutDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRequestDuration records a request duration
func RecordRequestDuration(duration time.Duration, method, path, status string) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordRedisFallbackHit records a rate limit check answered in memory
func RecordRedisFallbackHit() {
	RedisFallbackHitTotal.Inc()
}
