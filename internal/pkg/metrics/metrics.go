package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trackzone",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trackzone",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Geozone metrics
	GeocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "geocode",
		Name:      "lookups_total",
		Help:      "Geocode lookups by outcome (hit, miss, empty, error, stale)",
	}, []string{"result"})

	GeocodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trackzone",
		Subsystem: "geocode",
		Name:      "upstream_duration_seconds",
		Help:      "Latency of upstream geocode requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	EditorCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "editor",
		Name:      "commits_total",
		Help:      "Geozone edits committed, by gesture",
	}, []string{"gesture"})

	FenceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "fence",
		Name:      "events_total",
		Help:      "Arrive/depart events emitted",
	}, []string{"transition"})

	PositionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "tracking",
		Name:      "positions_ingested_total",
		Help:      "Total device positions stored",
	})

	ReplaySessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackzone",
		Subsystem: "replay",
		Name:      "active_sessions",
		Help:      "Replay sessions currently running or paused",
	})

	ReplayFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "replay",
		Name:      "frames_total",
		Help:      "Replay frames emitted",
	})

	BatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "batch",
		Name:      "item_failures_total",
		Help:      "Failed items in best-effort batch operations",
	}, []string{"operation"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackzone",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackzone",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackzone",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackzone",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackzone",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackzone",
		Subsystem: "db",
		Name:      "pool_empty_acquires",
		Help:      "Acquires that had to wait for a new connection, since pool start",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// ObserveBatch counts the failed items of one batch operation.
func ObserveBatch(operation string, failed int) {
	if failed > 0 {
		BatchFailures.WithLabelValues(operation).Add(float64(failed))
	}
}

// UpdateDBPoolMetrics copies pool gauges from a pgxpool.Stat. The stat is
// taken as an interface so this package does not depend on pgx.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
		EmptyAcquireCount() int64
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
		DBPoolEmptyAcquires.Set(float64(s.EmptyAcquireCount()))
	}
}
