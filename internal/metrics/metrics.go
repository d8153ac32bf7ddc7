package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ARCHITECTURAL DISCOVERY: promauto registers on the default registry at init,
// so every package records through these helpers instead of holding collectors
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingroom_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readingroom_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "readingroom_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingroom_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingroom_cache_evictions_total",
			Help: "Entries evicted because a cache reached capacity",
		},
		[]string{"cache"},
	)

	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "readingroom_cache_entries",
			Help: "Current number of entries per cache",
		},
		[]string{"cache"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "readingroom_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)

	sessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readingroom_sessions_expired_total",
			Help: "Sessions removed by TTL expiry",
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "readingroom_websocket_connections",
			Help: "Open websocket connections",
		},
	)

	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingroom_broadcasts_total",
			Help: "Outbound websocket events by event name",
		},
		[]string{"event"},
	)

	droppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readingroom_websocket_dropped_frames_total",
			Help: "Frames dropped because a connection write buffer was full",
		},
	)

	providerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingroom_provider_calls_total",
			Help: "Outbound provider calls by kind and status",
		},
		[]string{"kind", "status"},
	)

	providerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readingroom_provider_duration_seconds",
			Help:    "Provider call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"kind"},
	)
)

// Handler serves the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count, latency and in-flight gauge for every request
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := normalizeEndpoint(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// normalizeEndpoint collapses the trailing session code so label cardinality stays bounded
func normalizeEndpoint(path string) string {
	for _, prefix := range []string{"/api/session/status/", "/api/session/settings/", "/api/session/text/"} {
		if strings.HasPrefix(path, prefix) {
			return prefix + ":code"
		}
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RecordCacheLookup counts one cache hit or miss
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordCacheEviction counts one capacity eviction
func RecordCacheEviction(cache string) {
	cacheEvictions.WithLabelValues(cache).Inc()
}

// SetCacheEntries publishes the current entry count of a cache
func SetCacheEntries(cache string, n int) {
	cacheEntries.WithLabelValues(cache).Set(float64(n))
}

// SetActiveSessions publishes the in-memory session count
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordSessionsExpired counts sessions removed by TTL expiry
func RecordSessionsExpired(n int) {
	sessionsExpired.Add(float64(n))
}

// ConnectionOpened and ConnectionClosed track open websocket connections
func ConnectionOpened() { activeConnections.Inc() }

func ConnectionClosed() { activeConnections.Dec() }

// RecordBroadcast counts one outbound event delivery attempt
func RecordBroadcast(event string) {
	broadcastsTotal.WithLabelValues(event).Inc()
}

// RecordDroppedFrame counts one frame lost to a full write buffer
func RecordDroppedFrame() {
	droppedFrames.Inc()
}

// RecordProviderCall records the outcome and latency of one provider call
func RecordProviderCall(kind string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	providerCalls.WithLabelValues(kind, status).Inc()
	providerDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
