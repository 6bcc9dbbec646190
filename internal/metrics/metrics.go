package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Propagation outcome labels.
const (
	ResultOK            = "ok"
	ResultDecayed       = "decayed"
	ResultInvalidDomain = "invalid_domain"
	ResultError         = "error"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sattrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattrack_propagation_batch_duration_seconds",
			Help:    "Duration of one batch propagation over a catalog.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_propagations_total",
			Help: "Single-object propagations by outcome.",
		},
		[]string{"result"},
	)

	passSearchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattrack_pass_search_duration_seconds",
			Help:    "Duration of one pass search for one object.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	passSearchEvaluations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattrack_pass_search_evaluations",
			Help:    "Elevation evaluations spent by one pass search.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 14),
		},
	)

	passesFoundTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_passes_found_total",
			Help: "Total number of passes found.",
		},
	)

	catalogObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_catalog_objects",
			Help: "Objects with an initialized propagator in the current catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_catalog_age_seconds",
			Help: "Seconds since the current catalog was loaded.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_stream_connections_total",
			Help: "Position stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_streams_active",
			Help: "Position streams currently open.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_stream_messages_total",
			Help: "Data messages sent on position streams.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_stream_bytes_total",
			Help: "Bytes written to position streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_stream_errors_total",
			Help: "Position stream errors by reason.",
		},
		[]string{"reason"},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_cache_hits_total",
			Help: "Snapshot cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_cache_misses_total",
			Help: "Snapshot cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_cache_evictions_total",
			Help: "Snapshots evicted from the trailing edge of the cache window.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_cache_entries",
			Help: "Snapshots currently cached.",
		},
	)

	cacheRegenerationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_cache_regeneration_errors_total",
			Help: "Snapshot generations that failed in the cache worker.",
		},
	)

	cacheRegenerationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattrack_cache_regeneration_duration_seconds",
			Help:    "Duration of leading edge generation and catalog cutover.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	cacheRebuilding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_cache_rebuilding",
			Help: "1 while the cache window is being rebuilt for a new catalog.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(propagationBatchSeconds)
	prometheus.MustRegister(propagationsTotal)
	prometheus.MustRegister(passSearchSeconds)
	prometheus.MustRegister(passSearchEvaluations)
	prometheus.MustRegister(passesFoundTotal)
	prometheus.MustRegister(catalogObjects)
	prometheus.MustRegister(catalogAgeSeconds)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(streamErrorsTotal)
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(cacheEvictionsTotal)
	prometheus.MustRegister(cacheEntries)
	prometheus.MustRegister(cacheRegenerationErrorsTotal)
	prometheus.MustRegister(cacheRegenerationSeconds)
	prometheus.MustRegister(cacheRebuilding)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagationBatch records one batch duration and its per-result counts.
func RecordPropagationBatch(d time.Duration, results map[string]int) {
	propagationBatchSeconds.Observe(d.Seconds())
	for result, n := range results {
		propagationsTotal.WithLabelValues(result).Add(float64(n))
	}
}

// RecordPropagation counts a single propagation outside a batch.
func RecordPropagation(result string) {
	propagationsTotal.WithLabelValues(result).Inc()
}

// RecordPassSearch records one pass search.
func RecordPassSearch(d time.Duration, evaluations, found int) {
	passSearchSeconds.Observe(d.Seconds())
	passSearchEvaluations.Observe(float64(evaluations))
	passesFoundTotal.Add(float64(found))
}

// SetCatalog publishes the size and age of the active catalog.
func SetCatalog(objects int, ageSeconds float64) {
	catalogObjects.Set(float64(objects))
	catalogAgeSeconds.Set(ageSeconds)
}

// IncStreamConnections counts a stream "connect" or "disconnect" event.
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }

func IncStreamMessages() { streamMessagesTotal.Inc() }

func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error such as "rate_limit" or "send_error".
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

func IncCacheHits()   { cacheHitsTotal.Inc() }
func IncCacheMisses() { cacheMissesTotal.Inc() }

func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }

func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

func IncCacheRegenerationErrors() { cacheRegenerationErrorsTotal.Inc() }

func ObserveCacheRegenerationDuration(d time.Duration) {
	cacheRegenerationSeconds.Observe(d.Seconds())
}

// SetCacheRebuilding flags a catalog cutover in progress.
func SetCacheRebuilding(active bool) {
	if active {
		cacheRebuilding.Set(1)
		return
	}
	cacheRebuilding.Set(0)
}

// knownRoutes are exact paths reported as their own label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/satellites":       true,
	"/api/v1/propagate":        true,
	"/api/v1/stream/positions": true,
}

// parameterizedRoutes collapse a trailing catalog number into one label.
var parameterizedRoutes = []string{
	"/api/v1/propagate/",
	"/api/v1/passes/",
}

// normalizeRoute maps a request path to a bounded set of metric labels.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, prefix := range parameterizedRoutes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return prefix + "{norad_id}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streaming handlers keep working.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
