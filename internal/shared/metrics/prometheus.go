package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Crisis engine metrics
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_analyses_total",
			Help: "Total number of analyzed utterances by resulting risk tier",
		},
		[]string{"risk"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crisis_analysis_duration_seconds",
			Help:    "Risk scoring duration in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	eventsLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_events_logged_total",
			Help: "Crisis event writes by persistence path",
		},
		[]string{"path"},
	)

	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_actions_total",
			Help: "Outbound action requests (call, text, url) by outcome",
		},
		[]string{"type", "outcome"},
	)

	followUpsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crisis_followups_scheduled_total",
			Help: "Total number of scheduled follow-ups",
		},
	)

	remoteConfigFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_remote_config_fetch_total",
			Help: "Remote crisis config fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	feedbackRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_feedback_requests_total",
			Help: "Haptic and notification feedback requests",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern uses the matched chi pattern so event ids don't explode label cardinality
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if len(r.URL.Path) > 100 {
		return "/api/..."
	}
	return r.URL.Path
}

// --- Crisis metric helpers ---

// RecordAnalysis records a scored utterance
func RecordAnalysis(risk string, duration time.Duration) {
	analysesTotal.WithLabelValues(risk).Inc()
	analysisDuration.Observe(duration.Seconds())
}

// RecordEventLogged records which persistence path stored a crisis event
// ("primary", "fallback" or "lost")
func RecordEventLogged(path string) {
	eventsLogged.WithLabelValues(path).Inc()
}

// RecordAction records an outbound call/text/url request
func RecordAction(actionType string, delivered bool) {
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	actionsTotal.WithLabelValues(actionType, outcome).Inc()
}

// RecordFollowUpScheduled records a scheduled follow-up
func RecordFollowUpScheduled() {
	followUpsScheduled.Inc()
}

// RecordRemoteConfigFetch records a remote config fetch ("ok", "skipped", "failed")
func RecordRemoteConfigFetch(outcome string) {
	remoteConfigFetches.WithLabelValues(outcome).Inc()
}

// RecordFeedbackRequest records a haptic or notification request
func RecordFeedbackRequest(feedbackType string) {
	feedbackRequests.WithLabelValues(feedbackType).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
