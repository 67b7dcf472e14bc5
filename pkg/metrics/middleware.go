package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestsTotal   = "http_requests_total"
	httpRequestDuration = "http_request_duration_seconds"

	unmatchedRoute = "unmatched"
)

// DefaultLatencyBuckets covers fast reads up to a batch intake that waits on
// the search index and the work queue.
var DefaultLatencyBuckets = []float64{0.05, 0.1, 0.3, 0.5, 1, 2.5, 5, 10}

// Middleware records request counts and latency per chi route pattern.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMiddleware returns request metrics labelled with the serving component.
// DefaultLatencyBuckets is used when no buckets are given.
func NewMiddleware(component string, buckets ...float64) *Middleware {
	if len(buckets) == 0 {
		buckets = DefaultLatencyBuckets
	}
	labels := []string{"code", "method", "route"}

	return &Middleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem:   transcribeOrchestrator,
			Name:        httpRequestsTotal,
			Help:        "number of HTTP requests by status code, method and route",
			ConstLabels: prometheus.Labels{"component": component},
		}, labels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem:   transcribeOrchestrator,
			Name:        httpRequestDuration,
			Help:        "time spent serving HTTP requests by status code, method and route",
			ConstLabels: prometheus.Labels{"component": component},
			Buckets:     buckets,
		}, labels),
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// route patterns keep label cardinality bounded, raw paths carry ids
		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := strconv.Itoa(ww.Status())
		m.requests.WithLabelValues(code, r.Method, route).Inc()
		m.latency.WithLabelValues(code, r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Collectors exposes the collectors for registration on a custom registry.
func (m *Middleware) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.latency}
}

// MustRegisterDefault registers the collectors on the default registry.
func (m *Middleware) MustRegisterDefault() {
	prometheus.MustRegister(m.Collectors()...)
}
