package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests no route matched, so unknown paths cannot
// grow label cardinality.
const unmatchedRoute = "unmatched"

type HTTPServerMetrics struct {
	service string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

// NewHTTPServerMetrics registers request collectors on registry, next to the
// evaluation collectors served from the same /metrics endpoint.
func NewHTTPServerMetrics(service string, registry prometheus.Registerer) *HTTPServerMetrics {
	constLabels := prometheus.Labels{"service": service}
	m := &HTTPServerMetrics{
		service: service,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request latency. Synchronous runs land in the upper buckets.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"method", "route"}),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "HTTP requests currently being served.",
			ConstLabels: constLabels,
		}),
	}
	if registry != nil {
		registry.MustRegister(m.requestTotal, m.requestDuration, m.requestInFlight)
	}
	return m
}

// Middleware must run inside a chi router: the route label is the matched
// pattern, read after the handler returns.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
