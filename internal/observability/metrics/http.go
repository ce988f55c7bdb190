package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latencyBuckets cover both lexical-only answers and requests that wait on several LLM stages.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPServerMetrics owns the API registry; pipeline, cache and breaker metrics register
// on the same registry so one /metrics endpoint serves them all.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	rejected *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}
	m := &HTTPServerMetrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:        "HTTP request latency by route.",
			ConstLabels: labels,
			Buckets:     latencyBuckets,
		}, []string{"method", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "in_flight_requests",
			Help:        "Requests currently being served.",
			ConstLabels: labels,
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "rejected_total",
			Help:        "Requests shed by rate limiting or backpressure.",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
	reg.MustRegister(m.requests, m.latency, m.inFlight, m.rejected)
	return m
}

func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts every request under its route template, so contract IDs never
// become label values.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		snoop := httpsnoop.CaptureMetrics(next, w, r)
		route := routeTemplate(r.URL.Path)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(snoop.Code)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(snoop.Duration.Seconds())
	})
}

// RecordRejected counts a request shed before reaching a handler.
func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func routeTemplate(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/contracts/")
	if !ok {
		return path
	}
	if _, action, found := strings.Cut(rest, "/"); found {
		return "/v1/contracts/{contract_id}/" + action
	}
	return "/v1/contracts/{contract_id}"
}
