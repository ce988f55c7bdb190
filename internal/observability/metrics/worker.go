package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks index runs of the ingestion worker.
type WorkerMetrics struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge
	chunks   *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	labels := prometheus.Labels{"service": service}
	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "contract_index_total",
			Help:        "Contract index runs by outcome.",
			ConstLabels: labels,
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worker", Name: "contract_index_duration_seconds",
			Help:        "Contract index run time by outcome. Embedding dominates.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker", Name: "contract_index_in_flight",
			Help:        "Index runs in progress.",
			ConstLabels: labels,
		}),
		chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker", Name: "indexed_chunks",
			Help:        "Chunks stored by the last successful index run per contract.",
			ConstLabels: labels,
		}, []string{"contract_id"}),
	}
	m.registry.MustRegister(m.runs, m.duration, m.running, m.chunks)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartIndex marks a run as started and returns the func that finishes it.
func (m *WorkerMetrics) StartIndex() func(err error) {
	m.running.Inc()
	started := time.Now()
	return func(err error) {
		m.running.Dec()
		status := "success"
		if err != nil {
			status = "error"
		}
		m.runs.WithLabelValues(status).Inc()
		m.duration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
}

func (m *WorkerMetrics) SetIndexedChunks(contractID string, count int) {
	m.chunks.WithLabelValues(contractID).Set(float64(count))
}
