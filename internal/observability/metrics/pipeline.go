package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contract_retrieval"

// PipelineMetrics records retrieval stage timings, soft failures and result sizes.
type PipelineMetrics struct {
	service string

	stageDuration *prometheus.HistogramVec
	degradedTotal *prometheus.CounterVec
	resultsTotal  *prometheus.CounterVec
	resultChunks  *prometheus.HistogramVec
	generation    prometheus.Gauge
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Retrieval stage duration in seconds by outcome.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"service", "stage", "outcome"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "degraded_total",
			Help:      "Stages that failed softly and were skipped.",
		},
		[]string{"service", "stage", "reason"},
	)
	resultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "results_total",
			Help:      "Completed retrievals by intent.",
		},
		[]string{"service", "intent"},
	)
	resultChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "result_chunks",
			Help:      "Chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15},
		},
		[]string{"service"},
	)
	generation := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "last_served_generation",
			Help:        "Corpus generation used by the most recent retrieval.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(stageDuration, degradedTotal, resultsTotal, resultChunks, generation)

	return &PipelineMetrics{
		service:       service,
		stageDuration: stageDuration,
		degradedTotal: degradedTotal,
		resultsTotal:  resultsTotal,
		resultChunks:  resultChunks,
		generation:    generation,
	}
}

func (m *PipelineMetrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage, outcome).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) ObserveDegraded(stage, reason string) {
	m.degradedTotal.WithLabelValues(m.service, stage, reason).Inc()
}

func (m *PipelineMetrics) ObserveResult(intent string, chunks int, generation uint64) {
	if intent == "" {
		intent = "unknown"
	}
	m.resultsTotal.WithLabelValues(m.service, intent).Inc()
	m.resultChunks.WithLabelValues(m.service).Observe(float64(chunks))
	m.generation.Set(float64(generation))
}

// NewEmbeddingCacheCounter registers the query-embedding cache counter, labelled by
// result ("hit" or "miss").
func NewEmbeddingCacheCounter(service string, registry *prometheus.Registry) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "embedding_cache",
			Name:        "requests_total",
			Help:        "Query embedding cache lookups by result.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"result"},
	)
	registry.MustRegister(counter)
	return counter
}
