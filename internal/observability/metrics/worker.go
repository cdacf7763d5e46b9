package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	batchTotal     *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	batchInFlight  prometheus.Gauge
	batchFragments *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refrag",
			Subsystem: "worker",
			Name:      "fragment_batch_total",
			Help:      "Total indexed fragment batches by status.",
		},
		[]string{"service", "status"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refrag",
			Subsystem: "worker",
			Name:      "fragment_batch_duration_seconds",
			Help:      "Fragment batch indexing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	batchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "refrag",
			Subsystem: "worker",
			Name:      "fragment_batch_in_flight",
			Help:      "Number of in-flight fragment batch indexing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchFragments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refrag",
			Subsystem: "worker",
			Name:      "fragment_batch_size",
			Help:      "Distribution of fragments per indexed batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"service"},
	)

	registry.MustRegister(batchTotal, batchDuration, batchInFlight, batchFragments)

	return &WorkerMetrics{
		registry:       registry,
		batchTotal:     batchTotal,
		batchDuration:  batchDuration,
		batchInFlight:  batchInFlight,
		batchFragments: batchFragments,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartBatch() {
	m.batchInFlight.Inc()
}

func (m *WorkerMetrics) FinishBatch(service string, fragments int, duration time.Duration, err error) {
	m.batchInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.batchTotal.WithLabelValues(service, status).Inc()
	m.batchDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if fragments > 0 {
		m.batchFragments.WithLabelValues(service).Observe(float64(fragments))
	}
}
