package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	selectionTotal          *prometheus.CounterVec
	selectedCandidates      *prometheus.HistogramVec
	contextChars            *prometheus.HistogramVec
	selectionDuration       *prometheus.HistogramVec
	generationFailuresTotal *prometheus.CounterVec
	fragmentsEnqueuedTotal  *prometheus.CounterVec
	memoryHitsTotal         *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "refrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	selectionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refrag",
			Subsystem: "selection",
			Name:      "runs_total",
			Help:      "Total completed selection runs by strategy.",
		},
		[]string{"service", "strategy"},
	)
	selectedCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refrag",
			Subsystem: "selection",
			Name:      "selected_candidates",
			Help:      "Distribution of selected candidates per run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "strategy"},
	)
	contextChars := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refrag",
			Subsystem: "selection",
			Name:      "context_chars",
			Help:      "Distribution of assembled context sizes in characters.",
			Buckets:   []float64{0, 128, 256, 512, 1024, 2048, 4096, 8192, 16384},
		},
		[]string{"service", "strategy"},
	)
	selectionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refrag",
			Subsystem: "selection",
			Name:      "duration_seconds",
			Help:      "Pipeline run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	generationFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refrag",
			Subsystem: "generation",
			Name:      "failures_total",
			Help:      "Total pipeline runs whose generation stage failed.",
		},
		[]string{"service"},
	)
	fragmentsEnqueuedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refrag",
			Subsystem: "ingest",
			Name:      "fragments_enqueued_total",
			Help:      "Total fragments accepted for asynchronous indexing.",
		},
		[]string{"service"},
	)
	memoryHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refrag",
			Subsystem: "memory",
			Name:      "hits_total",
			Help:      "Total recalled memory records served.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		selectionTotal,
		selectedCandidates,
		contextChars,
		selectionDuration,
		generationFailuresTotal,
		fragmentsEnqueuedTotal,
		memoryHitsTotal,
	)

	return &HTTPServerMetrics{
		registry:                registry,
		requestTotal:            requestTotal,
		requestDuration:         requestDuration,
		requestInFlight:         requestInFlight,
		selectionTotal:          selectionTotal,
		selectedCandidates:      selectedCandidates,
		contextChars:            contextChars,
		selectionDuration:       selectionDuration,
		generationFailuresTotal: generationFailuresTotal,
		fragmentsEnqueuedTotal:  fragmentsEnqueuedTotal,
		memoryHitsTotal:         memoryHitsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/memory/"):
		return "/v1/memory/{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSelectionRun(service, strategy string, selectedCount, contextChars int, duration time.Duration) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.selectionTotal.WithLabelValues(service, strategy).Inc()
	m.selectedCandidates.WithLabelValues(service, strategy).Observe(float64(selectedCount))
	m.contextChars.WithLabelValues(service, strategy).Observe(float64(contextChars))
	m.selectionDuration.WithLabelValues(service, strategy).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordGenerationFailure(service string) {
	m.generationFailuresTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordFragmentsEnqueued(service string, count int) {
	if count <= 0 {
		return
	}
	m.fragmentsEnqueuedTotal.WithLabelValues(service).Add(float64(count))
}

func (m *HTTPServerMetrics) RecordMemoryHits(service string, hits int) {
	if hits <= 0 {
		return
	}
	m.memoryHitsTotal.WithLabelValues(service).Add(float64(hits))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
