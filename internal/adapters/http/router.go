// Package httpadapter exposes the query pipeline, fragment ingestion and
// session memory over HTTP.
package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mpetrov/refragd/internal/codec"
	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
	"github.com/mpetrov/refragd/internal/core/usecase"
	"github.com/mpetrov/refragd/internal/observability/metrics"
)

const maxIngestBodyBytes = 32 << 20

type RouterOptions struct {
	Service        string
	Strategy       string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	pipeline *usecase.Pipeline
	queue    ports.MessageQueue
	memoryUC *usecase.MemoryUseCase // nil disables the memory endpoints
	codecs   *codec.Unified
	metrics  *metrics.HTTPServerMetrics
	opts     RouterOptions
}

func NewRouter(
	pipeline *usecase.Pipeline,
	queue ports.MessageQueue,
	memoryUC *usecase.MemoryUseCase,
	codecs *codec.Unified,
	httpMetrics *metrics.HTTPServerMetrics,
	opts RouterOptions,
) *Router {
	if opts.Service == "" {
		opts.Service = "refragd-api"
	}
	return &Router{
		pipeline: pipeline,
		queue:    queue,
		memoryUC: memoryUC,
		codecs:   codecs,
		metrics:  httpMetrics,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.runQuery)
	mux.HandleFunc("/v1/fragments", rt.ingestFragments)
	mux.HandleFunc("/v1/memory", rt.rememberMemory)
	mux.HandleFunc("/v1/memory/", rt.recallMemory)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, 50*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) runQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query  string `json:"query"`
		K      *int   `json:"k"`
		Budget *int   `json:"budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	// k and budget are optional per-request overrides of the configured
	// retrieval depth and selection budget.
	var k, budget int
	if req.K != nil {
		if *req.K <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be positive"})
			return
		}
		k = *req.K
	}
	if req.Budget != nil {
		if *req.Budget <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "budget must be positive"})
			return
		}
		budget = *req.Budget
	}

	start := time.Now()
	result, err := rt.pipeline.RunWithLimits(r.Context(), req.Query, k, budget)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSelectionRun(
			rt.opts.Service,
			rt.opts.Strategy,
			usecase.SelectedCount(result),
			result.ContextChars,
			time.Since(start),
		)
		if result.Answer != nil && strings.HasPrefix(*result.Answer, "generation error:") {
			rt.metrics.RecordGenerationFailure(rt.opts.Service)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) ingestFragments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.queue == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "fragment ingestion is disabled"})
		return
	}

	// A format parameter switches the request body to a pre-encoded fragment
	// batch in one of the registered serialization formats.
	if format := r.URL.Query().Get("format"); format != "" && rt.codecs != nil {
		rt.ingestEncodedBatch(w, r, format)
		return
	}

	var req struct {
		Fragments []struct {
			Text        string         `json:"text"`
			Embedding   []float32      `json:"embedding"`
			Metadata    map[string]any `json:"metadata"`
			FragmentID  string         `json:"fragment_id"`
			ParentDocID string         `json:"parent_doc_id"`
		} `json:"fragments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Fragments) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fragments are required"})
		return
	}

	fragments := make([]domain.Fragment, 0, len(req.Fragments))
	for i, f := range req.Fragments {
		fragment, err := domain.NewFragment(f.Text, f.Embedding, f.Metadata, f.FragmentID, f.ParentDocID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "fragment " + strconv.Itoa(i) + ": " + err.Error(),
			})
			return
		}
		fragments = append(fragments, fragment)
	}

	if err := rt.queue.PublishFragments(r.Context(), fragments); err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordFragmentsEnqueued(rt.opts.Service, len(fragments))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": len(fragments)})
}

func (rt *Router) ingestEncodedBatch(w http.ResponseWriter, r *http.Request, format string) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read request body"})
		return
	}

	fragments, err := rt.codecs.DecodeBatch(data, format)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(fragments) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fragments are required"})
		return
	}

	if err := rt.queue.PublishFragments(r.Context(), fragments); err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordFragmentsEnqueued(rt.opts.Service, len(fragments))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": len(fragments)})
}

func (rt *Router) rememberMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.memoryUC == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "memory store is disabled"})
		return
	}

	var record domain.MemoryRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := rt.memoryUC.Remember(r.Context(), &record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (rt *Router) recallMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.memoryUC == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "memory store is disabled"})
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/memory/")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	query := r.URL.Query().Get("query")
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))
	typeFilter := domain.MemoryRecordType(r.URL.Query().Get("type"))
	if typeFilter != "" && !typeFilter.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown record type"})
		return
	}

	records, err := rt.memoryUC.Recall(r.Context(), sessionID, query, k, typeFilter)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordMemoryHits(rt.opts.Service, len(records))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
