package ollama

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/infrastructure/resilience"
)

func TestEmbedNormalizesVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[3,4],[0,0]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", nil))
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("vectors = %d", len(vectors))
	}
	want := []float32{0.6, 0.8}
	for i, v := range vectors[0] {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("vector[0][%d] = %v, want %v", i, v, want[i])
		}
	}
	// Zero vectors pass through untouched.
	if vectors[1][0] != 0 || vectors[1][1] != 0 {
		t.Fatalf("vector[1] = %v", vectors[1])
	}
}

func TestGeneratePassesPromptThrough(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		if payload["stream"] != false {
			t.Errorf("stream = %v", payload["stream"])
		}
		_, _ = w.Write([]byte(`{"response":"  the answer  "}`))
	}))
	defer server.Close()

	generator := NewGenerator(New(server.URL, "gen", "embed", nil))
	answer, err := generator.Generate(context.Background(), "Context:\nalpha\n\nQuery: q")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("answer = %q", answer)
	}
	if !strings.Contains(capturedPrompt, "Query: q") {
		t.Fatalf("prompt = %q", capturedPrompt)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", nil))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	// 502 is transient, it surfaces tagged for callers that retry later.
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestExecutorRetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
		BreakerEnabled: false,
	}, resilience.WithClassifier(ClassifyError))

	embedder := NewEmbedder(New(server.URL, "gen", "embed", executor))
	vectors, err := embedder.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("vectors = %d", len(vectors))
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("calls = %d", n)
	}
}

func TestClassifyErrorClientStatusNotRetryable(t *testing.T) {
	err := &HTTPStatusError{Operation: "generate", StatusCode: http.StatusBadRequest, Status: "400 Bad Request"}
	verdict := ClassifyError(err)
	if verdict.Retry || verdict.Record {
		t.Fatalf("verdict = %+v", verdict)
	}
}
