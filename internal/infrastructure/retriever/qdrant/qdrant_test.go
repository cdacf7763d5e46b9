package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mpetrov/refragd/internal/core/domain"
)

type fixedEmbedder struct {
	vector []float32
}

func (e *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func (e *fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector, nil
}

func TestAddFragmentsEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var upsertCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/fragments":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/fragments/points":
			atomic.AddInt32(&upsertCalls, 1)
			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Vector  []float32      `json:"vector"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode upsert body: %v", err)
			}
			if len(body.Points) != 1 {
				t.Errorf("points = %d", len(body.Points))
			} else if body.Points[0].Payload["fragment_id"] != "f1" {
				t.Errorf("fragment_id = %v", body.Points[0].Payload["fragment_id"])
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	retriever := New(server.URL, "fragments", &fixedEmbedder{vector: []float32{1, 0}})
	fragment, err := domain.NewFragment("alpha", []float32{1, 0}, nil, "f1", "")
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := retriever.AddFragments(context.Background(), []domain.Fragment{fragment}); err != nil {
			t.Fatalf("add fragments: %v", err)
		}
	}
	if n := atomic.LoadInt32(&ensureCalls); n != 1 {
		t.Fatalf("ensure calls = %d", n)
	}
	if n := atomic.LoadInt32(&upsertCalls); n != 3 {
		t.Fatalf("upsert calls = %d", n)
	}
}

func TestRetrieveParsesSearchHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/fragments/points/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode search body: %v", err)
		}
		if body["with_vector"] != true {
			t.Errorf("with_vector = %v", body["with_vector"])
		}
		if body["limit"] != float64(2) {
			t.Errorf("limit = %v", body["limit"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"score":0.92,"vector":[0.9,0.1],"payload":{"text":"alpha","fragment_id":"f1","parent_doc_id":"d1","metadata":{"source":"wiki"}}},
			{"score":0.41,"vector":[0.1,0.9],"payload":{"text":"beta","fragment_id":"f2"}}
		]}`))
	}))
	defer server.Close()

	retriever := New(server.URL, "fragments", &fixedEmbedder{vector: []float32{1, 0}})

	candidates, err := retriever.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d", len(candidates))
	}
	first := candidates[0]
	if first.Text != "alpha" {
		t.Fatalf("text = %q", first.Text)
	}
	if first.Metadata["fragment_id"] != "f1" || first.Metadata["parent_doc_id"] != "d1" {
		t.Fatalf("ids = %v, %v", first.Metadata["fragment_id"], first.Metadata["parent_doc_id"])
	}
	if first.Metadata["source"] != "wiki" {
		t.Fatalf("source = %v", first.Metadata["source"])
	}
	if first.Metadata["score"] != 0.92 {
		t.Fatalf("score = %v", first.Metadata["score"])
	}
	if len(first.Vector) != 2 {
		t.Fatalf("vector = %v", first.Vector)
	}
	if _, ok := candidates[1].Metadata["parent_doc_id"]; ok {
		t.Fatalf("unexpected parent_doc_id on second hit")
	}
}

func TestRetrieveZeroKSkipsNetwork(t *testing.T) {
	retriever := New("http://127.0.0.1:0", "fragments", &fixedEmbedder{vector: []float32{1, 0}})
	candidates, err := retriever.Retrieve(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d", len(candidates))
	}
}
