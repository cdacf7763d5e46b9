package static

import (
	"context"
	"testing"

	"github.com/mpetrov/refragd/internal/core/domain"
)

// hashEmbedder maps known texts to fixed vectors.
type hashEmbedder struct {
	vectors map[string][]float32
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectors[text]
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vectors[text], nil
}

func corpus(t *testing.T) []domain.Fragment {
	t.Helper()
	specs := []struct {
		id   string
		text string
		vec  []float32
	}{
		{"f1", "alpha", []float32{1, 0, 0}},
		{"f2", "beta", []float32{0, 1, 0}},
		{"f3", "gamma", []float32{0.9, 0.1, 0}},
	}
	fragments := make([]domain.Fragment, len(specs))
	for i, s := range specs {
		fragment, err := domain.NewFragment(s.text, s.vec, nil, s.id, "")
		if err != nil {
			t.Fatalf("fragment %s: %v", s.id, err)
		}
		fragments[i] = fragment
	}
	return fragments
}

func TestRetrieveRanksByDotProduct(t *testing.T) {
	embedder := &hashEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	retriever := New(embedder, corpus(t))

	candidates, err := retriever.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("len = %d", len(candidates))
	}
	if candidates[0].Text != "alpha" || candidates[1].Text != "gamma" {
		t.Fatalf("order = %q, %q", candidates[0].Text, candidates[1].Text)
	}
	if id := candidates[0].Metadata["fragment_id"]; id != "f1" {
		t.Fatalf("fragment_id = %v", id)
	}
}

func TestRetrieveCapsAtCorpusSize(t *testing.T) {
	embedder := &hashEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	retriever := New(embedder, corpus(t))

	candidates, err := retriever.Retrieve(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("len = %d", len(candidates))
	}
}

func TestAddFragmentsUpsertsByID(t *testing.T) {
	embedder := &hashEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	retriever := New(embedder, corpus(t))

	replacement, err := domain.NewFragment("alpha v2", []float32{1, 0, 0}, nil, "f1", "doc-9")
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	fresh, err := domain.NewFragment("delta", []float32{0, 0, 1}, nil, "f4", "")
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if err := retriever.AddFragments(context.Background(), []domain.Fragment{replacement, fresh}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if retriever.Len() != 4 {
		t.Fatalf("len = %d", retriever.Len())
	}

	candidates, err := retriever.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if candidates[0].Text != "alpha v2" {
		t.Fatalf("top = %q", candidates[0].Text)
	}
	if parent := candidates[0].Metadata["parent_doc_id"]; parent != "doc-9" {
		t.Fatalf("parent_doc_id = %v", parent)
	}
}
