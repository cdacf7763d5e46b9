// Package static serves retrieval from an in-memory corpus. It backs local
// development and tests where no vector database is running.
package static

import (
	"context"
	"sort"
	"sync"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
)

// Retriever ranks an in-memory corpus by dot product against the query
// vector. Safe for concurrent use.
type Retriever struct {
	embedder ports.Embedder

	mu        sync.RWMutex
	fragments []domain.Fragment
}

func New(embedder ports.Embedder, seed []domain.Fragment) *Retriever {
	corpus := make([]domain.Fragment, len(seed))
	copy(corpus, seed)
	return &Retriever{embedder: embedder, fragments: corpus}
}

func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return r.embedder.EmbedQuery(ctx, query)
}

func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		return []domain.Candidate{}, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	corpus := make([]domain.Fragment, len(r.fragments))
	copy(corpus, r.fragments)
	r.mu.RUnlock()

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(corpus))
	for i, fragment := range corpus {
		ranked[i] = scored{index: i, score: dot(queryVector, fragment.Embedding)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].index < ranked[b].index
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	candidates := make([]domain.Candidate, k)
	for i := 0; i < k; i++ {
		candidates[i] = corpus[ranked[i].index].Candidate()
	}
	return candidates, nil
}

// AddFragments appends to the corpus. Duplicated fragment ids replace the
// stored fragment in place.
func (r *Retriever) AddFragments(_ context.Context, fragments []domain.Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := make(map[string]int, len(r.fragments))
	for i, fragment := range r.fragments {
		byID[fragment.FragmentID] = i
	}
	for _, fragment := range fragments {
		if i, ok := byID[fragment.FragmentID]; ok {
			r.fragments[i] = fragment
			continue
		}
		byID[fragment.FragmentID] = len(r.fragments)
		r.fragments = append(r.fragments, fragment)
	}
	return nil
}

// Len reports the corpus size.
func (r *Retriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fragments)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

var (
	_ ports.Retriever     = (*Retriever)(nil)
	_ ports.FragmentIndex = (*Retriever)(nil)
)
