// Package selection implements the budget-constrained candidate selection
// strategies: similarity ranking, maximal marginal relevance, uncertainty
// sampling, adaptive thresholding and a voting ensemble.
package selection

import (
	"math/rand/v2"
	"sort"
	"time"
)

// Selector picks at most budget candidate indices for a query vector.
// Implementations are safe for concurrent use; all of them except
// uncertainty sampling are pure functions of their inputs.
type Selector interface {
	// Select returns min(budget, len(candidates)) unique in-range indices.
	// An empty candidate list yields an empty result, not an error.
	Select(query []float32, candidates [][]float32, budget int) []int
}

type options struct {
	rng *rand.Rand
}

type Option func(*options)

// WithSeed fixes the random source for uncertainty sampling so selections
// are reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// New builds the selector named by cfg.Strategy. The configuration is
// validated here; Select never fails afterwards.
func New(cfg Config, opts ...Option) (Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		now := uint64(time.Now().UnixNano())
		o.rng = rand.New(rand.NewPCG(now, now))
	}

	switch cfg.Strategy {
	case StrategySimilarity:
		return &similaritySelector{minScore: cfg.MinScore}, nil
	case StrategyMMR:
		return &mmrSelector{lambda: cfg.DiversityLambda}, nil
	case StrategyUncertainty:
		return &uncertaintySelector{temperature: cfg.Temperature, rng: o.rng}, nil
	case StrategyAdaptive:
		return &adaptiveSelector{percentile: cfg.AdaptivePercentile}, nil
	default:
		return newEnsembleSelector(cfg, o.rng), nil
	}
}

func dotScores(query []float32, candidates [][]float32) []float64 {
	scores := make([]float64, len(candidates))
	for i, candidate := range candidates {
		scores[i] = dot(query, candidate)
	}
	return scores
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

// rankDescending orders indices by score descending, ties broken by
// ascending original index.
func rankDescending(indices []int, score func(i int) float64) {
	sort.SliceStable(indices, func(a, b int) bool {
		sa, sb := score(indices[a]), score(indices[b])
		if sa != sb {
			return sa > sb
		}
		return indices[a] < indices[b]
	})
}

func cappedBudget(budget, n int) int {
	if budget > n {
		return n
	}
	return budget
}

var (
	_ Selector = (*similaritySelector)(nil)
	_ Selector = (*mmrSelector)(nil)
	_ Selector = (*uncertaintySelector)(nil)
	_ Selector = (*adaptiveSelector)(nil)
	_ Selector = (*ensembleSelector)(nil)
)
