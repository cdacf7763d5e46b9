package selection

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/mpetrov/refragd/internal/core/domain"
)

var (
	testQuery      = []float32{1, 0, 0}
	testCandidates = [][]float32{
		{0.9, 0.1, 0},
		{0, 1, 0},
		{0.8, 0.2, 0},
	}
)

func newSelector(t *testing.T, cfg Config, opts ...Option) Selector {
	t.Helper()
	selector, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New(%s) error = %v", cfg.Strategy, err)
	}
	return selector
}

func configFor(strategy Strategy) Config {
	cfg := DefaultConfig()
	cfg.Strategy = strategy
	return cfg
}

func TestEveryStrategyReturnsBudgetUniqueInRangeIndices(t *testing.T) {
	strategies := []Strategy{StrategySimilarity, StrategyMMR, StrategyUncertainty, StrategyAdaptive, StrategyEnsemble}
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			selector := newSelector(t, configFor(strategy), WithSeed(7))

			for _, budget := range []int{1, 2, 3, 10} {
				got := selector.Select(testQuery, testCandidates, budget)
				want := budget
				if want > len(testCandidates) {
					want = len(testCandidates)
				}
				if strategy == StrategyAdaptive && budget > 1 {
					// Adaptive keeps only candidates above its percentile
					// cutoff, so it may legitimately return fewer.
					if len(got) == 0 || len(got) > want {
						t.Fatalf("budget %d: got %d indices", budget, len(got))
					}
				} else if len(got) != want {
					t.Fatalf("budget %d: got %d indices, want %d", budget, len(got), want)
				}
				seen := map[int]bool{}
				for _, idx := range got {
					if idx < 0 || idx >= len(testCandidates) {
						t.Fatalf("index %d out of range", idx)
					}
					if seen[idx] {
						t.Fatalf("duplicate index %d in %v", idx, got)
					}
					seen[idx] = true
				}
			}
		})
	}
}

func TestEveryStrategyHandlesEmptyCandidates(t *testing.T) {
	strategies := []Strategy{StrategySimilarity, StrategyMMR, StrategyUncertainty, StrategyAdaptive, StrategyEnsemble}
	for _, strategy := range strategies {
		selector := newSelector(t, configFor(strategy), WithSeed(7))
		if got := selector.Select(testQuery, nil, 3); len(got) != 0 {
			t.Fatalf("%s: expected empty result for empty candidates, got %v", strategy, got)
		}
	}
}

func TestSimilarityRanksDescending(t *testing.T) {
	selector := newSelector(t, configFor(StrategySimilarity))

	got := selector.Select(testQuery, testCandidates, 2)
	if !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("expected [0 2], got %v", got)
	}
}

func TestSimilarityBreaksTiesByAscendingIndex(t *testing.T) {
	selector := newSelector(t, configFor(StrategySimilarity))

	candidates := [][]float32{{0.5, 0, 0}, {0.5, 0, 0}, {0.9, 0, 0}}
	got := selector.Select(testQuery, candidates, 3)
	if !reflect.DeepEqual(got, []int{2, 0, 1}) {
		t.Fatalf("expected [2 0 1], got %v", got)
	}
}

func TestSimilarityMinScoreFiltersBeforeRanking(t *testing.T) {
	minScore := 0.85
	cfg := configFor(StrategySimilarity)
	cfg.MinScore = &minScore
	selector := newSelector(t, cfg)

	got := selector.Select(testQuery, testCandidates, 3)
	if !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("expected only index 0 above %v, got %v", minScore, got)
	}
}

func TestSimilarityMinScoreMayEmptyTheSelection(t *testing.T) {
	minScore := 2.0
	cfg := configFor(StrategySimilarity)
	cfg.MinScore = &minScore
	selector := newSelector(t, cfg)

	if got := selector.Select(testQuery, testCandidates, 3); len(got) != 0 {
		t.Fatalf("expected empty selection, got %v", got)
	}
}

func TestMMRWithFullLambdaMatchesSimilarity(t *testing.T) {
	cfg := configFor(StrategyMMR)
	cfg.DiversityLambda = 1
	mmr := newSelector(t, cfg)
	similarity := newSelector(t, configFor(StrategySimilarity))

	for budget := 1; budget <= len(testCandidates); budget++ {
		got := mmr.Select(testQuery, testCandidates, budget)
		want := similarity.Select(testQuery, testCandidates, budget)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("budget %d: mmr %v != similarity %v", budget, got, want)
		}
	}
}

func TestMMRPenalizesRedundantCandidates(t *testing.T) {
	cfg := configFor(StrategyMMR)
	cfg.DiversityLambda = 0.3
	selector := newSelector(t, cfg)

	// Index 1 nearly duplicates index 0; index 2 is less relevant but far
	// from everything already selected.
	candidates := [][]float32{
		{0.9, 0.1, 0},
		{0.89, 0.12, 0},
		{0.2, 0.9, 0},
	}
	got := selector.Select(testQuery, candidates, 2)
	if !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("expected diverse pick [0 2], got %v", got)
	}
}

func TestUncertaintyIsDeterministicForASeed(t *testing.T) {
	cfg := configFor(StrategyUncertainty)
	first := newSelector(t, cfg, WithSeed(42))
	second := newSelector(t, cfg, WithSeed(42))

	a := first.Select(testQuery, testCandidates, 2)
	b := second.Select(testQuery, testCandidates, 2)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced %v and %v", a, b)
	}
}

func TestUncertaintySamplesWithoutReplacement(t *testing.T) {
	selector := newSelector(t, configFor(StrategyUncertainty), WithSeed(3))

	for trial := 0; trial < 50; trial++ {
		got := selector.Select(testQuery, testCandidates, 3)
		seen := map[int]bool{}
		for _, idx := range got {
			if seen[idx] {
				t.Fatalf("trial %d drew %d twice: %v", trial, idx, got)
			}
			seen[idx] = true
		}
		if len(got) != 3 {
			t.Fatalf("trial %d returned %d indices", trial, len(got))
		}
	}
}

func TestUncertaintyConcurrentSelectionsAreWellFormed(t *testing.T) {
	selector := newSelector(t, configFor(StrategyUncertainty), WithSeed(11))

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for trial := 0; trial < 100; trial++ {
				got := selector.Select(testQuery, testCandidates, 2)
				if len(got) != 2 {
					errs <- fmt.Sprintf("got %d indices", len(got))
					return
				}
				seen := map[int]bool{}
				for _, idx := range got {
					if idx < 0 || idx >= len(testCandidates) || seen[idx] {
						errs <- fmt.Sprintf("bad draw %v", got)
						return
					}
					seen[idx] = true
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}

func TestAdaptiveZeroPercentileKeepsFullRanking(t *testing.T) {
	cfg := configFor(StrategyAdaptive)
	cfg.AdaptivePercentile = 0
	selector := newSelector(t, cfg)

	got := selector.Select(testQuery, testCandidates, 2)
	if !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("expected [0 2] with nothing filtered, got %v", got)
	}
	if got := selector.Select(testQuery, testCandidates, 3); len(got) != 3 {
		t.Fatalf("expected all 3 candidates, got %v", got)
	}
}

func TestAdaptiveHighPercentileKeepsTopOfDistribution(t *testing.T) {
	cfg := configFor(StrategyAdaptive)
	cfg.AdaptivePercentile = 0.9
	selector := newSelector(t, cfg)

	got := selector.Select(testQuery, testCandidates, 3)
	if !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("expected only the top candidate, got %v", got)
	}
}

func TestEnsembleWithIdenticalVotersMatchesSingleStrategy(t *testing.T) {
	// With lambda=1 in the default sub-strategy config MMR and similarity
	// agree, so equal-weight voting must reproduce the shared ranking
	// without duplicate-vote inflation.
	ensemble := &ensembleSelector{members: []ensembleMember{
		{selector: &similaritySelector{}, weight: 0.5},
		{selector: &mmrSelector{lambda: 1}, weight: 0.5},
	}}
	similarity := newSelector(t, configFor(StrategySimilarity))

	got := ensemble.Select(testQuery, testCandidates, 2)
	want := similarity.Select(testQuery, testCandidates, 2)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ensemble %v != similarity %v", got, want)
	}
}

func TestEnsembleDefaultMembersAreSimilarityAndMMR(t *testing.T) {
	selector := newSelector(t, configFor(StrategyEnsemble))
	ensemble, ok := selector.(*ensembleSelector)
	if !ok {
		t.Fatalf("expected ensemble selector, got %T", selector)
	}
	if len(ensemble.members) != 2 {
		t.Fatalf("expected 2 default members, got %d", len(ensemble.members))
	}
	for _, member := range ensemble.members {
		if member.weight != 0.5 {
			t.Fatalf("expected 0.5 weight, got %v", member.weight)
		}
	}
}

func TestConfigValidationRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Strategy = "cosine" }},
		{"lambda below zero", func(c *Config) { c.DiversityLambda = -0.01 }},
		{"lambda above one", func(c *Config) { c.DiversityLambda = 1.01 }},
		{"zero temperature", func(c *Config) { c.Temperature = 0 }},
		{"negative temperature", func(c *Config) { c.Temperature = -1 }},
		{"percentile above one", func(c *Config) { c.AdaptivePercentile = 1.5 }},
		{"short ensemble weights", func(c *Config) { c.EnsembleWeights = []float64{0.5, 0.5} }},
		{"negative ensemble weight", func(c *Config) { c.EnsembleWeights = []float64{0.5, 0.6, -0.1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if _, err := New(cfg); !domain.IsKind(err, domain.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestPercentileInterpolatesLinearly(t *testing.T) {
	scores := []float64{1, 2, 3, 4}
	if got := percentile(scores, 0.5); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
	if got := percentile(scores, 0); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := percentile(scores, 1); got != 4 {
		t.Fatalf("expected 4, got %v", got)
	}
}
