package selection

import (
	"math"
	"math/rand/v2"
	"sync"
)

// uncertaintySelector samples candidates from a temperature-scaled softmax
// over similarity scores, without replacement. After each draw the drawn
// candidate's mass is removed and the remainder renormalized.
//
// The random source is injected at construction and guarded by a mutex so
// concurrent selections draw from it one at a time.
type uncertaintySelector struct {
	temperature float64

	mu  sync.Mutex
	rng *rand.Rand
}

func (s *uncertaintySelector) Select(query []float32, candidates [][]float32, budget int) []int {
	if len(candidates) == 0 || budget <= 0 {
		return []int{}
	}
	budget = cappedBudget(budget, len(candidates))
	weights := softmax(dotScores(query, candidates), s.temperature)

	indices := make([]int, len(candidates))
	for i := range indices {
		indices[i] = i
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	selected := make([]int, 0, budget)
	for len(selected) < budget {
		r := s.rng.Float64() * total
		pos := len(indices) - 1
		acc := 0.0
		for i, idx := range indices {
			acc += weights[idx]
			if r < acc {
				pos = i
				break
			}
		}
		idx := indices[pos]
		selected = append(selected, idx)
		total -= weights[idx]
		indices = append(indices[:pos], indices[pos+1:]...)
	}
	return selected
}

// softmax shifts by the max score before exponentiation for numerical
// stability.
func softmax(scores []float64, temperature float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp((s - maxScore) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
