package selection

import (
	"math"
	"sort"
)

// adaptiveSelector derives its score threshold from the score distribution
// itself: candidates at or above the configured percentile survive, the
// rest are dropped. An empty survivor set falls back to the single best
// candidate.
type adaptiveSelector struct {
	percentile float64
}

func (s *adaptiveSelector) Select(query []float32, candidates [][]float32, budget int) []int {
	if len(candidates) == 0 || budget <= 0 {
		return []int{}
	}
	budget = cappedBudget(budget, len(candidates))
	scores := dotScores(query, candidates)
	threshold := percentile(scores, s.percentile)

	indices := make([]int, 0, len(candidates))
	for i, score := range scores {
		if score >= threshold {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		best := 0
		for i, score := range scores {
			if score > scores[best] {
				best = i
			}
		}
		return []int{best}
	}

	rankDescending(indices, func(i int) float64 { return scores[i] })
	if budget > len(indices) {
		budget = len(indices)
	}
	return indices[:budget]
}

// percentile interpolates linearly between closest ranks, matching the
// conventional (numpy-style) definition.
func percentile(scores []float64, p float64) float64 {
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
