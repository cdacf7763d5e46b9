package selection

// similaritySelector ranks candidates by dot-product similarity to the
// query. With pre-normalized vectors this is cosine similarity.
type similaritySelector struct {
	minScore *float64
}

func (s *similaritySelector) Select(query []float32, candidates [][]float32, budget int) []int {
	if len(candidates) == 0 || budget <= 0 {
		return []int{}
	}
	budget = cappedBudget(budget, len(candidates))
	scores := dotScores(query, candidates)

	indices := make([]int, 0, len(candidates))
	for i := range candidates {
		if s.minScore != nil && scores[i] < *s.minScore {
			continue
		}
		indices = append(indices, i)
	}
	// All candidates below the floor is a valid empty outcome.
	if len(indices) == 0 {
		return []int{}
	}

	rankDescending(indices, func(i int) float64 { return scores[i] })
	if budget > len(indices) {
		budget = len(indices)
	}
	return indices[:budget]
}
