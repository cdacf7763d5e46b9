package selection

// mmrSelector implements Maximal Marginal Relevance: greedy selection
// trading relevance to the query against redundancy with what is already
// selected. lambda=1 degenerates to the similarity ranking, lambda=0 to
// pure redundancy avoidance.
type mmrSelector struct {
	lambda float64
}

func (s *mmrSelector) Select(query []float32, candidates [][]float32, budget int) []int {
	if len(candidates) == 0 || budget <= 0 {
		return []int{}
	}
	budget = cappedBudget(budget, len(candidates))
	relevance := dotScores(query, candidates)

	selected := make([]int, 0, budget)
	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < budget && len(remaining) > 0 {
		bestPos := 0
		bestScore := s.score(relevance, candidates, selected, remaining[0])
		for pos := 1; pos < len(remaining); pos++ {
			score := s.score(relevance, candidates, selected, remaining[pos])
			if score > bestScore {
				bestPos, bestScore = pos, score
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

func (s *mmrSelector) score(relevance []float64, candidates [][]float32, selected []int, idx int) float64 {
	if len(selected) == 0 {
		// First pick is pure relevance regardless of lambda.
		return relevance[idx]
	}
	redundancy := dot(candidates[idx], candidates[selected[0]])
	for _, sel := range selected[1:] {
		if sim := dot(candidates[idx], candidates[sel]); sim > redundancy {
			redundancy = sim
		}
	}
	return s.lambda*relevance[idx] - (1-s.lambda)*redundancy
}
