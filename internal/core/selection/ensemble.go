package selection

import "math/rand/v2"

var weightedEnsembleStrategies = []Strategy{StrategySimilarity, StrategyMMR, StrategyUncertainty}

type ensembleMember struct {
	selector Selector
	weight   float64
}

// ensembleSelector runs a fixed set of sub-strategies at twice the
// requested budget and accumulates inverse-rank weighted votes per
// candidate. Without explicit weights it runs similarity and MMR at
// 0.5/0.5; with weights it adds uncertainty sampling as a third voter.
type ensembleSelector struct {
	members []ensembleMember
}

func newEnsembleSelector(cfg Config, rng *rand.Rand) *ensembleSelector {
	// Sub-strategies run with their defaults, like standalone selectors.
	base := DefaultConfig()

	if cfg.EnsembleWeights == nil {
		return &ensembleSelector{members: []ensembleMember{
			{selector: &similaritySelector{}, weight: 0.5},
			{selector: &mmrSelector{lambda: base.DiversityLambda}, weight: 0.5},
		}}
	}

	members := make([]ensembleMember, 0, len(weightedEnsembleStrategies))
	for i, strategy := range weightedEnsembleStrategies {
		var selector Selector
		switch strategy {
		case StrategySimilarity:
			selector = &similaritySelector{}
		case StrategyMMR:
			selector = &mmrSelector{lambda: base.DiversityLambda}
		default:
			selector = &uncertaintySelector{temperature: base.Temperature, rng: rng}
		}
		members = append(members, ensembleMember{selector: selector, weight: cfg.EnsembleWeights[i]})
	}
	return &ensembleSelector{members: members}
}

func (s *ensembleSelector) Select(query []float32, candidates [][]float32, budget int) []int {
	if len(candidates) == 0 || budget <= 0 {
		return []int{}
	}
	budget = cappedBudget(budget, len(candidates))

	votes := make([]float64, len(candidates))
	for _, member := range s.members {
		picks := member.selector.Select(query, candidates, budget*2)
		for rank, idx := range picks {
			votes[idx] += member.weight * float64(len(picks)-rank)
		}
	}

	indices := make([]int, len(candidates))
	for i := range indices {
		indices[i] = i
	}
	rankDescending(indices, func(i int) float64 { return votes[i] })
	return indices[:budget]
}
