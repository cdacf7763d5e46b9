package selection

import (
	"fmt"

	"github.com/mpetrov/refragd/internal/core/domain"
)

type Strategy string

const (
	StrategySimilarity  Strategy = "similarity"
	StrategyMMR         Strategy = "mmr"
	StrategyUncertainty Strategy = "uncertainty"
	StrategyAdaptive    Strategy = "adaptive"
	StrategyEnsemble    Strategy = "ensemble"
)

// Config parameterizes a selector. It is validated once at construction;
// out-of-range values fail, they are never clamped.
type Config struct {
	Strategy Strategy

	// DiversityLambda balances relevance against redundancy for MMR.
	// 1 is pure relevance, 0 pure redundancy avoidance.
	DiversityLambda float64

	// Temperature scales the softmax for uncertainty sampling.
	Temperature float64

	// EnsembleWeights, when set, runs similarity+MMR+uncertainty with the
	// given weights. Unset runs similarity+MMR at 0.5/0.5.
	EnsembleWeights []float64

	// AdaptivePercentile is the score-distribution percentile used as the
	// adaptive threshold.
	AdaptivePercentile float64

	// MinScore, when set, drops candidates scoring below it before
	// similarity ranking.
	MinScore *float64
}

func DefaultConfig() Config {
	return Config{
		Strategy:           StrategySimilarity,
		DiversityLambda:    0.5,
		Temperature:        1.0,
		AdaptivePercentile: 0.75,
	}
}

func (c Config) Validate() error {
	switch c.Strategy {
	case StrategySimilarity, StrategyMMR, StrategyUncertainty, StrategyAdaptive, StrategyEnsemble:
	default:
		return domain.WrapError(domain.ErrInvalidConfig, "selection config", fmt.Errorf("unknown strategy %q", c.Strategy))
	}
	if c.DiversityLambda < 0 || c.DiversityLambda > 1 {
		return domain.WrapError(domain.ErrInvalidConfig, "selection config", fmt.Errorf("diversity lambda %v outside [0,1]", c.DiversityLambda))
	}
	if c.Temperature <= 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "selection config", fmt.Errorf("temperature %v must be positive", c.Temperature))
	}
	if c.AdaptivePercentile < 0 || c.AdaptivePercentile > 1 {
		return domain.WrapError(domain.ErrInvalidConfig, "selection config", fmt.Errorf("adaptive percentile %v outside [0,1]", c.AdaptivePercentile))
	}
	if c.EnsembleWeights != nil {
		if len(c.EnsembleWeights) != len(weightedEnsembleStrategies) {
			return domain.WrapError(domain.ErrInvalidConfig, "selection config",
				fmt.Errorf("ensemble weights need %d entries, got %d", len(weightedEnsembleStrategies), len(c.EnsembleWeights)))
		}
		for _, w := range c.EnsembleWeights {
			if w < 0 {
				return domain.WrapError(domain.ErrInvalidConfig, "selection config", fmt.Errorf("ensemble weight %v is negative", w))
			}
		}
	}
	return nil
}
