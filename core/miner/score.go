package miner

import (
	"math"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// computeScore calculates a snippet's ranking score in [0,1]:
// - frequency: how often the fragment recurs, log-scaled
// - diversity: how many distinct contexts use it
// - context relevance: smoothed success rate of recorded usages
func computeScore(s *schema.CodeSnippet, cfg contract.MinerConfig) float64 {
	clamp01 := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}

	maxFrequency := cfg.FrequencySaturation
	if maxFrequency <= 1 {
		maxFrequency = contract.DefaultFrequencySaturation
	}
	maxContexts := max(cfg.ContextSaturation, 1)

	// --- Normalized Metrics [0,1] ---
	nFrequency := clamp01(math.Log1p(float64(s.Frequency)) / math.Log1p(maxFrequency))
	nDiversity := clamp01(float64(s.DistinctContexts()) / maxContexts)
	nRelevance := clamp01(contextRelevance(s.Usage))

	w := cfg.Weights
	if w.Frequency+w.Diversity+w.Context == 0 {
		w = contract.ScoreWeights{
			Frequency: contract.DefaultFrequencyWeight,
			Diversity: contract.DefaultDiversityWeight,
			Context:   contract.DefaultContextWeight,
		}
	}
	return clamp01(w.Frequency*nFrequency + w.Diversity*nDiversity + w.Context*nRelevance)
}

// contextRelevance is the Laplace-smoothed success rate, 0.5 without usage.
func contextRelevance(u schema.SnippetUsage) float64 {
	return float64(u.SuccessCount+1) / float64(u.Total()+2)
}
