package core

// WeightedFitness evaluates fitness as a weighted sum of tournament metrics
// minus a penalty per configured trigger.
type WeightedFitness struct {
	MetricWeights     map[string]float64
	ComplexityPenalty float64
}

func NewWeightedFitness(weights map[string]float64, complexityPenalty float64) *WeightedFitness {
	return &WeightedFitness{MetricWeights: weights, ComplexityPenalty: complexityPenalty}
}

func (w *WeightedFitness) Score(metrics map[string]float64, complexity int) float64 {
	score := 0.0
	for k, weight := range w.MetricWeights {
		if v, ok := metrics[k]; ok {
			score += weight * v
		}
	}
	score -= w.ComplexityPenalty * float64(complexity)
	return score
}

func (w *WeightedFitness) Passed(score float64, threshold float64) bool {
	return score >= threshold
}
