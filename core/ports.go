package core

// Strategy is one player. Implementations are immutable; everything that
// changes during a match lives in the ModeState passed in and returned.
type Strategy interface {
	Name() string
	Decide(rc RoundContext, st ModeState) (Action, ModeState)
}

type FitnessEvaluator interface {
	Score(metrics map[string]float64, complexity int) float64
	Passed(score float64, threshold float64) bool
}

type Critic interface {
	Accept(metrics map[string]float64) (bool, string)
}
