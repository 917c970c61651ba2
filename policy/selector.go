package policy

import "github.com/snow-ghost/dilemma/core"

// Select returns base with probability p and its complement otherwise.
// p >= 1 and p <= 0 are decided without drawing, so r is untouched and may
// be nil. A nil r in the probabilistic range yields base.
func Select(base core.Action, p float64, r core.Rand) core.Action {
	switch {
	case p >= 1:
		return base
	case p <= 0:
		return base.Flip()
	case r == nil:
		return base
	}
	if r.Float64() < p {
		return base
	}
	return base.Flip()
}
