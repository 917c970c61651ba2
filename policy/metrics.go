package policy

import "github.com/snow-ghost/dilemma/core"

// CooperationRate is the share of Cooperate in the trailing window of h.
// Shorter histories use what is available; an empty window yields empty.
// A non-positive window means the whole history.
func CooperationRate(h []core.Action, window int, empty float64) float64 {
	if window > 0 {
		h = LastN(h, window)
	}
	if len(h) == 0 {
		return empty
	}
	return float64(Count(h, core.Cooperate)) / float64(len(h))
}

// StreakLength counts the trailing consecutive entries of h equal to a.
func StreakLength(h []core.Action, a core.Action) int {
	n := 0
	for i := len(h) - 1; i >= 0 && h[i] == a; i-- {
		n++
	}
	return n
}

// MutualStreak is true iff both players played a in each of the last window
// rounds. It is false while fewer than window rounds have been played.
func MutualStreak(own, opponent []core.Action, a core.Action, window int) bool {
	if window <= 0 || len(own) < window || len(opponent) < window {
		return false
	}
	return StreakLength(own, a) >= window && StreakLength(opponent, a) >= window
}

// DetectAlternation is true iff no two consecutive entries in the trailing
// window of h are equal. Fewer than two available actions never alternate.
func DetectAlternation(h []core.Action, window int) bool {
	w := LastN(h, window)
	if len(w) < 2 {
		return false
	}
	for i := 1; i < len(w); i++ {
		if w[i] == w[i-1] {
			return false
		}
	}
	return true
}

// Interpret applies noise awareness to an observed opponent history. With
// forgiveIsolated set and noise > 0, a lone Defect surrounded by Cooperate
// (or a trailing one preceded by Cooperate) is read as Cooperate. The input is
// never modified.
func Interpret(h []core.Action, noise float64, forgiveIsolated bool) []core.Action {
	if !forgiveIsolated || noise <= 0 || len(h) < 2 {
		return h
	}
	var out []core.Action
	for i := 1; i < len(h); i++ {
		if h[i] != core.Defect || h[i-1] != core.Cooperate {
			continue
		}
		if i+1 < len(h) && h[i+1] != core.Cooperate {
			continue
		}
		if out == nil {
			out = make([]core.Action, len(h))
			copy(out, h)
		}
		out[i] = core.Cooperate
	}
	if out == nil {
		return h
	}
	return out
}
