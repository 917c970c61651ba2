package policy

import "github.com/snow-ghost/dilemma/core"

// LastN returns the trailing n actions of h, or all of h when it is shorter.
// The result aliases h and must not be modified.
func LastN(h []core.Action, n int) []core.Action {
	if n <= 0 {
		return h[:0]
	}
	if n >= len(h) {
		return h
	}
	return h[len(h)-n:]
}

// Count returns how many entries of actions equal a.
func Count(actions []core.Action, a core.Action) int {
	n := 0
	for _, x := range actions {
		if x == a {
			n++
		}
	}
	return n
}

// View is the read-only window over one match a policy decides from. The
// opponent history is the interpreted one (see Interpret), not necessarily
// the raw observation.
type View struct {
	Own      []core.Action
	Opponent []core.Action
	Scores   core.ScoreState
}

// IsFirstRound is true iff no round has been played yet.
func (v View) IsFirstRound() bool { return len(v.Own) == 0 }

// Round is the zero-based index of the round being decided.
func (v View) Round() int { return len(v.Own) }

func (v View) OwnLast(n int) []core.Action      { return LastN(v.Own, n) }
func (v View) OpponentLast(n int) []core.Action { return LastN(v.Opponent, n) }

// LastOpponent returns the opponent's previous action; ok is false before round 1.
func (v View) LastOpponent() (a core.Action, ok bool) {
	if len(v.Opponent) == 0 {
		return core.Cooperate, false
	}
	return v.Opponent[len(v.Opponent)-1], true
}

// LastOwn returns this player's previous action; ok is false before round 1.
func (v View) LastOwn() (a core.Action, ok bool) {
	if len(v.Own) == 0 {
		return core.Cooperate, false
	}
	return v.Own[len(v.Own)-1], true
}
