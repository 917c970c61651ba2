package policy

import "github.com/snow-ghost/dilemma/core"

// ModeController owns the mode timers. It never decides to enter a mode by
// itself; that is the trigger evaluator's job. Transitions are counted by
// the engine, once per decision whose mode differs from the previous one.
type ModeController struct {
	rearm Rearm
}

func NewModeController(rearm Rearm) ModeController {
	return ModeController{rearm: rearm}
}

// Advance ticks the active timer once. A mode entered with duration d is in
// force for exactly d rounds, the entering round included.
func (c ModeController) Advance(st core.ModeState) core.ModeState {
	st.Mode = st.Current()
	if !st.Mode.Timed() {
		st.Remaining = 0
		return st
	}
	if st.Remaining > 0 {
		st.Remaining--
	}
	if st.Remaining == 0 {
		st.Mode = core.ModeNormal
	}
	return st
}

// Enter switches to a timed mode, or re-arms it when already active.
func (c ModeController) Enter(st core.ModeState, m core.Mode, duration int) core.ModeState {
	if st.Current() == core.ModeEndgame {
		return st
	}
	if st.Current() == m {
		if c.rearm == RearmExtend {
			st.Remaining += duration
		} else {
			st.Remaining = duration
		}
		return st
	}
	st.Mode = m
	st.Remaining = duration
	return st
}

// EnterEndgame is terminal for the rest of the match.
func (c ModeController) EnterEndgame(st core.ModeState) core.ModeState {
	st.Mode = core.ModeEndgame
	st.Remaining = 0
	return st
}

// InEndgame reports whether round idx lies in the last window rounds of a
// match of known length.
func InEndgame(idx, total int, known bool, window int) bool {
	return known && window > 0 && idx >= total-window
}
