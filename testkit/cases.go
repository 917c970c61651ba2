package testkit

import (
	"fmt"
	"slices"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/rng"
)

// DefaultCases are the behavioural properties every strategy must keep.
func DefaultCases() []Case {
	return []Case{
		{Name: "opening", Check: checkOpening},
		{Name: "determinism", Check: checkDeterminism},
		{Name: "reset", Check: checkReset},
		{Name: "causal", Check: checkCausal},
		{Name: "endgame", Check: checkEndgame},
		{Name: "purity", Check: checkPurity},
		{Name: "no_mutation", Check: checkNoMutation},
		{Name: "state_valid", Check: checkStateValid},
	}
}

func checkOpening(h *harness) (bool, bool, string) {
	dirty := core.ModeState{Mode: core.ModeLockDefect, Remaining: 4, Transitions: 7, LastTrigger: 3}
	for _, seed := range h.seeds {
		for _, st := range []core.ModeState{core.NewModeState(), dirty} {
			d := h.engine.Step(core.Snapshot{Source: newCounter(seed)}, st)
			if d.Action != h.cfg.Opening {
				return false, false, fmt.Sprintf("opened with %s, want %s", d.Action, h.cfg.Opening)
			}
		}
	}
	return true, false, ""
}

func checkDeterminism(h *harness) (bool, bool, string) {
	for _, p := range h.probes {
		for _, seed := range h.seeds {
			a := h.play(p, seed, h.rounds, nil)
			b := h.play(p, seed, h.rounds, nil)
			if !slices.Equal(a.own, b.own) {
				return false, false, fmt.Sprintf("%s seed %d: runs diverged", p.Name, seed)
			}
		}
	}
	return true, false, ""
}

// checkReset plays a second game after a first one and expects the same
// result as a game on an engine that never played.
func checkReset(h *harness) (bool, bool, string) {
	for _, seed := range h.seeds {
		st := core.ModeState{Mode: core.ModePunish, Remaining: 3, Transitions: 2}
		d := h.engine.Step(core.Snapshot{Source: newCounter(seed)}, st)
		if d.State != core.NewModeState() {
			return false, false, fmt.Sprintf("round 0 kept state %+v", d.State)
		}
		first := h.play(h.probes[1], seed, h.rounds, nil)
		_ = h.play(h.probes[2], seed, h.rounds, nil)
		again := h.play(h.probes[1], seed, h.rounds, nil)
		if !slices.Equal(first.own, again.own) {
			return false, false, fmt.Sprintf("seed %d: earlier match leaked into the next", seed)
		}
	}
	return true, false, ""
}

// checkCausal feeds two opponents that agree up to round k and expects
// identical decisions through round k.
func checkCausal(h *harness) (bool, bool, string) {
	k := h.rounds / 2
	for _, p := range h.probes {
		alt := Probe{Name: p.Name + "'", Actions: slices.Clone(p.Actions)}
		for i := k; i < len(alt.Actions); i++ {
			alt.Actions[i] = alt.Actions[i].Flip()
		}
		for _, seed := range h.seeds {
			a := h.play(p, seed, h.rounds, nil)
			b := h.play(alt, seed, h.rounds, nil)
			if !slices.Equal(a.own[:k+1], b.own[:k+1]) {
				return false, false, fmt.Sprintf("%s seed %d: decision changed before the inputs did", p.Name, seed)
			}
		}
	}
	return true, false, ""
}

func checkEndgame(h *harness) (bool, bool, string) {
	window := h.cfg.Endgame.Window
	for _, p := range h.probes {
		seed := h.seeds[0]

		hidden := h.play(p, seed, 0, nil)
		for i, d := range hidden.decisions {
			if d.State.Current() == core.ModeEndgame {
				return false, false, fmt.Sprintf("%s: endgame at round %d with unknown length", p.Name, i)
			}
		}

		known := h.play(p, seed, h.rounds, nil)
		entered := false
		for i, d := range known.decisions {
			in := d.State.Current() == core.ModeEndgame
			if entered && !in {
				return false, false, fmt.Sprintf("%s: left endgame at round %d", p.Name, i)
			}
			if i > 0 && window > 0 && i >= h.rounds-window && !in {
				return false, false, fmt.Sprintf("%s: round %d not in endgame", p.Name, i)
			}
			if (window <= 0 || i < h.rounds-window) && in {
				return false, false, fmt.Sprintf("%s: early endgame at round %d", p.Name, i)
			}
			entered = entered || in
		}
	}
	return true, false, ""
}

// checkPurity expects a fully deterministic config to never draw.
func checkPurity(h *harness) (bool, bool, string) {
	if h.cfg.Probability < 1 || (h.cfg.Endgame.Window > 0 && h.cfg.Endgame.Probability < 1) {
		return false, true, "randomised"
	}
	for _, p := range h.probes {
		c := newCounter(h.seeds[0])
		g := h.play(p, h.seeds[0], h.rounds, c)
		if c.draws > 0 {
			return false, false, fmt.Sprintf("%s: %d draws", p.Name, c.draws)
		}
		for i, d := range g.decisions {
			if d.Action != d.Base {
				return false, false, fmt.Sprintf("%s: round %d played %s over intended %s", p.Name, i, d.Action, d.Base)
			}
		}
	}
	return true, false, ""
}

func checkNoMutation(h *harness) (bool, bool, string) {
	for _, p := range h.probes {
		if h.play(p, h.seeds[0], h.rounds, nil).mutated {
			return false, false, p.Name + ": history mutated"
		}
	}
	return true, false, ""
}

func checkStateValid(h *harness) (bool, bool, string) {
	for _, p := range h.probes {
		g := h.play(p, h.seeds[0], h.rounds, nil)
		prev := 0
		for i, d := range g.decisions {
			st := d.State
			m := st.Current()
			switch {
			case !m.Valid():
				return false, false, fmt.Sprintf("%s: round %d unknown mode %q", p.Name, i, m)
			case st.Remaining < 0:
				return false, false, fmt.Sprintf("%s: round %d negative timer", p.Name, i)
			case !m.Timed() && st.Remaining != 0:
				return false, false, fmt.Sprintf("%s: round %d timer %d in %s", p.Name, i, st.Remaining, m)
			case m.Timed() && st.Remaining == 0:
				return false, false, fmt.Sprintf("%s: round %d expired timer in %s", p.Name, i, m)
			case st.Transitions < prev:
				return false, false, fmt.Sprintf("%s: round %d transitions went backwards", p.Name, i)
			}
			prev = st.Transitions
		}
	}
	return true, false, ""
}

// counter is a Rand that counts how often it is consulted.
type counter struct {
	src   core.Rand
	draws int
}

func newCounter(seed uint64) *counter {
	return &counter{src: rng.New(seed)}
}

func (c *counter) Float64() float64 {
	c.draws++
	return c.src.Float64()
}

func (c *counter) RandInt(lo, hi int) int {
	c.draws++
	return c.src.RandInt(lo, hi)
}
