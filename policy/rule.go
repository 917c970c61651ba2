package policy

import (
	"fmt"

	"github.com/snow-ghost/dilemma/core"
)

// Rule picks the base action in Normal mode.
type Rule interface {
	Name() string
	Next(v View) core.Action
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc struct {
	Label string
	Fn    func(v View) core.Action
}

func (r RuleFunc) Name() string            { return r.Label }
func (r RuleFunc) Next(v View) core.Action { return r.Fn(v) }

// NewRule builds the built-in rule described by rc. External rules are
// supplied by the caller through WithRule.
func NewRule(rc RuleConfig, emptyRate float64, tie TieBreak) (Rule, error) {
	switch rc.Kind {
	case RuleMirror:
		return mirror{tolerance: rc.Tolerance}, nil
	case RuleMajority:
		return majority{window: rc.Window, k: rc.K, empty: emptyRate}, nil
	case RuleThreshold:
		return threshold{window: rc.Window, t: rc.Threshold, empty: emptyRate, tie: tie}, nil
	case RuleWinStayLoseShift:
		return winStay{}, nil
	case RuleAlwaysCooperate:
		return constant{a: core.Cooperate}, nil
	case RuleAlwaysDefect:
		return constant{a: core.Defect}, nil
	case RuleExternal:
		return nil, fmt.Errorf("%w: external rule %q must be supplied", ErrInvalidConfig, rc.Module)
	}
	return nil, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidConfig, rc.Kind)
}

// mirror copies the opponent's last action, letting tolerance consecutive
// defections pass first (tolerance 1 is tit-for-two-tats).
type mirror struct{ tolerance int }

func (mirror) Name() string { return string(RuleMirror) }

func (m mirror) Next(v View) core.Action {
	if StreakLength(v.Opponent, core.Defect) > m.tolerance {
		return core.Defect
	}
	return core.Cooperate
}

// majority cooperates when the opponent cooperated in at least k of the
// last window rounds, scaled down while fewer rounds exist.
type majority struct {
	window, k int
	empty     float64
}

func (majority) Name() string { return string(RuleMajority) }

func (m majority) Next(v View) core.Action {
	rate := CooperationRate(v.Opponent, m.window, m.empty)
	if rate >= float64(m.k)/float64(m.window) {
		return core.Cooperate
	}
	return core.Defect
}

type threshold struct {
	window int
	t      float64
	empty  float64
	tie    TieBreak
}

func (threshold) Name() string { return string(RuleThreshold) }

func (r threshold) Next(v View) core.Action {
	rate := CooperationRate(v.Opponent, r.window, r.empty)
	switch {
	case rate > r.t:
		return core.Cooperate
	case rate < r.t:
		return core.Defect
	case r.tie == TieDefect:
		return core.Defect
	}
	return core.Cooperate
}

// winStay repeats its last move after the opponent cooperated and switches
// after a defection, which reduces to cooperating iff both moves matched.
type winStay struct{}

func (winStay) Name() string { return string(RuleWinStayLoseShift) }

func (winStay) Next(v View) core.Action {
	own, ok := v.LastOwn()
	opp, _ := v.LastOpponent()
	if !ok || own == opp {
		return core.Cooperate
	}
	return core.Defect
}

type constant struct{ a core.Action }

func (c constant) Name() string {
	if c.a == core.Defect {
		return string(RuleAlwaysDefect)
	}
	return string(RuleAlwaysCooperate)
}

func (c constant) Next(View) core.Action { return c.a }
