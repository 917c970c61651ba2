package policy

import (
	"fmt"

	"github.com/snow-ghost/dilemma/core"
)

// RequestKind is what a fired trigger asks for.
type RequestKind int

const (
	RequestNone RequestKind = iota
	// RequestMode enters (or re-arms) a timed mode.
	RequestMode
	// RequestOverride replaces this round's action and leaves the mode alone.
	RequestOverride
)

// Request is the outcome of one trigger evaluation.
type Request struct {
	Kind     RequestKind
	Trigger  string
	Mode     core.Mode
	Duration int
	Action   core.Action
}

// Signals are the window metrics triggers look at in one round.
type Signals struct {
	Round      int
	Gap        float64
	Streak     int
	Mutual     bool
	Alternates bool
	Rate       float64
}

// TriggerEvaluator checks the configured triggers in fixed priority order:
// score gap, streak, periodic, cooperation rate. The first that fires wins;
// the rest are not looked at.
type TriggerEvaluator struct {
	cfg Config
}

func NewTriggerEvaluator(cfg Config) TriggerEvaluator {
	return TriggerEvaluator{cfg: cfg}
}

// Measure computes the signals the enabled triggers need.
func (e TriggerEvaluator) Measure(v View) Signals {
	s := Signals{Round: v.Round(), Gap: v.Scores.Gap()}
	st := e.cfg.Streak
	if st.Length > 0 {
		if st.Mutual {
			s.Mutual = MutualStreak(v.OwnLast(st.Length), v.OpponentLast(st.Length), st.Action, st.Length)
		} else {
			s.Streak = StreakLength(v.Opponent, st.Action)
		}
	}
	if st.Alternation > 0 {
		s.Alternates = DetectAlternation(v.OpponentLast(st.Alternation), st.Alternation)
	}
	if e.cfg.Rate.Window > 0 {
		s.Rate = CooperationRate(v.Opponent, e.cfg.Rate.Window, e.cfg.EmptyWindowRate)
	}
	return s
}

func (e TriggerEvaluator) Evaluate(s Signals) Request {
	if r := e.scoreGap(s); r.Kind != RequestNone {
		return r
	}
	if r := e.streak(s); r.Kind != RequestNone {
		return r
	}
	if p := e.cfg.Periodic; p.Period > 0 && s.Round > 0 && s.Round%p.Period == 0 {
		return Request{Kind: RequestOverride, Trigger: fmt.Sprintf("periodic/%d", p.Period), Action: p.Action}
	}
	return e.rate(s)
}

func (e TriggerEvaluator) scoreGap(s Signals) Request {
	g := e.cfg.ScoreGap
	if g.Threshold <= 0 {
		return Request{}
	}
	switch {
	case s.Gap <= -g.Threshold && g.Behind != "":
		return Request{Kind: RequestMode, Trigger: "score_gap/behind", Mode: g.Behind, Duration: g.Duration}
	case s.Gap >= g.Threshold && g.Ahead != "":
		return Request{Kind: RequestMode, Trigger: "score_gap/ahead", Mode: g.Ahead, Duration: g.Duration}
	}
	return Request{}
}

func (e TriggerEvaluator) streak(s Signals) Request {
	st := e.cfg.Streak
	var name string
	switch {
	case st.Length > 0 && st.Mutual && s.Mutual:
		name = "streak/mutual"
	case st.Length > 0 && !st.Mutual && s.Streak >= st.Length:
		name = "streak/" + st.Action.String()
	case st.Alternation > 0 && s.Alternates:
		name = "streak/alternation"
	default:
		return Request{}
	}
	if st.Override != nil {
		return Request{Kind: RequestOverride, Trigger: name, Action: *st.Override}
	}
	return Request{Kind: RequestMode, Trigger: name, Mode: st.Mode, Duration: st.Duration}
}

func (e TriggerEvaluator) rate(s Signals) Request {
	r := e.cfg.Rate
	if r.Window <= 0 {
		return Request{}
	}
	tie := e.cfg.TieBreak
	if r.LowMode != "" && (s.Rate < r.Low || (s.Rate == r.Low && tie == TieDefect)) {
		return Request{Kind: RequestMode, Trigger: "rate/low", Mode: r.LowMode, Duration: r.Duration}
	}
	if r.HighMode != "" && (s.Rate > r.High || (s.Rate == r.High && tie == TieCooperate)) {
		return Request{Kind: RequestMode, Trigger: "rate/high", Mode: r.HighMode, Duration: r.Duration}
	}
	return Request{}
}
