// Package policy is the decision engine every strategy variant is built
// from: windowed history metrics, a mode state machine, prioritised triggers
// and a probabilistic action selector, composed by Engine.
package policy

import (
	"github.com/snow-ghost/dilemma/core"
)

// Decision is one round's outcome with the reasoning that produced it.
type Decision struct {
	Action core.Action
	// Base is the intended action before the selector's randomisation.
	Base     core.Action
	State    core.ModeState
	Trigger  string
	Override bool
}

// Engine is a configured policy. It is immutable and safe to share between
// concurrent matches; per-match state travels in core.ModeState.
type Engine struct {
	cfg      Config
	rule     Rule
	modes    ModeController
	triggers TriggerEvaluator
}

type Option func(*Engine)

// WithRule installs the Normal-mode rule, overriding rule.kind.
func WithRule(r Rule) Option {
	return func(e *Engine) { e.rule = r }
}

// New validates cfg and builds an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		modes:    NewModeController(cfg.Rearm),
		triggers: NewTriggerEvaluator(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rule == nil {
		r, err := NewRule(cfg.Rule, cfg.EmptyWindowRate, cfg.TieBreak)
		if err != nil {
			return nil, err
		}
		e.rule = r
	}
	return e, nil
}

// MustNew is New for configs known to be valid, such as the built-in catalog.
func MustNew(cfg Config, opts ...Option) *Engine {
	e, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Name() string   { return e.cfg.Name }
func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) Rule() Rule     { return e.rule }

// Decide implements core.Strategy.
func (e *Engine) Decide(rc core.RoundContext, st core.ModeState) (core.Action, core.ModeState) {
	d := e.Step(rc, st)
	return d.Action, d.State
}

// Step runs one decision and reports how it was reached.
func (e *Engine) Step(rc core.RoundContext, st core.ModeState) Decision {
	own := rc.OwnHistory()
	if len(own) == 0 {
		return Decision{Action: e.cfg.Opening, Base: e.cfg.Opening, State: core.NewModeState(), Trigger: "opening"}
	}

	v := View{
		Own:      own,
		Opponent: Interpret(rc.OpponentHistory(), rc.Noise(), e.cfg.Noise.ForgiveIsolated),
		Scores:   rc.Scores(),
	}
	idx := v.Round()
	prev := st.Current()

	st = e.modes.Advance(st)
	st.ConsecutiveDefections = StreakLength(v.Opponent, core.Defect)

	total, known := rc.TotalRounds()
	if st.Mode == core.ModeEndgame || InEndgame(idx, total, known, e.cfg.Endgame.Window) {
		st = countTransition(e.modes.EnterEndgame(st), prev)
		base := e.cfg.Endgame.Action
		return Decision{
			Action:  Select(base, e.cfg.Endgame.Probability, rc.Rand()),
			Base:    base,
			State:   st,
			Trigger: "endgame",
		}
	}

	d := Decision{}
	req := e.triggers.Evaluate(e.triggers.Measure(v))
	switch req.Kind {
	case RequestMode:
		st = e.modes.Enter(st, req.Mode, req.Duration)
	case RequestOverride:
		d.Base = req.Action
		d.Override = true
	}
	if req.Kind != RequestNone {
		st.LastTrigger = idx
		st.LastReason = req.Trigger
		d.Trigger = req.Trigger
	}
	st = countTransition(st, prev)
	if !d.Override {
		d.Base = e.base(st.Mode, v)
	}
	d.Action = Select(d.Base, e.cfg.Probability, rc.Rand())
	d.State = st
	return d
}

// countTransition counts a mode change seen across one decision. A timer
// that lapses and is re-armed in the same round is no change.
func countTransition(st core.ModeState, prev core.Mode) core.ModeState {
	if st.Mode != prev {
		st.Transitions++
	}
	return st
}

// base maps the active mode to the intended action.
func (e *Engine) base(m core.Mode, v View) core.Action {
	switch m {
	case core.ModePunish, core.ModeLockDefect:
		return core.Defect
	case core.ModeLockCooperate:
		return core.Cooperate
	case core.ModeTitForTat:
		if last, ok := v.LastOpponent(); ok {
			return last
		}
		return e.cfg.Opening
	case core.ModeEndgame:
		return e.cfg.Endgame.Action
	}
	return e.rule.Next(v)
}

var _ core.Strategy = (*Engine)(nil)
