// Package match is a reference game engine: it plays two strategies against
// each other for a fixed number of noisy rounds and scores them.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/rng"
)

// Payoff is the per-round score matrix from the row player's view.
type Payoff struct {
	Reward     float64 `yaml:"reward" json:"reward"`         // C vs C
	Sucker     float64 `yaml:"sucker" json:"sucker"`         // C vs D
	Temptation float64 `yaml:"temptation" json:"temptation"` // D vs C
	Punishment float64 `yaml:"punishment" json:"punishment"` // D vs D
}

// DefaultPayoff is the conventional 3/0/5/1 matrix.
func DefaultPayoff() Payoff {
	return Payoff{Reward: 3, Sucker: 0, Temptation: 5, Punishment: 1}
}

// Score returns what a player earns playing own against opponent.
func (p Payoff) Score(own, opponent core.Action) float64 {
	switch {
	case own == core.Cooperate && opponent == core.Cooperate:
		return p.Reward
	case own == core.Cooperate:
		return p.Sucker
	case opponent == core.Cooperate:
		return p.Temptation
	}
	return p.Punishment
}

// Validate checks the dilemma ordering T > R > P > S.
func (p Payoff) Validate() error {
	if !(p.Temptation > p.Reward && p.Reward > p.Punishment && p.Punishment > p.Sucker) {
		return fmt.Errorf("payoff must satisfy T > R > P > S, got T=%v R=%v P=%v S=%v",
			p.Temptation, p.Reward, p.Punishment, p.Sucker)
	}
	return nil
}

type Config struct {
	Rounds int     `yaml:"rounds" json:"rounds"`
	Noise  float64 `yaml:"noise" json:"noise"`
	Seed   uint64  `yaml:"seed" json:"seed"`
	Payoff Payoff  `yaml:"payoff" json:"payoff"`
	// HideLength makes TotalRounds report an unknown match length.
	HideLength bool `yaml:"hide_length" json:"hide_length"`
}

func DefaultConfig() Config {
	return Config{Rounds: 200, Payoff: DefaultPayoff()}
}

func (c Config) Validate() error {
	if c.Rounds <= 0 {
		return errors.New("rounds must be positive")
	}
	if c.Noise < 0 || c.Noise > 1 {
		return fmt.Errorf("noise must be within [0,1], got %v", c.Noise)
	}
	return c.Payoff.Validate()
}

// Result is the full record of one match. Index 0 is player A.
type Result struct {
	ID              string               `json:"id"`
	A               string               `json:"a"`
	B               string               `json:"b"`
	Seed            uint64               `json:"seed"`
	Rounds          int                  `json:"rounds"`
	Actions         [2][]core.Action     `json:"actions"`
	Scores          [2]float64           `json:"scores"`
	ModeRounds      [2]map[core.Mode]int `json:"mode_rounds"`
	Transitions     [2]int               `json:"transitions"`
	CooperationRate [2]float64           `json:"cooperation_rate"`
	Duration        time.Duration        `json:"duration"`
}

// Winner returns 0 or 1 for the higher scorer, -1 on a draw.
func (r Result) Winner() int {
	switch {
	case r.Scores[0] > r.Scores[1]:
		return 0
	case r.Scores[1] > r.Scores[0]:
		return 1
	}
	return -1
}

// view is the RoundContext one player sees.
type view struct {
	own, opp   *[]core.Action
	score      core.ScoreState
	total      int
	hideLength bool
	noise      float64
	r          core.Rand
}

func (v *view) OwnHistory() []core.Action      { return *v.own }
func (v *view) OpponentHistory() []core.Action { return *v.opp }
func (v *view) Scores() core.ScoreState        { return v.score }
func (v *view) Noise() float64                 { return v.noise }
func (v *view) Rand() core.Rand                { return v.r }

func (v *view) TotalRounds() (int, bool) {
	if v.hideLength {
		return 0, false
	}
	return v.total, true
}

// Player streams derived from the match seed.
const (
	streamA uint64 = iota + 1
	streamB
	streamNoise
)

// Play runs one match. Both players start from a fresh ModeState, draw from
// their own random streams, and see only observed (post-noise) actions.
// Cancellation is checked between rounds.
func Play(ctx context.Context, a, b core.Strategy, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid match config: %w", err)
	}
	start := time.Now()
	base := rng.New(cfg.Seed)
	noise := base.Derive(streamNoise)

	res := Result{
		ID:     uuid.NewString(),
		A:      a.Name(),
		B:      b.Name(),
		Seed:   cfg.Seed,
		Rounds: cfg.Rounds,
		Actions: [2][]core.Action{
			make([]core.Action, 0, cfg.Rounds),
			make([]core.Action, 0, cfg.Rounds),
		},
		ModeRounds: [2]map[core.Mode]int{{}, {}},
	}
	players := [2]core.Strategy{a, b}
	states := [2]core.ModeState{core.NewModeState(), core.NewModeState()}
	views := [2]*view{
		{own: &res.Actions[0], opp: &res.Actions[1], total: cfg.Rounds, hideLength: cfg.HideLength, noise: cfg.Noise, r: base.Derive(streamA)},
		{own: &res.Actions[1], opp: &res.Actions[0], total: cfg.Rounds, hideLength: cfg.HideLength, noise: cfg.Noise, r: base.Derive(streamB)},
	}

	for round := 0; round < cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("match %s vs %s interrupted at round %d: %w", res.A, res.B, round, err)
		}
		var intended [2]core.Action
		for i := range players {
			views[i].score = core.ScoreState{Own: res.Scores[i], Opponent: res.Scores[1-i]}
			intended[i], states[i] = players[i].Decide(views[i], states[i])
			res.ModeRounds[i][states[i].Current()]++
		}
		var observed [2]core.Action
		for i := range observed {
			observed[i] = intended[i]
			if cfg.Noise > 0 && noise.Float64() < cfg.Noise {
				observed[i] = observed[i].Flip()
			}
		}
		res.Scores[0] += cfg.Payoff.Score(observed[0], observed[1])
		res.Scores[1] += cfg.Payoff.Score(observed[1], observed[0])
		res.Actions[0] = append(res.Actions[0], observed[0])
		res.Actions[1] = append(res.Actions[1], observed[1])
	}

	for i := range players {
		res.Transitions[i] = states[i].Transitions
		res.CooperationRate[i] = float64(policy.Count(res.Actions[i], core.Cooperate)) / float64(cfg.Rounds)
	}
	res.Duration = time.Since(start)
	return res, nil
}
