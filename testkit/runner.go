// Package testkit runs behavioural property checks against a candidate
// strategy before it is allowed into a tournament or the catalog.
package testkit

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/rng"
)

// Builder turns a config into a runnable engine. External rules need one
// that can load their module.
type Builder func(ctx context.Context, cfg policy.Config) (*policy.Engine, error)

// Probe is a scripted opponent.
type Probe struct {
	Name    string
	Actions []core.Action
}

// Case is one named property check.
type Case struct {
	Name  string
	Check func(h *harness) (ok, skipped bool, detail string)
}

// Runner executes Cases against engines built from configs.
type Runner struct {
	build  Builder
	rounds int
	seeds  []uint64
	noise  float64
	cases  []Case
}

type Option func(*Runner)

// WithBuilder replaces policy.New as the engine builder.
func WithBuilder(b Builder) Option { return func(r *Runner) { r.build = b } }

// WithRounds sets the length of every probe game.
func WithRounds(n int) Option { return func(r *Runner) { r.rounds = n } }

// WithSeeds sets the seeds each randomised check is repeated for.
func WithSeeds(seeds ...uint64) Option { return func(r *Runner) { r.seeds = seeds } }

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		build: func(_ context.Context, cfg policy.Config) (*policy.Engine, error) {
			return policy.New(cfg)
		},
		rounds: 60,
		seeds:  []uint64{1, 2, 3},
		noise:  0.05,
		cases:  DefaultCases(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run builds cfg and executes every case. The error is non-nil only when
// the engine cannot be built; failing checks are reported in metrics.
func (r *Runner) Run(ctx context.Context, cfg policy.Config) (map[string]float64, bool, error) {
	metrics := map[string]float64{
		"cases_total":       0,
		"cases_passed":      0,
		"cases_failed":      0,
		"cases_skipped":     0,
		"duration_ms_total": 0,
	}

	engine, err := r.build(ctx, cfg)
	if err != nil {
		return metrics, false, fmt.Errorf("build %s: %w", cfg.Name, err)
	}
	h := &harness{engine: engine, cfg: engine.Config(), rounds: r.rounds, seeds: r.seeds, noise: r.noise, probes: Probes(r.rounds)}

	allPassed := true
	for _, tc := range r.cases {
		if err := ctx.Err(); err != nil {
			return metrics, false, err
		}
		start := time.Now()
		ok, skipped, _ := tc.Check(h)
		metrics["duration_ms_total"] += float64(time.Since(start).Milliseconds())

		if skipped {
			metrics["cases_skipped"]++
			continue
		}
		metrics["cases_total"]++
		if ok {
			metrics["cases_passed"]++
			metrics["check_"+tc.Name] = 1
		} else {
			metrics["cases_failed"]++
			metrics["check_"+tc.Name] = 0
			allPassed = false
		}
	}
	return metrics, allPassed, nil
}

// Report runs cfg like Run but returns the failure details per case.
func (r *Runner) Report(ctx context.Context, cfg policy.Config) (map[string]string, error) {
	engine, err := r.build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Name, err)
	}
	h := &harness{engine: engine, cfg: engine.Config(), rounds: r.rounds, seeds: r.seeds, noise: r.noise, probes: Probes(r.rounds)}
	out := map[string]string{}
	for _, tc := range r.cases {
		ok, skipped, detail := tc.Check(h)
		if !ok && !skipped {
			out[tc.Name] = detail
		}
	}
	return out, nil
}

// Probes returns the scripted opponents the checks play against.
func Probes(n int) []Probe {
	cooperator := make([]core.Action, n)
	defector := make([]core.Action, n)
	alternator := make([]core.Action, n)
	grudge := make([]core.Action, n)
	random := make([]core.Action, n)
	src := rng.New(7)
	for i := 0; i < n; i++ {
		defector[i] = core.Defect
		if i%2 == 1 {
			alternator[i] = core.Defect
		}
		if i >= n/2 {
			grudge[i] = core.Defect
		}
		if src.Float64() < 0.5 {
			random[i] = core.Defect
		}
	}
	return []Probe{
		{"cooperator", cooperator},
		{"defector", defector},
		{"alternator", alternator},
		{"grudge", grudge},
		{"random", random},
	}
}

type harness struct {
	engine *policy.Engine
	cfg    policy.Config
	rounds int
	seeds  []uint64
	noise  float64
	probes []Probe
}

// game is one engine-vs-probe run with its decisions and inputs.
type game struct {
	decisions []policy.Decision
	own       []core.Action
	mutated   bool
}

// play drives the engine against a probe. Own actions are recorded as
// chosen; the probe's script is fed as the observed opponent history.
func (h *harness) play(p Probe, seed uint64, total int, r core.Rand) game {
	if r == nil {
		r = rng.New(seed)
	}
	g := game{}
	st := core.NewModeState()
	var score core.ScoreState
	pay := match.DefaultPayoff()
	for i := 0; i < len(p.Actions); i++ {
		own := slices.Clone(g.own)
		opp := slices.Clone(p.Actions[:i])
		snap := core.Snapshot{Own: own, Opponent: opp, Score: score, Total: total, NoiseRate: h.noise, Source: r}
		d := h.engine.Step(snap, st)
		if !slices.Equal(own, g.own) || !slices.Equal(opp, p.Actions[:i]) {
			g.mutated = true
		}
		st = d.State
		g.decisions = append(g.decisions, d)
		g.own = append(g.own, d.Action)
		score.Own += pay.Score(d.Action, p.Actions[i])
		score.Opponent += pay.Score(p.Actions[i], d.Action)
	}
	return g
}
