package heavy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/llm"
	"github.com/snow-ghost/dilemma/pkg/cache"
	"github.com/snow-ghost/dilemma/pkg/tracing"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/policy/guard"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/testkit"
	"github.com/snow-ghost/dilemma/worker/capabilities"
	"github.com/snow-ghost/dilemma/worker/common"
	"github.com/snow-ghost/dilemma/worker/light"
	"github.com/snow-ghost/dilemma/worker/telemetry"
)

// Mutator derives candidate configs from the current best.
type Mutator interface {
	Mutate(base policy.Config) []policy.Config
}

// SearchWorker improves a baseline strategy: generated and mutated
// candidates are property checked, scored in a tournament against an
// opponent pool, and the best one is kept.
type SearchWorker struct {
	*common.BaseWorker
	config  Config
	llm     llm.Generator
	loader  kb.RuleLoader
	guard   *guard.Guard
	critic  core.Critic
	mut     Mutator
	store   store.Store
	cache   *cache.ResultCache
	checks  []testkit.Option
	fitness core.FitnessEvaluator
}

type Option func(*SearchWorker)

// WithGenerator asks g for candidates every iteration.
func WithGenerator(g llm.Generator) Option { return func(h *SearchWorker) { h.llm = g } }

// WithRuleLoader enables candidates with external rules.
func WithRuleLoader(l kb.RuleLoader) Option { return func(h *SearchWorker) { h.loader = l } }

// WithGuard restricts rule kinds and bounds external rule decisions.
func WithGuard(g *guard.Guard) Option { return func(h *SearchWorker) { h.guard = g } }

// WithStore records every evaluated candidate.
func WithStore(s store.Store) Option { return func(h *SearchWorker) { h.store = s } }

// WithCache shares match results across evaluation tournaments.
func WithCache(c *cache.ResultCache) Option { return func(h *SearchWorker) { h.cache = c } }

// WithChecks passes options to the property check runner.
func WithChecks(opts ...testkit.Option) Option {
	return func(h *SearchWorker) { h.checks = append(h.checks, opts...) }
}

// WithCritic replaces the default critic.
func WithCritic(c core.Critic) Option { return func(h *SearchWorker) { h.critic = c } }

// NewSearchWorker creates a new search worker
func NewSearchWorker(catalog kb.Catalog, resolver common.Resolver, t *telemetry.Telemetry,
	mut Mutator, config Config, opts ...Option) *SearchWorker {

	h := &SearchWorker{
		BaseWorker: common.NewBaseWorker(catalog, resolver, t, "heavy"),
		config:     config,
		critic:     core.NewSimpleCritic(),
		mut:        mut,
		fitness:    core.NewWeightedFitness(config.Weights, config.ComplexityPenalty),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Caps returns the capabilities of the search worker
func (h *SearchWorker) Caps() capabilities.Capabilities {
	return capabilities.DefaultCapabilities("heavy")
}

// Result is the outcome of one search.
type Result struct {
	Baseline      string            `json:"baseline"`
	BaselineScore float64           `json:"baseline_score"`
	Best          policy.Config     `json:"best"`
	BestScore     float64           `json:"best_score"`
	BestSource    string            `json:"best_source"`
	Improved      bool              `json:"improved"`
	Saved         bool              `json:"saved"`
	Iterations    int               `json:"iterations"`
	Evaluated     int               `json:"evaluated"`
	Accepted      int               `json:"accepted"`
	Duration      time.Duration     `json:"duration"`
	Standings     []store.Standing  `json:"standings,omitempty"`
	Candidates    []store.Candidate `json:"candidates,omitempty"`
}

type candidate struct {
	cfg    policy.Config
	source string
}

// search holds the per-run state.
type search struct {
	cfg       Config
	modules   map[string][]byte
	opponents []core.Strategy
	runner    *testkit.Runner
	eval      *light.TournamentWorker
	seen      map[string]bool
}

// Search runs the loop until the iterations are used up or the deadline
// passes. Running out of time is not an error: the best candidate found so
// far is returned. Only a baseline that cannot be evaluated fails the run.
func (h *SearchWorker) Search(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	cfg := h.config.Apply(req)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}
	baseline, err := h.GetKB().Get(cfg.Baseline)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	tel := h.GetTelemetry()
	logger := h.Logger()
	ctx, span := tel.Observability().GetTracer().StartSearchSpan(ctx, cfg.Baseline, cfg.Iterations)
	defer span.End()

	opponents, err := h.Players(ctx, cfg.Opponents)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return nil, err
	}

	s := &search{
		cfg:       cfg,
		modules:   make(map[string][]byte),
		opponents: opponents,
		seen:      map[string]bool{baseline.Name: true},
	}
	s.runner = testkit.NewRunner(append([]testkit.Option{testkit.WithBuilder(h.builder(s))}, h.checks...)...)
	evalOpts := []light.Option{}
	if h.cache != nil {
		evalOpts = append(evalOpts, light.WithCache(h.cache))
	}
	s.eval = light.NewTournamentWorker(h.GetKB(), nil, tel, cfg.Evaluation, evalOpts...)

	ctx, cancel := context.WithTimeout(ctx, cfg.Deadline)
	defer cancel()

	baseEngine, err := h.build(ctx, s, baseline)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to build baseline: %w", err)
	}
	baseScore, standings, err := h.evaluate(ctx, s, baseEngine)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to evaluate baseline: %w", err)
	}
	logger.Info("Search started",
		"baseline", baseline.Name,
		"baseline_score", baseScore,
		"opponents", len(opponents),
		"deadline", cfg.Deadline.String(),
	)

	result := &Result{
		Baseline:      baseline.Name,
		BaselineScore: baseScore,
		Best:          baseline,
		BestScore:     baseScore,
		BestSource:    "baseline",
		Standings:     standings,
	}

	for iter := 1; iter <= cfg.Iterations && ctx.Err() == nil; iter++ {
		result.Iterations = iter
		cands := h.propose(ctx, s, result.Best, standings)
		for _, c := range cands {
			if ctx.Err() != nil {
				break
			}
			rec, st := h.consider(ctx, s, c)
			if rec == nil {
				continue
			}
			result.Evaluated++
			result.Candidates = append(result.Candidates, *rec)
			if rec.Accepted {
				result.Accepted++
				if rec.Score > result.BestScore {
					result.Best, result.BestScore, result.BestSource = c.cfg, rec.Score, c.source
					result.Standings = st
					standings = st
				}
			}
		}
		tel.LogIteration(ctx, iter, result.Best.Name, result.BestScore, len(cands))
	}

	result.Improved = result.BestSource != "baseline"
	if result.Improved && h.fitness.Passed(result.BestScore, cfg.Threshold) {
		result.Saved = h.save(context.WithoutCancel(ctx), result)
	}
	result.Duration = time.Since(start)

	tracing.AddSpanAttributes(span, map[string]interface{}{
		"search.best":       result.Best.Name,
		"search.best_score": result.BestScore,
		"search.evaluated":  result.Evaluated,
	})
	tracing.RecordSpanSuccess(span)
	tel.LogSearchEnd(ctx, baseline.Name, result.Best.Name, baseScore, result.BestScore, result.Duration, result.Iterations)
	return result, nil
}

// propose collects this iteration's candidates: generated ones first, then
// mutations of the current best. Names already seen are dropped.
func (h *SearchWorker) propose(ctx context.Context, s *search, best policy.Config, standings []store.Standing) []candidate {
	var out []candidate
	if h.llm != nil {
		names := make([]string, len(s.opponents))
		for i, o := range s.opponents {
			names[i] = o.Name()
		}
		p, err := h.llm.Propose(ctx, llm.Brief{
			Baseline:  best,
			Opponents: names,
			Rounds:    s.cfg.Evaluation.Match.Rounds,
			Noise:     s.cfg.Evaluation.Match.Noise,
			Standings: Summarize(standings),
			Count:     s.cfg.Candidates,
		})
		if err != nil {
			h.Logger().Warn("Generator proposal failed", "error", err, "baseline", best.Name)
		}
		for ref, code := range p.Modules {
			s.modules[ref] = code
		}
		for _, cfg := range p.Configs {
			out = append(out, candidate{cfg: cfg, source: p.Source})
		}
	}
	if h.mut != nil {
		for _, cfg := range h.mut.Mutate(best) {
			out = append(out, candidate{cfg: cfg, source: "mutate"})
		}
	}

	fresh := out[:0]
	for _, c := range out {
		if s.seen[c.cfg.Name] {
			continue
		}
		s.seen[c.cfg.Name] = true
		fresh = append(fresh, c)
	}
	return fresh
}

// consider gates one candidate and scores it. It returns nil when the
// deadline interrupted the evaluation.
func (h *SearchWorker) consider(ctx context.Context, s *search, c candidate) (*store.Candidate, []store.Standing) {
	tel := h.GetTelemetry()
	ctx, span := tel.Observability().GetTracer().StartCandidateSpan(ctx, c.cfg.Name, c.source)
	defer span.End()

	rec := &store.Candidate{
		Name:     c.cfg.Name,
		Baseline: s.cfg.Baseline,
		Source:   c.source,
	}
	if doc, err := policy.MarshalConfig(c.cfg); err == nil {
		rec.Config = string(doc)
	}
	reject := func(reason string) (*store.Candidate, []store.Standing) {
		rec.Reason = reason
		tel.LogCandidate(ctx, rec.Name, rec.Source, 0, false, reason)
		h.record(ctx, *rec)
		return rec, nil
	}

	if h.guard != nil {
		if err := h.guard.Check(c.cfg); err != nil {
			return reject(err.Error())
		}
	}

	metrics, _, err := s.runner.Run(ctx, c.cfg)
	if err != nil {
		return reject(fmt.Sprintf("build failed: %v", err))
	}
	tel.LogTestResults(ctx, c.cfg.Name, metrics)
	if ok, reason := h.critic.Accept(metrics); !ok {
		return reject(reason)
	}

	engine, err := h.build(ctx, s, c.cfg)
	if err != nil {
		return reject(fmt.Sprintf("build failed: %v", err))
	}
	score, standings, err := h.evaluate(ctx, s, engine)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return reject(fmt.Sprintf("evaluation failed: %v", err))
	}

	rec.Score = score
	rec.Accepted = true
	rec.Reason = "all property checks passed"
	tel.LogCandidate(ctx, rec.Name, rec.Source, score, true, rec.Reason)
	h.record(ctx, *rec)
	tracing.AddSpanAttributes(span, map[string]interface{}{"candidate.score": score})
	return rec, standings
}

// evaluate plays a tournament of s against the opponent pool and scores the
// result. Opponents sharing the candidate's name sit out.
func (h *SearchWorker) evaluate(ctx context.Context, s *search, candidate core.Strategy) (float64, []store.Standing, error) {
	players := []core.Strategy{candidate}
	for _, o := range s.opponents {
		if o.Name() != candidate.Name() {
			players = append(players, o)
		}
	}
	t, err := s.eval.Play(ctx, "", players, s.cfg.Evaluation)
	if err != nil {
		return 0, nil, err
	}
	st, ok := t.Standing(candidate.Name())
	if !ok {
		return 0, nil, fmt.Errorf("no standing for %s", candidate.Name())
	}
	complexity := 0
	if e, ok := candidate.(interface{ Config() policy.Config }); ok {
		complexity = e.Config().Complexity()
	}
	return h.fitness.Score(StandingMetrics(st), complexity), t.Standings, nil
}

// StandingMetrics maps a tournament standing onto fitness metric names.
func StandingMetrics(st store.Standing) map[string]float64 {
	m := map[string]float64{
		"mean_score": st.Mean,
		"total":      st.Total,
		"coop_rate":  st.CooperationRate,
	}
	if st.Matches > 0 {
		m["win_rate"] = float64(st.Wins) / float64(st.Matches)
		m["draw_rate"] = float64(st.Draws) / float64(st.Matches)
		m["loss_rate"] = float64(st.Losses) / float64(st.Matches)
	}
	return m
}

// builder adapts build for the property check runner.
func (h *SearchWorker) builder(s *search) testkit.Builder {
	return func(ctx context.Context, cfg policy.Config) (*policy.Engine, error) {
		return h.engine(ctx, s, cfg)
	}
}

func (h *SearchWorker) engine(ctx context.Context, s *search, cfg policy.Config) (*policy.Engine, error) {
	if cfg.Rule.Kind != policy.RuleExternal {
		return policy.New(cfg)
	}
	if h.loader == nil {
		return nil, errors.New("external rules are not enabled")
	}
	code, ok := s.modules[cfg.Rule.Module]
	if !ok {
		return nil, fmt.Errorf("rule module %q was not provided", cfg.Rule.Module)
	}
	rule, err := h.loader.Load(ctx, cfg.Name, code, cfg.Rule.Fallback)
	if err != nil {
		return nil, err
	}
	return policy.New(cfg, policy.WithRule(rule))
}

// build returns a tournament-ready player; external rules run guarded.
func (h *SearchWorker) build(ctx context.Context, s *search, cfg policy.Config) (core.Strategy, error) {
	e, err := h.engine(ctx, s, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Rule.Kind == policy.RuleExternal && h.guard != nil {
		return configured{h.guard.Wrap(e, cfg.Rule.Fallback), cfg}, nil
	}
	return e, nil
}

// configured keeps the config reachable behind a guard wrapper.
type configured struct {
	core.Strategy
	cfg policy.Config
}

func (c configured) Config() policy.Config { return c.cfg }

func (h *SearchWorker) record(ctx context.Context, c store.Candidate) {
	if h.store == nil {
		return
	}
	if err := h.store.SaveCandidate(ctx, c); err != nil {
		h.Logger().Warn("Failed to record candidate", "candidate", c.Name, "error", err)
	}
}

// save writes the best config to the catalog. External rules are kept in
// the store only, as the catalog entry would lack its module.
func (h *SearchWorker) save(ctx context.Context, r *Result) bool {
	if r.Best.Rule.Kind == policy.RuleExternal {
		h.Logger().Info("Best candidate uses an external rule; not saved to catalog", "candidate", r.Best.Name)
		return false
	}
	if err := h.GetKB().SaveCandidate(ctx, r.Best, r.BestScore); err != nil {
		h.Logger().Warn("Failed to save best candidate", "candidate", r.Best.Name, "error", err)
		return false
	}
	return true
}

// Summarize renders standings as short lines for a generator brief.
func Summarize(standings []store.Standing) string {
	var b strings.Builder
	for _, s := range standings {
		fmt.Fprintf(&b, "%d. %s mean=%.3f wins=%d draws=%d losses=%d coop=%.2f\n",
			s.Rank, s.Name, s.Mean, s.Wins, s.Draws, s.Losses, s.CooperationRate)
	}
	return b.String()
}
