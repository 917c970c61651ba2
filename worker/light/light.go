package light

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/pkg/cache"
	"github.com/snow-ghost/dilemma/pkg/tracing"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/rng"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/worker/capabilities"
	"github.com/snow-ghost/dilemma/worker/common"
	"github.com/snow-ghost/dilemma/worker/telemetry"
)

// ErrInvalid marks a tournament request that can never succeed.
var ErrInvalid = errors.New("invalid tournament")

// TournamentWorker runs round robin tournaments between catalog strategies.
type TournamentWorker struct {
	*common.BaseWorker
	config Config
	cache  *cache.ResultCache
	store  store.Store
	caps   capabilities.Capabilities
}

type Option func(*TournamentWorker)

// WithCache memoises deterministic matches.
func WithCache(c *cache.ResultCache) Option {
	return func(w *TournamentWorker) { w.cache = c }
}

// WithStore persists every finished tournament.
func WithStore(s store.Store) Option {
	return func(w *TournamentWorker) { w.store = s }
}

// WithCapabilities limits which players the worker accepts.
func WithCapabilities(c capabilities.Capabilities) Option {
	return func(w *TournamentWorker) { w.caps = c }
}

// NewTournamentWorker creates a new tournament worker
func NewTournamentWorker(catalog kb.Catalog, resolver common.Resolver, t *telemetry.Telemetry, config Config, opts ...Option) *TournamentWorker {
	w := &TournamentWorker{
		BaseWorker: common.NewBaseWorker(catalog, resolver, t, "light"),
		config:     config,
		caps:       capabilities.DefaultCapabilities("light"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Caps returns the capabilities of the tournament worker
func (w *TournamentWorker) Caps() capabilities.Capabilities {
	return w.caps
}

// Config returns the worker's default tournament config.
func (w *TournamentWorker) Config() Config {
	return w.config
}

// Run resolves the requested players and plays the tournament.
func (w *TournamentWorker) Run(ctx context.Context, req Request) (*store.Tournament, error) {
	cfg := w.config.Apply(req)
	if err := w.admit(cfg.Players); err != nil {
		return nil, err
	}
	players, err := w.Players(ctx, cfg.Players)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return w.Play(ctx, req.ID, players, cfg)
}

// admit rejects catalog players the worker cannot run. Players outside the
// catalog (remote, fetched) need nothing beyond resolution.
func (w *TournamentWorker) admit(names []string) error {
	for _, name := range names {
		cfg, err := w.GetKB().Get(name)
		needsWASM := err == nil && cfg.Rule.Kind == policy.RuleExternal
		if !w.caps.CanRun(needsWASM, false) {
			return fmt.Errorf("%w: worker (%s) cannot run %s", ErrInvalid, w.caps, name)
		}
	}
	return nil
}

type job struct {
	a, b int
	seed uint64
}

type outcome struct {
	res    match.Result
	cached bool
}

// Play runs every pairing of players (each pair once, plus self-play when
// enabled) for every seed and repetition. Per-match seeds derive from the
// base seed, the pair index and the repetition, so a tournament is
// reproducible regardless of scheduling.
func (w *TournamentWorker) Play(ctx context.Context, id string, players []core.Strategy, cfg Config) (*store.Tournament, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(players) == 0 || (len(players) < 2 && !cfg.SelfPlay) {
		return nil, fmt.Errorf("%w: needs at least two players", ErrInvalid)
	}
	if id == "" {
		id = uuid.NewString()
	}

	jobs := schedule(len(players), cfg)
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name()
	}
	record := &store.Tournament{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Rounds:      cfg.Match.Rounds,
		Noise:       cfg.Match.Noise,
		Repetitions: cfg.Repetitions,
		Seeds:       cfg.seeds(),
		Players:     names,
		Matches:     len(jobs),
	}

	tel := w.GetTelemetry()
	ctx, span := tel.Observability().GetTracer().StartTournamentSpan(ctx, id, len(players), len(jobs))
	defer span.End()
	tel.LogTournamentStart(ctx, id, len(players), len(jobs))

	start := time.Now()
	fingerprints := make([]string, len(players))
	for i, p := range players {
		fingerprints[i] = fingerprint(p)
	}

	outcomes := make([]outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			mc := cfg.Match
			mc.Seed = j.seed
			o, err := w.playOne(gctx, players[j.a], players[j.b], fingerprints[j.a], fingerprints[j.b], mc)
			if err != nil {
				return fmt.Errorf("match %s vs %s: %w", names[j.a], names[j.b], err)
			}
			outcomes[i] = o
			return nil
		})
	}
	err := g.Wait()
	record.Duration = time.Since(start)
	if err != nil {
		tracing.RecordSpanError(span, err)
		tel.LogTournamentEnd(ctx, record, err)
		return nil, err
	}

	results := make([]match.Result, len(outcomes))
	for i, o := range outcomes {
		results[i] = o.res
		if o.cached {
			record.Cached++
		}
	}
	record.Standings = Standings(names, pairsOf(jobs), results)
	if cfg.KeepResults {
		record.Results = results
	}

	if w.store != nil {
		if err := w.store.SaveTournament(ctx, record); err != nil {
			tracing.RecordSpanError(span, err)
			tel.LogTournamentEnd(ctx, record, err)
			return nil, fmt.Errorf("failed to save tournament: %w", err)
		}
	}

	tracing.AddSpanAttributes(span, map[string]interface{}{
		"tournament.winner": record.Winner(),
		"tournament.cached": record.Cached,
	})
	tracing.RecordSpanSuccess(span)
	tel.LogTournamentEnd(ctx, record, nil)
	return record, nil
}

func (w *TournamentWorker) playOne(ctx context.Context, a, b core.Strategy, fa, fb string, mc match.Config) (outcome, error) {
	tel := w.GetTelemetry()
	ctx, span := tel.Observability().StartMatchSpan(ctx, a.Name(), b.Name(), mc.Seed)
	defer span.End()

	out, err := w.playMatch(ctx, a, b, fa, fb, mc)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return outcome{}, err
	}
	tel.LogMatch(ctx, out.res, out.cached)
	tracing.RecordSpanScores(span, out.res.Scores[0], out.res.Scores[1])
	tracing.RecordSpanDuration(span, out.res.Duration)
	tracing.AddSpanAttributes(span, map[string]interface{}{"match.cached": out.cached})
	tracing.RecordSpanSuccess(span)
	return out, nil
}

func (w *TournamentWorker) playMatch(ctx context.Context, a, b core.Strategy, fa, fb string, mc match.Config) (outcome, error) {
	if w.cache == nil || fa == "" || fb == "" {
		res, err := match.Play(ctx, a, b, mc)
		return outcome{res: res}, err
	}
	played := false
	req := cache.MatchRequest{A: fa, B: fb, Match: mc, Cache: true}
	res, err := w.cache.Play(ctx, req, func() (match.Result, error) {
		played = true
		return match.Play(ctx, a, b, mc)
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{res: res, cached: !played}, nil
}

// schedule lists every match of a tournament in a fixed order.
func schedule(n int, cfg Config) []job {
	var jobs []job
	pair := uint64(0)
	for a := 0; a < n; a++ {
		first := a + 1
		if cfg.SelfPlay {
			first = a
		}
		for b := first; b < n; b++ {
			for _, base := range cfg.seeds() {
				for rep := 0; rep < cfg.Repetitions; rep++ {
					jobs = append(jobs, job{a: a, b: b, seed: rng.Mix(rng.Mix(base, pair), uint64(rep))})
				}
			}
			pair++
		}
	}
	return jobs
}

func pairsOf(jobs []job) [][2]int {
	out := make([][2]int, len(jobs))
	for i, j := range jobs {
		out[i] = [2]int{j.a, j.b}
	}
	return out
}

// fingerprint identifies a deterministic strategy for the match cache.
// Anything but a plain engine (external rules, guarded or remote players)
// is never cached.
func fingerprint(s core.Strategy) string {
	e, ok := s.(*policy.Engine)
	if !ok || e.Config().Rule.Kind == policy.RuleExternal {
		return ""
	}
	doc, err := policy.MarshalConfig(e.Config())
	if err != nil {
		return ""
	}
	return cache.Fingerprint(e.Name(), doc)
}

// Standings aggregates results by player index. pairs[i] names the player
// indexes of results[i]. Mean is the average score per round; players are
// ranked by mean, then total, then name.
func Standings(names []string, pairs [][2]int, results []match.Result) []store.Standing {
	type acc struct {
		store.Standing
		rounds int
		coop   float64
	}
	accs := make([]acc, len(names))
	for i, n := range names {
		accs[i].Name = n
	}

	for i, res := range results {
		winner := res.Winner()
		for side, idx := range pairs[i] {
			a := &accs[idx]
			a.Matches++
			a.Total += res.Scores[side]
			a.Transitions += res.Transitions[side]
			a.rounds += res.Rounds
			a.coop += res.CooperationRate[side]
			switch winner {
			case -1:
				a.Draws++
			case side:
				a.Wins++
			default:
				a.Losses++
			}
		}
	}

	out := make([]store.Standing, 0, len(accs))
	for _, a := range accs {
		s := a.Standing
		if a.rounds > 0 {
			s.Mean = s.Total / float64(a.rounds)
		}
		if s.Matches > 0 {
			s.CooperationRate = a.coop / float64(s.Matches)
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mean != out[j].Mean {
			return out[i].Mean > out[j].Mean
		}
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
