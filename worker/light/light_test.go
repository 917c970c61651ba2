package light

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/snow-ghost/dilemma/core"
	kbmem "github.com/snow-ghost/dilemma/kb/memory"
	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/pkg/cache"
	"github.com/snow-ghost/dilemma/pkg/observability"
	"github.com/snow-ghost/dilemma/pkg/tracing"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/worker/capabilities"
	"github.com/snow-ghost/dilemma/worker/telemetry"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Match.Rounds = 10
	cfg.Match.Noise = 0
	cfg.Repetitions = 1
	cfg.Workers = 2
	return cfg
}

func newWorker(t *testing.T, cfg Config, opts ...Option) *TournamentWorker {
	t.Helper()
	return NewTournamentWorker(kbmem.NewRegistry(), nil, nil, cfg, opts...)
}

func TestTournament_Standings(t *testing.T) {
	w := newWorker(t, quietConfig())
	tr, err := w.Run(context.Background(), Request{Players: []string{"always_cooperate", "tit_for_tat", "always_defect"}})
	require.NoError(t, err)

	assert.Equal(t, 3, tr.Matches)
	require.Len(t, tr.Standings, 3)
	assert.Equal(t, "always_defect", tr.Winner())

	ad := tr.Standings[0]
	assert.Equal(t, 1, ad.Rank)
	assert.Equal(t, 2, ad.Wins)
	assert.InDelta(t, 64.0, ad.Total, 1e-9)
	assert.InDelta(t, 3.2, ad.Mean, 1e-9)
	assert.InDelta(t, 0.0, ad.CooperationRate, 1e-9)

	tft, ok := tr.Standing("tit_for_tat")
	require.True(t, ok)
	assert.Equal(t, 2, tft.Rank)
	assert.Equal(t, 1, tft.Draws)
	assert.Equal(t, 1, tft.Losses)
	assert.InDelta(t, 1.95, tft.Mean, 1e-9)

	ac := tr.Standings[2]
	assert.Equal(t, "always_cooperate", ac.Name)
	assert.InDelta(t, 1.0, ac.CooperationRate, 1e-9)
}

func TestTournament_Deterministic(t *testing.T) {
	cfg := quietConfig()
	cfg.Match.Noise = 0.1
	cfg.Repetitions = 3
	cfg.Seeds = []uint64{7, 8}
	cfg.Workers = 4
	players := []string{"generous_tft", "pavlov", "grudger", "majority_10"}

	first, err := newWorker(t, cfg).Run(context.Background(), Request{Players: players})
	require.NoError(t, err)
	second, err := newWorker(t, cfg).Run(context.Background(), Request{Players: players})
	require.NoError(t, err)

	assert.Equal(t, 6*2*3, first.Matches)
	assert.Equal(t, first.Standings, second.Standings)
}

func TestTournament_SelfPlay(t *testing.T) {
	cfg := quietConfig()
	cfg.SelfPlay = true
	cfg.Repetitions = 2
	cfg.KeepResults = true

	tr, err := newWorker(t, cfg).Run(context.Background(), Request{Players: []string{"tit_for_tat", "always_defect"}})
	require.NoError(t, err)
	assert.Equal(t, 3*2, tr.Matches)
	require.Len(t, tr.Results, 6)

	tft, _ := tr.Standing("tit_for_tat")
	// two self-play matches count both sides, plus two against always_defect
	assert.Equal(t, 6, tft.Matches)
}

func TestTournament_SinglePlayer(t *testing.T) {
	w := newWorker(t, quietConfig())
	_, err := w.Run(context.Background(), Request{Players: []string{"tit_for_tat"}})
	require.Error(t, err)

	selfPlay := true
	tr, err := w.Run(context.Background(), Request{Players: []string{"tit_for_tat"}, SelfPlay: &selfPlay})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Matches)
}

func TestTournament_UnknownPlayer(t *testing.T) {
	w := newWorker(t, quietConfig())
	_, err := w.Run(context.Background(), Request{Players: []string{"tit_for_tat", "nobody"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nobody")
}

func TestTournament_CacheAndStore(t *testing.T) {
	rc, err := cache.NewResultCache(&cache.CacheConfig{MaxSize: 64, DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer rc.Close()
	st := store.NewMemoryStore()

	w := newWorker(t, quietConfig(), WithCache(rc), WithStore(st))
	req := Request{Players: []string{"tit_for_tat", "pavlov", "grudger"}}

	first, err := w.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Cached)

	second, err := w.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, second.Matches, second.Cached)
	assert.Equal(t, first.Standings, second.Standings)

	saved, err := st.ListTournaments(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestTournament_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newWorker(t, quietConfig()).Run(ctx, Request{Players: []string{"tit_for_tat", "pavlov"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStandings_Ranking(t *testing.T) {
	names := []string{"a", "b", "c"}
	results := []match.Result{
		{Rounds: 2, Scores: [2]float64{6, 6}, CooperationRate: [2]float64{1, 1}},
		{Rounds: 2, Scores: [2]float64{0, 10}, CooperationRate: [2]float64{1, 0}},
	}
	pairs := [][2]int{{0, 1}, {0, 2}}

	got := Standings(names, pairs, results)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, "a", got[2].Name)
	assert.Equal(t, 1, got[2].Draws)
	assert.Equal(t, 1, got[2].Losses)
	assert.InDelta(t, 1.5, got[2].Mean, 1e-9)
}

func TestConfig_Apply(t *testing.T) {
	noise := 0.2
	cfg := DefaultConfig().Apply(Request{Rounds: 50, Noise: &noise, Repetitions: 1})
	assert.Equal(t, 50, cfg.Match.Rounds)
	assert.Equal(t, 0.2, cfg.Match.Noise)
	assert.Equal(t, 1, cfg.Repetitions)
	assert.Equal(t, []uint64{cfg.Match.Seed}, cfg.seeds())

	bad := DefaultConfig()
	bad.Workers = 0
	assert.Error(t, bad.Validate())
}

func TestTournament_CapabilitiesGateExternalRules(t *testing.T) {
	reg := kbmem.NewRegistry()
	cfg := policy.DefaultConfig()
	cfg.Name = "compiled"
	cfg.Rule = policy.RuleConfig{Kind: policy.RuleExternal, Fallback: core.Cooperate}
	require.NoError(t, reg.Register(cfg))

	w := NewTournamentWorker(reg, nil, nil, quietConfig(), WithCapabilities(capabilities.Capabilities{UseKB: true}))
	assert.Equal(t, "KB", w.Caps().String())

	_, err := w.Run(context.Background(), Request{Players: []string{"tit_for_tat", "compiled"}})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "compiled")

	tr, err := w.Run(context.Background(), Request{Players: []string{"tit_for_tat", "grudger"}})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Matches)
}

func TestTournament_MatchSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tracer := tracing.NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)), "test")
	tel := telemetry.NewTelemetry(observability.New(nil, tracer, nil), "light")
	rc, err := cache.NewResultCache(&cache.CacheConfig{MaxSize: 16, DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer rc.Close()

	w := NewTournamentWorker(kbmem.NewRegistry(), nil, tel, quietConfig(), WithCache(rc))
	for i := 0; i < 2; i++ {
		_, err := w.Run(context.Background(), Request{Players: []string{"tit_for_tat", "always_defect"}})
		require.NoError(t, err)
	}

	var cached []bool
	for _, span := range rec.Ended() {
		if span.Name() != "match" {
			continue
		}
		attrs := map[string]bool{}
		for _, kv := range span.Attributes() {
			attrs[string(kv.Key)] = true
			if kv.Key == "match.cached" {
				cached = append(cached, kv.Value.AsBool())
			}
		}
		assert.True(t, attrs["duration_ms"])
		assert.True(t, attrs["score.a"])
	}
	assert.Equal(t, []bool{false, true}, cached)
}
