package heavy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/interp/wasm"
	kbmem "github.com/snow-ghost/dilemma/kb/memory"
	llmmock "github.com/snow-ghost/dilemma/llm/mock"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/policy/guard"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/testkit"
	"github.com/snow-ghost/dilemma/worker/mutate"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Opponents = []string{"always_defect", "always_cooperate", "grudger"}
	cfg.Iterations = 2
	cfg.Candidates = 5
	cfg.Deadline = 30 * time.Second
	cfg.Evaluation.Match.Rounds = 40
	cfg.Evaluation.Repetitions = 1
	return cfg
}

type rejectAll struct{}

func (rejectAll) Accept(map[string]float64) (bool, string) { return false, "rejected by test" }

func TestSearch_FindsAndSaves(t *testing.T) {
	ctx := context.Background()
	reg := kbmem.NewRegistry()
	st := store.NewMemoryStore()
	interp := wasm.NewInterpreter()
	defer interp.Close(ctx)

	h := NewSearchWorker(reg, nil, nil, mutate.NewSimpleMutator(), testConfig(),
		WithGenerator(llmmock.NewMockLLM()),
		WithRuleLoader(interp),
		WithStore(st),
		WithChecks(testkit.WithRounds(30), testkit.WithSeeds(1)),
	)

	res, err := h.Search(ctx, Request{})
	require.NoError(t, err)

	assert.Equal(t, "tit_for_tat", res.Baseline)
	assert.Equal(t, 2, res.Iterations)
	assert.Greater(t, res.Evaluated, 0)
	assert.Greater(t, res.Accepted, 0)
	assert.GreaterOrEqual(t, res.BestScore, res.BaselineScore)
	assert.NotEmpty(t, res.Standings)

	if res.Improved {
		assert.True(t, strings.HasPrefix(res.Best.Name, "tit_for_tat~"))
		if res.Saved {
			saved, err := reg.Get(res.Best.Name)
			require.NoError(t, err)
			assert.Equal(t, res.Best.Name, saved.Name)
		}
	}

	top, err := st.TopCandidates(ctx, "tit_for_tat", 100)
	require.NoError(t, err)
	assert.Len(t, top, res.Accepted)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}
}

func TestSearch_CriticRejects(t *testing.T) {
	h := NewSearchWorker(kbmem.NewRegistry(), nil, nil, mutate.NewSimpleMutator(), testConfig(),
		WithCritic(rejectAll{}),
		WithChecks(testkit.WithRounds(20), testkit.WithSeeds(1)),
	)

	res, err := h.Search(context.Background(), Request{Iterations: 1})
	require.NoError(t, err)
	assert.False(t, res.Improved)
	assert.False(t, res.Saved)
	assert.Equal(t, 0, res.Accepted)
	assert.Equal(t, "tit_for_tat", res.Best.Name)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "rejected by test", res.Candidates[0].Reason)
}

func TestSearch_GuardDeniesExternalRules(t *testing.T) {
	ctx := context.Background()
	interp := wasm.NewInterpreter()
	defer interp.Close(ctx)

	allow := []string{}
	for _, k := range policy.RuleKinds {
		if k != policy.RuleExternal {
			allow = append(allow, string(k))
		}
	}
	h := NewSearchWorker(kbmem.NewRegistry(), nil, nil, nil, testConfig(),
		WithGenerator(llmmock.NewMockLLM()),
		WithRuleLoader(interp),
		WithGuard(guard.NewGuard(allow, 0)),
		WithChecks(testkit.WithRounds(20), testkit.WithSeeds(1)),
	)

	res, err := h.Search(ctx, Request{Iterations: 1})
	require.NoError(t, err)

	var denied bool
	for _, c := range res.Candidates {
		if strings.HasSuffix(c.Name, "~wasm") {
			denied = true
			assert.False(t, c.Accepted)
			assert.Contains(t, c.Reason, "not allowed")
		}
	}
	assert.True(t, denied, "mock generator should have proposed an external rule")
}

func TestSearch_Errors(t *testing.T) {
	h := NewSearchWorker(kbmem.NewRegistry(), nil, nil, mutate.NewSimpleMutator(), testConfig())

	_, err := h.Search(context.Background(), Request{Baseline: "nobody"})
	require.Error(t, err)

	_, err = h.Search(context.Background(), Request{Opponents: []string{"ghost"}})
	require.Error(t, err)

	_, err = h.Search(context.Background(), Request{Deadline: time.Nanosecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseline")
}

func TestStandingMetrics(t *testing.T) {
	m := StandingMetrics(store.Standing{Matches: 4, Wins: 1, Draws: 2, Losses: 1, Mean: 2.5, CooperationRate: 0.75})
	assert.Equal(t, 0.25, m["win_rate"])
	assert.Equal(t, 0.5, m["draw_rate"])
	assert.Equal(t, 2.5, m["mean_score"])
	assert.Equal(t, 0.75, m["coop_rate"])

	assert.NotContains(t, StandingMetrics(store.Standing{}), "win_rate")
}

func TestSummarize(t *testing.T) {
	out := Summarize([]store.Standing{{Rank: 1, Name: "pavlov", Mean: 2.75, Wins: 3}})
	assert.Equal(t, "1. pavlov mean=2.750 wins=3 draws=0 losses=0 coop=0.00\n", out)
}
