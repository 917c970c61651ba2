package testkit

import (
	"context"
	"testing"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb/memory"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_BuiltinsPass(t *testing.T) {
	runner := NewRunner()
	for _, cfg := range memory.Builtins() {
		t.Run(cfg.Name, func(t *testing.T) {
			metrics, pass, err := runner.Run(context.Background(), cfg)
			require.NoError(t, err)

			report, err := runner.Report(context.Background(), cfg)
			require.NoError(t, err)
			assert.Empty(t, report)
			assert.True(t, pass)
			assert.Equal(t, metrics["cases_total"], metrics["cases_passed"])
			assert.Equal(t, float64(len(DefaultCases())), metrics["cases_total"]+metrics["cases_skipped"])
		})
	}
}

func TestRunner_SkipsPurityForRandomisedConfigs(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.Probability = 0.9

	metrics, pass, err := NewRunner().Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, pass)
	assert.Equal(t, float64(1), metrics["cases_skipped"])
	_, ran := metrics["check_purity"]
	assert.False(t, ran)
}

func TestRunner_InvalidConfig(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.Probability = 2

	_, pass, err := NewRunner().Run(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrInvalidConfig)
	assert.False(t, pass)
}

func withRule(fn func(v policy.View) core.Action) Option {
	return WithBuilder(func(_ context.Context, cfg policy.Config) (*policy.Engine, error) {
		return policy.New(cfg, policy.WithRule(policy.RuleFunc{Label: "probe", Fn: fn}))
	})
}

func TestRunner_DetectsHiddenState(t *testing.T) {
	calls := 0
	runner := NewRunner(withRule(func(v policy.View) core.Action {
		calls++
		if calls%7 == 0 {
			return core.Defect
		}
		return core.Cooperate
	}))

	metrics, pass, err := runner.Run(context.Background(), policy.DefaultConfig())
	require.NoError(t, err)
	assert.False(t, pass)
	assert.Equal(t, float64(0), metrics["check_determinism"])
	assert.Positive(t, metrics["cases_failed"])
}

func TestRunner_DetectsMutation(t *testing.T) {
	runner := NewRunner(withRule(func(v policy.View) core.Action {
		if len(v.Own) > 0 {
			v.Own[0] = v.Own[0].Flip()
		}
		return core.Cooperate
	}))

	metrics, pass, err := runner.Run(context.Background(), policy.DefaultConfig())
	require.NoError(t, err)
	assert.False(t, pass)
	assert.Equal(t, float64(0), metrics["check_no_mutation"])
}

func TestRunner_EndgameDisabled(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.Endgame = policy.EndgameConfig{}

	metrics, pass, err := NewRunner(WithRounds(40), WithSeeds(9)).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, pass)
	assert.Equal(t, float64(1), metrics["check_causal"])
	assert.Equal(t, float64(1), metrics["check_endgame"])
}

func TestProbes(t *testing.T) {
	probes := Probes(10)
	require.Len(t, probes, 5)
	for _, p := range probes {
		assert.Len(t, p.Actions, 10, p.Name)
	}
	assert.Equal(t, "CDCDCDCDCD", core.FormatActions(probes[2].Actions))
	assert.Equal(t, "CCCCCDDDDD", core.FormatActions(probes[3].Actions))
}
