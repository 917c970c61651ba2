package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/policy"
)

func TestBuiltinsAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, cfg := range Builtins() {
		t.Run(cfg.Name, func(t *testing.T) {
			require.NoError(t, cfg.Validate())
			assert.False(t, seen[cfg.Name], "duplicate name")
			seen[cfg.Name] = true
			_, err := policy.New(cfg)
			require.NoError(t, err)
		})
	}
	assert.Len(t, seen, 15)
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()

	cfg, err := r.Get("grudger")
	require.NoError(t, err)
	assert.Equal(t, policy.RuleAlwaysCooperate, cfg.Rule.Kind)

	_, err = r.Get("psychic")
	require.ErrorIs(t, err, kb.ErrNotFound)

	s, err := r.Strategy("always_defect")
	require.NoError(t, err)
	a, _ := s.Decide(core.Snapshot{}, core.NewModeState())
	assert.Equal(t, core.Defect, a)
}

func TestRegistry_ListAndTags(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	require.Len(t, list, 15)
	assert.Equal(t, "alternation_breaker", list[0].Name)

	names := func(cfgs []policy.Config) []string {
		var out []string
		for _, c := range cfgs {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t, []string{"always_cooperate", "always_defect"}, names(r.FindByTag("unconditional")))
	assert.Empty(t, r.FindByTag("nonexistent"))
}

func TestRegistry_Register(t *testing.T) {
	r := NewEmptyRegistry()
	assert.Empty(t, r.List())

	bad := policy.DefaultConfig()
	bad.Probability = 3
	require.ErrorIs(t, r.Register(bad), policy.ErrInvalidConfig)

	good := policy.DefaultConfig()
	good.Name = "mine"
	require.NoError(t, r.Register(good))
	got, err := r.Get("mine")
	require.NoError(t, err)
	assert.Equal(t, good, got)
}

func TestRegistry_SaveCandidateKeepsBest(t *testing.T) {
	r := NewEmptyRegistry()
	ctx := context.Background()

	cfg := policy.DefaultConfig()
	cfg.Name = "candidate"
	cfg.Probability = 0.9
	require.NoError(t, r.SaveCandidate(ctx, cfg, 2.5))

	worse := cfg
	worse.Probability = 0.5
	require.NoError(t, r.SaveCandidate(ctx, worse, 2.0))
	got, _ := r.Get("candidate")
	assert.Equal(t, 0.9, got.Probability)

	better := cfg
	better.Probability = 0.99
	require.NoError(t, r.SaveCandidate(ctx, better, 2.8))
	got, _ = r.Get("candidate")
	assert.Equal(t, 0.99, got.Probability)

	score, ok := r.Score("candidate")
	assert.True(t, ok)
	assert.Equal(t, 2.8, score)
}
