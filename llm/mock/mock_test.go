package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/llm"
	"github.com/snow-ghost/dilemma/policy"
)

func TestMockLLM_Propose(t *testing.T) {
	t.Setenv("LLM_MODE", "mock")

	gen := NewMockLLM()
	base := policy.DefaultConfig()

	p, err := gen.Propose(context.Background(), llm.Brief{Baseline: base, Count: 5})
	require.NoError(t, err)
	require.Len(t, p.Configs, 5)
	assert.Equal(t, "llm:mock", p.Source)
	assert.Equal(t, "tit_for_tat~forgiving", p.Configs[0].Name)
	assert.True(t, p.Configs[0].Noise.ForgiveIsolated)

	for _, cfg := range p.Configs {
		require.NoError(t, cfg.Validate(), cfg.Name)
	}
	wasmCfg := p.Configs[4]
	assert.Equal(t, policy.RuleExternal, wasmCfg.Rule.Kind)
	assert.NotEmpty(t, p.Modules[wasmCfg.Rule.Module])

	assert.False(t, base.Noise.ForgiveIsolated, "baseline untouched")
}

func TestMockLLM_Rotates(t *testing.T) {
	t.Setenv("LLM_MODE", "")
	gen := NewMockLLM()
	base := policy.DefaultConfig()

	first, err := gen.Propose(context.Background(), llm.Brief{Baseline: base, Count: 1})
	require.NoError(t, err)
	second, err := gen.Propose(context.Background(), llm.Brief{Baseline: base, Count: 1})
	require.NoError(t, err)
	assert.NotEqual(t, first.Configs[0].Name, second.Configs[0].Name)

	def, err := gen.Propose(context.Background(), llm.Brief{Baseline: base})
	require.NoError(t, err)
	assert.Len(t, def.Configs, 3)
}

func TestMockLLM_NonMockMode(t *testing.T) {
	t.Setenv("LLM_MODE", "openai")
	p, err := NewMockLLM().Propose(context.Background(), llm.Brief{Baseline: policy.DefaultConfig()})
	require.NoError(t, err)
	assert.Empty(t, p.Configs)
}

func TestMockLLM_Cancelled(t *testing.T) {
	t.Setenv("LLM_MODE", "mock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockLLM().Propose(ctx, llm.Brief{Baseline: policy.DefaultConfig()})
	require.ErrorIs(t, err, context.Canceled)
}
