package wasm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
)

func history(t *testing.T, s string) []core.Action {
	t.Helper()
	h, err := core.ParseActions(s)
	require.NoError(t, err)
	return h
}

func TestInterpreter_TitForTat(t *testing.T) {
	interpreter := NewInterpreter()
	defer interpreter.Close(context.Background())
	ctx := context.Background()

	module, err := interpreter.Compile(ctx, "tft", TitForTatModule())
	require.NoError(t, err)

	cases := map[string]core.Action{
		"":     core.Cooperate,
		"C":    core.Cooperate,
		"D":    core.Defect,
		"CCCD": core.Defect,
		"DDDC": core.Cooperate,
	}
	for h, want := range cases {
		got, err := interpreter.Call(ctx, module, history(t, h))
		require.NoError(t, err, "history %q", h)
		assert.Equal(t, want, got, "history %q", h)
	}
}

func TestInterpreter_Cache(t *testing.T) {
	interpreter := NewInterpreter()
	defer interpreter.Close(context.Background())
	ctx := context.Background()

	m1, err := interpreter.Compile(ctx, "tft", TitForTatModule())
	require.NoError(t, err)
	m2, err := interpreter.Compile(ctx, "tft", TitForTatModule())
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, interpreter.Cached())

	// Same name, new code: the old module must not be reused.
	m3, err := interpreter.Compile(ctx, "tft", trapModule)
	require.NoError(t, err)
	assert.NotSame(t, m1, m3)
	assert.Equal(t, 2, interpreter.Cached())
	_, err = interpreter.Call(ctx, m3, history(t, "C"))
	assert.Error(t, err)
}

func TestInterpreter_InvalidModule(t *testing.T) {
	interpreter := NewInterpreter()
	defer interpreter.Close(context.Background())

	_, err := interpreter.Compile(context.Background(), "bad", []byte("invalid wasm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile")

	_, err = interpreter.Load(context.Background(), "bad", []byte("invalid wasm"), core.Defect)
	require.Error(t, err)
}

func TestRule_FallsBack(t *testing.T) {
	interpreter := NewInterpreterWithConfig(Config{Timeout: 20 * time.Millisecond})
	defer interpreter.Close(context.Background())
	ctx := context.Background()

	t.Run("trap", func(t *testing.T) {
		rule, err := interpreter.Load(ctx, "trap", trapModule, core.Defect)
		require.NoError(t, err)
		assert.Equal(t, core.Defect, rule.Next(policy.View{Opponent: history(t, "C")}))
	})

	t.Run("timeout", func(t *testing.T) {
		rule, err := interpreter.Load(ctx, "spin", spinModule, core.Cooperate)
		require.NoError(t, err)
		start := time.Now()
		assert.Equal(t, core.Cooperate, rule.Next(policy.View{Opponent: history(t, "D")}))
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestRule_DrivesEngine(t *testing.T) {
	interpreter := NewInterpreter()
	defer interpreter.Close(context.Background())

	rule, err := interpreter.Load(context.Background(), "tft", TitForTatModule(), core.Cooperate)
	require.NoError(t, err)
	assert.Equal(t, "tft", rule.Name())

	cfg := policy.DefaultConfig()
	cfg.Name = "wasm_tft"
	cfg.Rule = policy.RuleConfig{Kind: policy.RuleExternal, Module: "tft"}
	e, err := policy.New(cfg, policy.WithRule(rule))
	require.NoError(t, err)

	a, _ := e.Decide(core.Snapshot{Own: history(t, "CC"), Opponent: history(t, "CD")}, core.NewModeState())
	assert.Equal(t, core.Defect, a)
	a, _ = e.Decide(core.Snapshot{Own: history(t, "CCD"), Opponent: history(t, "CDC")}, core.NewModeState())
	assert.Equal(t, core.Cooperate, a)
}

func TestRule_Concurrent(t *testing.T) {
	interpreter := NewInterpreter()
	defer interpreter.Close(context.Background())

	rule, err := interpreter.Load(context.Background(), "tft", TitForTatModule(), core.Cooperate)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan core.Action, 16)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				if got := rule.Next(policy.View{Opponent: []core.Action{core.Cooperate, core.Defect}}); got != core.Defect {
					errs <- got
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	assert.Empty(t, errs)
}
