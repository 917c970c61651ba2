package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/policy/guard"
)

func strategy(t *testing.T, name string, mutate func(*policy.Config)) *policy.Engine {
	t.Helper()
	cfg := policy.DefaultConfig()
	cfg.Name = name
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := policy.New(cfg)
	require.NoError(t, err)
	return e
}

func TestPayoff(t *testing.T) {
	p := DefaultPayoff()
	require.NoError(t, p.Validate())
	assert.Equal(t, 3.0, p.Score(core.Cooperate, core.Cooperate))
	assert.Equal(t, 0.0, p.Score(core.Cooperate, core.Defect))
	assert.Equal(t, 5.0, p.Score(core.Defect, core.Cooperate))
	assert.Equal(t, 1.0, p.Score(core.Defect, core.Defect))

	assert.Error(t, Payoff{Reward: 5, Temptation: 3, Punishment: 1}.Validate())
}

func TestPlayTitForTatPair(t *testing.T) {
	tft := strategy(t, "tft", nil)
	res, err := Play(context.Background(), tft, tft, Config{Rounds: 50, Payoff: DefaultPayoff()})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, [2]float64{150, 150}, res.Scores)
	assert.Equal(t, -1, res.Winner())
	assert.Equal(t, [2]float64{1, 1}, res.CooperationRate)
	assert.Equal(t, 50, res.ModeRounds[0][core.ModeNormal])
}

func TestPlayAgainstDefector(t *testing.T) {
	tft := strategy(t, "tft", nil)
	alld := strategy(t, "all_d", func(c *policy.Config) { c.Rule.Kind = policy.RuleAlwaysDefect; c.Opening = core.Defect })

	res, err := Play(context.Background(), tft, alld, Config{Rounds: 10, Payoff: DefaultPayoff()})
	require.NoError(t, err)
	assert.Equal(t, "CDDDDDDDDD", core.FormatActions(res.Actions[0]))
	assert.Equal(t, "DDDDDDDDDD", core.FormatActions(res.Actions[1]))
	assert.Equal(t, 9.0, res.Scores[0])
	assert.Equal(t, 14.0, res.Scores[1])
	assert.Equal(t, 1, res.Winner())
}

func TestPlayDeterministicUnderNoise(t *testing.T) {
	a := strategy(t, "gtft", func(c *policy.Config) { c.Probability = 0.9 })
	b := strategy(t, "grudge", func(c *policy.Config) {
		c.Streak = policy.StreakTrigger{Action: core.Defect, Length: 1, Mode: core.ModeLockDefect, Duration: 20}
	})
	cfg := Config{Rounds: 200, Noise: 0.05, Seed: 1234, Payoff: DefaultPayoff()}

	r1, err := Play(context.Background(), a, b, cfg)
	require.NoError(t, err)
	r2, err := Play(context.Background(), a, b, cfg)
	require.NoError(t, err)

	assert.Equal(t, r1.Actions, r2.Actions)
	assert.Equal(t, r1.Scores, r2.Scores)
	assert.NotEqual(t, r1.ID, r2.ID)

	cfg.Seed = 4321
	r3, err := Play(context.Background(), a, b, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, r1.Actions, r3.Actions)
}

func TestPlayHiddenLength(t *testing.T) {
	eg := strategy(t, "endgame", func(c *policy.Config) { c.Endgame.Window = 5 })
	tft := strategy(t, "tft", nil)

	res, err := Play(context.Background(), eg, tft, Config{Rounds: 20, Payoff: DefaultPayoff()})
	require.NoError(t, err)
	assert.Equal(t, 5, res.ModeRounds[0][core.ModeEndgame])

	res, err = Play(context.Background(), eg, tft, Config{Rounds: 20, Payoff: DefaultPayoff(), HideLength: true})
	require.NoError(t, err)
	assert.Zero(t, res.ModeRounds[0][core.ModeEndgame])
	assert.Equal(t, 20, res.ModeRounds[0][core.ModeNormal])
}

func TestPlayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tft := strategy(t, "tft", nil)
	_, err := Play(ctx, tft, tft, DefaultConfig())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPlayInvalidConfig(t *testing.T) {
	tft := strategy(t, "tft", nil)
	_, err := Play(context.Background(), tft, tft, Config{Rounds: 0, Payoff: DefaultPayoff()})
	require.Error(t, err)
	_, err = Play(context.Background(), tft, tft, Config{Rounds: 5, Noise: 2, Payoff: DefaultPayoff()})
	require.Error(t, err)
}

// sluggish reads the match after its guard has given up on it.
type sluggish struct{ delay time.Duration }

func (sluggish) Name() string { return "sluggish" }

func (s sluggish) Decide(rc core.RoundContext, st core.ModeState) (core.Action, core.ModeState) {
	time.Sleep(s.delay)
	_ = len(rc.OwnHistory()) + len(rc.OpponentHistory())
	if rc.Rand().Float64() < 0.5 {
		return core.Defect, st
	}
	return core.Cooperate, st
}

func TestPlayAbandonedGuardedStrategy(t *testing.T) {
	g := guard.NewGuard(nil, time.Millisecond)
	slow := g.Wrap(sluggish{delay: 3 * time.Millisecond}, core.Defect)
	tft := strategy(t, "tft", nil)

	res, err := Play(context.Background(), slow, tft, Config{Rounds: 50, Seed: 4, Payoff: DefaultPayoff()})
	require.NoError(t, err)
	require.Len(t, res.Actions[0], 50)
	assert.Equal(t, 0, policy.Count(res.Actions[0], core.Cooperate))
	time.Sleep(10 * time.Millisecond)
}

func TestPlayGuardedStrategyDeterministic(t *testing.T) {
	g := guard.NewGuard(nil, time.Second)
	random := g.Wrap(sluggish{}, core.Defect)
	tft := strategy(t, "tft", nil)
	cfg := Config{Rounds: 40, Seed: 21, Payoff: DefaultPayoff()}

	first, err := Play(context.Background(), random, tft, cfg)
	require.NoError(t, err)
	second, err := Play(context.Background(), random, tft, cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Actions, second.Actions)
	assert.Equal(t, first.Scores, second.Scores)
}
