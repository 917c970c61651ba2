package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/core"
)

func acts(t *testing.T, s string) []core.Action {
	t.Helper()
	a, err := core.ParseActions(s)
	require.NoError(t, err)
	return a
}

func TestLastNAndCount(t *testing.T) {
	h := acts(t, "CCDCD")
	assert.Equal(t, acts(t, "CD"), LastN(h, 2))
	assert.Equal(t, h, LastN(h, 50))
	assert.Empty(t, LastN(h, 0))
	assert.Empty(t, LastN(nil, 3))
	assert.Equal(t, 2, Count(h, core.Defect))
	assert.Equal(t, 0, Count(nil, core.Defect))

	v := View{}
	assert.True(t, v.IsFirstRound())
	v.Own = acts(t, "C")
	assert.False(t, v.IsFirstRound())
}

func TestCooperationRateShortWindow(t *testing.T) {
	for _, s := range []string{"C", "CD", "DDC", "CCCD"} {
		h := acts(t, s)
		full := CooperationRate(h, len(h), 0.5)
		for _, window := range []int{len(h) + 1, 10, 100} {
			got := CooperationRate(h, window, 0.5)
			require.False(t, math.IsNaN(got))
			assert.Equal(t, full, got, "history %s window %d", s, window)
		}
	}

	assert.Equal(t, 1.0, CooperationRate(nil, 10, 1.0))
	assert.Equal(t, 0.0, CooperationRate(nil, 10, 0.0))
	assert.InDelta(t, 0.5, CooperationRate(acts(t, "DDDCDC"), 4, 1), 1e-12)
	assert.InDelta(t, 2.0/6.0, CooperationRate(acts(t, "DDDCDC"), 0, 1), 1e-12)
}

func TestStreakLength(t *testing.T) {
	assert.Equal(t, 3, StreakLength(acts(t, "CDDD"), core.Defect))
	assert.Equal(t, 0, StreakLength(acts(t, "CDDD"), core.Cooperate))
	assert.Equal(t, 0, StreakLength(nil, core.Defect))
}

func TestMutualStreak(t *testing.T) {
	own, opp := acts(t, "CDD"), acts(t, "DDD")
	assert.True(t, MutualStreak(own, opp, core.Defect, 2))
	assert.False(t, MutualStreak(own, opp, core.Defect, 3))
	assert.False(t, MutualStreak(own[:1], opp[:1], core.Defect, 2), "shorter than the window")
	assert.False(t, MutualStreak(own, opp, core.Defect, 0))
}

func TestDetectAlternation(t *testing.T) {
	assert.True(t, DetectAlternation(acts(t, "CCDCD"), 4))
	assert.False(t, DetectAlternation(acts(t, "CCDCD"), 5))
	assert.True(t, DetectAlternation(acts(t, "DC"), 10))
	assert.False(t, DetectAlternation(acts(t, "D"), 10))
	assert.False(t, DetectAlternation(nil, 4))
}

func TestInterpret(t *testing.T) {
	h := acts(t, "CCDCCDDCD")
	assert.Equal(t, h, Interpret(h, 0, true), "no noise, no forgiveness")
	assert.Equal(t, h, Interpret(h, 0.1, false))

	got := Interpret(h, 0.1, true)
	assert.Equal(t, "CCCCCDDCC", core.FormatActions(got))
	assert.Equal(t, "CCDCCDDCD", core.FormatActions(h), "input untouched")

	assert.Equal(t, "D", core.FormatActions(Interpret(acts(t, "D"), 0.1, true)))
	assert.Equal(t, "DD", core.FormatActions(Interpret(acts(t, "DD"), 0.1, true)))
}
