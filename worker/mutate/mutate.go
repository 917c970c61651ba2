package mutate

import (
	"fmt"
	"math"
	"slices"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
)

// SimpleMutator produces single-parameter variants of a strategy config.
type SimpleMutator struct{}

func NewSimpleMutator() *SimpleMutator { return &SimpleMutator{} }

type edit struct {
	suffix string
	// apply changes c and reports whether the edit applies to it.
	apply func(c *policy.Config) bool
}

var edits = []edit{
	{"tolerant", func(c *policy.Config) bool {
		if c.Rule.Kind != policy.RuleMirror || c.Rule.Tolerance >= 3 {
			return false
		}
		c.Rule.Tolerance++
		return true
	}},
	{"strict", func(c *policy.Config) bool {
		if c.Rule.Kind != policy.RuleMirror || c.Rule.Tolerance == 0 {
			return false
		}
		c.Rule.Tolerance--
		return true
	}},
	{"lenient", func(c *policy.Config) bool {
		if c.Rule.Kind != policy.RuleThreshold && c.Rule.Kind != policy.RuleMajority {
			return false
		}
		if c.Rule.Kind == policy.RuleMajority {
			if c.Rule.K <= 1 {
				return false
			}
			c.Rule.K--
			return true
		}
		c.Rule.Threshold = round2(math.Max(0, c.Rule.Threshold-0.1))
		return true
	}},
	{"forgiving", func(c *policy.Config) bool {
		c.Noise.ForgiveIsolated = !c.Noise.ForgiveIsolated
		return true
	}},
	{"generous", func(c *policy.Config) bool {
		if c.Probability >= 1 {
			c.Probability = 0.95
		} else {
			c.Probability = 1
		}
		return true
	}},
	{"retaliator", func(c *policy.Config) bool {
		if c.Streak.Length > 0 {
			c.Streak.Duration++
			return true
		}
		c.Streak = policy.StreakTrigger{Action: core.Defect, Length: 2, Mode: core.ModePunish, Duration: 2}
		return true
	}},
	{"calm", func(c *policy.Config) bool {
		if c.Streak.Length == 0 || c.Streak.Duration <= 1 {
			return false
		}
		c.Streak.Duration--
		return true
	}},
	{"prober", func(c *policy.Config) bool {
		if c.Periodic.Period > 0 {
			c.Periodic.Period = 0
			return true
		}
		c.Periodic = policy.PeriodicTrigger{Period: 25, Action: core.Cooperate}
		return true
	}},
	{"endgame", func(c *policy.Config) bool {
		if c.Endgame.Window > 0 {
			c.Endgame.Window = 0
			return true
		}
		c.Endgame = policy.EndgameConfig{Window: 5, Action: core.Defect, Probability: 1}
		return true
	}},
	{"rate_guard", func(c *policy.Config) bool {
		if c.Rate.Window > 0 {
			return false
		}
		c.Rate = policy.RateTrigger{Window: 10, Low: 0.3, LowMode: core.ModePunish, High: 0.8, Duration: 3}
		return true
	}},
	{"extend", func(c *policy.Config) bool {
		if c.Complexity() == 0 {
			return false
		}
		if c.Rearm == policy.RearmExtend {
			c.Rearm = policy.RearmRestart
		} else {
			c.Rearm = policy.RearmExtend
		}
		return true
	}},
}

// Mutate returns the valid variants of base that differ from it. Each
// variant is named "<base>~<edit>". Externally ruled configs only get
// edits outside the rule.
func (m *SimpleMutator) Mutate(base policy.Config) []policy.Config {
	candidates := make([]policy.Config, 0, len(edits))
	for _, e := range edits {
		c := clone(base)
		if !e.apply(&c) {
			continue
		}
		c.Name = fmt.Sprintf("%s~%s", base.Name, e.suffix)
		if !slices.Contains(c.Tags, "mutant") {
			c.Tags = append(c.Tags, "mutant")
		}
		if err := c.Validate(); err != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func clone(c policy.Config) policy.Config {
	c.Tags = slices.Clone(c.Tags)
	if c.Streak.Override != nil {
		o := *c.Streak.Override
		c.Streak.Override = &o
	}
	return c
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
