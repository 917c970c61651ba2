package memory

import (
	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
)

// forever is a mode duration longer than any match we play.
const forever = 1 << 30

// Builtins returns the catalog of classic variants, each one a Config.
func Builtins() []policy.Config {
	cooperate := core.Cooperate

	variant := func(name, desc string, tags []string, edit func(*policy.Config)) policy.Config {
		cfg := policy.DefaultConfig()
		cfg.Name = name
		cfg.Description = desc
		cfg.Tags = tags
		if edit != nil {
			edit(&cfg)
		}
		return cfg
	}

	return []policy.Config{
		variant("tit_for_tat", "Cooperate first, then copy the opponent's last move.",
			[]string{"classic", "nice", "reactive"}, nil),

		variant("generous_tft", "Tit-for-tat that deviates from its intended move 5% of the time.",
			[]string{"classic", "nice", "stochastic"}, func(c *policy.Config) {
				c.Probability = 0.95
			}),

		variant("tit_for_two_tats", "Retaliate only after two consecutive defections.",
			[]string{"classic", "nice", "forgiving"}, func(c *policy.Config) {
				c.Rule.Tolerance = 1
			}),

		variant("grudger", "Cooperate until the first defection, then defect for good.",
			[]string{"classic", "nice", "retaliatory"}, func(c *policy.Config) {
				c.Rule.Kind = policy.RuleAlwaysCooperate
				c.Streak = policy.StreakTrigger{Action: core.Defect, Length: 1, Mode: core.ModeLockDefect, Duration: forever}
			}),

		variant("pavlov", "Win-stay, lose-shift.",
			[]string{"classic", "nice", "reactive"}, func(c *policy.Config) {
				c.Rule.Kind = policy.RuleWinStayLoseShift
			}),

		variant("suspicious_tft", "Tit-for-tat that opens with a defection.",
			[]string{"classic", "reactive"}, func(c *policy.Config) {
				c.Opening = core.Defect
			}),

		variant("always_cooperate", "Unconditional cooperation.",
			[]string{"classic", "nice", "unconditional"}, func(c *policy.Config) {
				c.Rule.Kind = policy.RuleAlwaysCooperate
			}),

		variant("always_defect", "Unconditional defection.",
			[]string{"classic", "unconditional"}, func(c *policy.Config) {
				c.Opening = core.Defect
				c.Rule.Kind = policy.RuleAlwaysDefect
			}),

		variant("majority_10", "Cooperate if the opponent cooperated in at least 5 of the last 10 rounds.",
			[]string{"window", "nice"}, func(c *policy.Config) {
				c.Rule = policy.RuleConfig{Kind: policy.RuleMajority, Window: 10, K: 5}
			}),

		variant("periodic_prober", "Tit-for-tat that offers cooperation every 20 rounds.",
			[]string{"periodic", "nice"}, func(c *policy.Config) {
				c.Periodic = policy.PeriodicTrigger{Period: 20, Action: core.Cooperate}
			}),

		variant("score_keeper", "Punishes when 10 points behind, locks into cooperation when 10 ahead.",
			[]string{"score", "nice"}, func(c *policy.Config) {
				c.ScoreGap = policy.ScoreGapTrigger{
					Threshold: 10, Behind: core.ModePunish, Ahead: core.ModeLockCooperate, Duration: 3,
				}
			}),

		variant("alternation_breaker", "Tit-for-tat that cooperates once to break a C/D echo.",
			[]string{"streak", "nice", "forgiving"}, func(c *policy.Config) {
				c.Streak = policy.StreakTrigger{Alternation: 4, Override: &cooperate}
			}),

		variant("endgame_defector", "Tit-for-tat that defects through the last 10 rounds.",
			[]string{"endgame", "nice"}, func(c *policy.Config) {
				c.Endgame = policy.EndgameConfig{Window: 10, Action: core.Defect, Probability: 1}
			}),

		variant("noisy_forgiver", "Ignores isolated defections under noise and breaks mutual defection.",
			[]string{"noise", "nice", "forgiving"}, func(c *policy.Config) {
				c.Noise.ForgiveIsolated = true
				c.Streak = policy.StreakTrigger{Action: core.Defect, Length: 2, Mutual: true, Override: &cooperate}
			}),

		variant("rate_watcher", "Cooperates above a 50% cooperation rate; punishes when it drops below 30%.",
			[]string{"window", "rate"}, func(c *policy.Config) {
				c.TieBreak = policy.TieDefect
				c.Rule = policy.RuleConfig{Kind: policy.RuleThreshold, Window: 20, Threshold: 0.5}
				c.Rate = policy.RateTrigger{
					Window: 10, Low: 0.3, LowMode: core.ModePunish,
					High: 0.8, HighMode: core.ModeLockCooperate, Duration: 3,
				}
			}),
	}
}
