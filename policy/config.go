package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/dilemma/core"
)

// ErrInvalidConfig is returned for configurations the engine refuses to build.
var ErrInvalidConfig = errors.New("invalid policy config")

// TieBreak resolves a rate that sits exactly on a threshold.
type TieBreak string

const (
	TieCooperate TieBreak = "cooperate"
	TieDefect    TieBreak = "defect"
)

// Rearm decides what a trigger does to a timed mode that is already active.
type Rearm string

const (
	RearmRestart Rearm = "restart"
	RearmExtend  Rearm = "extend"
)

// RuleKind names a reactive rule used in Normal mode.
type RuleKind string

const (
	RuleMirror           RuleKind = "mirror"
	RuleMajority         RuleKind = "majority"
	RuleThreshold        RuleKind = "threshold"
	RuleWinStayLoseShift RuleKind = "win_stay_lose_shift"
	RuleAlwaysCooperate  RuleKind = "always_cooperate"
	RuleAlwaysDefect     RuleKind = "always_defect"
	RuleExternal         RuleKind = "external"
)

// RuleKinds lists the reactive rules in a stable order.
var RuleKinds = []RuleKind{
	RuleMirror, RuleMajority, RuleThreshold, RuleWinStayLoseShift,
	RuleAlwaysCooperate, RuleAlwaysDefect, RuleExternal,
}

// Config is the immutable parameter record a policy is built from. Each
// named strategy variant is one Config value.
type Config struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	Opening core.Action `yaml:"opening" json:"opening"`
	// Probability of emitting the base action as-is outside Endgame.
	Probability float64 `yaml:"probability" json:"probability"`
	// EmptyWindowRate is the cooperation rate reported for an empty window.
	EmptyWindowRate float64  `yaml:"empty_window_rate" json:"empty_window_rate"`
	TieBreak        TieBreak `yaml:"tie_break" json:"tie_break"`
	Rearm           Rearm    `yaml:"rearm" json:"rearm"`

	Rule     RuleConfig      `yaml:"rule" json:"rule"`
	Noise    NoiseConfig     `yaml:"noise" json:"noise"`
	ScoreGap ScoreGapTrigger `yaml:"score_gap" json:"score_gap"`
	Streak   StreakTrigger   `yaml:"streak" json:"streak"`
	Periodic PeriodicTrigger `yaml:"periodic" json:"periodic"`
	Rate     RateTrigger     `yaml:"rate" json:"rate"`
	Endgame  EndgameConfig   `yaml:"endgame" json:"endgame"`
}

// RuleConfig parameterises the Normal-mode reactive rule.
type RuleConfig struct {
	Kind RuleKind `yaml:"kind" json:"kind"`
	// Tolerance is how many consecutive opponent defections mirror lets pass.
	Tolerance int `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Window    int `yaml:"window,omitempty" json:"window,omitempty"`
	// K is the cooperation count majority requires in Window rounds.
	K         int         `yaml:"k,omitempty" json:"k,omitempty"`
	Threshold float64     `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Fallback  core.Action `yaml:"fallback" json:"fallback"`
	// Module is the artifact reference of an external rule.
	Module string `yaml:"module,omitempty" json:"module,omitempty"`
}

type NoiseConfig struct {
	// ForgiveIsolated reads a lone opponent defection as cooperation when the
	// match is noisy.
	ForgiveIsolated bool `yaml:"forgive_isolated" json:"forgive_isolated"`
}

// ScoreGapTrigger fires when |own - opponent| >= Threshold. Disabled when
// Threshold is zero; a side with an empty mode is skipped.
type ScoreGapTrigger struct {
	Threshold float64   `yaml:"threshold" json:"threshold"`
	Behind    core.Mode `yaml:"behind" json:"behind"`
	Ahead     core.Mode `yaml:"ahead" json:"ahead"`
	Duration  int       `yaml:"duration" json:"duration"`
}

// StreakTrigger fires on a trailing opponent run of Action of at least Length
// rounds, on a mutual run when Mutual is set, or on an alternating window.
// It either enters Mode or, when Override is set, replaces one action.
type StreakTrigger struct {
	Action      core.Action  `yaml:"action" json:"action"`
	Length      int          `yaml:"length" json:"length"`
	Mutual      bool         `yaml:"mutual,omitempty" json:"mutual,omitempty"`
	Alternation int          `yaml:"alternation,omitempty" json:"alternation,omitempty"`
	Mode        core.Mode    `yaml:"mode" json:"mode"`
	Duration    int          `yaml:"duration" json:"duration"`
	Override    *core.Action `yaml:"override,omitempty" json:"override,omitempty"`
}

// PeriodicTrigger forces Action on every round index divisible by Period.
type PeriodicTrigger struct {
	Period int         `yaml:"period" json:"period"`
	Action core.Action `yaml:"action" json:"action"`
}

// RateTrigger watches the opponent's windowed cooperation rate.
type RateTrigger struct {
	Window   int       `yaml:"window" json:"window"`
	Low      float64   `yaml:"low" json:"low"`
	LowMode  core.Mode `yaml:"low_mode" json:"low_mode"`
	High     float64   `yaml:"high" json:"high"`
	HighMode core.Mode `yaml:"high_mode" json:"high_mode"`
	Duration int       `yaml:"duration" json:"duration"`
}

// EndgameConfig covers the last Window rounds of a match of known length.
type EndgameConfig struct {
	Window      int         `yaml:"window" json:"window"`
	Action      core.Action `yaml:"action" json:"action"`
	Probability float64     `yaml:"probability" json:"probability"`
}

// DefaultConfig is plain tit-for-tat with every trigger disabled.
func DefaultConfig() Config {
	return Config{
		Name:            "tit_for_tat",
		Opening:         core.Cooperate,
		Probability:     1.0,
		EmptyWindowRate: 1.0,
		TieBreak:        TieCooperate,
		Rearm:           RearmRestart,
		Rule:            RuleConfig{Kind: RuleMirror, Window: 10, Threshold: 0.5},
		ScoreGap:        ScoreGapTrigger{Behind: core.ModePunish, Ahead: core.ModeLockCooperate, Duration: 5},
		Streak:          StreakTrigger{Action: core.Defect, Mode: core.ModeLockDefect, Duration: 5},
		Periodic:        PeriodicTrigger{Action: core.Cooperate},
		Rate:            RateTrigger{Window: 0, Low: 0.3, High: 0.8, Duration: 5},
		Endgame:         EndgameConfig{Action: core.Defect, Probability: 1.0},
	}
}

// Complexity counts the enabled triggers and noise handling. It feeds the
// complexity penalty of the search fitness.
func (c Config) Complexity() int {
	n := 0
	if c.ScoreGap.Threshold > 0 {
		n++
	}
	if c.Streak.enabled() {
		n++
	}
	if c.Periodic.Period > 0 {
		n++
	}
	if c.Rate.Window > 0 {
		n++
	}
	if c.Endgame.Window > 0 {
		n++
	}
	if c.Noise.ForgiveIsolated {
		n++
	}
	return n
}

func (s StreakTrigger) enabled() bool {
	return s.Length > 0 || s.Alternation > 0
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if err := probability("probability", c.Probability); err != nil {
		return err
	}
	if err := probability("empty_window_rate", c.EmptyWindowRate); err != nil {
		return err
	}
	if c.TieBreak != TieCooperate && c.TieBreak != TieDefect {
		return fmt.Errorf("%w: tie_break must be cooperate or defect, got %q", ErrInvalidConfig, c.TieBreak)
	}
	if c.Rearm != RearmRestart && c.Rearm != RearmExtend {
		return fmt.Errorf("%w: rearm must be restart or extend, got %q", ErrInvalidConfig, c.Rearm)
	}
	if err := c.Rule.validate(); err != nil {
		return err
	}
	if c.ScoreGap.Threshold < 0 {
		return fmt.Errorf("%w: score_gap.threshold must be >= 0", ErrInvalidConfig)
	}
	if c.ScoreGap.Threshold > 0 {
		if err := target("score_gap.behind", c.ScoreGap.Behind, c.ScoreGap.Duration, true); err != nil {
			return err
		}
		if err := target("score_gap.ahead", c.ScoreGap.Ahead, c.ScoreGap.Duration, true); err != nil {
			return err
		}
	}
	if c.Streak.Length < 0 || c.Streak.Alternation < 0 {
		return fmt.Errorf("%w: streak lengths must be >= 0", ErrInvalidConfig)
	}
	if c.Streak.Alternation == 1 {
		return fmt.Errorf("%w: streak.alternation needs a window of at least 2", ErrInvalidConfig)
	}
	if c.Streak.enabled() && c.Streak.Override == nil {
		if err := target("streak.mode", c.Streak.Mode, c.Streak.Duration, false); err != nil {
			return err
		}
	}
	if c.Periodic.Period < 0 {
		return fmt.Errorf("%w: periodic.period must be >= 0", ErrInvalidConfig)
	}
	if c.Rate.Window < 0 {
		return fmt.Errorf("%w: rate.window must be >= 0", ErrInvalidConfig)
	}
	if c.Rate.Window > 0 {
		if err := probability("rate.low", c.Rate.Low); err != nil {
			return err
		}
		if err := probability("rate.high", c.Rate.High); err != nil {
			return err
		}
		if err := target("rate.low_mode", c.Rate.LowMode, c.Rate.Duration, true); err != nil {
			return err
		}
		if err := target("rate.high_mode", c.Rate.HighMode, c.Rate.Duration, true); err != nil {
			return err
		}
		if c.Rate.LowMode == "" && c.Rate.HighMode == "" {
			return fmt.Errorf("%w: rate trigger needs low_mode or high_mode", ErrInvalidConfig)
		}
		if c.Rate.LowMode != "" && c.Rate.HighMode != "" && c.Rate.Low > c.Rate.High {
			return fmt.Errorf("%w: rate.low %.3f is above rate.high %.3f", ErrInvalidConfig, c.Rate.Low, c.Rate.High)
		}
	}
	if c.Endgame.Window < 0 {
		return fmt.Errorf("%w: endgame.window must be >= 0", ErrInvalidConfig)
	}
	return probability("endgame.probability", c.Endgame.Probability)
}

func (r RuleConfig) validate() error {
	switch r.Kind {
	case RuleMirror:
		if r.Tolerance < 0 {
			return fmt.Errorf("%w: rule.tolerance must be >= 0", ErrInvalidConfig)
		}
	case RuleMajority:
		if r.Window <= 0 || r.K <= 0 || r.K > r.Window {
			return fmt.Errorf("%w: majority needs 0 < k <= window, got k=%d window=%d", ErrInvalidConfig, r.K, r.Window)
		}
	case RuleThreshold:
		if err := probability("rule.threshold", r.Threshold); err != nil {
			return err
		}
	case RuleWinStayLoseShift, RuleAlwaysCooperate, RuleAlwaysDefect, RuleExternal:
	default:
		return fmt.Errorf("%w: unknown rule kind %q", ErrInvalidConfig, r.Kind)
	}
	return nil
}

func probability(field string, p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidConfig, field, p)
	}
	return nil
}

// target checks a trigger's destination mode. Endgame and Normal are never
// trigger targets.
func target(field string, m core.Mode, duration int, optional bool) error {
	if m == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
	}
	if !m.Timed() {
		return fmt.Errorf("%w: %s cannot be %q", ErrInvalidConfig, field, m)
	}
	if duration < 1 {
		return fmt.Errorf("%w: %s needs a duration of at least 1", ErrInvalidConfig, field)
	}
	return nil
}

// ParseConfig decodes a YAML (or JSON) document over DefaultConfig and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read policy config: %w", err)
	}
	return ParseConfig(data)
}

// MarshalConfig encodes cfg as YAML.
func MarshalConfig(cfg Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy config: %w", err)
	}
	return out, nil
}
