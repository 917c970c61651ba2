package heavy

import (
	"errors"
	"fmt"
	"time"

	"github.com/snow-ghost/dilemma/worker/light"
)

// Config controls the candidate search loop.
type Config struct {
	Baseline   string        `yaml:"baseline" json:"baseline"`
	Opponents  []string      `yaml:"opponents" json:"opponents"`
	Iterations int           `yaml:"iterations" json:"iterations"`
	Candidates int           `yaml:"candidates" json:"candidates"`
	Deadline   time.Duration `yaml:"deadline" json:"deadline"`
	// Threshold is the minimum fitness a best candidate needs to be saved.
	Threshold         float64            `yaml:"threshold" json:"threshold"`
	Weights           map[string]float64 `yaml:"weights" json:"weights"`
	ComplexityPenalty float64            `yaml:"complexity_penalty" json:"complexity_penalty"`
	// Evaluation is the tournament each accepted candidate is scored in.
	Evaluation light.Config `yaml:"evaluation" json:"evaluation"`
}

func DefaultConfig() Config {
	eval := light.DefaultConfig()
	eval.Repetitions = 2
	return Config{
		Baseline:   "tit_for_tat",
		Opponents:  []string{"always_defect", "always_cooperate", "grudger", "pavlov", "suspicious_tft", "periodic_prober"},
		Iterations: 4,
		Candidates: 3,
		Deadline:   30 * time.Second,
		Weights: map[string]float64{
			"mean_score": 1.0,
			"coop_rate":  0.5,
			"win_rate":   0.5,
		},
		ComplexityPenalty: 0.02,
		Evaluation:        eval,
	}
}

func (c Config) Validate() error {
	if c.Baseline == "" {
		return errors.New("search baseline is required")
	}
	if c.Iterations <= 0 {
		return errors.New("search iterations must be positive")
	}
	if c.Deadline <= 0 {
		return errors.New("search deadline must be positive")
	}
	if len(c.Weights) == 0 {
		return errors.New("search needs at least one fitness weight")
	}
	if err := c.Evaluation.Validate(); err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	return nil
}

// Request is a search submission. Zero fields keep the worker's config.
type Request struct {
	Baseline   string        `json:"baseline,omitempty"`
	Opponents  []string      `json:"opponents,omitempty"`
	Iterations int           `json:"iterations,omitempty"`
	Deadline   time.Duration `json:"deadline,omitempty"`
}

// Apply returns c overridden by the non-zero fields of req.
func (c Config) Apply(req Request) Config {
	if req.Baseline != "" {
		c.Baseline = req.Baseline
	}
	if len(req.Opponents) > 0 {
		c.Opponents = req.Opponents
	}
	if req.Iterations > 0 {
		c.Iterations = req.Iterations
	}
	if req.Deadline > 0 {
		c.Deadline = req.Deadline
	}
	return c
}
