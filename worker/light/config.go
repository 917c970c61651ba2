package light

import (
	"errors"

	"github.com/snow-ghost/dilemma/match"
)

// Config controls a round robin run.
type Config struct {
	Match match.Config `yaml:"match" json:"match"`
	// Seeds are the base seeds; every pairing is played Repetitions times per
	// seed. Empty means Match.Seed alone.
	Seeds       []uint64 `yaml:"seeds" json:"seeds"`
	Repetitions int      `yaml:"repetitions" json:"repetitions"`
	SelfPlay    bool     `yaml:"self_play" json:"self_play"`
	Workers     int      `yaml:"workers" json:"workers"`
	// Players are catalog names; empty means the whole catalog.
	Players     []string `yaml:"players" json:"players"`
	KeepResults bool     `yaml:"keep_results" json:"keep_results"`
}

func DefaultConfig() Config {
	m := match.DefaultConfig()
	m.Noise = 0.05
	m.Seed = 1
	return Config{
		Match:       m,
		Repetitions: 3,
		Workers:     4,
	}
}

func (c Config) Validate() error {
	if err := c.Match.Validate(); err != nil {
		return err
	}
	if c.Repetitions <= 0 {
		return errors.New("repetitions must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	return nil
}

func (c Config) seeds() []uint64 {
	if len(c.Seeds) == 0 {
		return []uint64{c.Match.Seed}
	}
	return c.Seeds
}

// Request is a tournament submission. Zero fields keep the worker's config.
type Request struct {
	ID          string   `json:"id,omitempty"`
	Players     []string `json:"players,omitempty"`
	Rounds      int      `json:"rounds,omitempty"`
	Noise       *float64 `json:"noise,omitempty"`
	Seeds       []uint64 `json:"seeds,omitempty"`
	Repetitions int      `json:"repetitions,omitempty"`
	SelfPlay    *bool    `json:"self_play,omitempty"`
	HideLength  *bool    `json:"hide_length,omitempty"`
}

// Apply returns c overridden by the non-zero fields of req.
func (c Config) Apply(req Request) Config {
	if len(req.Players) > 0 {
		c.Players = req.Players
	}
	if req.Rounds > 0 {
		c.Match.Rounds = req.Rounds
	}
	if req.Noise != nil {
		c.Match.Noise = *req.Noise
	}
	if len(req.Seeds) > 0 {
		c.Seeds = req.Seeds
	}
	if req.Repetitions > 0 {
		c.Repetitions = req.Repetitions
	}
	if req.SelfPlay != nil {
		c.SelfPlay = *req.SelfPlay
	}
	if req.HideLength != nil {
		c.Match.HideLength = *req.HideLength
	}
	return c
}
