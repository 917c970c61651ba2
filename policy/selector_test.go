package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/rng"
)

// seq is a scripted core.Rand that counts draws.
type seq struct {
	vals  []float64
	draws int
}

func (s *seq) Float64() float64 {
	v := s.vals[s.draws%len(s.vals)]
	s.draws++
	return v
}

func (s *seq) RandInt(lo, hi int) int { return lo }

func TestSelectProbabilityOneIsPure(t *testing.T) {
	r := &seq{vals: []float64{0.0, 0.5, 0.999}}
	for i := 0; i < 10; i++ {
		assert.Equal(t, core.Cooperate, Select(core.Cooperate, 1.0, r))
		assert.Equal(t, core.Defect, Select(core.Defect, 1.0, r))
	}
	assert.Zero(t, r.draws)
	assert.Equal(t, core.Defect, Select(core.Defect, 1.0, nil))
}

func TestSelectProbabilityZeroFlips(t *testing.T) {
	assert.Equal(t, core.Defect, Select(core.Cooperate, 0, nil))
	assert.Equal(t, core.Cooperate, Select(core.Defect, -1, nil))
}

func TestSelectDraws(t *testing.T) {
	r := &seq{vals: []float64{0.2, 0.9}}
	assert.Equal(t, core.Cooperate, Select(core.Cooperate, 0.7, r))
	assert.Equal(t, core.Defect, Select(core.Cooperate, 0.7, r))
	assert.Equal(t, 2, r.draws)
}

func TestSelectFrequency(t *testing.T) {
	r := rng.New(3)
	kept := 0
	for i := 0; i < 10000; i++ {
		if Select(core.Cooperate, 0.9, r) == core.Cooperate {
			kept++
		}
	}
	assert.InDelta(t, 9000, kept, 300)
}
