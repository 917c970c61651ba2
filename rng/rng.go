// Package rng provides the seeded random source handed to players. Every
// match owns its own sources so parallel matches never share a stream.
package rng

import "math/rand/v2"

// Source implements core.Rand on top of a PCG generator.
type Source struct {
	seed uint64
	r    *rand.Rand
}

// New creates a source for the given seed. Equal seeds yield equal streams.
func New(seed uint64) *Source {
	return &Source{seed: seed, r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() uint64 { return s.seed }

func (s *Source) Float64() float64 { return s.r.Float64() }

// RandInt returns a value in [lo, hi]. Swapped bounds are tolerated.
func (s *Source) RandInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.r.IntN(hi-lo+1)
}

// Derive returns an independent source for a numbered stream. It does not
// consume from s, so derivation order does not matter.
func (s *Source) Derive(stream uint64) *Source {
	return New(Mix(s.seed, stream))
}

// Mix combines a base seed with a stream number (splitmix64 finaliser).
func Mix(seed, stream uint64) uint64 {
	z := seed + 0x9e3779b97f4a7c15*(stream+1)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
