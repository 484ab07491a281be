package rng

import (
	"math/rand/v2"
)

// PCGAdapter implements ports.RNGPort with one PCG generator per work unit.
// The second PCG seed word is a splitmix64 hash of (seed, index), which
// keeps neighbouring indices from landing on correlated states.
type PCGAdapter struct{}

// NewPCGAdapter creates a new PCG stream factory
func NewPCGAdapter() *PCGAdapter {
	return &PCGAdapter{}
}

// Stream returns the deterministic generator for work unit index under seed
func (a *PCGAdapter) Stream(seed uint64, index int) *rand.Rand {
	return rand.New(rand.NewPCG(splitmix64(seed), splitmix64(seed^splitmix64(uint64(index)+1))))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
