package ports

import (
	"math/rand/v2"
)

// RNGPort hands out deterministic random streams. Streams for different
// indices under the same seed are independent, so concurrent work units
// never share a generator.
type RNGPort interface {
	// Stream returns the generator for work unit index under seed.
	Stream(seed uint64, index int) *rand.Rand
}
