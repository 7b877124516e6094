// Package entropy provides the seedable random source threaded through
// population initialization and round execution.
// There is no package-level random state: every stochastic call site takes a *Source,
// so two runs built from the same seed replay identically.
package entropy

import (
	"math/rand"
)

// Source is a deterministic random stream. It is not safe for concurrent use;
// the round scheduler owns exactly one.
type Source struct {
	seed int64
	rng  *rand.Rand
}

// New creates a Source seeded with seed.
func New(seed int64) *Source {
	return &Source{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Float returns a uniform float64 in [0, 1).
func (s *Source) Float() float64 {
	return s.rng.Float64()
}

// Uniform returns a uniform float64 in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// Normal returns a Gaussian sample with the given mean and standard deviation.
func (s *Source) Normal(mean, stddev float64) float64 {
	return mean + s.rng.NormFloat64()*stddev
}

// Chance returns true with probability p. Always consumes one draw.
func (s *Source) Chance(p float64) bool {
	return s.rng.Float64() < p
}

// Intn returns a uniform int in [0, n). n must be positive.
func (s *Source) Intn(n int) int {
	return s.rng.Intn(n)
}

// WeightedChoice returns an index into weights chosen with probability
// proportional to its weight. Negative weights count as zero. If the total
// weight is not positive, index 0 is returned.
func (s *Source) WeightedChoice(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}

	r := s.rng.Float64() * total
	acc := 0.0
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if r < acc {
			return i
		}
	}
	// Floating point round-off: fall back to the last positive weight.
	return last
}

// Pick returns a uniformly chosen element of items. items must be non-empty.
func Pick[T any](s *Source, items []T) T {
	return items[s.rng.Intn(len(items))]
}
