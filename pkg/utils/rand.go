package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RandSource is a thread-safe, seedable random number generator
type RandSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed. A zero
// seed draws one from the clock.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Simplex returns n non-negative weights summing to one, drawn uniformly
// from the probability simplex.
func (r *RandSource) Simplex(n int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, n)
	total := 0.0
	for i := range out {
		out[i] = r.rng.ExpFloat64()
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
