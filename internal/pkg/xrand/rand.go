package xrand

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is a goroutine-safe pseudo random source shared by the filler branches
// and the demo traffic generator.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a Rand seeded from the wall clock.
func New() *Rand {
	seed := uint64(time.Now().UnixNano())
	return NewSeeded(seed)
}

// NewSeeded returns a Rand with a fixed seed, for reproducible tests.
func NewSeeded(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Uniform returns a float in [lo, hi).
func (r *Rand) Uniform(lo, hi float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.r.Float64()*(hi-lo)
}

// IntN returns an int in [0, n).
func (r *Rand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.IntN(n)
}

// Duration returns a duration uniformly drawn from [lo, hi].
func (r *Rand) Duration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + time.Duration(r.r.Int64N(int64(hi-lo)+1))
}
