// Package dice provides the single seeded dice source used by the mechanics
// engine. All randomness in a session flows through one Roller so that a
// session replayed with the same seed produces identical rolls.
package dice

import (
	"math/rand/v2"
	"sync"
)

// Roller produces dice rolls from a seeded PCG source.
// It is safe for concurrent use, though in practice the mechanics engine
// serialises all rolls through the round loop.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Roller seeded with seed. The same seed always yields the same
// roll sequence.
func New(seed uint64) *Roller {
	return &Roller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// D20 rolls a twenty-sided die, returning a value in [1, 20].
func (r *Roller) D20() int {
	return r.Roll(20)
}

// Roll rolls a single die with the given number of sides, returning a value
// in [1, sides]. Rolling a die with fewer than one side returns 1.
func (r *Roller) Roll(sides int) int {
	if sides < 1 {
		return 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(sides) + 1
}

// RollN rolls n dice with the given number of sides and returns their sum.
func (r *Roller) RollN(n, sides int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += r.Roll(sides)
	}
	return total
}
