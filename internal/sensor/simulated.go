package sensor

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

// Simulated produces a random walk around Base, clamped to [Min, Max], for running the link
// without rangefinder hardware.
type Simulated struct {
	Base   float64
	Jitter float64
	Min    float64
	Max    float64

	mu      sync.Mutex
	rng     *rand.Rand
	current float64
	started bool
}

// NewSimulated returns a sampler wandering around base by at most jitter per reading
func NewSimulated(base, jitter float64, seed uint64) *Simulated {
	return &Simulated{
		Base:   base,
		Jitter: jitter,
		Min:    2,
		Max:    400,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Simulated) Measure(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.current = s.Base
		s.started = true
	}
	step := (s.rng.Float64()*2 - 1) * s.Jitter
	// drift back towards the base so the walk stays around it
	s.current += step + (s.Base-s.current)*0.1
	s.current = math.Max(s.Min, math.Min(s.Max, s.current))
	return s.current, nil
}
