// Package sensor produces raw distance readings in centimeters.
package sensor

import (
	"context"
	"errors"
	"time"
)

// ErrNoEcho is returned when the echo pulse does not start or end within the timeout
var ErrNoEcho = errors.New("no echo")

// soundSpeedCMPerMicrosecond is the speed of sound used to convert a round-trip echo
const soundSpeedCMPerMicrosecond = 0.034

// Sampler takes one raw measurement. A failed measurement still reports 0 alongside the error.
type Sampler interface {
	Measure(ctx context.Context) (float64, error)
}

// SamplerFunc adapts a function to Sampler
type SamplerFunc func(ctx context.Context) (float64, error)

func (f SamplerFunc) Measure(ctx context.Context) (float64, error) {
	return f(ctx)
}

// PulseToCentimeters converts a round-trip echo pulse width into a one-way distance
func PulseToCentimeters(width time.Duration) float64 {
	us := float64(width) / float64(time.Microsecond)
	return us * soundSpeedCMPerMicrosecond / 2
}
