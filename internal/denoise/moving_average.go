// Package denoise smooths raw rangefinder readings with a fixed-size moving average.
package denoise

// DefaultWindow is the number of readings averaged by default
const DefaultWindow = 10

// Option configures a MovingAverage
type Option func(*MovingAverage)

// WithWarmupCorrection divides by the number of readings seen so far instead of the window
// size until the window is full. Off by default: the uncorrected filter reports averages biased
// towards zero during warm-up, and receivers tuned to that behaviour depend on it.
func WithWarmupCorrection() Option {
	return func(m *MovingAverage) {
		m.warmupCorrection = true
	}
}

// MovingAverage is a circular buffer of the last N readings plus their running sum.
// The sum always equals the sum of the buffer; empty slots hold zero.
// The filter's time constant is in calls, so Push must be called at a steady cadence.
// Not safe for concurrent use.
type MovingAverage struct {
	readings []float64
	index    int
	sum      float64
	count    int

	warmupCorrection bool
}

// NewMovingAverage allocates a filter over window readings. A window below 1 uses DefaultWindow.
func NewMovingAverage(window int, opts ...Option) *MovingAverage {
	if window < 1 {
		window = DefaultWindow
	}
	m := &MovingAverage{readings: make([]float64, window)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Push replaces the oldest reading with reading and returns the new average.
// O(1) and allocation-free.
func (m *MovingAverage) Push(reading float64) float64 {
	m.sum += reading - m.readings[m.index]
	m.readings[m.index] = reading
	m.index = (m.index + 1) % len(m.readings)
	if m.count < len(m.readings) {
		m.count++
	}
	return m.Average()
}

// Average returns the current average without pushing.
func (m *MovingAverage) Average() float64 {
	divisor := len(m.readings)
	if m.warmupCorrection && m.count < divisor {
		if m.count == 0 {
			return 0
		}
		divisor = m.count
	}
	return m.sum / float64(divisor)
}

// Sum returns the running sum of the buffered readings.
func (m *MovingAverage) Sum() float64 {
	return m.sum
}

// Len returns how many slots hold real readings (saturates at Cap).
func (m *MovingAverage) Len() int {
	return m.count
}
