package denoise

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovingAverage_SlidingWindowSum(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	m := NewMovingAverage(DefaultWindow)

	var pushed []float64
	for i := 0; i < 500; i++ {
		v := rng.Float64() * 400
		pushed = append(pushed, v)
		avg := m.Push(v)

		start := len(pushed) - DefaultWindow
		if start < 0 {
			start = 0
		}
		var want float64
		for _, p := range pushed[start:] {
			want += p
		}

		require.InDelta(t, want, m.Sum(), 1e-6, "running sum MUST equal the sum of the last %d pushes (push %d)", DefaultWindow, i)
		require.InDelta(t, want/DefaultWindow, avg, 1e-7, "average MUST be sum over capacity")
	}
}

func TestMovingAverage_WarmupBias(t *testing.T) {
	m := NewMovingAverage(DefaultWindow)

	avg := m.Push(9.996)

	assert.InDelta(t, 0.9996, avg, 1e-9, "first reading MUST be averaged against nine zero slots")
	assert.Equal(t, 1, m.Len())
}

func TestMovingAverage_WarmupCorrection(t *testing.T) {
	m := NewMovingAverage(4, WithWarmupCorrection())

	assert.Equal(t, 0.0, m.Average(), "empty corrected filter MUST report zero")
	assert.InDelta(t, 10.0, m.Push(10), 1e-9)
	assert.InDelta(t, 15.0, m.Push(20), 1e-9)
	m.Push(30)
	assert.InDelta(t, 25.0, m.Push(40), 1e-9)
	assert.Equal(t, 4, m.Len())
	assert.InDelta(t, 35.0, m.Push(50), 1e-9, "full window MUST average the last four readings")
}

func TestMovingAverage_EvictsOldest(t *testing.T) {
	m := NewMovingAverage(3)

	m.Push(3)
	m.Push(6)
	m.Push(9)
	avg := m.Push(12)

	assert.InDelta(t, 27.0, m.Sum(), 1e-9, "oldest reading (3) MUST be evicted")
	assert.InDelta(t, 9.0, avg, 1e-9)
	assert.Equal(t, 3, m.Len())
}

func TestMovingAverage_DefaultsInvalidWindow(t *testing.T) {
	for _, window := range []int{0, -4} {
		m := NewMovingAverage(window)
		assert.InDelta(t, 10.0/DefaultWindow, m.Push(10), 1e-9, "window %d MUST fall back to %d slots", window, DefaultWindow)
	}
}

func TestMovingAverage_PushDoesNotAllocate(t *testing.T) {
	m := NewMovingAverage(DefaultWindow)
	v := 0.0

	allocs := testing.AllocsPerRun(10000, func() {
		v += 0.5
		m.Push(v)
	})

	assert.Zero(t, allocs, "Push MUST NOT allocate")
}

func BenchmarkMovingAverage_Push(b *testing.B) {
	m := NewMovingAverage(DefaultWindow)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.Push(float64(i % 400))
	}
}
