package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type fakeTrigger struct {
	levels []gpio.Level
	err    error
}

func (p *fakeTrigger) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return p.err
}

type fakeEcho struct {
	edges []bool
	armed int
}

func (p *fakeEcho) In(pull gpio.Pull, edge gpio.Edge) error {
	p.armed++
	return nil
}

func (p *fakeEcho) WaitForEdge(time.Duration) bool {
	if len(p.edges) == 0 {
		return false
	}
	ok := p.edges[0]
	p.edges = p.edges[1:]
	return ok
}

// stepClock returns t0, t0+step, t0+2*step ...
func stepClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func newTestSensor(t *testing.T, echo *fakeEcho, pulse time.Duration) (*HCSR04, *fakeTrigger) {
	t.Helper()
	trigger := &fakeTrigger{}
	s, err := NewHCSR04(trigger, echo, 0)
	require.NoError(t, err)
	s.now = stepClock(pulse)
	s.sleep = func(time.Duration) {}
	return s, trigger
}

func TestPulseToCentimeters(t *testing.T) {
	assert.InDelta(t, 9.996, PulseToCentimeters(588*time.Microsecond), 1e-9)
	assert.InDelta(t, 0.0, PulseToCentimeters(0), 1e-9)
	assert.InDelta(t, 17.0, PulseToCentimeters(time.Millisecond), 1e-9)
}

func TestHCSR04_Measure(t *testing.T) {
	// GOAL: Verify a full trigger/echo cycle yields the time-of-flight distance
	//
	// TEST SCENARIO: Echo rises and falls 588µs apart → 9.996 cm, trigger pulsed low-high-low

	echo := &fakeEcho{edges: []bool{true, true}}
	s, trigger := newTestSensor(t, echo, 588*time.Microsecond)

	d, err := s.Measure(context.Background())

	require.NoError(t, err)
	assert.InDelta(t, 9.996, d, 1e-9)
	assert.Equal(t, 1, echo.armed, "echo pin MUST be re-armed before every trigger")
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.Low, gpio.High, gpio.Low}, trigger.levels,
		"constructor MUST idle the trigger low, then Measure MUST pulse it")
	assert.Equal(t, time.Second, s.timeout, "zero timeout MUST fall back to the default")
}

func TestHCSR04_NoEcho(t *testing.T) {
	tests := []struct {
		name  string
		edges []bool
	}{
		{"pulse never starts", nil},
		{"pulse never ends", []bool{true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSensor(t, &fakeEcho{edges: tt.edges}, time.Microsecond)

			d, err := s.Measure(context.Background())

			assert.ErrorIs(t, err, ErrNoEcho)
			assert.Equal(t, 0.0, d, "failed measurement MUST report 0")
		})
	}
}

func TestHCSR04_TriggerFailure(t *testing.T) {
	_, err := NewHCSR04(&fakeTrigger{err: errors.New("pin busy")}, &fakeEcho{}, 0)
	assert.ErrorContains(t, err, "pin busy")
}

func TestHCSR04_CancelledContext(t *testing.T) {
	s, trigger := newTestSensor(t, &fakeEcho{edges: []bool{true, true}}, time.Microsecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Measure(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, trigger.levels, 1, "cancelled measurement MUST NOT pulse the trigger")
}

func TestSimulated(t *testing.T) {
	s := NewSimulated(20, 3, 7)
	s.Max = 25
	for i := 0; i < 500; i++ {
		d, err := s.Measure(context.Background())
		require.NoError(t, err)
		require.GreaterOrEqual(t, d, s.Min)
		require.LessOrEqual(t, d, s.Max)
	}

	a, b := NewSimulated(20, 3, 42), NewSimulated(20, 3, 42)
	for i := 0; i < 10; i++ {
		x, _ := a.Measure(context.Background())
		y, _ := b.Measure(context.Background())
		assert.Equal(t, x, y, "same seed MUST produce the same sequence")
	}
}

func TestSamplerFunc(t *testing.T) {
	var s Sampler = SamplerFunc(func(context.Context) (float64, error) { return 4.5, nil })
	d, err := s.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.5, d)
}
