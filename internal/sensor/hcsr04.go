package sensor

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	triggerPulse       = 10 * time.Microsecond
	DefaultEchoTimeout = time.Second
)

// TriggerPin is the output half of gpio.PinIO the sensor needs
type TriggerPin interface {
	Out(l gpio.Level) error
}

// EchoPin is the input half of gpio.PinIO the sensor needs
type EchoPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// HCSR04 drives an HC-SR04 style ultrasonic rangefinder: a 10µs trigger pulse followed by an
// echo pulse whose width is the round-trip time of flight.
type HCSR04 struct {
	trigger TriggerPin
	echo    EchoPin
	timeout time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// OpenHCSR04 initializes the host drivers and resolves the named pins through gpioreg.
func OpenHCSR04(triggerName, echoName string, timeout time.Duration) (*HCSR04, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GPIO host: %w", err)
	}
	trigger := gpioreg.ByName(triggerName)
	if trigger == nil {
		return nil, fmt.Errorf("no GPIO trigger pin named %q", triggerName)
	}
	echo := gpioreg.ByName(echoName)
	if echo == nil {
		return nil, fmt.Errorf("no GPIO echo pin named %q", echoName)
	}
	return NewHCSR04(trigger, echo, timeout)
}

// NewHCSR04 wraps already resolved pins. A timeout of 0 uses DefaultEchoTimeout.
func NewHCSR04(trigger TriggerPin, echo EchoPin, timeout time.Duration) (*HCSR04, error) {
	if timeout <= 0 {
		timeout = DefaultEchoTimeout
	}
	if err := trigger.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to drive trigger pin low: %w", err)
	}
	return &HCSR04{
		trigger: trigger,
		echo:    echo,
		timeout: timeout,
		now:     time.Now,
		sleep:   time.Sleep,
	}, nil
}

// Measure fires one trigger pulse and times the echo. On timeout it returns 0 and ErrNoEcho.
func (s *HCSR04) Measure(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// re-arming the input discards edges left over from the previous cycle
	if err := s.echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return 0, fmt.Errorf("failed to arm echo pin: %w", err)
	}

	if err := s.trigger.Out(gpio.Low); err != nil {
		return 0, err
	}
	s.sleep(2 * time.Microsecond)
	if err := s.trigger.Out(gpio.High); err != nil {
		return 0, err
	}
	s.sleep(triggerPulse)
	if err := s.trigger.Out(gpio.Low); err != nil {
		return 0, err
	}

	if !s.echo.WaitForEdge(s.timeout) {
		return 0, fmt.Errorf("%w: pulse did not start within %s", ErrNoEcho, s.timeout)
	}
	start := s.now()
	if !s.echo.WaitForEdge(s.timeout) {
		return 0, fmt.Errorf("%w: pulse did not end within %s", ErrNoEcho, s.timeout)
	}
	return PulseToCentimeters(s.now().Sub(start)), nil
}
