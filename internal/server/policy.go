package server

import (
	"fmt"
	"time"
)

// Decision is the outcome of SendPolicy.Decide
type Decision int

const (
	// DecisionWait means the current interval is still running
	DecisionWait Decision = iota
	// DecisionSend opens a new interval and transmits the value
	DecisionSend
	// DecisionAboveThreshold opens a new interval without transmitting
	DecisionAboveThreshold
)

func (d Decision) String() string {
	switch d {
	case DecisionWait:
		return "wait"
	case DecisionSend:
		return "send"
	case DecisionAboveThreshold:
		return "above-threshold"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// SendPolicy gates notifications: at most one decision per Interval, and only values strictly
// below Threshold are sent. Skipped values are dropped. The interval restarts whenever a decision
// is taken, sent or not. The first call always takes a decision.
type SendPolicy struct {
	Interval  time.Duration
	Threshold float64

	last   time.Time
	opened bool
}

// NewSendPolicy returns a policy with no interval opened yet
func NewSendPolicy(interval time.Duration, threshold float64) *SendPolicy {
	return &SendPolicy{Interval: interval, Threshold: threshold}
}

// Decide evaluates avg at time now
func (p *SendPolicy) Decide(avg float64, now time.Time) Decision {
	if p.opened && now.Sub(p.last) < p.Interval {
		return DecisionWait
	}
	p.last = now
	p.opened = true
	if avg < p.Threshold {
		return DecisionSend
	}
	return DecisionAboveThreshold
}
