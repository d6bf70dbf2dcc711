package wire

import (
	"fmt"
	"strings"
)

// MalformedPolicy decides what a receiver does with a frame that failed to decode
type MalformedPolicy string

const (
	// PolicyZero substitutes 0 cm, which also resets an unset minimum. Matches the
	// behaviour of the original receiver.
	PolicyZero MalformedPolicy = "zero"
	// PolicyDrop discards the frame.
	PolicyDrop MalformedPolicy = "drop"
)

// ParseMalformedPolicy accepts "zero" or "drop", case-insensitively
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch p := MalformedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyZero, PolicyDrop:
		return p, nil
	default:
		return "", fmt.Errorf("invalid malformed policy %q: use zero or drop", s)
	}
}

// Resolve applies the policy to a decode result. ok is false when the reading must be skipped.
func (p MalformedPolicy) Resolve(v float64, err error) (reading float64, ok bool) {
	if err == nil {
		return v, true
	}
	if p == PolicyDrop {
		return 0, false
	}
	return 0, true
}
