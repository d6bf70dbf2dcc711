// Package aggregate keeps the running current/min/max statistics of a receive session.
package aggregate

import (
	"encoding/json"
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Snapshot is a point-in-time copy of the session statistics
type Snapshot struct {
	Current float64
	Min     float64
	Max     float64
	Count   uint64
}

// String renders the snapshot the way the receiver logs every reading
func (s Snapshot) String() string {
	return fmt.Sprintf("Received Data: Current Distance: %.2f cm (Unit: cm, Max History Distance: %.2f, Min History Distance: %.2f)",
		s.Current, s.Max, s.Min)
}

// MarshalJSON emits the fields in a fixed order: current, min, max, count, unit
func (s Snapshot) MarshalJSON() ([]byte, error) {
	om := orderedmap.New[string, any]()
	om.Set("current", s.Current)
	om.Set("min", s.Min)
	om.Set("max", s.Max)
	om.Set("count", s.Count)
	om.Set("unit", "cm")
	return json.Marshal(om)
}

// Session folds decoded readings into current/min/max.
//
// The first observation seeds both min and max. After that max is a plain running maximum,
// while min treats 0 as "unset": a 0 reading resets it, and the next reading replaces it.
// Safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	stats  Snapshot
	seeded bool
}

// NewSession returns an empty session
func NewSession() *Session {
	return &Session{}
}

// Observe folds one reading and returns the resulting snapshot
func (s *Session) Observe(d float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		s.stats.Min = d
		s.stats.Max = d
		s.seeded = true
	} else {
		if d > s.stats.Max {
			s.stats.Max = d
		}
		if s.stats.Min == 0 || d < s.stats.Min {
			s.stats.Min = d
		}
	}
	s.stats.Current = d
	s.stats.Count++
	return s.stats
}

// Snapshot returns the current statistics
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
