// Package discovery drives the central's scan → connect → subscribe cycle.
//
// Next is a pure transition function; the client loop feeds it events produced by the transport
// and performs the returned actions. Recovery after a disconnect or a failed attempt is an
// unbounded rescan on the next tick, repeated indefinitely.
package discovery

import "fmt"

// State of the central side of the link
type State int

const (
	Idle State = iota
	Scanning
	Matched
	Connecting
	Subscribed
	Disconnected
)

var stateNames = [...]string{"idle", "scanning", "matched", "connecting", "subscribed", "disconnected"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// EventKind identifies what happened
type EventKind int

const (
	// Start is fired once at startup
	Start EventKind = iota
	// Advertisement is a scan report; Event.Match tells whether it carries the target service
	Advertisement
	// ScanEnded reports that the scan stopped without being cancelled by a match
	ScanEnded
	// Dial is fired when the loop begins connecting to the matched peer
	Dial
	// SubscribeSucceeded reports a completed connect sequence
	SubscribeSucceeded
	// AttemptFailed reports a failed dial, MTU exchange, lookup or subscribe
	AttemptFailed
	// LinkLost is the transport disconnect notification
	LinkLost
	// Tick is the loop's periodic clock
	Tick
)

var eventNames = [...]string{"start", "advertisement", "scan-ended", "dial", "subscribed", "attempt-failed", "link-lost", "tick"}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is an input to the machine
type Event struct {
	Kind  EventKind
	Match bool
}

// Action the owner must perform after a transition
type Action int

const (
	None Action = iota
	// StartBoundedScan starts the initial active scan with the configured duration
	StartBoundedScan
	// StartUnboundedScan starts a scan that runs until a match stops it
	StartUnboundedScan
	// StopScan cancels the running scan and captures the matched peer
	StopScan
	// Connect runs the connect sequence against the captured peer
	Connect
	// Disconnect tears down a half-open session after a failed attempt
	Disconnect
	// ReleaseSession drops the handle of a session the transport already closed
	ReleaseSession
	// WriteHeartbeat writes the uptime to the characteristic
	WriteHeartbeat
)

var actionNames = [...]string{"none", "start-bounded-scan", "start-unbounded-scan", "stop-scan", "connect", "disconnect", "release-session", "write-heartbeat"}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Next returns the state after ev and the action it requires. Events that make no sense in
// the current state leave it unchanged with None.
func Next(s State, ev Event) (State, Action) {
	switch s {
	case Idle:
		if ev.Kind == Start {
			return Scanning, StartBoundedScan
		}
	case Scanning:
		switch ev.Kind {
		case Advertisement:
			if ev.Match {
				return Matched, StopScan
			}
		case ScanEnded:
			return Disconnected, None
		}
	case Matched:
		if ev.Kind == Dial {
			return Connecting, Connect
		}
	case Connecting:
		switch ev.Kind {
		case SubscribeSucceeded:
			return Subscribed, None
		case AttemptFailed, LinkLost:
			return Disconnected, Disconnect
		}
	case Subscribed:
		switch ev.Kind {
		case LinkLost:
			return Disconnected, ReleaseSession
		case Tick:
			return Subscribed, WriteHeartbeat
		}
	case Disconnected:
		if ev.Kind == Tick {
			return Scanning, StartUnboundedScan
		}
	}
	return s, None
}
