// Package link tracks whether the peripheral has a connected peer.
//
// Transitions are a pure function of (state, event). Repeated connect or disconnect
// reports are absorbed, so the actions fire only on edges.
package link

import "fmt"

// State of the peripheral side of the link
type State int

const (
	Advertising State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Advertising:
		return "advertising"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event reported by the transport
type Event int

const (
	PeerConnected Event = iota
	PeerDisconnected
)

func (e Event) String() string {
	switch e {
	case PeerConnected:
		return "peer-connected"
	case PeerDisconnected:
		return "peer-disconnected"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Action the owner must perform after a transition
type Action int

const (
	None Action = iota
	// MarkConnected enables publishing
	MarkConnected
	// RestartAdvertising disables publishing, waits for the stack to settle, and advertises again
	RestartAdvertising
)

func (a Action) String() string {
	switch a {
	case None:
		return "none"
	case MarkConnected:
		return "mark-connected"
	case RestartAdvertising:
		return "restart-advertising"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Next returns the state after ev and the action it requires
func Next(s State, ev Event) (State, Action) {
	switch {
	case s == Advertising && ev == PeerConnected:
		return Connected, MarkConnected
	case s == Connected && ev == PeerDisconnected:
		return Advertising, RestartAdvertising
	default:
		return s, None
	}
}
