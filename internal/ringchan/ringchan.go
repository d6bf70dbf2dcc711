// Package ringchan provides a bounded channel with overwrite-oldest semantics.
//
// Transport callbacks post into a RingChannel and the owning loop drains it, so a slow
// loop never blocks the BLE stack; when the loop falls behind, the oldest items are lost
// and counted.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel. Producers never block: if the buffer is full,
// the oldest element is discarded. Readers treat C() as a normal <-chan T.
type RingChannel[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend always succeeds immediately, discarding the oldest element if needed.
// Returns true when an element was dropped to make room.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	for {
		select {
		case rc.ch <- v:
			return false
		default:
		}
		select {
		case <-rc.ch:
			rc.dropped.Add(1)
			// Another producer may refill the slot before us; retry.
			select {
			case rc.ch <- v:
				return true
			default:
			}
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return
	default:
		var zero T
		return zero, false
	}
}

// Dropped returns how many elements were overwritten since creation.
func (rc *RingChannel[T]) Dropped() uint64 {
	return rc.dropped.Load()
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}
