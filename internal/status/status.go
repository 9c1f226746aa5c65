// Package status models the message delivery lifecycle:
// composing → sent → delivered → read. Transitions are monotonic; a
// client must never move a message's status backward.
package status

import "fmt"

// Status is a message delivery state.
type Status string

const (
	Composing Status = "composing"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
)

// rank orders statuses along the lifecycle. Higher never regresses to
// lower.
var rank = map[Status]int{
	Composing: 0,
	Sent:      1,
	Delivered: 2,
	Read:      3,
}

// Valid reports whether s is a known status.
func Valid(s Status) bool {
	_, ok := rank[s]
	return ok
}

// Advance validates a transition from one status to the next. It
// returns the target status when the move is forward, and an error on
// an unknown status or a regression. A transition to the current
// status is allowed and reported as a no-op via the same return.
func Advance(from, to Status) (Status, error) {
	rf, ok := rank[from]
	if !ok {
		return from, fmt.Errorf("unknown status %q", from)
	}
	rt, ok := rank[to]
	if !ok {
		return from, fmt.Errorf("unknown status %q", to)
	}
	if rt < rf {
		return from, fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return to, nil
}

// AtLeast reports whether s has reached want in the lifecycle.
func AtLeast(s, want Status) bool {
	return rank[s] >= rank[want]
}
