package ovsdb

import "fmt"

// State is the readiness state of an endpoint.
type State uint8

const (
	// Disconnected: no relation is established.
	Disconnected State = iota
	// Connected: at least one unit joined, quorum not reached.
	Connected
	// Available: every expected unit joined and announced a usable address.
	Available
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Available:
		return "available"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// States lists every state, in order.
func States() []State {
	return []State{Disconnected, Connected, Available}
}
