// Package session provides the per-room playback session state machine,
// the session registry, and the command surface over both.
package session

// State represents the externally visible session state. Idle (no session)
// is represented by absence from the registry.
type State int

const (
	StateConnecting   State = iota // First enqueue accepted, backend join in flight
	StatePlaying                   // Track playing, queue non-empty
	StatePaused                    // Track paused
	StateDraining                  // Track playing, queue empty
	StateAwaitingIdle              // Nothing playing, queue empty, idle countdown running
	StateDisconnected              // Terminal; removed from the registry
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateAwaitingIdle:
		return "awaiting_idle_timeout"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
