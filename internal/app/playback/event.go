package playback

import "github.com/osa030/renify/internal/domain/track"

// EventType represents a backend event type.
type EventType int

const (
	EventTrackFinished    EventType = iota // Current track finished playing out
	EventForcedDisconnect                  // Backend connection dropped (kicked, channel deleted)
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackFinished:
		return "track_finished"
	case EventForcedDisconnect:
		return "forced_disconnect"
	default:
		return "unknown"
	}
}

// Event represents an asynchronous backend event for one room.
type Event struct {
	Type   EventType
	RoomID string
	Track  *track.Track // Finished track (nil for forced disconnect)
}

// EventSink receives backend events for one session. The backend pushes typed
// events here; the owning session drains them on its own control loop.
type EventSink interface {
	Deliver(Event)
}
