// Package playback defines the voice output backend seam and a timer-driven
// reference backend.
package playback

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/renify/internal/domain/track"
)

// Errors
var (
	ErrPermissionDenied = errors.New("missing connect or speak capability for the voice room")
	ErrNotConnected     = errors.New("not connected to the voice room")
	ErrNoCurrentTrack   = errors.New("no track is being played")
)

// Backend is the external service that delivers audio to a voice room.
// All methods are safe for concurrent use across rooms; events flow back
// through the EventSink registered at Join time.
type Backend interface {
	// Join connects to the actor's voice room. Fails with ErrPermissionDenied
	// when the backend lacks connect or speak capability, or the actor is not
	// in a joinable room.
	Join(ctx context.Context, roomID, actorID string, sink EventSink) error
	// Play starts delivering a track to the room.
	Play(roomID string, t track.Track) error
	// Pause pauses or resumes delivery.
	Pause(roomID string, pause bool) error
	// StopCurrent halts the current track, which triggers a TrackFinished
	// event for the room.
	StopCurrent(roomID string) error
	// Disconnect leaves the room and releases its playback state.
	Disconnect(roomID string)
}
