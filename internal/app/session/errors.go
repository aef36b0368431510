package session

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Expected command outcomes. These are returned as values across the command
// surface, never raised; one room's error never reaches another room.
var (
	ErrRateLimited      = errors.New("too many commands, retry after the window elapses")
	ErrPermissionDenied = errors.New("cannot join the voice room")
	ErrSearchFailed     = errors.New("search provider failed")
	ErrNoResults        = errors.New("no results for query")
	ErrNothingPlaying   = errors.New("nothing is playing")
	ErrNothingToStop    = errors.New("nothing to stop")
	ErrAlreadyPaused    = errors.New("playback is already paused")
	ErrAlreadyPlaying   = errors.New("playback is already running")
	ErrSessionConflict  = errors.New("already playing in a different voice channel")

	// errSessionClosed is internal: the caller raced a session teardown and
	// should re-route through the registry.
	errSessionClosed = errors.New("session is closed")
)

// ValidationError reports a query rejected by the guard chain before any
// backend call. Code is the guard's return code (e.g. "query_too_long").
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Code)
}
