// Package search defines the audio search provider seam.
package search

import (
	"context"

	"github.com/osa030/renify/internal/domain/track"
)

// Result is the outcome of a search query: exactly one of Track or Playlist
// is set, or neither when the provider found nothing.
type Result struct {
	Track    *track.Track
	Playlist *track.Playlist
}

// Empty reports whether the provider found nothing. A playlist with no
// tracks counts as nothing.
func (r Result) Empty() bool {
	if r.Playlist != nil {
		return len(r.Playlist.Tracks) == 0
	}
	return r.Track == nil
}

// Provider resolves a free-form query to playable material. A provider error
// is surfaced to the caller as a search failure; the session layer makes a
// single attempt and does not retry.
type Provider interface {
	Search(ctx context.Context, query string) (Result, error)
}
