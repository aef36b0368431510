// Package track provides the Track domain entity.
package track

import "time"

// Track represents one playable item resolved by the audio search provider.
// Value type; never mutated after creation.
type Track struct {
	Title    string        // Track title
	Author   string        // Artist or uploader name
	URI      string        // Canonical URI at the source provider
	Duration time.Duration // Track length (zero if unknown)
	Source   string        // Source provider identifier (e.g. "catalog")
}

// Playlist represents an ordered collection of tracks resolved from a single query.
type Playlist struct {
	Name   string
	Tracks []Track
}

// TotalDuration returns the combined duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}
