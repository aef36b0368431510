// Package queue provides the per-session track queue with capacity admission.
package queue

import (
	"fmt"

	"github.com/osa030/renify/internal/app/tier"
	"github.com/osa030/renify/internal/domain/track"
)

// CapacityExceeded reports an admission refusal. Overflow is how many tracks
// did not fit, so callers can tell users by how much a playlist missed.
type CapacityExceeded struct {
	Size     int // queue size at the time of the attempt
	Limit    int // capacity granted by the actor's tier
	Overflow int // number of tracks that would not fit
}

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("queue capacity exceeded: size=%d limit=%d overflow=%d",
		e.Size, e.Limit, e.Overflow)
}

// Queue is an ordered FIFO of pending tracks. It is not synchronized: the
// owning PlaybackSession serializes all access. Capacity is granted per
// insertion by the actor's tier, so it is an argument rather than a field.
type Queue struct {
	items []track.Track
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{items: make([]track.Track, 0)}
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	return len(q.items)
}

// Enqueue appends one track if it fits within the granted capacity.
func (q *Queue) Enqueue(t track.Track, capacity tier.Capacity) error {
	if capacity.Remaining(len(q.items)) < 1 {
		return &CapacityExceeded{Size: len(q.items), Limit: capacity.Limit, Overflow: 1}
	}
	q.items = append(q.items, t)
	return nil
}

// EnqueueAll appends a sequence atomically: either every track fits within the
// granted capacity or none are added.
func (q *Queue) EnqueueAll(ts []track.Track, capacity tier.Capacity) error {
	remaining := capacity.Remaining(len(q.items))
	if remaining < len(ts) {
		return &CapacityExceeded{
			Size:     len(q.items),
			Limit:    capacity.Limit,
			Overflow: len(ts) - remaining,
		}
	}
	q.items = append(q.items, ts...)
	return nil
}

// PopNext removes and returns the head of the queue.
func (q *Queue) PopNext() (track.Track, bool) {
	if len(q.items) == 0 {
		return track.Track{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// Clear empties the queue. Idempotent.
func (q *Queue) Clear() {
	q.items = q.items[:0]
}

// PeekAll returns a copy of the pending tracks in play order.
func (q *Queue) PeekAll() []track.Track {
	out := make([]track.Track, len(q.items))
	copy(out, q.items)
	return out
}
