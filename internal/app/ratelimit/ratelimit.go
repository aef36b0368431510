// Package ratelimit provides a sliding-window per-actor call limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Default limiter parameters.
const (
	DefaultWindow        = 30 * time.Second
	DefaultMaxCalls      = 5
	DefaultSweepInterval = 5 * time.Minute
)

// history holds an actor's call timestamps in a fixed-size ring. The ring
// never grows past maxCalls, so per-actor memory is bounded regardless of how
// long the actor stays active.
type history struct {
	stamps []time.Time
	head   int // index of the oldest recorded stamp
	count  int
}

func (h *history) prune(cutoff time.Time) {
	for h.count > 0 && !h.stamps[h.head].After(cutoff) {
		h.head = (h.head + 1) % len(h.stamps)
		h.count--
	}
}

func (h *history) record(now time.Time) {
	idx := (h.head + h.count) % len(h.stamps)
	h.stamps[idx] = now
	h.count++
}

func (h *history) newest() time.Time {
	idx := (h.head + h.count - 1) % len(h.stamps)
	return h.stamps[idx]
}

// Limiter is a sliding-window rate limiter keyed by actor ID. Checks for one
// actor are linearizable with respect to each other: two concurrent checks can
// never both consume the last budget slot.
type Limiter struct {
	mu       sync.Mutex
	actors   map[string]*history
	window   time.Duration
	maxCalls int
	now      func() time.Time
}

// New creates a limiter allowing maxCalls per sliding window.
func New(window time.Duration, maxCalls int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	return &Limiter{
		actors:   make(map[string]*history),
		window:   window,
		maxCalls: maxCalls,
		now:      time.Now,
	}
}

// Allow reports whether the actor may issue a call now. An allowed call is
// recorded; a limited call leaves the history untouched.
func (l *Limiter) Allow(actorID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	h, ok := l.actors[actorID]
	if !ok {
		h = &history{stamps: make([]time.Time, l.maxCalls)}
		l.actors[actorID] = h
	}

	h.prune(now.Add(-l.window))
	if h.count >= l.maxCalls {
		return false
	}
	h.record(now)
	return true
}

// Reset clears one actor's history.
func (l *Limiter) Reset(actorID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.actors, actorID)
}

// Sweep evicts actors whose newest call is older than the window, bounding the
// table to recently active actors. Returns the number of evicted actors.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	evicted := 0
	for id, h := range l.actors {
		if h.count == 0 || !h.newest().After(cutoff) {
			delete(l.actors, id)
			evicted++
		}
	}
	return evicted
}

// ActorCount returns the number of tracked actors.
func (l *Limiter) ActorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actors)
}
