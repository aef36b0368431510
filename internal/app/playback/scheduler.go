package playback

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/renify/internal/domain/track"
)

// roomState tracks wall-clock playback for one room.
type roomState struct {
	sink EventSink

	current       *track.Track
	gen           uint64 // invalidates stale track-end timers
	startTime     time.Time
	pausedAt      *time.Time
	pausedElapsed time.Duration
	timerCancel   func()
}

// Scheduler is an in-process Backend that coordinates playback timing instead
// of moving audio: it schedules a TrackFinished event when a track's duration
// elapses, with pause/resume accounting. Tracks with unknown (zero) duration
// run until stopped or skipped.
type Scheduler struct {
	mu    sync.Mutex
	rooms map[string]*roomState
}

// NewScheduler creates a scheduler backend.
func NewScheduler() *Scheduler {
	return &Scheduler{rooms: make(map[string]*roomState)}
}

// Join registers the room and its event sink. The scheduler grants capability
// to every room; permission enforcement belongs to real voice backends.
func (s *Scheduler) Join(ctx context.Context, roomID, actorID string, sink EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; ok {
		return nil
	}
	s.rooms[roomID] = &roomState{sink: sink}
	zlog.Debug().Msgf("scheduler: joined room: room_id=%s actor_id=%s", roomID, actorID)
	return nil
}

// Play starts timing a track for the room.
func (s *Scheduler) Play(roomID string, t track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrNotConnected
	}

	if r.timerCancel != nil {
		r.timerCancel()
		r.timerCancel = nil
	}

	tr := t
	r.current = &tr
	r.gen++
	r.startTime = time.Now()
	r.pausedAt = nil
	r.pausedElapsed = 0

	if t.Duration > 0 {
		r.timerCancel = s.startEndTimer(roomID, r.gen, t.Duration)
	}
	zlog.Debug().Msgf("scheduler: playing: room_id=%s track=%s duration=%v", roomID, t.Title, t.Duration)
	return nil
}

// Pause pauses or resumes the room's current track, keeping elapsed-time
// accounting so the remaining duration survives the pause.
func (s *Scheduler) Pause(roomID string, pause bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrNotConnected
	}
	if r.current == nil {
		return ErrNoCurrentTrack
	}

	if pause {
		if r.pausedAt != nil {
			return nil
		}
		if r.timerCancel != nil {
			r.timerCancel()
			r.timerCancel = nil
		}
		now := time.Now()
		r.pausedAt = &now
		return nil
	}

	if r.pausedAt == nil {
		return nil
	}
	r.pausedElapsed += time.Since(*r.pausedAt)
	r.pausedAt = nil

	if r.current.Duration > 0 {
		remaining := r.remainingLocked()
		if remaining <= 0 {
			// The track ran out exactly at the pause boundary.
			s.finishLocked(roomID, r)
			return nil
		}
		r.timerCancel = s.startEndTimer(roomID, r.gen, remaining)
	}
	return nil
}

// StopCurrent halts the current track and emits TrackFinished, mirroring how
// a voice backend reports a stopped track.
func (s *Scheduler) StopCurrent(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrNotConnected
	}
	if r.current == nil {
		return ErrNoCurrentTrack
	}
	s.finishLocked(roomID, r)
	return nil
}

// Disconnect leaves the room.
func (s *Scheduler) Disconnect(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return
	}
	if r.timerCancel != nil {
		r.timerCancel()
	}
	delete(s.rooms, roomID)
	zlog.Debug().Msgf("scheduler: disconnected: room_id=%s", roomID)
}

// ForceDisconnect simulates the backend dropping the room (kicked, channel
// deleted): playback state is discarded and ForcedDisconnect is delivered.
func (s *Scheduler) ForceDisconnect(roomID string) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if r.timerCancel != nil {
		r.timerCancel()
	}
	sink := r.sink
	delete(s.rooms, roomID)
	s.mu.Unlock()

	go sink.Deliver(Event{Type: EventForcedDisconnect, RoomID: roomID})
}

// Remaining returns the remaining duration of the room's current track.
func (s *Scheduler) Remaining(roomID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok || r.current == nil {
		return 0
	}
	return r.remainingLocked()
}

func (r *roomState) remainingLocked() time.Duration {
	if r.current == nil || r.current.Duration == 0 {
		return 0
	}
	elapsed := time.Since(r.startTime) - r.pausedElapsed
	if r.pausedAt != nil {
		elapsed -= time.Since(*r.pausedAt)
	}
	remaining := r.current.Duration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// finishLocked clears the current track and delivers TrackFinished off the
// scheduler lock.
func (s *Scheduler) finishLocked(roomID string, r *roomState) {
	if r.timerCancel != nil {
		r.timerCancel()
		r.timerCancel = nil
	}
	finished := r.current
	r.current = nil
	r.gen++
	r.pausedAt = nil
	r.pausedElapsed = 0
	sink := r.sink

	go sink.Deliver(Event{Type: EventTrackFinished, RoomID: roomID, Track: finished})
}

// startEndTimer schedules the natural track-end for the given generation.
// A skip or new track bumps the generation, so stale timers become no-ops.
func (s *Scheduler) startEndTimer(roomID string, gen uint64, d time.Duration) func() {
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		r, ok := s.rooms[roomID]
		if !ok || r.gen != gen || r.current == nil {
			s.mu.Unlock()
			return
		}
		zlog.Debug().Msgf("scheduler: track ended: room_id=%s track=%s", roomID, r.current.Title)
		s.finishLocked(roomID, r)
		s.mu.Unlock()
	})
	return func() { timer.Stop() }
}
