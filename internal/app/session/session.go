package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/renify/internal/app/notification"
	"github.com/osa030/renify/internal/app/playback"
	"github.com/osa030/renify/internal/app/queue"
	"github.com/osa030/renify/internal/app/search"
	"github.com/osa030/renify/internal/app/tier"
	"github.com/osa030/renify/internal/domain/track"
)

// EnqueueResult reports an accepted enqueue to the command layer.
type EnqueueResult struct {
	Started      bool        // playback started immediately
	Track        track.Track // first track added (the one now playing when Started)
	PlaylistName string      // set when a playlist was loaded
	TrackCount   int         // number of tracks added
	QueueLength  int         // pending tracks after the mutation
	TierLabel    string
	Capacity     tier.Capacity
}

// Session is the playback state machine for one voice room. All state
// transitions are serialized by the session mutex; backend events arrive on
// the events channel and are drained by the session's own control loop.
type Session struct {
	roomID    string
	channelID string // bound text/output channel
	voiceID   string // bound voice channel

	id          string
	backend     playback.Backend
	policy      tier.Policy
	notifier    *notification.Manager
	idleTimeout time.Duration
	onClosed    func(*Session)

	mu        sync.Mutex
	connected bool
	closed    bool
	paused    bool
	current   *track.Track
	queue     *queue.Queue
	tierLabel string
	capacity  tier.Capacity

	idleTimer *time.Timer
	idleGen   uint64

	events chan playback.Event
	done   chan struct{}
}

func newSession(roomID string, backend playback.Backend, policy tier.Policy,
	notifier *notification.Manager, idleTimeout time.Duration, onClosed func(*Session)) *Session {
	s := &Session{
		roomID:      roomID,
		id:          uuid.New().String(),
		backend:     backend,
		policy:      policy,
		notifier:    notifier,
		idleTimeout: idleTimeout,
		onClosed:    onClosed,
		queue:       queue.New(),
		events:      make(chan playback.Event, 16),
		done:        make(chan struct{}),
	}
	go s.run()
	return s
}

// Deliver implements playback.EventSink.
func (s *Session) Deliver(ev playback.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// run drains backend events. A panic here is an internal invariant violation:
// the session is aborted with cleanup rather than taking the process down.
func (s *Session) run() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session loop panicked: room_id=%s session_id=%s panic=%v", s.roomID, s.id, r)
			s.abort()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev playback.Event) {
	zlog.Debug().Msgf("backend event: room_id=%s type=%s", s.roomID, ev.Type)

	switch ev.Type {
	case playback.EventTrackFinished:
		s.advance()
	case playback.EventForcedDisconnect:
		s.forcedDisconnect()
	}
}

// Enqueue admits search material into the queue and starts playback when
// nothing is playing. The first accepted enqueue joins the voice room.
func (s *Session) Enqueue(ctx context.Context, actorID, voiceID, channelID string, res search.Result) (*EnqueueResult, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed
	}

	// An empty binding means no voice channel was named yet; the first
	// non-empty one binds the session.
	if s.connected && s.voiceID != "" && voiceID != "" && voiceID != s.voiceID {
		s.mu.Unlock()
		return nil, ErrSessionConflict
	}

	if !s.connected {
		// The join is the one unavoidable backend call made under the
		// session lock; racing commands for this room wait on it.
		if err := s.backend.Join(ctx, s.roomID, actorID, s); err != nil {
			s.closed = true
			close(s.done)
			s.mu.Unlock()
			s.onClosed(s)
			if errors.Is(err, playback.ErrPermissionDenied) {
				return nil, errors.Mark(err, ErrPermissionDenied)
			}
			return nil, errors.Mark(errors.Wrap(err, "voice room join failed"), ErrPermissionDenied)
		}
		s.connected = true
		s.voiceID = voiceID
		s.channelID = channelID
		zlog.Info().Msgf("session connected: room_id=%s session_id=%s voice_id=%s", s.roomID, s.id, voiceID)
	} else if s.voiceID == "" && voiceID != "" {
		s.voiceID = voiceID
	}

	tierLabel := s.policy.ResolveTier(actorID)
	capacity := s.policy.CapacityFor(tierLabel)
	s.tierLabel = tierLabel
	s.capacity = capacity

	result := &EnqueueResult{TierLabel: tierLabel, Capacity: capacity}
	switch {
	case res.Playlist != nil:
		if err := s.queue.EnqueueAll(res.Playlist.Tracks, capacity); err != nil {
			s.idleIfEmptyLocked()
			s.mu.Unlock()
			return nil, err
		}
		result.PlaylistName = res.Playlist.Name
		result.TrackCount = len(res.Playlist.Tracks)
		if result.TrackCount > 0 {
			result.Track = res.Playlist.Tracks[0]
		}
	case res.Track != nil:
		if err := s.queue.Enqueue(*res.Track, capacity); err != nil {
			s.idleIfEmptyLocked()
			s.mu.Unlock()
			return nil, err
		}
		result.Track = *res.Track
		result.TrackCount = 1
	default:
		s.mu.Unlock()
		return nil, ErrNoResults
	}

	// An enqueue during the idle countdown supersedes the timer.
	s.cancelIdleLocked()

	var toPlay *track.Track
	if s.current == nil {
		head, ok := s.queue.PopNext()
		if ok {
			s.current = &head
			s.paused = false
			toPlay = &head
			result.Started = true
			result.Track = head
		}
	}
	result.QueueLength = s.queue.Len()
	render := s.renderLocked()
	s.mu.Unlock()

	if toPlay != nil {
		if err := s.backend.Play(s.roomID, *toPlay); err != nil {
			zlog.Warn().Msgf("backend play failed: room_id=%s track=%s err=%v", s.roomID, toPlay.Title, err)
		}
		s.notifier.Broadcast(&notification.Message{
			Kind:        notification.KindNowPlaying,
			RoomID:      s.roomID,
			Track:       toPlay,
			RenderState: render,
		})
	} else {
		s.notifier.Broadcast(&notification.Message{
			Kind:        notification.KindRenderState,
			RoomID:      s.roomID,
			RenderState: render,
		})
	}
	return result, nil
}

// Skip halts the current track; the resulting TrackFinished event drives the
// advance on the session loop.
func (s *Session) Skip() error {
	s.mu.Lock()
	if s.closed || s.current == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	s.mu.Unlock()

	if err := s.backend.StopCurrent(s.roomID); err != nil {
		if errors.Is(err, playback.ErrNoCurrentTrack) || errors.Is(err, playback.ErrNotConnected) {
			return ErrNothingPlaying
		}
		return err
	}
	return nil
}

// PauseToggle pauses or resumes the current track.
func (s *Session) PauseToggle(pause bool) error {
	s.mu.Lock()
	if s.closed || s.current == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	if pause && s.paused {
		s.mu.Unlock()
		return ErrAlreadyPaused
	}
	if !pause && !s.paused {
		s.mu.Unlock()
		return ErrAlreadyPlaying
	}
	s.paused = pause
	render := s.renderLocked()
	s.mu.Unlock()

	if err := s.backend.Pause(s.roomID, pause); err != nil {
		zlog.Warn().Msgf("backend pause failed: room_id=%s pause=%t err=%v", s.roomID, pause, err)
	}
	s.notifier.Broadcast(&notification.Message{
		Kind:        notification.KindRenderState,
		RoomID:      s.roomID,
		RenderState: render,
	})
	return nil
}

// Stop clears the queue, halts playback, and tears the session down.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNothingToStop
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.backend.Disconnect(s.roomID)
	s.onClosed(s)
	s.notifier.Broadcast(&notification.Message{Kind: notification.KindStopped, RoomID: s.roomID})
	zlog.Info().Msgf("session stopped: room_id=%s session_id=%s", s.roomID, s.id)
	return nil
}

// advance reacts to a finished track: play the next queued track or start the
// idle countdown.
func (s *Session) advance() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.paused = false

	next, ok := s.queue.PopNext()
	if !ok {
		s.startIdleLocked()
		render := s.renderLocked()
		s.mu.Unlock()
		s.notifier.Broadcast(&notification.Message{
			Kind:        notification.KindRenderState,
			RoomID:      s.roomID,
			RenderState: render,
		})
		return
	}

	s.current = &next
	render := s.renderLocked()
	s.mu.Unlock()

	if err := s.backend.Play(s.roomID, next); err != nil {
		zlog.Warn().Msgf("backend play failed: room_id=%s track=%s err=%v", s.roomID, next.Title, err)
	}
	s.notifier.Broadcast(&notification.Message{
		Kind:        notification.KindNowPlaying,
		RoomID:      s.roomID,
		Track:       &next,
		RenderState: render,
	})
}

// forcedDisconnect cleans up after the backend dropped the room. Identical to
// Stop except no stop confirmation is sent, only a terminal notice.
func (s *Session) forcedDisconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.onClosed(s)
	s.notifier.Broadcast(&notification.Message{Kind: notification.KindTerminated, RoomID: s.roomID})
	zlog.Info().Msgf("session terminated by backend: room_id=%s session_id=%s", s.roomID, s.id)
}

// abort force-closes the session after an internal invariant violation.
func (s *Session) abort() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.backend.Disconnect(s.roomID)
	s.onClosed(s)
	s.notifier.Broadcast(&notification.Message{Kind: notification.KindTerminated, RoomID: s.roomID})
}

// startIdleLocked arms the idle-disconnect countdown. The generation counter
// pairs with cancelIdleLocked so a superseded timer can never fire a stale
// disconnect.
func (s *Session) startIdleLocked() {
	s.idleGen++
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.idleFired(gen)
	})
}

// idleIfEmptyLocked (re)arms the countdown when a rejected enqueue left the
// session connected with nothing to play.
func (s *Session) idleIfEmptyLocked() {
	if s.current != nil || s.queue.Len() > 0 {
		return
	}
	s.cancelIdleLocked()
	s.startIdleLocked()
}

func (s *Session) cancelIdleLocked() {
	s.idleGen++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// idleFired re-checks the idle conditions under the lock at fire time: a
// just-arrived enqueue either bumped the generation or refilled the queue,
// and in both cases the disconnect is dropped.
func (s *Session) idleFired(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.idleGen || s.current != nil || s.queue.Len() > 0 {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.backend.Disconnect(s.roomID)
	s.onClosed(s)
	s.notifier.Broadcast(&notification.Message{Kind: notification.KindIdleTimeout, RoomID: s.roomID})
	zlog.Info().Msgf("session idle timeout: room_id=%s session_id=%s idle=%v", s.roomID, s.id, s.idleTimeout)
}

// teardownLocked moves the session to Disconnected. Callers disconnect the
// backend, remove the session from the registry, and notify after unlocking.
func (s *Session) teardownLocked() {
	s.closed = true
	s.queue.Clear()
	s.current = nil
	s.paused = false
	s.cancelIdleLocked()
	close(s.done)
}

// State returns the externally visible session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.closed:
		return StateDisconnected
	case !s.connected:
		return StateConnecting
	case s.current == nil:
		return StateAwaitingIdle
	case s.paused:
		return StatePaused
	case s.queue.Len() == 0:
		return StateDraining
	default:
		return StatePlaying
	}
}

// QueueSnapshot returns a copy of the pending tracks in play order.
func (s *Session) QueueSnapshot() []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.PeekAll()
}

// Render returns the current render state.
func (s *Session) Render() *notification.RenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked()
}

func (s *Session) renderLocked() *notification.RenderState {
	return &notification.RenderState{
		RoomID:      s.roomID,
		ChannelID:   s.channelID,
		State:       s.stateLocked().String(),
		Current:     s.current,
		QueueLength: s.queue.Len(),
		Paused:      s.paused,
		TierLabel:   s.tierLabel,
		Capacity:    s.capacity.Limit,
		Unlimited:   s.capacity.Unlimited,
	}
}
