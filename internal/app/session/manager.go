package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/renify/internal/app/guard"
	"github.com/osa030/renify/internal/app/notification"
	"github.com/osa030/renify/internal/app/playback"
	"github.com/osa030/renify/internal/app/ratelimit"
	"github.com/osa030/renify/internal/app/search"
	"github.com/osa030/renify/internal/app/tier"
	"github.com/osa030/renify/internal/domain/track"
)

// Config holds manager tuning.
type Config struct {
	IdleTimeout   time.Duration // idle-disconnect countdown (default 30s)
	RateWindow    time.Duration // rate-limit sliding window (default 30s)
	RateMaxCalls  int           // commands allowed per window (default 5)
	SweepInterval time.Duration // limiter janitor interval
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.RateWindow <= 0 {
		c.RateWindow = ratelimit.DefaultWindow
	}
	if c.RateMaxCalls <= 0 {
		c.RateMaxCalls = ratelimit.DefaultMaxCalls
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = ratelimit.DefaultSweepInterval
	}
}

// EnqueueRequest is one enqueue command from the external command layer.
type EnqueueRequest struct {
	ActorID        string
	RoomID         string
	VoiceChannelID string // voice channel the actor is in
	TextChannelID  string // output channel bound on session creation
	Query          string
}

// Manager implements the command surface: it rate-checks inbound commands,
// routes them through the registry to the room's session, and owns the
// limiter janitor.
type Manager struct {
	cfg      Config
	backend  playback.Backend
	provider search.Provider
	policy   tier.Policy
	guards   *guard.Chain
	limiter  *ratelimit.Limiter
	notifier *notification.Manager
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates the session manager and starts its janitor.
func NewManager(cfg Config, backend playback.Backend, provider search.Provider,
	policy tier.Policy, guards *guard.Chain, notifier *notification.Manager) *Manager {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		backend:  backend,
		provider: provider,
		policy:   policy,
		guards:   guards,
		limiter:  ratelimit.New(cfg.RateWindow, cfg.RateMaxCalls),
		notifier: notifier,
		registry: NewRegistry(),

		ctx:    ctx,
		cancel: cancel,
	}
	go m.janitor()
	return m
}

// Enqueue validates, rate-checks, searches, and admits material into the
// room's session, creating the session on first use.
func (m *Manager) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	checked := m.guards.Check(req.Query)
	if !checked.Accepted {
		zlog.Warn().Msgf("enqueue rejected: actor_id=%s room_id=%s code=%s", req.ActorID, req.RoomID, checked.Code)
		return nil, &ValidationError{Code: checked.Code}
	}

	if !m.limiter.Allow(req.ActorID) {
		zlog.Warn().Msgf("rate limit hit: actor_id=%s room_id=%s", req.ActorID, req.RoomID)
		return nil, ErrRateLimited
	}

	// Single attempt against the provider; failures are reported, not retried.
	res, err := m.provider.Search(ctx, checked.Query)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "search failed"), ErrSearchFailed)
	}
	if res.Empty() {
		return nil, ErrNoResults
	}

	// A session torn down between lookup and enqueue is re-routed once: the
	// registry either holds a successor or creates a fresh session.
	for attempt := 0; attempt < 2; attempt++ {
		s, created := m.registry.GetOrCreate(req.RoomID, func() *Session {
			return newSession(req.RoomID, m.backend, m.policy, m.notifier,
				m.cfg.IdleTimeout, func(closed *Session) {
					m.registry.Remove(req.RoomID, closed)
				})
		})
		if created {
			zlog.Info().Msgf("session created: room_id=%s actor_id=%s", req.RoomID, req.ActorID)
		}

		result, err := s.Enqueue(ctx, req.ActorID, req.VoiceChannelID, req.TextChannelID, res)
		if errors.Is(err, errSessionClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		zlog.Info().Msgf("enqueue accepted: actor_id=%s room_id=%s tracks=%d started=%t queue_len=%d",
			req.ActorID, req.RoomID, result.TrackCount, result.Started, result.QueueLength)
		return result, nil
	}
	return nil, errors.Wrap(errSessionClosed, "enqueue re-route failed")
}

// Skip skips the current track in the room.
func (m *Manager) Skip(actorID, roomID string) error {
	if !m.limiter.Allow(actorID) {
		return ErrRateLimited
	}
	s := m.registry.Get(roomID)
	if s == nil {
		return ErrNothingPlaying
	}
	return s.Skip()
}

// PauseToggle pauses or resumes the room's playback.
func (m *Manager) PauseToggle(actorID, roomID string, pause bool) error {
	if !m.limiter.Allow(actorID) {
		return ErrRateLimited
	}
	s := m.registry.Get(roomID)
	if s == nil {
		return ErrNothingPlaying
	}
	return s.PauseToggle(pause)
}

// Stop stops the room's playback, clears its queue, and tears the session
// down. Idempotent in outcome: a second stop reports ErrNothingToStop.
func (m *Manager) Stop(actorID, roomID string) error {
	if !m.limiter.Allow(actorID) {
		return ErrRateLimited
	}
	s := m.registry.Get(roomID)
	if s == nil {
		return ErrNothingToStop
	}
	return s.Stop()
}

// ListQueue returns a snapshot of the room's pending tracks.
func (m *Manager) ListQueue(roomID string) []track.Track {
	s := m.registry.Get(roomID)
	if s == nil {
		return []track.Track{}
	}
	return s.QueueSnapshot()
}

// Status returns the room's render state, or false when no session exists.
func (m *Manager) Status(roomID string) (*notification.RenderState, bool) {
	s := m.registry.Get(roomID)
	if s == nil {
		return nil, false
	}
	return s.Render(), true
}

// SessionCount returns the number of active sessions.
func (m *Manager) SessionCount() int {
	return m.registry.Len()
}

// ResetLimit clears one actor's rate-limit history.
func (m *Manager) ResetLimit(actorID string) {
	m.limiter.Reset(actorID)
}

// janitor periodically evicts idle actors from the rate-limit table.
func (m *Manager) janitor() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if evicted := m.limiter.Sweep(); evicted > 0 {
				zlog.Debug().Msgf("rate limiter sweep: evicted=%d remaining=%d", evicted, m.limiter.ActorCount())
			}
		}
	}
}

// Close stops every active session and the janitor.
func (m *Manager) Close() {
	for _, s := range m.registry.All() {
		_ = s.Stop()
	}
	m.cancel()
}
