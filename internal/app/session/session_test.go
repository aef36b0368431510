package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/renify/internal/app/guard"
	"github.com/osa030/renify/internal/app/notification"
	"github.com/osa030/renify/internal/app/playback"
	"github.com/osa030/renify/internal/app/queue"
	"github.com/osa030/renify/internal/app/search"
	"github.com/osa030/renify/internal/app/tier"
	"github.com/osa030/renify/internal/domain/track"
)

// fakeBackend records calls and lets tests emit backend events.
type fakeBackend struct {
	mu           sync.Mutex
	denyJoin     bool
	sinks        map[string]playback.EventSink
	played       []track.Track
	stopped      int
	pauses       []bool
	disconnected []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sinks: make(map[string]playback.EventSink)}
}

func (b *fakeBackend) Join(ctx context.Context, roomID, actorID string, sink playback.EventSink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denyJoin {
		return playback.ErrPermissionDenied
	}
	b.sinks[roomID] = sink
	return nil
}

func (b *fakeBackend) Play(roomID string, t track.Track) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.played = append(b.played, t)
	return nil
}

func (b *fakeBackend) Pause(roomID string, pause bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pauses = append(b.pauses, pause)
	return nil
}

func (b *fakeBackend) StopCurrent(roomID string) error {
	b.mu.Lock()
	b.stopped++
	sink := b.sinks[roomID]
	last := b.played[len(b.played)-1]
	b.mu.Unlock()

	go sink.Deliver(playback.Event{Type: playback.EventTrackFinished, RoomID: roomID, Track: &last})
	return nil
}

func (b *fakeBackend) Disconnect(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = append(b.disconnected, roomID)
}

// finish emits a natural track-finished event for the room.
func (b *fakeBackend) finish(roomID string) {
	b.mu.Lock()
	sink := b.sinks[roomID]
	last := b.played[len(b.played)-1]
	b.mu.Unlock()
	sink.Deliver(playback.Event{Type: playback.EventTrackFinished, RoomID: roomID, Track: &last})
}

func (b *fakeBackend) forceDisconnect(roomID string) {
	b.mu.Lock()
	sink := b.sinks[roomID]
	b.mu.Unlock()
	sink.Deliver(playback.Event{Type: playback.EventForcedDisconnect, RoomID: roomID})
}

func (b *fakeBackend) playedTitles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.played))
	for i, t := range b.played {
		out[i] = t.Title
	}
	return out
}

// fakeProvider resolves queries from a fixed table.
type fakeProvider struct {
	results map[string]search.Result
	err     error
}

func (p *fakeProvider) Search(ctx context.Context, query string) (search.Result, error) {
	if p.err != nil {
		return search.Result{}, p.err
	}
	if r, ok := p.results[query]; ok {
		return r, nil
	}
	return search.Result{}, nil
}

func singleTrack(title string) search.Result {
	return search.Result{Track: &track.Track{Title: title, URI: "uri:" + title, Duration: 3 * time.Minute}}
}

func playlistOf(name string, n int) search.Result {
	ts := make([]track.Track, n)
	for i := range ts {
		ts[i] = track.Track{Title: fmt.Sprintf("%s-%d", name, i), URI: fmt.Sprintf("uri:%s-%d", name, i)}
	}
	return search.Result{Playlist: &track.Playlist{Name: name, Tracks: ts}}
}

type fixture struct {
	mgr      *Manager
	backend  *fakeBackend
	provider *fakeProvider
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.RateMaxCalls == 0 {
		cfg.RateMaxCalls = 1000
	}
	backend := newFakeBackend()
	provider := &fakeProvider{results: map[string]search.Result{
		"one":      singleTrack("one"),
		"two":      singleTrack("two"),
		"three":    singleTrack("three"),
		"mix":      playlistOf("mix", 3),
		"big mix":  playlistOf("big", 5),
		"huge mix": playlistOf("huge", 600),
	}}

	chain := guard.NewChain()
	chain.Add(guard.NewQueryLengthGuard())
	chain.Add(&guard.ControlCharsGuard{})

	mgr := NewManager(cfg, backend, provider,
		tier.NewStaticPolicy(tier.TierFree, tier.DefaultTable()),
		chain, notification.NewManager())
	t.Cleanup(mgr.Close)
	return &fixture{mgr: mgr, backend: backend, provider: provider}
}

func enqueue(t *testing.T, f *fixture, actor, room, query string) *EnqueueResult {
	t.Helper()
	res, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: actor, RoomID: room, VoiceChannelID: "vc-1", TextChannelID: "tc-1", Query: query,
	})
	require.NoError(t, err)
	return res
}

func TestEnqueue_FirstTrackStartsPlayback(t *testing.T) {
	f := newFixture(t, Config{})

	res := enqueue(t, f, "alice", "room", "one")
	assert.True(t, res.Started)
	assert.Equal(t, "one", res.Track.Title)
	assert.Equal(t, 0, res.QueueLength)
	assert.Equal(t, tier.TierFree, res.TierLabel)

	assert.Equal(t, []string{"one"}, f.backend.playedTitles())
	assert.Equal(t, 1, f.mgr.SessionCount())

	state, ok := f.mgr.Status("room")
	require.True(t, ok)
	assert.Equal(t, StateDraining.String(), state.State)
}

func TestEnqueue_SecondTrackJoinsQueue(t *testing.T) {
	f := newFixture(t, Config{})

	enqueue(t, f, "alice", "room", "one")
	res := enqueue(t, f, "bob", "room", "two")
	assert.False(t, res.Started)
	assert.Equal(t, 1, res.QueueLength)

	// Only the first track reached the backend.
	assert.Equal(t, []string{"one"}, f.backend.playedTitles())

	snap := f.mgr.ListQueue("room")
	require.Len(t, snap, 1)
	assert.Equal(t, "two", snap[0].Title)
}

func TestEnqueue_Playlist(t *testing.T) {
	f := newFixture(t, Config{})

	res := enqueue(t, f, "alice", "room", "mix")
	assert.True(t, res.Started)
	assert.Equal(t, "mix", res.PlaylistName)
	assert.Equal(t, 3, res.TrackCount)
	assert.Equal(t, 2, res.QueueLength) // head went straight to playback
	assert.Equal(t, []string{"mix-0"}, f.backend.playedTitles())
}

func TestEnqueue_PlaylistOverflowIsAtomic(t *testing.T) {
	f := newFixture(t, Config{})

	// Free tier allows 500; 600 never fits.
	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "alice", RoomID: "room", VoiceChannelID: "vc-1", Query: "huge mix",
	})
	var ce *queue.CapacityExceeded
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 100, ce.Overflow)
	assert.Equal(t, 500, ce.Limit)

	// Nothing was queued and nothing plays.
	assert.Empty(t, f.backend.playedTitles())
	assert.Empty(t, f.mgr.ListQueue("room"))
}

func TestEnqueue_ValidationRunsBeforeAnything(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "alice", RoomID: "room", Query: "bad\nquery",
	})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "invalid_characters", ve.Code)
	assert.Equal(t, 0, f.mgr.SessionCount())
}

func TestEnqueue_RateLimited(t *testing.T) {
	f := newFixture(t, Config{RateMaxCalls: 2, RateWindow: time.Hour})

	enqueue(t, f, "alice", "room", "one")
	enqueue(t, f, "alice", "room", "two")

	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "alice", RoomID: "room", VoiceChannelID: "vc-1", Query: "three",
	})
	assert.ErrorIs(t, err, ErrRateLimited)

	// Other actors are unaffected.
	res := enqueue(t, f, "bob", "room", "three")
	assert.False(t, res.Started)
}

func TestEnqueue_SearchFailed(t *testing.T) {
	f := newFixture(t, Config{})
	f.provider.err = errors.New("provider exploded")

	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "alice", RoomID: "room", Query: "one",
	})
	assert.True(t, errors.Is(err, ErrSearchFailed))
	assert.Equal(t, 0, f.mgr.SessionCount())
}

func TestEnqueue_NoResults(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "alice", RoomID: "room", Query: "does not exist",
	})
	assert.ErrorIs(t, err, ErrNoResults)
	assert.Equal(t, 0, f.mgr.SessionCount())
}

func TestEnqueue_PermissionDenied(t *testing.T) {
	f := newFixture(t, Config{})
	f.backend.denyJoin = true

	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "alice", RoomID: "room", VoiceChannelID: "vc-1", Query: "one",
	})
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	// No session survives a denied join.
	assert.Equal(t, 0, f.mgr.SessionCount())
}

func TestEnqueue_SessionConflict(t *testing.T) {
	f := newFixture(t, Config{})
	enqueue(t, f, "alice", "room", "one")

	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "bob", RoomID: "room", VoiceChannelID: "vc-other", Query: "two",
	})
	assert.ErrorIs(t, err, ErrSessionConflict)
	assert.Empty(t, f.mgr.ListQueue("room"))
}

func TestEnqueue_LateVoiceChannelBinding(t *testing.T) {
	f := newFixture(t, Config{})

	// First enqueue names no voice channel; the session stays unbound.
	_, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "alice", RoomID: "room", Query: "one",
	})
	require.NoError(t, err)

	// The first non-empty voice channel binds the session.
	_, err = f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "bob", RoomID: "room", VoiceChannelID: "vc-1", Query: "two",
	})
	require.NoError(t, err)

	// From then on a different voice channel conflicts.
	_, err = f.mgr.Enqueue(context.Background(), EnqueueRequest{
		ActorID: "carol", RoomID: "room", VoiceChannelID: "vc-2", Query: "three",
	})
	assert.ErrorIs(t, err, ErrSessionConflict)
}

func TestAdvance_FIFOOrder(t *testing.T) {
	f := newFixture(t, Config{})
	enqueue(t, f, "alice", "room", "one")
	enqueue(t, f, "alice", "room", "two")
	enqueue(t, f, "alice", "room", "three")

	f.backend.finish("room")
	require.Eventually(t, func() bool {
		return len(f.backend.playedTitles()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, f.backend.playedTitles())
	assert.Len(t, f.mgr.ListQueue("room"), 1)

	f.backend.finish("room")
	require.Eventually(t, func() bool {
		return len(f.backend.playedTitles()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, f.backend.playedTitles())
	assert.Empty(t, f.mgr.ListQueue("room"))
}

func TestAdvance_EmptyQueueEntersIdleCountdown(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: time.Hour})
	enqueue(t, f, "alice", "room", "one")

	f.backend.finish("room")
	require.Eventually(t, func() bool {
		state, ok := f.mgr.Status("room")
		return ok && state.State == StateAwaitingIdle.String()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.mgr.SessionCount())
}

func TestIdleTimeout_DisconnectsAndRemoves(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: 40 * time.Millisecond})
	enqueue(t, f, "alice", "room", "one")

	f.backend.finish("room")
	require.Eventually(t, func() bool {
		return f.mgr.SessionCount() == 0
	}, time.Second, 5*time.Millisecond)

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	assert.Contains(t, f.backend.disconnected, "room")
}

func TestIdleTimeout_SupersededByEnqueue(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: 250 * time.Millisecond})
	enqueue(t, f, "alice", "room", "one")

	f.backend.finish("room")
	require.Eventually(t, func() bool {
		state, ok := f.mgr.Status("room")
		return ok && state.State == StateAwaitingIdle.String()
	}, time.Second, 5*time.Millisecond)

	// Enqueue during the countdown cancels it and resumes playback.
	res := enqueue(t, f, "alice", "room", "two")
	assert.True(t, res.Started)

	// The stale timer must never fire a late disconnect.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, f.mgr.SessionCount())
	state, ok := f.mgr.Status("room")
	require.True(t, ok)
	assert.Equal(t, StateDraining.String(), state.State)
}

func TestSkip_AdvancesToNext(t *testing.T) {
	f := newFixture(t, Config{})
	enqueue(t, f, "alice", "room", "one")
	enqueue(t, f, "alice", "room", "two")

	require.NoError(t, f.mgr.Skip("alice", "room"))
	require.Eventually(t, func() bool {
		return len(f.backend.playedTitles()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, f.backend.playedTitles())
}

func TestSkip_NoSession(t *testing.T) {
	f := newFixture(t, Config{})
	assert.ErrorIs(t, f.mgr.Skip("alice", "nope"), ErrNothingPlaying)
	assert.Equal(t, 0, f.mgr.SessionCount())
}

func TestPauseToggle(t *testing.T) {
	f := newFixture(t, Config{})
	enqueue(t, f, "alice", "room", "one")

	assert.ErrorIs(t, f.mgr.PauseToggle("alice", "room", false), ErrAlreadyPlaying)
	require.NoError(t, f.mgr.PauseToggle("alice", "room", true))

	state, ok := f.mgr.Status("room")
	require.True(t, ok)
	assert.Equal(t, StatePaused.String(), state.State)
	assert.True(t, state.Paused)

	assert.ErrorIs(t, f.mgr.PauseToggle("alice", "room", true), ErrAlreadyPaused)
	require.NoError(t, f.mgr.PauseToggle("alice", "room", false))

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	assert.Equal(t, []bool{true, false}, f.backend.pauses)
}

func TestPauseToggle_NothingPlaying(t *testing.T) {
	f := newFixture(t, Config{})
	assert.ErrorIs(t, f.mgr.PauseToggle("alice", "room", true), ErrNothingPlaying)
}

func TestStop_ClearsAndRemoves(t *testing.T) {
	f := newFixture(t, Config{})
	enqueue(t, f, "alice", "room", "one")
	enqueue(t, f, "alice", "room", "two")

	require.NoError(t, f.mgr.Stop("alice", "room"))
	assert.Equal(t, 0, f.mgr.SessionCount())
	assert.Empty(t, f.mgr.ListQueue("room"))

	// Second stop reports there is nothing left to stop.
	assert.ErrorIs(t, f.mgr.Stop("alice", "room"), ErrNothingToStop)

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	assert.Contains(t, f.backend.disconnected, "room")
}

func TestForcedDisconnect_CleansUp(t *testing.T) {
	f := newFixture(t, Config{})
	enqueue(t, f, "alice", "room", "one")

	f.backend.forceDisconnect("room")
	require.Eventually(t, func() bool {
		return f.mgr.SessionCount() == 0
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.mgr.Skip("alice", "room"), ErrNothingPlaying)
}

func TestRoomsRunInParallel(t *testing.T) {
	f := newFixture(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := fmt.Sprintf("room-%d", i)
			res, err := f.mgr.Enqueue(context.Background(), EnqueueRequest{
				ActorID: fmt.Sprintf("actor-%d", i), RoomID: room, VoiceChannelID: "vc", Query: "one",
			})
			require.NoError(t, err)
			assert.True(t, res.Started)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, f.mgr.SessionCount())
}
