package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/renify/internal/domain/track"
)

// chanSink collects delivered events.
type chanSink struct {
	ch chan Event
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan Event, 16)}
}

func (s *chanSink) Deliver(ev Event) {
	s.ch <- ev
}

func (s *chanSink) wait(t *testing.T, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for backend event")
		return Event{}
	}
}

func (s *chanSink) assertQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-s.ch:
		t.Fatalf("unexpected event: %s", ev.Type)
	case <-time.After(d):
	}
}

func TestScheduler_TrackFinishesAfterDuration(t *testing.T) {
	s := NewScheduler()
	sink := newChanSink()
	require.NoError(t, s.Join(context.Background(), "room", "actor", sink))

	require.NoError(t, s.Play("room", track.Track{Title: "short", Duration: 30 * time.Millisecond}))

	ev := sink.wait(t, time.Second)
	assert.Equal(t, EventTrackFinished, ev.Type)
	assert.Equal(t, "room", ev.RoomID)
	require.NotNil(t, ev.Track)
	assert.Equal(t, "short", ev.Track.Title)
}

func TestScheduler_StopCurrentEmitsTrackFinished(t *testing.T) {
	s := NewScheduler()
	sink := newChanSink()
	require.NoError(t, s.Join(context.Background(), "room", "actor", sink))

	require.NoError(t, s.Play("room", track.Track{Title: "long", Duration: time.Hour}))
	require.NoError(t, s.StopCurrent("room"))

	ev := sink.wait(t, time.Second)
	assert.Equal(t, EventTrackFinished, ev.Type)
	require.NotNil(t, ev.Track)
	assert.Equal(t, "long", ev.Track.Title)

	// The hour-long timer must not fire a second finish.
	assert.ErrorIs(t, s.StopCurrent("room"), ErrNoCurrentTrack)
}

func TestScheduler_PauseSuspendsTrackEnd(t *testing.T) {
	s := NewScheduler()
	sink := newChanSink()
	require.NoError(t, s.Join(context.Background(), "room", "actor", sink))

	require.NoError(t, s.Play("room", track.Track{Title: "t", Duration: 50 * time.Millisecond}))
	require.NoError(t, s.Pause("room", true))

	// Paused playback never finishes.
	sink.assertQuiet(t, 120*time.Millisecond)

	require.NoError(t, s.Pause("room", false))
	ev := sink.wait(t, time.Second)
	assert.Equal(t, EventTrackFinished, ev.Type)
}

func TestScheduler_PauseIdempotent(t *testing.T) {
	s := NewScheduler()
	sink := newChanSink()
	require.NoError(t, s.Join(context.Background(), "room", "actor", sink))
	require.NoError(t, s.Play("room", track.Track{Title: "t", Duration: time.Hour}))

	require.NoError(t, s.Pause("room", true))
	require.NoError(t, s.Pause("room", true))
	require.NoError(t, s.Pause("room", false))
	require.NoError(t, s.Pause("room", false))
	assert.Greater(t, s.Remaining("room"), time.Duration(0))
}

func TestScheduler_ZeroDurationRunsUntilStopped(t *testing.T) {
	s := NewScheduler()
	sink := newChanSink()
	require.NoError(t, s.Join(context.Background(), "room", "actor", sink))

	require.NoError(t, s.Play("room", track.Track{Title: "live"}))
	sink.assertQuiet(t, 50*time.Millisecond)

	require.NoError(t, s.StopCurrent("room"))
	ev := sink.wait(t, time.Second)
	assert.Equal(t, EventTrackFinished, ev.Type)
}

func TestScheduler_ForceDisconnect(t *testing.T) {
	s := NewScheduler()
	sink := newChanSink()
	require.NoError(t, s.Join(context.Background(), "room", "actor", sink))
	require.NoError(t, s.Play("room", track.Track{Title: "t", Duration: time.Hour}))

	s.ForceDisconnect("room")

	ev := sink.wait(t, time.Second)
	assert.Equal(t, EventForcedDisconnect, ev.Type)
	assert.Nil(t, ev.Track)

	// Room state is gone.
	assert.ErrorIs(t, s.Play("room", track.Track{Title: "x"}), ErrNotConnected)
}

func TestScheduler_DisconnectIsSilent(t *testing.T) {
	s := NewScheduler()
	sink := newChanSink()
	require.NoError(t, s.Join(context.Background(), "room", "actor", sink))
	require.NoError(t, s.Play("room", track.Track{Title: "t", Duration: 30 * time.Millisecond}))

	s.Disconnect("room")
	sink.assertQuiet(t, 100*time.Millisecond)
}

func TestScheduler_RoomsIndependent(t *testing.T) {
	s := NewScheduler()
	var wg sync.WaitGroup
	for _, room := range []string{"r1", "r2", "r3"} {
		sink := newChanSink()
		require.NoError(t, s.Join(context.Background(), room, "actor", sink))
		wg.Add(1)
		go func(room string, sink *chanSink) {
			defer wg.Done()
			require.NoError(t, s.Play(room, track.Track{Title: room, Duration: 20 * time.Millisecond}))
			ev := sink.wait(t, time.Second)
			assert.Equal(t, room, ev.RoomID)
			assert.Equal(t, room, ev.Track.Title)
		}(room, sink)
	}
	wg.Wait()
}
