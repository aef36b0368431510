package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu   sync.Mutex
	msgs []*Message
}

func (s *recordingStream) Send(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingStream) received() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

type blockingStream struct{}

func (s *blockingStream) Send(*Message) error {
	time.Sleep(5 * time.Second)
	return nil
}

func TestManager_BroadcastReachesAllSubscribers(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)

	m.Broadcast(&Message{Kind: KindNowPlaying, RoomID: "room"})

	require.Len(t, a.received(), 1)
	require.Len(t, b.received(), 1)
	assert.Equal(t, KindNowPlaying, a.received()[0].Kind)
}

func TestManager_SequenceNumbersIncrease(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	m.Subscribe(s)

	m.Broadcast(&Message{Kind: KindRenderState})
	m.Broadcast(&Message{Kind: KindRenderState})
	m.Broadcast(&Message{Kind: KindStopped})

	msgs := s.received()
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(1), msgs[0].SequenceNo)
	assert.Equal(t, uint64(2), msgs[1].SequenceNo)
	assert.Equal(t, uint64(3), msgs[2].SequenceNo)
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)
	require.Equal(t, 1, m.SubscriberCount())

	m.Unsubscribe(id)
	assert.Equal(t, 0, m.SubscriberCount())

	m.Broadcast(&Message{Kind: KindRenderState})
	assert.Empty(t, s.received())
}

func TestManager_SlowSubscriberDoesNotStallBroadcast(t *testing.T) {
	m := NewManager()
	m.Subscribe(&blockingStream{})
	fast := &recordingStream{}
	m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(&Message{Kind: KindRenderState})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, fast.received(), 1)
}
