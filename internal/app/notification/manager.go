// Package notification broadcasts session render states and notices.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/osa030/renify/internal/domain/track"
)

// Kind classifies a message pushed to subscribers.
type Kind string

const (
	KindRenderState Kind = "render_state" // status/controller artifact refresh
	KindNowPlaying  Kind = "now_playing"  // a track started
	KindIdleTimeout Kind = "idle_timeout" // session ended after idle countdown
	KindStopped     Kind = "stopped"      // session stopped on explicit command
	KindTerminated  Kind = "terminated"   // backend dropped the session
)

// RenderState is the opaque status artifact the external UI layer renders.
// The session decides when it must be refreshed; the UI owns how it looks.
type RenderState struct {
	RoomID      string       `json:"room_id"`
	ChannelID   string       `json:"channel_id"`
	State       string       `json:"state"`
	Current     *track.Track `json:"current,omitempty"`
	QueueLength int          `json:"queue_length"`
	Paused      bool         `json:"paused"`
	TierLabel   string       `json:"tier_label"`
	Capacity    int          `json:"capacity"`
	Unlimited   bool         `json:"unlimited"`
}

// Message is one notification delivered to subscribers.
type Message struct {
	Kind        Kind         `json:"kind"`
	RoomID      string       `json:"room_id"`
	SequenceNo  uint64       `json:"sequence_no"`
	Track       *track.Track `json:"track,omitempty"`
	RenderState *RenderState `json:"render_state,omitempty"`
}

// Stream receives messages for a subscriber.
type Stream interface {
	Send(*Message) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	sequenceNoMu sync.Mutex
	sequenceNo   uint64
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, stream: stream}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast sends a message to all subscribers. Each stream send runs in its
// own goroutine with a timeout so one slow subscriber cannot stall a session.
func (m *Manager) Broadcast(msg *Message) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	msg.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(msg)
			}()

			select {
			case <-done:
				// Send errors are ignored; the transport layer unsubscribes
				// dead streams on its own.
			case <-ctx.Done():
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
