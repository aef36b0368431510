package session

import "sync"

// Registry is the process-wide table of active sessions keyed by room ID.
// Its invariant: the table holds exactly the non-Disconnected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session for a room, or nil.
func (r *Registry) Get(roomID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[roomID]
}

// GetOrCreate returns the room's session, creating it with factory when
// absent. Creation is atomic: two racing first-commands for the same room
// observe the same instance. The factory must not block.
func (r *Registry) GetOrCreate(roomID string, factory func() *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[roomID]; ok {
		return s, false
	}
	s := factory()
	r.sessions[roomID] = s
	return s, true
}

// Remove deletes the room's entry if it still maps to the given instance.
// The instance check keeps a slow teardown from evicting a successor session.
func (r *Registry) Remove(roomID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[roomID]; ok && cur == s {
		delete(r.sessions, roomID)
	}
}

// All returns the active sessions.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
