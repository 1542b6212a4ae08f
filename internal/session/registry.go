package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Factory builds a fresh session.
type Factory func() *Session

// Registry holds the sessions served over HTTP, keyed by ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
	metrics  *Metrics
}

// NewRegistry returns an empty registry. metrics may be nil.
func NewRegistry(factory Factory, metrics *Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		metrics:  metrics,
	}
}

// Create builds, stores and returns a new session.
func (r *Registry) Create() *Session {
	s := r.factory()
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.setActive(n)
	zap.L().Info("session: created", zap.String("session", s.ID()), zap.Int("active", n))
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete closes and forgets the session. It reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	r.setActive(n)
	return true
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expire closes sessions idle since before cutoff and returns how many were
// removed.
func (r *Registry) Expire(cutoff time.Time) int {
	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.lastActivity().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		r.setActive(n)
		zap.L().Info("session: expired idle sessions", zap.Int("removed", len(stale)), zap.Int("active", n))
	}
	return len(stale)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	r.setActive(0)
}

func (r *Registry) setActive(n int) {
	if r.metrics != nil {
		r.metrics.Active.Set(float64(n))
	}
}
