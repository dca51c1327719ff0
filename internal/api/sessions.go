package api

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/korefit/kore-payments/internal/core/service"
)

// SessionFactory builds a fresh checkout session with its collaborators wired.
type SessionFactory func() *service.Session

// Registry tracks live checkout sessions by id. Sessions idle past the TTL are
// pruned lazily on the next registry access.
type Registry struct {
	mu       sync.Mutex
	factory  SessionFactory
	ttl      time.Duration
	entries  map[string]*registryEntry
	log      zerolog.Logger
	now      func() time.Time
}

type registryEntry struct {
	session  *service.Session
	lastSeen time.Time
}

// NewRegistry creates a session registry. A non-positive ttl falls back to one hour.
func NewRegistry(factory SessionFactory, ttl time.Duration, log zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		factory: factory,
		ttl:     ttl,
		entries: make(map[string]*registryEntry),
		log:     log.With().Str("component", "session_registry").Logger(),
		now:     time.Now,
	}
}

// Create builds a new session and tracks it.
func (r *Registry) Create() *service.Session {
	sess := r.factory()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.entries[sess.ID()] = &registryEntry{session: sess, lastSeen: r.now()}
	return sess
}

// Get returns the session with the given id, refreshing its idle timer.
func (r *Registry) Get(id string) (*service.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()

	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.session, true
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) pruneLocked() {
	cutoff := r.now().Add(-r.ttl)
	for id, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			r.log.Debug().Str("session_id", id).Msg("idle session pruned")
		}
	}
}
