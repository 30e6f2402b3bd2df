package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/theimaginaryfoundation/review-insights/insights"
)

// SessionFactory builds a fresh session for the given id.
type SessionFactory func(id string) *insights.Session

type registryEntry struct {
	session  *insights.Session
	lastSeen time.Time
}

// Registry keeps sessions in memory, keyed by id. Sessions idle for longer than the TTL are dropped
// by Sweep; nothing outlives the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*registryEntry
	factory  SessionFactory
	ttl      time.Duration
	now      func() time.Time

	onChange func(n int)
}

func NewRegistry(factory SessionFactory, ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*registryEntry),
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
	}
}

// OnChange registers a callback receiving the session count after every create or sweep.
func (r *Registry) OnChange(fn func(n int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Registry) Create() *insights.Session {
	id := uuid.NewString()
	s := r.factory(id)

	r.mu.Lock()
	r.sessions[id] = &registryEntry{session: s, lastSeen: r.now()}
	n, fn := len(r.sessions), r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	slog.Info("session created", "session", id)
	return s
}

// Get returns the session and marks it as active.
func (r *Registry) Get(id string) (*insights.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, insights.ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.session, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes idle sessions and returns how many were dropped. Sessions with an analysis
// running are kept. A zero TTL disables expiry.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) && !e.session.Analyzing() {
			delete(r.sessions, id)
			removed++
			slog.Info("session expired", "session", id)
		}
	}
	n, fn := len(r.sessions), r.onChange
	r.mu.Unlock()

	if fn != nil && removed > 0 {
		fn(n)
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}
