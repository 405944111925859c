package flow

import (
	"sync"
	"time"

	"trid/internal/platform/metrics"
)

type registryKey struct {
	session string
	kind    Kind
}

type registryEntry struct {
	machine  *Machine
	lastUsed time.Time
}

// Registry keeps one Machine per browser session and form.
type Registry struct {
	idle    time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[registryKey]*registryEntry
}

// NewRegistry creates a registry whose machines are dropped after idle without use.
func NewRegistry(idle time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		idle:    idle,
		metrics: m,
		now:     time.Now,
		entries: make(map[registryKey]*registryEntry),
	}
}

// Machine returns the session's machine for kind, creating it when missing.
// A machine that succeeded and whose redirect delay has passed is replaced with a fresh one.
func (r *Registry) Machine(session string, kind Kind) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := registryKey{session: session, kind: kind}
	if e, ok := r.entries[key]; ok && !e.machine.finished(now) {
		e.lastUsed = now
		return e.machine
	}

	m := NewMachine(kind)
	m.now = r.now
	m.observe = func(k Kind, st Status) {
		r.metrics.ObserveFlow(string(k), string(st))
	}
	if e, ok := r.entries[key]; ok {
		m.claimed = e.machine.claimedKeys()
		e.machine.Close()
	}
	r.entries[key] = &registryEntry{machine: m, lastUsed: now}
	return m
}

// Forget closes and removes every machine belonging to session.
func (r *Registry) Forget(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if key.session == session {
			e.machine.Close()
			delete(r.entries, key)
		}
	}
}

// Rekey moves every machine of session from to session to, keeping their state.
func (r *Registry) Rekey(from, to string) {
	if from == to {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if key.session != from {
			continue
		}
		delete(r.entries, key)
		moved := registryKey{session: to, kind: key.kind}
		if old, ok := r.entries[moved]; ok {
			old.machine.Close()
		}
		r.entries[moved] = e
	}
}

// Sweep drops machines idle for longer than the registry's idle window. Busy machines are kept.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, e := range r.entries {
		if now.Sub(e.lastUsed) < r.idle || e.machine.Busy() {
			continue
		}
		e.machine.Close()
		delete(r.entries, key)
		removed++
	}
	return removed
}

// Len returns the number of live machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
