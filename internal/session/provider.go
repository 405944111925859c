package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"trid/internal/identity"
)

// Change describes one identity change of a session.
type Change struct {
	Identity identity.Identity
	Present  bool
	// PreviousKeyHash is the record the session lived under before the change.
	PreviousKeyHash string
	KeyHash         string
	// Key is the new cookie value when the change rotated the session key, empty otherwise.
	Key string
}

// Rotated reports whether the session moved to a new key.
func (c Change) Rotated() bool {
	return c.Key != ""
}

// Listener is called after every login or logout.
type Listener func(Change)

// Provider owns the identity of one browser session. Consumers read it through
// Current; it only changes through Login and Logout.
type Provider struct {
	store   Store
	keyHash string
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	current   identity.Identity
	present   bool
	hydrated  bool
	listeners map[int]Listener
	nextID    int
}

// NewProvider builds an empty provider for the session identified by keyHash.
func NewProvider(store Store, keyHash string, ttl time.Duration, logger *slog.Logger) *Provider {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{
		store:     store,
		keyHash:   keyHash,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// KeyHash identifies the session in the store. It changes when Login rotates the key.
func (p *Provider) KeyHash() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keyHash
}

// Hydrate loads the persisted identity once. Absent or malformed records leave the session empty;
// malformed records are also removed from the store.
func (p *Provider) Hydrate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hydrated {
		return nil
	}

	id, ok, err := p.store.Load(ctx, p.keyHash)
	if err != nil {
		return fmt.Errorf("hydrate session: %w", err)
	}

	if ok {
		if verr := id.Validate(); verr != nil {
			p.logger.Warn("discarding malformed session record", "error", verr)
			if err := p.store.Delete(ctx, p.keyHash); err != nil {
				p.logger.Error("delete malformed session record", "error", err)
			}
			ok = false
			id = identity.Identity{}
		}
	}

	p.current, p.present, p.hydrated = id, ok, true
	return nil
}

// Current returns the identity, or present=false when nobody is logged in.
func (p *Provider) Current() (identity.Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.present {
		return identity.Identity{}, false
	}
	return p.current.Clone(), true
}

// Login replaces any previous identity and moves the session to a freshly generated key,
// so a key known before login never carries the authenticated identity. Listeners receive the
// new key. Incomplete identities are rejected with identity.ErrIncomplete and leave the session untouched.
func (p *Provider) Login(ctx context.Context, id identity.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	key, err := NewKey()
	if err != nil {
		return err
	}
	return p.save(ctx, id, key)
}

// replace swaps the identity under the current key. Token refresh uses it.
func (p *Provider) replace(ctx context.Context, id identity.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return p.save(ctx, id, "")
}

func (p *Provider) save(ctx context.Context, id identity.Identity, key string) error {
	id = id.Clone()

	p.mu.Lock()
	previous := p.keyHash
	hash := previous
	if key != "" {
		hash = HashKey(key)
	}

	if err := p.store.Save(ctx, hash, id, p.now().Add(p.ttl)); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}
	if hash != previous {
		if err := p.store.Delete(ctx, previous); err != nil {
			if derr := p.store.Delete(ctx, hash); derr != nil {
				p.logger.Error("delete unused session record", "error", derr)
			}
			p.mu.Unlock()
			return fmt.Errorf("retire previous session key: %w", err)
		}
	}

	p.keyHash = hash
	p.current, p.present, p.hydrated = id, true, true
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	change := Change{Identity: id, Present: true, PreviousKeyHash: previous, KeyHash: hash, Key: key}
	for _, l := range listeners {
		c := change
		c.Identity = id.Clone()
		l(c)
	}
	return nil
}

// Logout clears the identity in memory and in the store. It is idempotent, and listeners are told
// on every call so per-session state is torn down even for an already empty session.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	if err := p.store.Delete(ctx, p.keyHash); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("clear session: %w", err)
	}
	hash := p.keyHash
	p.current, p.present, p.hydrated = identity.Identity{}, false, true
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	for _, l := range listeners {
		l(Change{PreviousKeyHash: hash, KeyHash: hash})
	}
	return nil
}

// Subscribe registers l for identity changes and returns a function that removes it.
func (p *Provider) Subscribe(l Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = l

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) snapshotLocked() []Listener {
	out := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		out = append(out, l)
	}
	return out
}
