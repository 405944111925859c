package session

import (
	"context"
	"sync"
	"time"

	"trid/internal/identity"
)

type memoryRecord struct {
	identity  identity.Identity
	expiresAt time.Time
}

// MemoryStore keeps sessions in an in-process map, ideal for local development or tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryRecord
	now  func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryRecord), now: time.Now}
}

// Load returns the identity stored under keyHash unless it has expired.
func (s *MemoryStore) Load(_ context.Context, keyHash string) (identity.Identity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[keyHash]
	if !ok || !s.now().Before(rec.expiresAt) {
		return identity.Identity{}, false, nil
	}
	return rec.identity.Clone(), true, nil
}

// Save replaces the identity stored under keyHash.
func (s *MemoryStore) Save(_ context.Context, keyHash string, id identity.Identity, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[keyHash] = memoryRecord{identity: id.Clone(), expiresAt: expiresAt}
	return nil
}

// Delete removes the record, if any.
func (s *MemoryStore) Delete(_ context.Context, keyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, keyHash)
	return nil
}

// DeleteExpired removes every record whose expiry is not after now.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, rec := range s.data {
		if !now.Before(rec.expiresAt) {
			delete(s.data, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many records are held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
