package lease

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	owner     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-worker setups.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Acquire(_ context.Context, key, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if ok && entry.owner != owner && s.now().Before(entry.expiresAt) {
		return ErrLeaseHeld
	}

	s.entries[key] = memoryEntry{owner: owner, expiresAt: s.now().Add(ttl)}

	return nil
}

func (s *MemoryStore) Renew(_ context.Context, key, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.owner != owner || !s.now().Before(entry.expiresAt) {
		return ErrLeaseHeld
	}

	s.entries[key] = memoryEntry{owner: owner, expiresAt: s.now().Add(ttl)}

	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if ok && entry.owner == owner {
		delete(s.entries, key)
	}

	return nil
}
