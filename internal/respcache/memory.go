package respcache

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMemoryTTL is the default entry lifetime for the in-memory store.
	DefaultMemoryTTL = time.Hour

	// DefaultMemoryMaxEntries caps the in-memory store size.
	DefaultMemoryMaxEntries = 1024
)

type memoryEntry struct {
	text      string
	expiresAt time.Time
	storedAt  time.Time
}

// MemoryStore is a mutex-protected in-memory store with TTL and size-based
// eviction. Suitable for single-instance deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
}

// MemoryConfig holds in-memory store settings.
type MemoryConfig struct {
	// TTL is the entry lifetime (defaults to DefaultMemoryTTL).
	TTL time.Duration
	// MaxEntries caps the store size (defaults to DefaultMemoryMaxEntries).
	MaxEntries int
}

// NewMemoryStore creates an in-memory response store.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Lookup returns the cached text for a fingerprint. Expired entries count
// as misses and are removed lazily.
func (s *MemoryStore) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	s.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Store may have
		// refreshed the entry.
		if cur, ok := s.entries[fingerprint]; ok && time.Now().After(cur.expiresAt) {
			delete(s.entries, fingerprint)
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.text, true, nil
}

// Store writes the response text, overwriting any existing entry.
func (s *MemoryStore) Store(ctx context.Context, fingerprint, text string) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[fingerprint]; !exists && len(s.entries) >= s.maxEntries {
		s.evictLocked(now)
	}
	s.entries[fingerprint] = memoryEntry{
		text:      text,
		expiresAt: now.Add(s.ttl),
		storedAt:  now,
	}
	return nil
}

// Delete evicts a single entry.
func (s *MemoryStore) Delete(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	delete(s.entries, fingerprint)
	s.mu.Unlock()
	return nil
}

// Flush evicts all entries.
func (s *MemoryStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of entries, including any not yet expired-swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictLocked drops all expired entries, then the oldest entry if the store
// is still full. Must be called with s.mu held.
func (s *MemoryStore) evictLocked(now time.Time) {
	for fp, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, fp)
		}
	}
	if len(s.entries) < s.maxEntries {
		return
	}

	var oldestKey string
	var oldestAt time.Time
	for fp, entry := range s.entries {
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = fp
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}
