// Package commandstore implements the bounded LRU cache of already-
// processed command IDs that CommandHandler consults to short-circuit
// idempotent retries. The backing journal's unique index on command id
// remains the authoritative guard; this cache only avoids a round-trip.
package commandstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ledgerflow/eventcore/internal/eventcore/lru"
)

// Store is a bounded, concurrency-safe set of command UUIDs.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[uuid.UUID, struct{}]
}

// New constructs a Store with the given capacity (eviction is by
// least-recent-insertion, i.e. plain LRU over insertion order since
// command IDs are never re-looked-up to refresh recency in practice).
func New(capacity int) *Store {
	return &Store{cache: lru.New[uuid.UUID, struct{}](capacity)}
}

// Contains reports whether id has already been recorded.
func (s *Store) Contains(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Contains(id)
}

// Add records id as processed, evicting the least-recently-inserted entry
// if the store is at capacity.
func (s *Store) Add(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Put(id, struct{}{})
}
