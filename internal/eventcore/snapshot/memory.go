package snapshot

import (
	"context"
	"sync"

	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
	"github.com/ledgerflow/eventcore/internal/eventcore/lru"
)

// InMemory is a fixed-capacity LRU cache of aggregate snapshots with no
// backing store: on startup it is cold, and any miss simply means
// Repository folds from the full stream.
type InMemory[S any] struct {
	mu    sync.Mutex
	cache *lru.Cache[journal.StreamID, Entry[S]]
}

// NewInMemory constructs an InMemory store of the given capacity (maxInMem).
func NewInMemory[S any](maxInMem int) *InMemory[S] {
	return &InMemory[S]{cache: lru.New[journal.StreamID, Entry[S]](maxInMem)}
}

// Get returns the freshest in-memory value for streamID, if cached.
func (s *InMemory[S]) Get(_ context.Context, streamID journal.StreamID) (Entry[S], bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache.Get(streamID)
	return entry, ok, nil
}

// Put writes entry into the in-memory cache, evicting the
// least-recently-used entry if at capacity.
func (s *InMemory[S]) Put(_ context.Context, streamID journal.StreamID, entry Entry[S]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Put(streamID, entry)
	return nil
}
