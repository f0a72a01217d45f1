// Package snapshot implements the cache of (streamId -> (state, version))
// that Repository consults to shorten replay, in its in-memory and
// buffered-persistent flavours.
package snapshot

import (
	"context"

	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
)

// Entry is a cached aggregate state at a known version.
type Entry[S any] struct {
	State   S
	Version journal.EventVersion
}

// Store is what Repository depends on: read the freshest cached entry for
// a stream, write one back after a successful fold.
type Store[S any] interface {
	Get(ctx context.Context, streamID journal.StreamID) (Entry[S], bool, error)
	Put(ctx context.Context, streamID journal.StreamID, entry Entry[S]) error
}

// Backend is the external, durable persistence port a Buffered store
// flushes dirty entries to. It is the `snapshot` collaborator from the
// external-interfaces section: get/put against a backing codec store.
type Backend[S any] interface {
	Get(ctx context.Context, streamID journal.StreamID) (Entry[S], bool, error)
	Put(ctx context.Context, streamID journal.StreamID, entry Entry[S]) error
}
