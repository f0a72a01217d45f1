package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
)

// Buffered wraps an in-memory LRU of capacity maxInMem with write-behind
// flushing to a Backend: dirty entries are flushed when either maxBuffer
// entries are dirty or maxWait has elapsed since the oldest dirty entry,
// whichever comes first. Flush is coalesced per streamId — only the
// latest version per key is ever written.
type Buffered[S any] struct {
	memory   *InMemory[S]
	backend  Backend[S]
	maxBuf   int
	maxWait  time.Duration
	clock    func() time.Time
	onFlush  func(err error) // test hook; nil in production

	mu          sync.Mutex
	dirty       map[journal.StreamID]Entry[S]
	oldestDirty time.Time

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// BufferedOption customises a Buffered store at construction time.
type BufferedOption[S any] func(*Buffered[S])

// WithClock overrides the clock used to measure maxWait, for tests.
func WithClock[S any](clock func() time.Time) BufferedOption[S] {
	return func(b *Buffered[S]) { b.clock = clock }
}

// WithFlushHook installs a callback invoked after every flush attempt, for
// tests observing asynchronous flush behavior.
func WithFlushHook[S any](hook func(err error)) BufferedOption[S] {
	return func(b *Buffered[S]) { b.onFlush = hook }
}

// NewBuffered constructs a Buffered store over backend with the given
// maxInMem / maxBuffer / maxWait thresholds, and starts its background
// flush-on-maxWait loop. Callers must call Close to stop that loop and
// flush any remaining dirty entries.
func NewBuffered[S any](backend Backend[S], maxInMem, maxBuffer int, maxWait time.Duration, opts ...BufferedOption[S]) *Buffered[S] {
	b := &Buffered[S]{
		memory:  NewInMemory[S](maxInMem),
		backend: backend,
		maxBuf:  maxBuffer,
		maxWait: maxWait,
		clock:   time.Now,
		dirty:   make(map[journal.StreamID]Entry[S]),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.flushLoop()
	return b
}

// Get always sees the freshest in-memory value; on a cold miss it falls
// through to the backing store.
func (b *Buffered[S]) Get(ctx context.Context, streamID journal.StreamID) (Entry[S], bool, error) {
	if entry, ok, err := b.memory.Get(ctx, streamID); ok || err != nil {
		return entry, ok, err
	}
	entry, ok, err := b.backend.Get(ctx, streamID)
	if err != nil {
		return Entry[S]{}, false, err
	}
	if ok {
		_ = b.memory.Put(ctx, streamID, entry)
	}
	return entry, ok, nil
}

// Put writes entry into the in-memory cache immediately and marks it
// dirty; it is flushed to the backend once maxBuffer dirty entries have
// accumulated or maxWait elapses since the oldest dirty entry.
func (b *Buffered[S]) Put(ctx context.Context, streamID journal.StreamID, entry Entry[S]) error {
	if err := b.memory.Put(ctx, streamID, entry); err != nil {
		return err
	}

	b.mu.Lock()
	if len(b.dirty) == 0 {
		b.oldestDirty = b.clock()
	}
	b.dirty[streamID] = entry
	shouldFlush := len(b.dirty) >= b.maxBuf && b.maxBuf > 0
	b.mu.Unlock()

	if shouldFlush {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes every currently-dirty entry to the backend, coalesced per
// streamId (only the latest Put per key is ever written), and clears the
// dirty set on success.
func (b *Buffered[S]) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.dirty
	b.dirty = make(map[journal.StreamID]Entry[S])
	b.mu.Unlock()

	var err error
	for streamID, entry := range pending {
		if putErr := b.backend.Put(ctx, streamID, entry); putErr != nil {
			err = putErr
			// Put the un-flushed entry back so a later flush retries it.
			b.mu.Lock()
			if _, stillDirty := b.dirty[streamID]; !stillDirty {
				b.dirty[streamID] = entry
			}
			b.mu.Unlock()
		}
	}
	if b.onFlush != nil {
		b.onFlush(err)
	}
	return err
}

func (b *Buffered[S]) flushLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.waitCheckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			_ = b.Flush(context.Background())
			return
		case <-ticker.C:
			b.mu.Lock()
			elapsed := len(b.dirty) > 0 && b.clock().Sub(b.oldestDirty) >= b.maxWait
			b.mu.Unlock()
			if elapsed {
				_ = b.Flush(context.Background())
			}
		}
	}
}

func (b *Buffered[S]) waitCheckInterval() time.Duration {
	interval := b.maxWait / 10
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}

// Close stops the background flush loop and flushes any remaining dirty
// entries before returning.
func (b *Buffered[S]) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
	})
}
