// Package outbox implements the durable buffer of pending notifications
// committed atomically with their causing events, and the pull-based
// reader that drains it in commit order.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
	"github.com/ledgerflow/eventcore/internal/eventcore/notifications"
)

// Item is one pending notification, tagged with the commit it came from.
type Item[N any] struct {
	SeqNr         journal.SeqNr
	StreamID      journal.StreamID
	CorrelationID uuid.UUID
	Notification  N
	CreatedAt     time.Time
}

// Store is the storage-driver surface the Outbox depends on: a pull-based
// scan of unconsumed items in SeqNr order, and a durable mark-sent
// acknowledgement. Delivery is at-least-once — MarkAllAsSent may not have
// been called for an item a consumer already processed, so consumers must
// be idempotent on (SeqNr, CorrelationID).
type Store[N any] interface {
	// Pending returns up to limit unconsumed items in ascending SeqNr order.
	// The store never buffers unbounded items in memory; callers page
	// through with repeated calls.
	Pending(ctx context.Context, limit int) ([]Item[N], error)
	// MarkAllAsSent durably marks the given SeqNr values as consumed; they
	// become invisible to future Pending calls.
	MarkAllAsSent(ctx context.Context, seqNrs []journal.SeqNr) error
}

// Reader yields pending items in commit order, driven by an initial scan
// and then a long-running wait that wakes on NotificationsConsumer ticks.
type Reader[N any] struct {
	store     Store[N]
	consumer  *notifications.Consumer
	batchSize int
}

// NewReader constructs a Reader over store, waking on consumer ticks, and
// scanning at most batchSize items per Pending call.
func NewReader[N any](store Store[N], consumer *notifications.Consumer, batchSize int) *Reader[N] {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reader[N]{store: store, consumer: consumer, batchSize: batchSize}
}

// Read streams pending items in SeqNr order until ctx is done. It performs
// an initial scan of unconsumed items, then waits for a wake-up tick
// before rescanning — so a caller that never calls MarkAllAsSent will see
// the same items again on the next tick (at-least-once delivery).
func (r *Reader[N]) Read(ctx context.Context) (<-chan Item[N], <-chan error) {
	out := make(chan Item[N])
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		wake := r.consumer.Listen(ctx)
		for {
			items, err := r.store.Pending(ctx, r.batchSize)
			if err != nil {
				errCh <- err
				return
			}
			for _, item := range items {
				select {
				case out <- item:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if len(items) == r.batchSize && r.batchSize > 0 {
				// More may be pending right now; rescan without waiting.
				continue
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-wake:
			}
		}
	}()

	return out, errCh
}

// MarkAllAsSent delegates to the backing store.
func (r *Reader[N]) MarkAllAsSent(ctx context.Context, seqNrs []journal.SeqNr) error {
	return r.store.MarkAllAsSent(ctx, seqNrs)
}
