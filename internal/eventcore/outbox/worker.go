package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
)

// Handler delivers one pending item to whatever downstream transport the
// caller wires up (an HTTP push, a message broker, an SSE stream). A
// returned error is retried with backoff; the item is not marked sent
// until delivery succeeds.
type Handler[N any] func(ctx context.Context, item Item[N]) error

// Worker drains a Reader and delivers each item to a Handler, marking it
// sent only after successful delivery. It is modelled on the claim-publish-
// ack loop of a classic Postgres outbox worker, adapted to the pull-based
// Reader/Store pair instead of a direct SQL/AMQP coupling.
type Worker[N any] struct {
	reader      *Reader[N]
	handler     Handler[N]
	logger      *slog.Logger
	maxAttempts uint
	initDelay   time.Duration
}

// NewWorker constructs a Worker. maxAttempts and initialDelay configure the
// exponential backoff applied to Handler failures for a single item;
// initialDelay <= 0 defaults to 200ms and maxAttempts <= 0 defaults to 5.
func NewWorker[N any](reader *Reader[N], handler Handler[N], logger *slog.Logger, maxAttempts uint, initialDelay time.Duration) *Worker[N] {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	if initialDelay <= 0 {
		initialDelay = 200 * time.Millisecond
	}
	return &Worker[N]{reader: reader, handler: handler, logger: logger, maxAttempts: maxAttempts, initDelay: initialDelay}
}

// Run drains the reader until ctx is done, delivering and acknowledging
// each item in turn. A delivery that exhausts its retry budget is logged
// and skipped (left pending, so the reader yields it again when it rescans
// after the next wake-up tick) rather than aborting the whole worker.
func (w *Worker[N]) Run(ctx context.Context) error {
	items, errs := w.reader.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
		case item, ok := <-items:
			if !ok {
				return nil
			}
			if err := w.deliver(ctx, item); err != nil {
				w.logger.Warn("outbox delivery exhausted retries",
					"stream_id", string(item.StreamID), "seq_nr", int64(item.SeqNr), "error", err)
				continue
			}
			if err := w.reader.MarkAllAsSent(ctx, []journal.SeqNr{item.SeqNr}); err != nil {
				w.logger.Warn("mark outbox item sent failed",
					"stream_id", string(item.StreamID), "seq_nr", int64(item.SeqNr), "error", err)
			}
		}
	}
}

func (w *Worker[N]) deliver(ctx context.Context, item Item[N]) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.initDelay
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.handler(ctx, item)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(w.maxAttempts))
	return err
}
