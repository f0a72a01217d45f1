// Package handler implements CommandHandler: the state machine that loads
// an aggregate, decides on a command against a Model, and commits the
// resulting events and notifications atomically, retrying on optimistic
// version conflicts.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/ledgerflow/eventcore/internal/eventcore/command"
	"github.com/ledgerflow/eventcore/internal/eventcore/commandstore"
	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
	"github.com/ledgerflow/eventcore/internal/eventcore/model"
	"github.com/ledgerflow/eventcore/internal/eventcore/notifications"
	"github.com/ledgerflow/eventcore/internal/eventcore/repository"
	platformerrors "github.com/ledgerflow/eventcore/internal/platform/errors"
)

// CommitRequest describes one atomic write: the events and notifications a
// Decide call produced, to be appended under an optimistic version check.
type CommitRequest[E, N any] struct {
	StreamID        journal.StreamID
	At              time.Time
	ExpectedVersion journal.EventVersion
	Events          []E
	Notifications   []N
	CommandID       uuid.UUID
}

// CommitResult reports the stream version reached by a successful commit.
type CommitResult struct {
	Version journal.EventVersion
}

// Committer is the atomic write port CommandHandler depends on: events,
// their outbox notifications, and the command id all land in one
// transaction, so a crash between them is never observable. Implementations
// return journal.ErrVersionConflict when ExpectedVersion is stale.
type Committer[E, N any] interface {
	Commit(ctx context.Context, req CommitRequest[E, N]) (CommitResult, error)
	// RecordProcessed durably records commandID as handled without writing
	// any events — used for Indecisive-with-no-notifications outcomes, for
	// rejections caused by a Conflicted aggregate, and, when
	// Config.RecordRejections is set, for Rejected outcomes from Decide.
	RecordProcessed(ctx context.Context, commandID uuid.UUID) error
	// AlreadyProcessed reports whether commandID has a durable record,
	// consulted when the in-memory commandstore has no entry (e.g. after a
	// restart) so idempotency survives process bounces.
	AlreadyProcessed(ctx context.Context, commandID uuid.UUID) (bool, error)
}

// Outcome is the result CommandHandler.Process reports to its caller: the
// command was accepted (possibly producing no events) or rejected with
// reasons. A non-nil error indicates a transport failure or retry
// exhaustion, not a business rejection.
type Outcome[R any] struct {
	Rejected bool
	// Conflicted reports whether the rejection came from an aggregate
	// already in a Conflicted state (platformerrors.CodeConflict), as
	// opposed to a business rejection from Decide (platformerrors.CodeRejected).
	Conflicted bool
	Reasons    []R
}

// Config tunes CommandHandler's retry and idempotency behavior.
type Config struct {
	// MaxRetry bounds the number of ConflictRetry attempts after the first
	// try. Zero uses the default of 5.
	MaxRetry uint
	// RetryInitialDelay is the base of the exponential backoff applied
	// between ConflictRetry attempts: delay_i = RetryInitialDelay * 2^i.
	// Zero or negative uses the default of 10ms.
	RetryInitialDelay time.Duration
	// RecordRejections, when true, durably records a Rejected command's id
	// so a retry with the same id is skipped instead of re-running Decide.
	// Like any already-processed command, the skipped retry reports an
	// empty, non-rejected Outcome; the original reasons are not replayed.
	// Defaults to true.
	RecordRejections bool
}

// Handler implements the CommandHandler component for one aggregate type.
type Handler[S, E, C, R, N any] struct {
	repo         *repository.Repository[S, E, R]
	model        model.Model[S, E, C, R, N]
	committer    Committer[E, N]
	commandStore *commandstore.Store
	consumer     *notifications.Consumer
	logger       *slog.Logger
	maxRetry     uint
	initialDelay time.Duration
	recordReject bool
}

// New constructs a Handler. commandStore and consumer may be nil; a nil
// commandStore disables the in-memory idempotency fast path (falling back
// to Committer.AlreadyProcessed on every call) and a nil consumer disables
// the stream-change wake-up broadcast on commit.
func New[S, E, C, R, N any](
	repo *repository.Repository[S, E, R],
	m model.Model[S, E, C, R, N],
	committer Committer[E, N],
	commandStore *commandstore.Store,
	consumer *notifications.Consumer,
	logger *slog.Logger,
	cfg Config,
) *Handler[S, E, C, R, N] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetry == 0 {
		cfg.MaxRetry = 5
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = 10 * time.Millisecond
	}
	return &Handler[S, E, C, R, N]{
		repo:         repo,
		model:        m,
		committer:    committer,
		commandStore: commandStore,
		consumer:     consumer,
		logger:       logger,
		maxRetry:     cfg.MaxRetry,
		initialDelay: cfg.RetryInitialDelay,
		recordReject: cfg.RecordRejections,
	}
}

// NewDefaultConfig returns a Config with RecordRejections enabled, the
// documented default.
func NewDefaultConfig() Config {
	return Config{RecordRejections: true}
}

// Process runs cmd through the New -> Loaded -> Decided -> Committed |
// Rejected | ConflictRetry state machine. A returned error is a transport
// failure or exhausted retry budget; business rejections are reported via
// Outcome.Rejected, never as an error. ConflictRetry attempts are governed
// by an exponential backoff policy (delay_i = RetryInitialDelay * 2^i); any
// non-version-conflict error is permanent and returned on the first try.
func (h *Handler[S, E, C, R, N]) Process(ctx context.Context, cmd command.Message[C]) (Outcome[R], error) {
	log := h.logger.With("command_id", cmd.ID.String(), "stream_id", string(cmd.StreamID))

	if h.alreadyHandled(ctx, cmd.ID) {
		log.Debug("command already processed, skipping re-evaluation")
		return Outcome[R]{}, nil
	}

	attempt := 0
	outcome, err := backoff.Retry(ctx, func() (Outcome[R], error) {
		if attempt > 0 {
			log.Debug("retrying after version conflict", "attempt", attempt)
		}
		attempt++
		res, err := h.tryOnce(ctx, cmd, log)
		if err != nil && !errors.Is(err, journal.ErrVersionConflict) {
			return Outcome[R]{}, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(backoffPolicy(h.initialDelay)), backoff.WithMaxTries(h.maxRetry+1))
	if err != nil {
		if errors.Is(err, journal.ErrVersionConflict) {
			log.Warn("version conflict retry budget exhausted", "max_retry", h.maxRetry)
		}
		return Outcome[R]{}, classifyError(ctx, err)
	}
	return outcome, nil
}

// classifyError wraps a terminal Process error in a *platformerrors.Error so
// transport adapters (HTTP, gRPC) can report it without re-deriving the
// distinction between a cancellation, an exhausted version-conflict retry
// budget, and any other infrastructure failure. A context cancellation or
// deadline is never reclassified as a transport failure.
func classifyError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.Canceled):
		return platformerrors.Wrap(platformerrors.CodeCancelled, "command processing cancelled", err)
	case errors.Is(err, journal.ErrVersionConflict):
		return platformerrors.Wrap(platformerrors.CodeVersionConflict, "version conflict retry budget exhausted", err)
	default:
		return platformerrors.Wrap(platformerrors.CodeTransport, "command processing failed", err)
	}
}

// tryOnce runs a single Loaded -> Decided -> Committed|Rejected attempt. It
// returns journal.ErrVersionConflict (wrapped) to signal the caller should
// retry with backoff; any other non-nil error is terminal.
func (h *Handler[S, E, C, R, N]) tryOnce(ctx context.Context, cmd command.Message[C], log *slog.Logger) (Outcome[R], error) {
	state, err := h.repo.Get(ctx, cmd.StreamID)
	if err != nil {
		return Outcome[R]{}, err
	}

	if state.IsConflicted() {
		reasons := state.Errors()
		h.recordTerminal(ctx, cmd.ID)
		return Outcome[R]{Rejected: true, Conflicted: true, Reasons: reasons}, nil
	}

	resp := h.model.Decide(state.State(), cmd.Payload)

	if resp.Decision.IsRejected() {
		reasons := resp.Decision.Reasons()
		if h.recordReject {
			h.recordTerminal(ctx, cmd.ID)
		}
		log.Info("command rejected", "reasons", reasons)
		return Outcome[R]{Rejected: true, Reasons: reasons}, nil
	}

	events := resp.Decision.Events()
	if len(events) == 0 && len(resp.Notifications) == 0 {
		h.recordTerminal(ctx, cmd.ID)
		return Outcome[R]{}, nil
	}

	_, err = h.committer.Commit(ctx, CommitRequest[E, N]{
		StreamID:        cmd.StreamID,
		At:              cmd.At,
		ExpectedVersion: state.Version(),
		Events:          events,
		Notifications:   resp.Notifications,
		CommandID:       cmd.ID,
	})
	if err != nil {
		if errors.Is(err, journal.ErrVersionConflict) {
			log.Debug("version conflict on commit")
			return Outcome[R]{}, err
		}
		return Outcome[R]{}, err
	}

	h.markHandled(cmd.ID)
	if h.consumer != nil {
		h.consumer.Notify()
	}
	log.Debug("command committed", "events", len(events), "notifications", len(resp.Notifications))
	return Outcome[R]{}, nil
}

func (h *Handler[S, E, C, R, N]) alreadyHandled(ctx context.Context, id uuid.UUID) bool {
	if h.commandStore != nil && h.commandStore.Contains(id) {
		return true
	}
	ok, err := h.committer.AlreadyProcessed(ctx, id)
	if err != nil {
		return false
	}
	if ok {
		h.markHandled(id)
	}
	return ok
}

func (h *Handler[S, E, C, R, N]) markHandled(id uuid.UUID) {
	if h.commandStore != nil {
		h.commandStore.Add(id)
	}
}

// recordTerminal durably records id as processed with no events (an
// Indecisive-no-notifications outcome, a Conflicted-aggregate rejection,
// or, when configured, a Rejected outcome from Decide) and
// caches it in memory. A recording failure is logged, not propagated: the
// command's business outcome has already been decided and is correct
// either way, it would just be re-evaluated (idempotently) on retry.
func (h *Handler[S, E, C, R, N]) recordTerminal(ctx context.Context, id uuid.UUID) {
	if err := h.committer.RecordProcessed(ctx, id); err != nil {
		h.logger.Warn("record processed command failed", "command_id", id.String(), "error", err)
	}
	h.markHandled(id)
}

// backoffPolicy exposes the exponential schedule used for retries to tests
// and callers that want to predict handler timing, built from
// cenkalti/backoff/v5 the way the outbox worker builds its retry policy.
func backoffPolicy(initialDelay time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}
