// Package repository reconstructs current AggregateState from a snapshot
// plus the journal tail, and exposes conflicted states to callers instead
// of hiding them behind an error.
package repository

import (
	"context"

	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
	"github.com/ledgerflow/eventcore/internal/eventcore/snapshot"
)

// Transitioner is the fold half of a Model: apply one event to state.
type Transitioner[S, E, R any] interface {
	Initial() S
	Transition(state S, event E) (S, []R)
}

// Repository reconstructs AggregateState[S, E, R] by folding a snapshot
// plus the journal tail for one aggregate type.
type Repository[S, E, R any] struct {
	journal  journal.Reader[E]
	snapshot snapshot.Store[S]
	model    Transitioner[S, E, R]
}

// New constructs a Repository over a journal reader, a snapshot store, and
// a model's Initial/Transition pair.
func New[S, E, R any](journalReader journal.Reader[E], snapshotStore snapshot.Store[S], model Transitioner[S, E, R]) *Repository[S, E, R] {
	return &Repository[S, E, R]{journal: journalReader, snapshot: snapshotStore, model: model}
}

// Get returns the current AggregateState for streamID: it asks the
// snapshot store for a cached Valid(s, v); if present, it folds only
// events with version > v on top; otherwise it folds the full stream from
// Valid(initial, 0).
//
// Once folding produces Conflicted, subsequent events are still consumed
// (so the stream terminates deterministically) but are not applied. A
// successful full fold to Valid is written back to the snapshot store on
// a best-effort basis — a snapshot write failure does not fail Get.
func (r *Repository[S, E, R]) Get(ctx context.Context, streamID journal.StreamID) (journal.AggregateState[S, E, R], error) {
	start := journal.Valid[S, E, R](r.model.Initial(), 0)
	var events <-chan journal.EventMessage[E]
	var errs <-chan error

	if r.snapshot != nil {
		if entry, ok, err := r.snapshot.Get(ctx, streamID); err == nil && ok {
			start = journal.Valid[S, E, R](entry.State, entry.Version)
		}
	}

	events, errs = r.journal.ReadStreamAfter(ctx, streamID, start.Version())

	state, err := fold(start, r.model, events, errs)
	if err != nil {
		return journal.AggregateState[S, E, R]{}, err
	}

	if state.IsValid() && r.snapshot != nil {
		_ = r.snapshot.Put(ctx, streamID, snapshot.Entry[S]{State: state.State(), Version: state.Version()})
	}
	return state, nil
}

// History returns, for every event of streamID in order, the
// AggregateState reached after applying it — ending after the first
// Conflicted state (inclusive) or at end-of-stream. It always replays
// from the beginning, ignoring any cached snapshot, so it is restartable
// and deterministic across calls.
func (r *Repository[S, E, R]) History(ctx context.Context, streamID journal.StreamID) (<-chan journal.AggregateState[S, E, R], <-chan error) {
	out := make(chan journal.AggregateState[S, E, R])
	errCh := make(chan error, 1)

	events, errs := r.journal.ReadStream(ctx, streamID)

	go func() {
		defer close(out)
		defer close(errCh)
		state := journal.Valid[S, E, R](r.model.Initial(), 0)
		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case err, ok := <-errs:
				if ok && err != nil {
					errCh <- err
					return
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				state = applyOne(state, r.model, ev)
				out <- state
				if state.IsConflicted() {
					return
				}
			}
		}
	}()

	return out, errCh
}

// fold drains events (and the terminal error, if any) onto start, applying
// the model's Transition in order. Transport errors from the journal
// propagate unchanged; fold errors become Conflicted, not transport
// failures. Once Conflicted, later events are still drained but no longer
// applied, so the channel is always fully consumed.
func fold[S, E, R any](start journal.AggregateState[S, E, R], model Transitioner[S, E, R], events <-chan journal.EventMessage[E], errs <-chan error) (journal.AggregateState[S, E, R], error) {
	state := start
	for ev := range events {
		state = applyOne(state, model, ev)
	}
	if err, ok := <-errs; ok && err != nil {
		return journal.AggregateState[S, E, R]{}, err
	}
	return state, nil
}

func applyOne[S, E, R any](state journal.AggregateState[S, E, R], model Transitioner[S, E, R], ev journal.EventMessage[E]) journal.AggregateState[S, E, R] {
	if state.IsConflicted() {
		return state
	}
	next, errs := model.Transition(state.State(), ev.Payload)
	if len(errs) > 0 {
		return journal.Conflicted[S, E, R](state.State(), ev, errs)
	}
	return journal.Valid[S, E, R](next, ev.Metadata.Version)
}
