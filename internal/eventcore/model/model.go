// Package model defines the capability a domain package supplies to the
// core: how to fold an event into state, and how to decide on a command.
package model

import (
	"github.com/ledgerflow/eventcore/internal/eventcore/response"
)

// Model packages a user-supplied event-folder and command-decider for one
// aggregate type. S is aggregate state, E is the event payload type, C is
// the command payload type, R is the rejection-reason type, N is the
// notification type.
type Model[S, E, C, R, N any] interface {
	// Initial is the state of a brand-new, never-folded aggregate.
	Initial() S

	// Transition folds one event onto state, returning the updated state or
	// a non-empty set of reasons the event could not be applied.
	Transition(state S, event E) (S, []R)

	// Decide runs a command against the current state, returning a response
	// of events to append and notifications to publish.
	Decide(state S, command C) response.ResponseT[R, E, N, struct{}]
}
