// Package decision implements the pure three-valued decision algebra that
// domain models use to respond to a command: no change, an accepted batch
// of events, or a rejection.
package decision

// Kind discriminates the three Decision variants.
type Kind int

const (
	// KindIndecisive means the command produced no events and was not rejected.
	KindIndecisive Kind = iota
	// KindAccepted means the command produced one or more events.
	KindAccepted
	// KindRejected means the command was refused; no events were produced.
	KindRejected
)

// Decision is the outcome of running a command against state: indecisive
// (no change), accepted (events + result), or rejected (reasons).
//
// The zero value is not valid; use Pure, Reject, Accept, or AcceptReturn to
// construct one.
type Decision[R, E, A any] struct {
	kind    Kind
	result  A
	events  []E
	reasons []R
}

// Pure constructs an Indecisive decision carrying a as its result.
func Pure[R, E, A any](a A) Decision[R, E, A] {
	return Decision[R, E, A]{kind: KindIndecisive, result: a}
}

// Reject constructs a Rejected decision. reasons must be non-empty; an
// empty slice is treated as a single unspecified rejection is not assumed —
// callers must supply at least one reason.
func Reject[R, E, A any](reasons ...R) Decision[R, E, A] {
	return Decision[R, E, A]{kind: KindRejected, reasons: reasons}
}

// Accept constructs an Accepted decision with a zero-value result.
func Accept[R, E, A any](events ...E) Decision[R, E, A] {
	return Decision[R, E, A]{kind: KindAccepted, events: events}
}

// AcceptReturn constructs an Accepted decision carrying a as its result.
func AcceptReturn[R, E, A any](a A, events ...E) Decision[R, E, A] {
	return Decision[R, E, A]{kind: KindAccepted, result: a, events: events}
}

// Kind reports which variant d holds.
func (d Decision[R, E, A]) Kind() Kind { return d.kind }

// IsIndecisive reports whether d is the Indecisive variant.
func (d Decision[R, E, A]) IsIndecisive() bool { return d.kind == KindIndecisive }

// IsAccepted reports whether d is the Accepted variant.
func (d Decision[R, E, A]) IsAccepted() bool { return d.kind == KindAccepted }

// IsRejected reports whether d is the Rejected variant.
func (d Decision[R, E, A]) IsRejected() bool { return d.kind == KindRejected }

// Result returns the carried result value. It is the zero value for
// Rejected decisions.
func (d Decision[R, E, A]) Result() A { return d.result }

// Events returns the accepted event batch, nil for Indecisive/Rejected.
func (d Decision[R, E, A]) Events() []E { return d.events }

// Reasons returns the rejection reasons, nil unless Rejected.
func (d Decision[R, E, A]) Reasons() []R { return d.reasons }

// Map applies f to the carried result, preserving events/rejection.
func Map[R, E, A, B any](d Decision[R, E, A], f func(A) B) Decision[R, E, B] {
	switch d.kind {
	case KindRejected:
		return Decision[R, E, B]{kind: KindRejected, reasons: d.reasons}
	case KindAccepted:
		return Decision[R, E, B]{kind: KindAccepted, result: f(d.result), events: d.events}
	default:
		return Decision[R, E, B]{kind: KindIndecisive, result: f(d.result)}
	}
}

// FlatMap sequences d with f, implementing the composition law from the
// specification:
//
//   - Rejected(r).FlatMap(_) = Rejected(r)                      (sticky rejection)
//   - Indecisive(a).FlatMap(f) = f(a)
//   - Accepted(e, a).FlatMap(f): case on f(a):
//   - Accepted(e2, b)  -> Accepted(e ++ e2, b)
//   - Indecisive(b)    -> Accepted(e, b)
//   - Rejected(r)      -> Rejected(r)   (left events discarded; rejection wins)
func FlatMap[R, E, A, B any](d Decision[R, E, A], f func(A) Decision[R, E, B]) Decision[R, E, B] {
	switch d.kind {
	case KindRejected:
		return Decision[R, E, B]{kind: KindRejected, reasons: d.reasons}
	case KindIndecisive:
		return f(d.result)
	default: // KindAccepted
		next := f(d.result)
		switch next.kind {
		case KindRejected:
			return Decision[R, E, B]{kind: KindRejected, reasons: next.reasons}
		case KindIndecisive:
			return Decision[R, E, B]{kind: KindAccepted, result: next.result, events: d.events}
		default:
			merged := make([]E, 0, len(d.events)+len(next.events))
			merged = append(merged, d.events...)
			merged = append(merged, next.events...)
			return Decision[R, E, B]{kind: KindAccepted, result: next.result, events: merged}
		}
	}
}

// Either is a minimal two-armed sum used by TailRecM to signal whether a
// step should loop (Left) or terminate (Right).
type Either[A, B any] struct {
	left    A
	right   B
	isRight bool
}

// Continue wraps a loop-continuation value for TailRecM.
func Continue[A, B any](a A) Either[A, B] { return Either[A, B]{left: a} }

// Done wraps a terminal value for TailRecM.
func Done[A, B any](b B) Either[A, B] { return Either[A, B]{right: b, isRight: true} }

// TailRecM runs step repeatedly starting from a, accumulating events from
// every Accepted intermediate Decision, until step returns a Decision whose
// result is Done. It never recurses, so it is stack-safe for arbitrarily
// long accept chains. A Rejected result from any step short-circuits the
// whole loop, discarding accumulated events per the usual FlatMap law.
func TailRecM[R, E, A, B any](a A, step func(A) Decision[R, E, Either[A, B]]) Decision[R, E, B] {
	var events []E
	current := a
	for {
		d := step(current)
		switch d.kind {
		case KindRejected:
			return Decision[R, E, B]{kind: KindRejected, reasons: d.reasons}
		case KindAccepted:
			events = append(events, d.events...)
		}
		if d.result.isRight {
			if d.kind == KindAccepted {
				return Decision[R, E, B]{kind: KindAccepted, result: d.result.right, events: events}
			}
			if len(events) > 0 {
				return Decision[R, E, B]{kind: KindAccepted, result: d.result.right, events: events}
			}
			return Decision[R, E, B]{kind: KindIndecisive, result: d.result.right}
		}
		current = d.result.left
	}
}
