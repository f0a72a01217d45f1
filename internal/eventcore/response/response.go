// Package response layers an outbound notification log over a Decision.
package response

import "github.com/ledgerflow/eventcore/internal/eventcore/decision"

// ResponseT pairs a Decision with the sequence of notifications it intends
// to publish. Notifications are at-least-once delivered side-effects,
// distinct from the events the Decision carries.
type ResponseT[R, E, N, A any] struct {
	Decision      decision.Decision[R, E, A]
	Notifications []N
}

// Pure lifts a into an Indecisive response with no notifications.
func Pure[R, E, N, A any](a A) ResponseT[R, E, N, A] {
	return ResponseT[R, E, N, A]{Decision: decision.Pure[R, E](a)}
}

// FromDecision lifts a Decision into a response with no notifications.
func FromDecision[R, E, N, A any](d decision.Decision[R, E, A]) ResponseT[R, E, N, A] {
	return ResponseT[R, E, N, A]{Decision: d}
}

// Publish appends notifications unconditionally, regardless of decision kind.
func (r ResponseT[R, E, N, A]) Publish(notifications ...N) ResponseT[R, E, N, A] {
	r.Notifications = append(append([]N{}, r.Notifications...), notifications...)
	return r
}

// PublishOnRejection appends notifications only when the current decision
// is Rejected.
func (r ResponseT[R, E, N, A]) PublishOnRejection(notifications ...N) ResponseT[R, E, N, A] {
	if !r.Decision.IsRejected() {
		return r
	}
	return r.Publish(notifications...)
}

// Reset clears accumulated notifications, keeping the decision untouched.
func (r ResponseT[R, E, N, A]) Reset() ResponseT[R, E, N, A] {
	return ResponseT[R, E, N, A]{Decision: r.Decision}
}

// Map applies f to the carried result.
func Map[R, E, N, A, B any](r ResponseT[R, E, N, A], f func(A) B) ResponseT[R, E, N, B] {
	return ResponseT[R, E, N, B]{
		Decision:      decision.Map(r.Decision, f),
		Notifications: r.Notifications,
	}
}

// FlatMap sequences two responses, implementing:
//
//   - Rejected absorbs: if the left decision is rejected, the result is the
//     left unchanged and the right-hand function is never invoked.
//   - Accumulate on accept: when neither side rejects, notifications are
//     n1 ++ n2 and the decision is the FlatMap of the two decisions.
//   - Reset on rejection: if the right-hand decision is rejected, the result
//     notifications are n2 only — left notifications are dropped, because a
//     rejection in the same transaction erases prior side-effect intent.
func FlatMap[R, E, N, A, B any](r ResponseT[R, E, N, A], f func(A) ResponseT[R, E, N, B]) ResponseT[R, E, N, B] {
	if r.Decision.IsRejected() {
		return ResponseT[R, E, N, B]{
			Decision:      decision.Reject[R, E, B](r.Decision.Reasons()...),
			Notifications: r.Notifications,
		}
	}

	var next ResponseT[R, E, N, B]
	combinedDecision := decision.FlatMap(r.Decision, func(a A) decision.Decision[R, E, B] {
		next = f(a)
		return next.Decision
	})

	if next.Decision.IsRejected() {
		return ResponseT[R, E, N, B]{Decision: combinedDecision, Notifications: next.Notifications}
	}
	return ResponseT[R, E, N, B]{
		Decision:      combinedDecision,
		Notifications: append(append([]N{}, r.Notifications...), next.Notifications...),
	}
}
