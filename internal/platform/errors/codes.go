// Package errors provides the domain error taxonomy the command-handling
// core and its transport adapters classify failures into: a business
// rejection, an aggregate in a conflicted state, an optimistic-concurrency
// conflict, an infrastructure failure, or a propagated cancellation.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeRejected marks a business rejection produced by a Model's Decide:
	// the command was understood but the domain refused it.
	CodeRejected Code = "REJECTED"

	// CodeConflict marks an aggregate stream whose fold already reached a
	// Conflicted state before this command was even decided.
	CodeConflict Code = "CONFLICT"

	// CodeVersionConflict marks an optimistic-concurrency conflict that
	// survived CommandHandler's retry budget.
	CodeVersionConflict Code = "VERSION_CONFLICT"

	// CodeTransport marks an infrastructure failure: a storage driver error,
	// a network failure, anything that is not a business outcome.
	CodeTransport Code = "TRANSPORT"

	// CodeCancelled marks a caller-initiated cancellation or deadline,
	// propagated as-is rather than reclassified.
	CodeCancelled Code = "CANCELLED"
)

// GRPCCode maps c to the gRPC status code the command-handling gRPC surface
// reports it under.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeRejected:
		return codes.FailedPrecondition
	case CodeConflict, CodeVersionConflict:
		return codes.Aborted
	case CodeCancelled:
		return codes.Canceled
	case CodeTransport:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// HTTPStatus maps c to the HTTP status code the JSON API reports it under.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeRejected:
		return 422 // http.StatusUnprocessableEntity
	case CodeConflict:
		return 409 // http.StatusConflict
	case CodeVersionConflict:
		return 503 // http.StatusServiceUnavailable
	case CodeCancelled:
		return 499 // nginx's unofficial client-closed-request code
	case CodeTransport:
		return 500 // http.StatusInternalServerError
	default:
		return 500
	}
}
