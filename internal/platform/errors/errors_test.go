package errors

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeVersionConflict, "stale write")
	b := Wrap(CodeVersionConflict, "stale write, retried", errors.New("boom"))

	if !errors.Is(a, b) {
		t.Fatalf("expected errors with the same code to match via Is")
	}
	if errors.Is(a, New(CodeTransport, "unrelated")) {
		t.Fatalf("expected errors with different codes not to match")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeTransport, "commit failed", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the wrapped cause")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	cases := map[Code]codes.Code{
		CodeRejected:        codes.FailedPrecondition,
		CodeConflict:        codes.Aborted,
		CodeVersionConflict: codes.Aborted,
		CodeCancelled:       codes.Canceled,
		CodeTransport:       codes.Internal,
	}
	for code, want := range cases {
		if got := code.GRPCCode(); got != want {
			t.Errorf("%s: expected gRPC code %v, got %v", code, want, got)
		}
	}
}

func TestToGRPCStatusAttachesDetails(t *testing.T) {
	err := WithMetadata(CodeRejected, "insufficient balance", map[string]string{"stream_id": "acct-1"})

	st, ok := grpcstatus.FromError(err.ToGRPCStatus("en-US", "Your balance is too low."))
	if !ok {
		t.Fatalf("expected a gRPC status error")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", st.Code())
	}
	if len(st.Details()) != 2 {
		t.Fatalf("expected ErrorInfo and LocalizedMessage details, got %d", len(st.Details()))
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeRejected:        422,
		CodeConflict:        409,
		CodeVersionConflict: 503,
		CodeCancelled:       499,
		CodeTransport:       500,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s: expected HTTP status %d, got %d", code, want, got)
		}
	}
}
