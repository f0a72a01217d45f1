package response

import (
	"reflect"
	"testing"

	"github.com/ledgerflow/eventcore/internal/eventcore/decision"
)

type rsp = ResponseT[string, string, string, int]

func accepted(result int, events []string, notifications []string) rsp {
	return rsp{Decision: decision.AcceptReturn[string](result, events...), Notifications: notifications}
}

func indecisive(result int, notifications []string) rsp {
	return rsp{Decision: decision.Pure[string, string](result), Notifications: notifications}
}

func rejected(reasons []string, notifications []string) rsp {
	return rsp{Decision: decision.Reject[string, string, int](reasons...), Notifications: notifications}
}

func TestAccumulateOnAccept(t *testing.T) {
	r1 := accepted(1, []string{"e1"}, []string{"n1"})
	out := FlatMap(r1, func(a int) rsp {
		return accepted(a+1, []string{"e2"}, []string{"n2"})
	})
	if !out.Decision.IsAccepted() || out.Decision.Result() != 2 {
		t.Fatalf("expected accepted result 2, got %+v", out)
	}
	if !reflect.DeepEqual(out.Decision.Events(), []string{"e1", "e2"}) {
		t.Fatalf("expected merged events, got %v", out.Decision.Events())
	}
	if !reflect.DeepEqual(out.Notifications, []string{"n1", "n2"}) {
		t.Fatalf("expected n1++n2, got %v", out.Notifications)
	}
}

func TestResetOnRejection(t *testing.T) {
	r1 := accepted(1, []string{"e1"}, []string{"n1"})
	out := FlatMap(r1, func(int) rsp {
		return rejected([]string{"bad"}, []string{"n2"})
	})
	if !out.Decision.IsRejected() {
		t.Fatalf("expected rejected, got %+v", out)
	}
	if !reflect.DeepEqual(out.Notifications, []string{"n2"}) {
		t.Fatalf("expected only right-hand notifications n2, got %v", out.Notifications)
	}
}

func TestRejectedLeftAbsorbsAndSkipsRight(t *testing.T) {
	r1 := rejected([]string{"bad"}, []string{"n1"})
	called := false
	out := FlatMap(r1, func(int) rsp {
		called = true
		return accepted(99, []string{"e2"}, []string{"n2"})
	})
	if called {
		t.Fatal("right-hand function must not run when left is rejected")
	}
	if !out.Decision.IsRejected() || !reflect.DeepEqual(out.Decision.Reasons(), []string{"bad"}) {
		t.Fatalf("expected left rejection preserved, got %+v", out)
	}
	if !reflect.DeepEqual(out.Notifications, []string{"n1"}) {
		t.Fatalf("expected left notifications unchanged, got %v", out.Notifications)
	}
}

func TestIndecisiveLeftAccumulates(t *testing.T) {
	r1 := indecisive(5, []string{"n1"})
	out := FlatMap(r1, func(a int) rsp {
		return accepted(a*2, []string{"e"}, []string{"n2"})
	})
	if !out.Decision.IsAccepted() || out.Decision.Result() != 10 {
		t.Fatalf("expected accepted 10, got %+v", out)
	}
	if !reflect.DeepEqual(out.Notifications, []string{"n1", "n2"}) {
		t.Fatalf("expected n1++n2 even though left was indecisive, got %v", out.Notifications)
	}
}

func TestPublishAppendsUnconditionally(t *testing.T) {
	r := rejected([]string{"x"}, []string{"n1"}).Publish("n2")
	if !reflect.DeepEqual(r.Notifications, []string{"n1", "n2"}) {
		t.Fatalf("expected publish to append regardless of decision kind, got %v", r.Notifications)
	}
}

func TestPublishOnRejectionOnlyWhenRejected(t *testing.T) {
	acceptedResp := accepted(1, nil, []string{"n1"}).PublishOnRejection("should-not-appear")
	if !reflect.DeepEqual(acceptedResp.Notifications, []string{"n1"}) {
		t.Fatalf("expected no-op on non-rejected decision, got %v", acceptedResp.Notifications)
	}
	rejectedResp := rejected([]string{"bad"}, []string{"n1"}).PublishOnRejection("n2")
	if !reflect.DeepEqual(rejectedResp.Notifications, []string{"n1", "n2"}) {
		t.Fatalf("expected publish on rejection, got %v", rejectedResp.Notifications)
	}
}

func TestResetClearsNotificationsKeepsDecision(t *testing.T) {
	r := accepted(3, []string{"e"}, []string{"n1", "n2"}).Reset()
	if len(r.Notifications) != 0 {
		t.Fatalf("expected notifications cleared, got %v", r.Notifications)
	}
	if !r.Decision.IsAccepted() || r.Decision.Result() != 3 {
		t.Fatalf("expected decision preserved, got %+v", r.Decision)
	}
}
