package decision

import (
	"reflect"
	"testing"
)

func TestRejectedAbsorbsFlatMap(t *testing.T) {
	d := Reject[string, string, int]("bad")
	called := false
	out := FlatMap(d, func(int) Decision[string, string, int] {
		called = true
		return Pure[string, string](1)
	})
	if called {
		t.Fatal("f should not be invoked on a Rejected decision")
	}
	if !out.IsRejected() || !reflect.DeepEqual(out.Reasons(), []string{"bad"}) {
		t.Fatalf("expected Rejected([bad]), got %+v", out)
	}
}

func TestIndecisiveFlatMapDelegatesToF(t *testing.T) {
	d := Pure[string, string](5)
	out := FlatMap(d, func(a int) Decision[string, string, int] {
		return AcceptReturn[string](a*2, "evt")
	})
	if !out.IsAccepted() || out.Result() != 10 || !reflect.DeepEqual(out.Events(), []string{"evt"}) {
		t.Fatalf("expected Accepted([evt], 10), got %+v", out)
	}
}

func TestAcceptedFlatMapAccumulatesEvents(t *testing.T) {
	d := AcceptReturn[string](1, "e1")
	out := FlatMap(d, func(a int) Decision[string, string, int] {
		return AcceptReturn[string](a+1, "e2")
	})
	if !out.IsAccepted() || out.Result() != 2 {
		t.Fatalf("expected Accepted(_, 2), got %+v", out)
	}
	if !reflect.DeepEqual(out.Events(), []string{"e1", "e2"}) {
		t.Fatalf("expected events e1,e2 in order, got %v", out.Events())
	}
}

func TestAcceptedFlatMapIndecisiveKeepsLeftEvents(t *testing.T) {
	d := AcceptReturn[string](1, "e1")
	out := FlatMap(d, func(a int) Decision[string, string, int] {
		return Pure[string, string](a + 1)
	})
	if !out.IsAccepted() || out.Result() != 2 {
		t.Fatalf("expected Accepted(_, 2), got %+v", out)
	}
	if !reflect.DeepEqual(out.Events(), []string{"e1"}) {
		t.Fatalf("expected only left event e1 preserved, got %v", out.Events())
	}
}

func TestAcceptedFlatMapRejectedDiscardsLeftEvents(t *testing.T) {
	d := AcceptReturn[string](1, "e1")
	out := FlatMap(d, func(int) Decision[string, string, int] {
		return Reject[string, string, int]("no")
	})
	if !out.IsRejected() {
		t.Fatalf("expected Rejected, got %+v", out)
	}
	if len(out.Events()) != 0 {
		t.Fatalf("expected left events discarded on right-rejection, got %v", out.Events())
	}
}

func TestLeftIdentityLaw(t *testing.T) {
	f := func(a int) Decision[string, string, int] {
		return AcceptReturn[string](a*2, "doubled")
	}
	lhs := FlatMap(Pure[string, string](3), f)
	rhs := f(3)
	if lhs.Kind() != rhs.Kind() || lhs.Result() != rhs.Result() || !reflect.DeepEqual(lhs.Events(), rhs.Events()) {
		t.Fatalf("left identity violated: %+v != %+v", lhs, rhs)
	}
}

func TestRightIdentityLaw(t *testing.T) {
	d := AcceptReturn[string](7, "e")
	out := FlatMap(d, func(a int) Decision[string, string, int] {
		return Pure[string, string](a)
	})
	if out.Kind() != d.Kind() || out.Result() != d.Result() || !reflect.DeepEqual(out.Events(), d.Events()) {
		t.Fatalf("right identity violated: %+v != %+v", out, d)
	}
}

func TestAssociativityLaw(t *testing.T) {
	f := func(a int) Decision[string, string, int] { return AcceptReturn[string](a+1, "f") }
	g := func(a int) Decision[string, string, int] { return AcceptReturn[string](a*2, "g") }
	d := AcceptReturn[string, string](1, "start")

	lhs := FlatMap(FlatMap(d, f), g)
	rhs := FlatMap(d, func(a int) Decision[string, string, int] { return FlatMap(f(a), g) })

	if lhs.Kind() != rhs.Kind() || lhs.Result() != rhs.Result() || !reflect.DeepEqual(lhs.Events(), rhs.Events()) {
		t.Fatalf("associativity violated: %+v != %+v", lhs, rhs)
	}
}

func TestMapPreservesEventsAndRejection(t *testing.T) {
	accepted := Map(AcceptReturn[string](2, "e"), func(a int) int { return a * 10 })
	if accepted.Result() != 20 || !reflect.DeepEqual(accepted.Events(), []string{"e"}) {
		t.Fatalf("unexpected map result: %+v", accepted)
	}
	rejected := Map(Reject[string, string, int]("x"), func(a int) int { return a * 10 })
	if !rejected.IsRejected() || !reflect.DeepEqual(rejected.Reasons(), []string{"x"}) {
		t.Fatalf("map should preserve rejection: %+v", rejected)
	}
}

func TestTailRecMStackSafeAccumulatesEvents(t *testing.T) {
	const n = 100000
	out := TailRecM[string, int, int, int](0, func(i int) Decision[string, int, Either[int, int]] {
		if i >= n {
			return AcceptReturn[string](Done[int, int](i), i)
		}
		return AcceptReturn[string](Continue[int, int](i+1), i)
	})
	if !out.IsAccepted() || out.Result() != n {
		t.Fatalf("expected Accepted(_, %d), got %+v", n, out)
	}
	if len(out.Events()) != n+1 {
		t.Fatalf("expected %d accumulated events, got %d", n+1, len(out.Events()))
	}
}

func TestTailRecMRejectionShortCircuits(t *testing.T) {
	out := TailRecM[string, int, int, int](0, func(i int) Decision[string, int, Either[int, int]] {
		if i == 3 {
			return Reject[string, int, Either[int, int]]("stop")
		}
		return AcceptReturn[string](Continue[int, int](i+1), i)
	})
	if !out.IsRejected() || !reflect.DeepEqual(out.Reasons(), []string{"stop"}) {
		t.Fatalf("expected Rejected([stop]), got %+v", out)
	}
	if len(out.Events()) != 0 {
		t.Fatalf("expected no events retained on rejection, got %v", out.Events())
	}
}
