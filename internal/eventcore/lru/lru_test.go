package lru

import "testing"

func TestPutGetAndRecency(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v ok=%v", v, ok)
	}
	// a is now most-recently-used; inserting c should evict b, not a.
	if _, evicted := c.Put("c", 3); !evicted {
		t.Fatal("expected an eviction once capacity is exceeded")
	}
	if c.Contains("b") {
		t.Fatal("expected b to be evicted as least-recently-used")
	}
	if !c.Contains("a") || !c.Contains("c") {
		t.Fatal("expected a and c to remain cached")
	}
}

func TestPutUpdatesExistingWithoutEviction(t *testing.T) {
	c := New[string, int](1)
	c.Put("a", 1)
	if _, evicted := c.Put("a", 2); evicted {
		t.Fatal("updating an existing key must not evict")
	}
	v, ok := c.Get("a")
	if !ok || v != 2 {
		t.Fatalf("expected updated value 2, got %v ok=%v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected len 1, got %d", c.Len())
	}
}

func TestUnboundedCapacity(t *testing.T) {
	c := New[int, int](0)
	for i := 0; i < 1000; i++ {
		c.Put(i, i)
	}
	if c.Len() != 1000 {
		t.Fatalf("expected 1000 entries with unbounded capacity, got %d", c.Len())
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Delete("a")
	if c.Contains("a") {
		t.Fatal("expected a to be removed")
	}
	if c.Len() != 0 {
		t.Fatalf("expected len 0, got %d", c.Len())
	}
}
