package routing

import (
	"testing"
	"time"
)

func TestReverseCache_RecordAndValid(t *testing.T) {
	c := NewReverseCache()
	now := time.Unix(1000, 0)
	c.Record(4, 1, 2, now)

	e, ok := c.Valid(4, now.Add(5*time.Second), 10*time.Second)
	if !ok {
		t.Fatal("expected reverse entry to be valid")
	}
	if e.NextHop != 1 || e.HopCount != 2 {
		t.Fatalf("unexpected reverse entry: %+v", e)
	}
}

func TestReverseCache_ExpiresByAge(t *testing.T) {
	c := NewReverseCache()
	now := time.Unix(1000, 0)
	c.Record(4, 1, 2, now)

	if _, ok := c.Valid(4, now.Add(11*time.Second), 10*time.Second); ok {
		t.Fatal("expected reverse entry to be stale")
	}
}

func TestReverseCache_OverwritesOnRepeatedRecord(t *testing.T) {
	c := NewReverseCache()
	now := time.Unix(1000, 0)
	c.Record(4, 1, 2, now)
	c.Record(4, 9, 1, now.Add(time.Second))

	e, ok := c.Valid(4, now.Add(2*time.Second), 10*time.Second)
	if !ok {
		t.Fatal("expected reverse entry to be valid")
	}
	if e.NextHop != 9 || e.HopCount != 1 {
		t.Fatalf("expected overwritten entry, got %+v", e)
	}
}

func TestReverseCache_MissingOrigin(t *testing.T) {
	c := NewReverseCache()
	if _, ok := c.Valid(99, time.Unix(1000, 0), 10*time.Second); ok {
		t.Fatal("expected no entry for unknown origin")
	}
}
