package routing

import (
	"testing"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
)

func TestTable_SetGet(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	e := Entry{NextHop: 1, HopCount: 2, LastUpdate: now, Path: []identity.NodeID{4, 1, 0}}
	tbl.Set(0, e)

	got, ok := tbl.Get(0)
	if !ok {
		t.Fatal("expected entry")
	}
	if got.NextHop != 1 || got.HopCount != 2 {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestTable_ValidExpiresByAge(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	tbl.Set(0, Entry{NextHop: 1, HopCount: 1, LastUpdate: now})

	if _, ok := tbl.Valid(0, now.Add(5*time.Second), 10*time.Second); !ok {
		t.Fatal("expected entry still valid within timeout")
	}
	if _, ok := tbl.Valid(0, now.Add(11*time.Second), 10*time.Second); ok {
		t.Fatal("expected entry to be stale past timeout")
	}
}

func TestTable_ValidMissing(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Valid(99, time.Unix(1000, 0), 10*time.Second); ok {
		t.Fatal("expected no entry for unknown destination")
	}
}

func TestTable_UpdateIfBetter_InstallsWhenNoValidEntry(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	ok := tbl.UpdateIfBetter(0, now, 10*time.Second, Entry{NextHop: 1, HopCount: 3, LastUpdate: now})
	if !ok {
		t.Fatal("expected install when no existing entry")
	}
}

func TestTable_UpdateIfBetter_RejectsWorseOrEqualHopCount(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	tbl.Set(0, Entry{NextHop: 1, HopCount: 2, LastUpdate: now})

	if tbl.UpdateIfBetter(0, now, 10*time.Second, Entry{NextHop: 2, HopCount: 2, LastUpdate: now}) {
		t.Fatal("expected equal hop count to be rejected")
	}
	if tbl.UpdateIfBetter(0, now, 10*time.Second, Entry{NextHop: 2, HopCount: 5, LastUpdate: now}) {
		t.Fatal("expected worse hop count to be rejected")
	}
}

func TestTable_UpdateIfBetter_AcceptsStrictlySmallerHopCount(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	tbl.Set(0, Entry{NextHop: 1, HopCount: 3, LastUpdate: now})

	if !tbl.UpdateIfBetter(0, now, 10*time.Second, Entry{NextHop: 2, HopCount: 1, LastUpdate: now}) {
		t.Fatal("expected strictly smaller hop count to be accepted")
	}
	got, _ := tbl.Get(0)
	if got.NextHop != 2 {
		t.Fatalf("expected updated next hop, got %+v", got)
	}
}

func TestTable_UpdateIfBetter_ReplacesStaleEntry(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	tbl.Set(0, Entry{NextHop: 1, HopCount: 1, LastUpdate: now})

	later := now.Add(20 * time.Second)
	if !tbl.UpdateIfBetter(0, later, 10*time.Second, Entry{NextHop: 2, HopCount: 5, LastUpdate: later}) {
		t.Fatal("expected stale entry to be replaced even with a larger hop count")
	}
}

func TestTable_Delete(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	tbl.Set(0, Entry{NextHop: 1, HopCount: 1, LastUpdate: now})
	tbl.Delete(0)
	if _, ok := tbl.Get(0); ok {
		t.Fatal("expected entry removed")
	}
}

func TestTable_Destinations(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1000, 0)
	tbl.Set(0, Entry{NextHop: 1, LastUpdate: now})
	tbl.Set(2, Entry{NextHop: 1, LastUpdate: now})

	dests := tbl.Destinations()
	if len(dests) != 2 {
		t.Fatalf("expected 2 destinations, got %d", len(dests))
	}
}
