package aodv

import "testing"

func TestCounters_SnapshotAndReset(t *testing.T) {
	var c Counters
	c.helloSent.Add(2)
	c.rreqRecv.Add(1)
	c.dataForwarded.Add(3)
	c.ackDuplicate.Add(1)

	snap := c.Snapshot()
	if snap.HelloSent != 2 || snap.RREQRecv != 1 || snap.DataForwarded != 3 || snap.AckDuplicate != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	c.Reset()
	snap = c.Snapshot()
	if snap.HelloSent != 0 || snap.RREQRecv != 0 || snap.DataForwarded != 0 || snap.AckDuplicate != 0 {
		t.Fatalf("expected zeroed snapshot after reset, got %+v", snap)
	}
}
