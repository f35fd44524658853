package aodv

import "sync/atomic"

// Counters is a set of atomic packet-handling counters, adapted from the
// teacher's device/router.RouterCounters: one atomic per observable event,
// a Snapshot for point-in-time reads, and a Reset for test isolation.
type Counters struct {
	helloSent      atomic.Uint64
	helloRecv      atomic.Uint64
	rreqSent       atomic.Uint64
	rreqRecv       atomic.Uint64
	rreqForwarded  atomic.Uint64
	rreqDuplicate  atomic.Uint64
	rrepSent       atomic.Uint64
	rrepRecv       atomic.Uint64
	rrepForwarded  atomic.Uint64
	rerrSent       atomic.Uint64
	rerrRecv       atomic.Uint64
	dataSent       atomic.Uint64
	dataRecv       atomic.Uint64
	dataForwarded  atomic.Uint64
	dataDropped    atomic.Uint64
	ackSent        atomic.Uint64
	ackRecv        atomic.Uint64
	ackDuplicate   atomic.Uint64
	framesDropped  atomic.Uint64
}

// CountersSnapshot is a point-in-time copy of every counter.
type CountersSnapshot struct {
	HelloSent     uint64
	HelloRecv     uint64
	RREQSent      uint64
	RREQRecv      uint64
	RREQForwarded uint64
	RREQDuplicate uint64
	RREPSent      uint64
	RREPRecv      uint64
	RREPForwarded uint64
	RERRSent      uint64
	RERRRecv      uint64
	DataSent      uint64
	DataRecv      uint64
	DataForwarded uint64
	DataDropped   uint64
	AckSent       uint64
	AckRecv       uint64
	AckDuplicate  uint64
	FramesDropped uint64
}

// Snapshot reads every counter's current value.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		HelloSent:     c.helloSent.Load(),
		HelloRecv:     c.helloRecv.Load(),
		RREQSent:      c.rreqSent.Load(),
		RREQRecv:      c.rreqRecv.Load(),
		RREQForwarded: c.rreqForwarded.Load(),
		RREQDuplicate: c.rreqDuplicate.Load(),
		RREPSent:      c.rrepSent.Load(),
		RREPRecv:      c.rrepRecv.Load(),
		RREPForwarded: c.rrepForwarded.Load(),
		RERRSent:      c.rerrSent.Load(),
		RERRRecv:      c.rerrRecv.Load(),
		DataSent:      c.dataSent.Load(),
		DataRecv:      c.dataRecv.Load(),
		DataForwarded: c.dataForwarded.Load(),
		DataDropped:   c.dataDropped.Load(),
		AckSent:       c.ackSent.Load(),
		AckRecv:       c.ackRecv.Load(),
		AckDuplicate:  c.ackDuplicate.Load(),
		FramesDropped: c.framesDropped.Load(),
	}
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.helloSent.Store(0)
	c.helloRecv.Store(0)
	c.rreqSent.Store(0)
	c.rreqRecv.Store(0)
	c.rreqForwarded.Store(0)
	c.rreqDuplicate.Store(0)
	c.rrepSent.Store(0)
	c.rrepRecv.Store(0)
	c.rrepForwarded.Store(0)
	c.rerrSent.Store(0)
	c.rerrRecv.Store(0)
	c.dataSent.Store(0)
	c.dataRecv.Store(0)
	c.dataForwarded.Store(0)
	c.dataDropped.Store(0)
	c.ackSent.Store(0)
	c.ackRecv.Store(0)
	c.ackDuplicate.Store(0)
	c.framesDropped.Store(0)
}
