package metrics

import (
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/ring"
)

const (
	// HelloLogCapacity is the per-neighbor ring capacity for HELLO
	// reception timestamps (spec.md §3).
	HelloLogCapacity = 200
)

// HelloLog tracks, per neighbor, the reception times of recent HELLO
// beacons, used to compute the windowed HELLO packet-delivery ratio
// (spec.md §3, §4.2, glossary "HELLO PDR").
type HelloLog struct {
	mu   sync.Mutex
	logs map[identity.NodeID]*ring.Buffer[time.Time]
}

// NewHelloLog creates an empty HelloLog.
func NewHelloLog() *HelloLog {
	return &HelloLog{logs: make(map[identity.NodeID]*ring.Buffer[time.Time])}
}

// RecordReception appends a HELLO reception timestamp for the neighbor.
func (h *HelloLog) RecordReception(neighbor identity.NodeID, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	log, ok := h.logs[neighbor]
	if !ok {
		log = ring.New[time.Time](HelloLogCapacity)
		h.logs[neighbor] = log
	}
	log.Push(at)
}

// WindowedPDR computes the windowed HELLO PDR for a neighbor over the last
// routeTimeout seconds, given the expected HELLO cadence helloInterval.
//
//	expected = max(1, floor(routeTimeout / helloInterval))
//	pdr = min(100, received / expected * 100)
//
// (spec.md §3, scenario 2).
func (h *HelloLog) WindowedPDR(neighbor identity.NodeID, now time.Time, routeTimeout, helloInterval time.Duration) float64 {
	h.mu.Lock()
	log, ok := h.logs[neighbor]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	received := 0
	for _, t := range log.Items() {
		if now.Sub(t) <= routeTimeout {
			received++
		}
	}

	expected := int(routeTimeout / helloInterval)
	if expected < 1 {
		expected = 1
	}

	pdr := float64(received) / float64(expected) * 100
	if pdr > 100 {
		pdr = 100
	}
	return pdr
}
