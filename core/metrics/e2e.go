package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/ring"
)

const (
	// SentAckLogCapacity is the per-destination ring capacity for sent/ack
	// log entries (spec.md §3).
	SentAckLogCapacity = 5000

	// E2EWindow is the window over which end-to-end PDR/delay statistics
	// are computed (spec.md §6, E2E_WINDOW_SEC default).
	E2EWindow = 60 * time.Second
)

// PendingSend is an outstanding DATA send awaiting an ACK.
type PendingSend struct {
	Dest  identity.NodeID
	T0    time.Time
	Route []identity.NodeID
	Hops  int
}

type sentEntry struct {
	at       time.Time
	packetID int32
}

type ackEntry struct {
	at       time.Time
	packetID int32
	delayMs  float64
	rssiMin  *float64
	rssiAvg  *float64
	routeStr string
	hops     int
}

// WindowStats is the windowed end-to-end summary for one destination.
type WindowStats struct {
	Sent       int
	Ack        int
	PDR        float64
	AvgDelay   float64
	P95Delay   float64
	AvgRSSIMin float64
	AvgRSSIAvg float64
}

// E2ETracker is the per-source end-to-end quality tracker (spec.md §3
// "End-to-end tracker"). It owns the pending map, sent/ack rings, and the
// seen_acks idempotence set.
type E2ETracker struct {
	mu       sync.Mutex
	pending  map[int32]PendingSend
	sentLogs map[identity.NodeID]*ring.Buffer[sentEntry]
	ackLogs  map[identity.NodeID]*ring.Buffer[ackEntry]
	seenAcks map[int32]struct{}
}

// NewE2ETracker creates an empty E2ETracker.
func NewE2ETracker() *E2ETracker {
	return &E2ETracker{
		pending:  make(map[int32]PendingSend),
		sentLogs: make(map[identity.NodeID]*ring.Buffer[sentEntry]),
		ackLogs:  make(map[identity.NodeID]*ring.Buffer[ackEntry]),
		seenAcks: make(map[int32]struct{}),
	}
}

// RecordSend registers a pending DATA send and appends to the destination's
// sent log. Called by the AODV engine's DATA send path.
func (e *E2ETracker) RecordSend(packetID int32, p PendingSend) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending[packetID] = p

	log, ok := e.sentLogs[p.Dest]
	if !ok {
		log = ring.New[sentEntry](SentAckLogCapacity)
		e.sentLogs[p.Dest] = log
	}
	log.Push(sentEntry{at: p.T0, packetID: packetID})
}

// IsDuplicateAck reports whether packetID has already been accounted for.
// If it has not, it is marked seen and false is returned (spec.md §4.2
// "ACK receive" step 1, §8 "seen_acks guarantees at-most-once accounting").
func (e *E2ETracker) IsDuplicateAck(packetID int32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seenAcks[packetID]; ok {
		return true
	}
	e.seenAcks[packetID] = struct{}{}
	return false
}

// TakePending removes and returns the pending entry for packetID, if any.
func (e *E2ETracker) TakePending(packetID int32) (PendingSend, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[packetID]
	if ok {
		delete(e.pending, packetID)
	}
	return p, ok
}

// RecordAck appends an ACK observation to dest's ack log. Callers must have
// already checked IsDuplicateAck. rssiMin/rssiAvg may be nil when no RSSI
// values were present in the ACK's hop_metrics.
func (e *E2ETracker) RecordAck(dest identity.NodeID, at time.Time, packetID int32, delayMs float64, rssiMin, rssiAvg *float64, routeStr string, hops int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	log, ok := e.ackLogs[dest]
	if !ok {
		log = ring.New[ackEntry](SentAckLogCapacity)
		e.ackLogs[dest] = log
	}
	log.Push(ackEntry{
		at: at, packetID: packetID, delayMs: delayMs,
		rssiMin: rssiMin, rssiAvg: rssiAvg, routeStr: routeStr, hops: hops,
	})
}

// WindowedStats prunes both the sent and ack logs for dest to entries
// within E2EWindow of now, then reports the windowed statistics (spec.md
// §4.3).
func (e *E2ETracker) WindowedStats(dest identity.NodeID, now time.Time) WindowStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	sentLog := e.sentLogs[dest]
	ackLog := e.ackLogs[dest]

	var sent, acked []time.Time
	var delays []float64
	var rssiMins, rssiAvgs []float64

	if sentLog != nil {
		sentLog.Filter(func(s sentEntry) bool { return now.Sub(s.at) <= E2EWindow })
		for _, s := range sentLog.Items() {
			sent = append(sent, s.at)
		}
	}
	if ackLog != nil {
		ackLog.Filter(func(a ackEntry) bool { return now.Sub(a.at) <= E2EWindow })
		for _, a := range ackLog.Items() {
			acked = append(acked, a.at)
			delays = append(delays, a.delayMs)
			if a.rssiMin != nil {
				rssiMins = append(rssiMins, *a.rssiMin)
			}
			if a.rssiAvg != nil {
				rssiAvgs = append(rssiAvgs, *a.rssiAvg)
			}
		}
	}

	stats := WindowStats{Sent: len(sent), Ack: len(acked)}
	if stats.Sent > 0 {
		stats.PDR = float64(stats.Ack) / float64(stats.Sent) * 100
	}
	stats.AvgDelay = mean(delays)
	stats.P95Delay = percentile(delays, 0.95)
	stats.AvgRSSIMin = mean(rssiMins)
	stats.AvgRSSIAvg = mean(rssiAvgs)
	return stats
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// percentile returns the p-th percentile (0..1) of vals as the element at
// index floor(p*(len-1)) of a sorted copy; it does not interpolate.
func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
