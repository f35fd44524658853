package routing

import (
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
)

// ReverseEntry caches the next hop back toward an RREQ origin (spec.md §3
// "Reverse route entry").
type ReverseEntry struct {
	NextHop    identity.NodeID
	HopCount   int
	LastUpdate time.Time
}

// Valid reports whether the entry is still fresh as of now, given timeout.
func (e ReverseEntry) Valid(now time.Time, timeout time.Duration) bool {
	return now.Sub(e.LastUpdate) <= timeout
}

// ReverseCache is the reverse route cache, keyed by RREQ origin node-id,
// used to unicast an RREP back toward the node that issued the RREQ
// (spec.md §4.2 "RREQ receive": "record reverse route origin → source_of_frame").
type ReverseCache struct {
	mu      sync.RWMutex
	entries map[identity.NodeID]ReverseEntry
}

// NewReverseCache creates an empty reverse route cache.
func NewReverseCache() *ReverseCache {
	return &ReverseCache{entries: make(map[identity.NodeID]ReverseEntry)}
}

// Record caches (or refreshes) the next hop back toward origin, always
// overwriting any existing entry. The AODV engine calls it once per RREQ
// that passes the dedup check; duplicate RREQs are dropped before this
// point and do not refresh the entry.
func (c *ReverseCache) Record(origin, nextHop identity.NodeID, hopCount int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[origin] = ReverseEntry{NextHop: nextHop, HopCount: hopCount, LastUpdate: now}
}

// Valid returns the reverse entry for origin only if it exists and is
// still fresh as of now.
func (c *ReverseCache) Valid(origin identity.NodeID, now time.Time, timeout time.Duration) (ReverseEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[origin]
	if !ok || !e.Valid(now, timeout) {
		return ReverseEntry{}, false
	}
	return e, true
}
