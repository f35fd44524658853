package routing

import (
	"errors"
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
)

// ErrNoRoute is returned when a destination has no routing entry at all.
var ErrNoRoute = errors.New("routing: no entry for destination")

// Entry is a forward routing table entry (spec.md §3 "Routing entry").
type Entry struct {
	NextHop    identity.NodeID
	HopCount   int
	SeqNum     uint32
	LastUpdate time.Time
	// Path is the ordered sequence of node-ids from self to Destination,
	// inclusive of both endpoints.
	Path []identity.NodeID
}

// Valid reports whether the entry is still fresh as of now, given timeout.
func (e Entry) Valid(now time.Time, timeout time.Duration) bool {
	return now.Sub(e.LastUpdate) <= timeout
}

// Table is the forward routing table, keyed by destination node-id.
type Table struct {
	mu      sync.RWMutex
	entries map[identity.NodeID]Entry
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{entries: make(map[identity.NodeID]Entry)}
}

// Set installs or overwrites the entry for dest.
func (t *Table) Set(dest identity.NodeID, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[dest] = e
}

// Get returns the raw entry for dest, regardless of validity.
func (t *Table) Get(dest identity.NodeID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[dest]
	return e, ok
}

// Valid returns the entry for dest only if it exists and is still fresh as
// of now (spec.md §3 "Entry is valid iff now − last_update ≤ ROUTE_TIMEOUT").
func (t *Table) Valid(dest identity.NodeID, now time.Time, timeout time.Duration) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[dest]
	if !ok || !e.Valid(now, timeout) {
		return Entry{}, false
	}
	return e, true
}

// UpdateIfBetter installs candidate for dest iff no valid entry currently
// exists, or candidate.HopCount is strictly smaller than the current
// entry's hop count (spec.md §4.2 RREP receive). Returns true if installed.
func (t *Table) UpdateIfBetter(dest identity.NodeID, now time.Time, timeout time.Duration, candidate Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.entries[dest]
	if ok && cur.Valid(now, timeout) && candidate.HopCount >= cur.HopCount {
		return false
	}
	t.entries[dest] = candidate
	return true
}

// Delete removes the entry for dest, if any (spec.md §4.2 RERR receive).
func (t *Table) Delete(dest identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, dest)
}

// Destinations returns a snapshot of every destination currently tracked,
// valid or not.
func (t *Table) Destinations() []identity.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]identity.NodeID, 0, len(t.entries))
	for d := range t.entries {
		out = append(out, d)
	}
	return out
}
