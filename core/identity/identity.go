// Package identity provides node identification and MAC address mapping
// for the mesh agent.
//
// A node is addressed two ways on the wire: by a small integer NodeID used
// in application-level payloads (HELLO, RREQ, RREP, DATA, RERR), and by a
// 6-byte MAC used in the packet header for link-layer delivery filtering.
// AddressMap is the static, bidirectional binding between the two.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// NodeID is a small integer node identifier (0..N).
type NodeID uint8

// MAC is a 6-byte hardware address.
type MAC [6]byte

// BroadcastMAC is the all-ones address that every receiver accepts
// regardless of its own MAC.
var BroadcastMAC = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String returns the colon-hex representation of the MAC, e.g. "aa:bb:cc:dd:ee:ff".
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast returns true if m is the broadcast MAC.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsZero returns true if m is the all-zero MAC (unassigned).
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// ParseMAC parses a hex string (with or without ':' separators) into a MAC.
func ParseMAC(s string) (MAC, error) {
	var mac MAC
	clean := make([]byte, 0, 12)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' || s[i] == '-' {
			continue
		}
		clean = append(clean, s[i])
	}
	raw, err := hex.DecodeString(string(clean))
	if err != nil {
		return mac, fmt.Errorf("invalid mac string: %w", err)
	}
	if len(raw) != 6 {
		return mac, fmt.Errorf("invalid mac length: expected 6 bytes, got %d", len(raw))
	}
	copy(mac[:], raw)
	return mac, nil
}

// ErrNodeNotFound is returned when a NodeID or MAC has no entry in the map.
var ErrNodeNotFound = errors.New("identity: node not found")

// AddressMap is a static bidirectional mapping between node IDs and MAC
// addresses, configured once at startup (spec.md §4.1's "configuration of
// MAC↔node-id tables" is treated as an external concern; AddressMap is the
// in-process lookup this module queries).
type AddressMap struct {
	mu        sync.RWMutex
	self      NodeID
	selfMAC   MAC
	nodeToMAC map[NodeID]MAC
	macToNode map[MAC]NodeID
}

// NewAddressMap creates an AddressMap for the local node identified by
// (self, selfMAC). The local node is automatically included in the table.
func NewAddressMap(self NodeID, selfMAC MAC) *AddressMap {
	m := &AddressMap{
		self:      self,
		selfMAC:   selfMAC,
		nodeToMAC: make(map[NodeID]MAC),
		macToNode: make(map[MAC]NodeID),
	}
	m.nodeToMAC[self] = selfMAC
	m.macToNode[selfMAC] = self
	return m
}

// Self returns the local node's ID and MAC.
func (m *AddressMap) Self() (NodeID, MAC) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.self, m.selfMAC
}

// Set records the MAC for the given node ID, overwriting any prior entry.
// Safe for concurrent use with lookups: the engine learns neighbor MACs
// from HELLO reception on any transport goroutine while other handlers
// look MACs up.
func (m *AddressMap) Set(id NodeID, mac MAC) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.nodeToMAC[id]; ok {
		delete(m.macToNode, old)
	}
	m.nodeToMAC[id] = mac
	m.macToNode[mac] = id
}

// MACFor returns the MAC registered for a node ID.
func (m *AddressMap) MACFor(id NodeID) (MAC, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mac, ok := m.nodeToMAC[id]
	if !ok {
		return MAC{}, ErrNodeNotFound
	}
	return mac, nil
}

// NodeFor returns the node ID registered for a MAC.
func (m *AddressMap) NodeFor(mac MAC) (NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.macToNode[mac]
	if !ok {
		return 0, ErrNodeNotFound
	}
	return id, nil
}

// IsSelfOrBroadcast returns true if dst is this node's MAC or the broadcast
// MAC — the condition under which a received frame should not be dropped
// by destination filtering (spec.md §4.1).
func (m *AddressMap) IsSelfOrBroadcast(dst MAC) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return dst == m.selfMAC || dst.IsBroadcast()
}
