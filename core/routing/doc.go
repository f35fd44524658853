// Package routing holds the forward routing table and the reverse route
// cache used during RREQ/RREP discovery (spec.md §3, §4.2).
//
// Both containers are guarded by their own sync.RWMutex, matching the
// teacher's one-lock-per-struct convention (core/dedupe.Set,
// core/metrics.EdgeStore). No caller in this module currently holds more
// than one of these locks at once; a caller that needs to MUST acquire
// them in the stable global order:
//
//	routing table  ->  metric store  ->  RREQ dedup set
//
// This order is arbitrary but fixed; it exists only to prevent deadlock
// between components that each independently need two of the three locks.
package routing
