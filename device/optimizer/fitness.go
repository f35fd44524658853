// Package optimizer implements the PSO-GA hybrid route optimizer (spec.md
// §4.4): a population of candidate paths refined by particle-swarm
// velocity updates interleaved with a genetic-algorithm elitism/crossover/
// mutation step, converging on the highest-fitness path to a destination.
//
// No teacher analog exists — MeshCore has no path optimizer, only reactive
// flood/direct routing. This is net-new code written in the teacher's
// idiom: a Config struct with documented defaults, log/slog tracing of
// convergence, and nowFn-free pure functions for fitness/crossover/
// mutation so they're unit-testable without a clock; crossover and
// mutation take an explicit *rand.Rand, so tests drive them from a seed.
package optimizer

import (
	"math"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/metrics"
)

const (
	// DefaultRSSI, DefaultDelay, DefaultPDR are the edge_metric fallback
	// defaults used when an edge has never been observed (spec.md §4.4).
	DefaultRSSI  = -90.0
	DefaultDelay = 100.0
	DefaultPDR   = 50.0
)

// ValidatePath reports whether p is a legal candidate route from self to
// dest: endpoints pinned, no duplicate nodes, and at least one hop.
func ValidatePath(p []identity.NodeID, self, dest identity.NodeID) bool {
	if len(p) < 2 {
		return false
	}
	if p[0] != self || p[len(p)-1] != dest {
		return false
	}
	seen := make(map[identity.NodeID]struct{}, len(p))
	for _, n := range p {
		if _, dup := seen[n]; dup {
			return false
		}
		seen[n] = struct{}{}
	}
	return true
}

// Fitness scores a path using the per-hop edge-metric blend of spec.md
// §4.4. Invalid paths score negative infinity so they always lose to any
// valid candidate.
func Fitness(edges *metrics.EdgeStore, p []identity.NodeID, self, dest identity.NodeID) float64 {
	if !ValidatePath(p, self, dest) {
		return math.Inf(-1)
	}
	hops := len(p) - 1

	var sum float64
	for i := 0; i < hops; i++ {
		u, v := p[i], p[i+1]
		r := edges.EdgeMetric(u, v, "rssi", DefaultRSSI)
		l := edges.EdgeMetric(u, v, "delay", DefaultDelay)
		d := edges.EdgeMetric(u, v, "pdr", DefaultPDR)

		normR := clamp((r+110)/40, 0, 1)
		normL := clamp(1-l/100, 0, 1)
		normD := d / 100

		sum += 0.5*normR + 0.3*normL + 0.2*normD
	}
	meanHopFit := sum / float64(hops)
	penalty := 1 / (1 + math.Log(1+float64(hops)))
	return meanHopFit * penalty
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
