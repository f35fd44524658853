package optimizer

import (
	"math/rand"
	"sort"

	"github.com/meshrelay/aodv-psoga/core/identity"
)

// eliteCount returns max(1, floor(fraction*n)).
func eliteCount(n int, fraction float64) int {
	c := int(fraction * float64(n))
	if c < 1 {
		c = 1
	}
	if c > n {
		c = n
	}
	return c
}

// sortByFitnessDesc sorts population in place, highest fitness first.
func sortByFitnessDesc(pop []Chromosome) {
	sort.Slice(pop, func(i, j int) bool { return pop[i].Fitness > pop[j].Fitness })
}

// selectParent picks one individual via roulette-wheel selection over
// non-negative fitness, falling back to a uniform pick when every
// candidate's fitness is non-positive (spec.md §4.4 "GA step").
func selectParent(rng *rand.Rand, pop []Chromosome) Chromosome {
	var total float64
	for _, c := range pop {
		if c.Fitness > 0 {
			total += c.Fitness
		}
	}
	if total <= 0 {
		return pop[rng.Intn(len(pop))]
	}
	target := rng.Float64() * total
	var acc float64
	for _, c := range pop {
		if c.Fitness > 0 {
			acc += c.Fitness
		}
		if acc >= target {
			return c
		}
	}
	return pop[len(pop)-1]
}

// arithmeticCrossover blends the midsections (everything strictly between
// the pinned endpoints) of two parents by position score, per spec.md
// §4.4 "Arithmetic crossover".
func arithmeticCrossover(rng *rand.Rand, p1, p2 Chromosome, self, dest identity.NodeID) Chromosome {
	alpha := 0.25 + rng.Float64()*0.5

	mid1 := midsection(p1.Path)
	mid2 := midsection(p2.Path)

	pos1 := make(map[identity.NodeID]float64, len(mid1))
	for i, n := range mid1 {
		pos1[n] = float64(i) / float64(max(1, len(mid1)-1))
	}
	pos2 := make(map[identity.NodeID]float64, len(mid2))
	for i, n := range mid2 {
		pos2[n] = float64(i) / float64(max(1, len(mid2)-1))
	}

	union := unionPreservingOrder(mid1, mid2)
	type scored struct {
		node  identity.NodeID
		score float64
	}
	scoredNodes := make([]scored, 0, len(union))
	for _, n := range union {
		s1, ok1 := pos1[n]
		if !ok1 {
			s1 = 1.0
		}
		s2, ok2 := pos2[n]
		if !ok2 {
			s2 = 1.0
		}
		scoredNodes = append(scoredNodes, scored{node: n, score: alpha*s1 + (1-alpha)*s2})
	}
	sort.Slice(scoredNodes, func(i, j int) bool { return scoredNodes[i].score < scoredNodes[j].score })

	take := int(alpha * float64(len(union)))
	if take < 1 {
		take = 1
	}
	if take > len(scoredNodes) {
		take = len(scoredNodes)
	}

	child := make([]identity.NodeID, 0, take+2)
	child = append(child, self)
	seen := map[identity.NodeID]struct{}{self: {}, dest: {}}
	for _, s := range scoredNodes[:take] {
		if _, dup := seen[s.node]; dup {
			continue
		}
		child = append(child, s.node)
		seen[s.node] = struct{}{}
	}
	child = append(child, dest)

	return Chromosome{Path: child, Velocity: make([]float64, len(child)-1)}
}

// midsection returns the nodes strictly between a path's pinned endpoints.
func midsection(p []identity.NodeID) []identity.NodeID {
	if len(p) <= 2 {
		return nil
	}
	return append([]identity.NodeID(nil), p[1:len(p)-1]...)
}

// unionPreservingOrder concatenates a and b, deduplicating while
// preserving first occurrence.
func unionPreservingOrder(a, b []identity.NodeID) []identity.NodeID {
	seen := make(map[identity.NodeID]struct{}, len(a)+len(b))
	out := make([]identity.NodeID, 0, len(a)+len(b))
	for _, n := range append(append([]identity.NodeID(nil), a...), b...) {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// mutate applies one of {add, remove, replace} to c's midsection with
// endpoint preservation and uniqueness repair (spec.md §4.4 "Mutation").
func mutate(rng *rand.Rand, c *Chromosome, self, dest identity.NodeID, available []identity.NodeID) {
	if len(available) == 0 {
		return
	}
	mid := midsection(c.Path)

	switch rng.Intn(3) {
	case 0: // add
		candidate := available[rng.Intn(len(available))]
		if candidate != self && candidate != dest && !contains(mid, candidate) {
			pos := 0
			if len(mid) > 0 {
				pos = rng.Intn(len(mid) + 1)
			}
			mid = insertAt(mid, pos, candidate)
		}
	case 1: // remove
		if len(mid) > 0 {
			idx := rng.Intn(len(mid))
			mid = append(mid[:idx], mid[idx+1:]...)
		}
	case 2: // replace
		if len(mid) > 0 {
			candidate := available[rng.Intn(len(available))]
			if candidate != self && candidate != dest && !contains(mid, candidate) {
				idx := rng.Intn(len(mid))
				mid[idx] = candidate
			}
		}
	}

	path := make([]identity.NodeID, 0, len(mid)+2)
	path = append(path, self)
	path = append(path, dedupe(mid)...)
	path = append(path, dest)
	c.Path = path
	c.Velocity = make([]float64, len(path)-1)
}

func contains(s []identity.NodeID, n identity.NodeID) bool {
	for _, v := range s {
		if v == n {
			return true
		}
	}
	return false
}

func insertAt(s []identity.NodeID, idx int, n identity.NodeID) []identity.NodeID {
	out := make([]identity.NodeID, 0, len(s)+1)
	out = append(out, s[:idx]...)
	out = append(out, n)
	out = append(out, s[idx:]...)
	return out
}

func dedupe(s []identity.NodeID) []identity.NodeID {
	seen := make(map[identity.NodeID]struct{}, len(s))
	out := make([]identity.NodeID, 0, len(s))
	for _, n := range s {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
