package optimizer

import (
	"math"
	"math/rand"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/metrics"
)

// Chromosome is one candidate path and its PSO state (spec.md §4.4).
type Chromosome struct {
	Path     []identity.NodeID
	Velocity []float64

	PBestPath    []identity.NodeID
	PBestFitness float64

	Fitness float64
}

func clonePath(p []identity.NodeID) []identity.NodeID {
	return append([]identity.NodeID(nil), p...)
}

// newRandomChromosome draws a path of [2, min(4, len(available)+1)] nodes,
// endpoints included, with distinct intermediates sampled without replacement from
// available (spec.md §4.4 "Initialization").
func newRandomChromosome(rng *rand.Rand, self, dest identity.NodeID, available []identity.NodeID) Chromosome {
	maxLen := len(available) + 1
	if maxLen > 4 {
		maxLen = 4
	}
	if maxLen < 2 {
		maxLen = 2
	}
	length := 2
	if maxLen > 2 {
		length = 2 + rng.Intn(maxLen-1)
	}
	numMid := length - 2
	if numMid < 0 {
		numMid = 0
	}
	if numMid > len(available) {
		numMid = len(available)
	}

	shuffled := append([]identity.NodeID(nil), available...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	path := make([]identity.NodeID, 0, numMid+2)
	path = append(path, self)
	path = append(path, shuffled[:numMid]...)
	path = append(path, dest)

	hops := len(path) - 1
	if hops < 1 {
		hops = 1
	}
	return Chromosome{
		Path:     path,
		Velocity: make([]float64, hops),
	}
}

// evaluate scores c.Fitness and updates its personal best on improvement.
func (c *Chromosome) evaluate(edges *metrics.EdgeStore, self, dest identity.NodeID) {
	c.Fitness = Fitness(edges, c.Path, self, dest)
	if c.PBestPath == nil || c.Fitness > c.PBestFitness {
		c.PBestPath = clonePath(c.Path)
		c.PBestFitness = c.Fitness
	}
}

// updateVelocity applies the PSO rule (spec.md §4.4 "PSO update"): the
// velocity is a scalar-per-hop reshaping coefficient, not a positional
// delta, so all hop slots share identical pbest/gbest fitness terms.
func (c *Chromosome) updateVelocity(rng *rand.Rand, gbestFitness float64, cfg Config) {
	for i := range c.Velocity {
		r1, r2 := rng.Float64(), rng.Float64()
		c.Velocity[i] = cfg.W*c.Velocity[i] +
			cfg.C1*r1*(c.PBestFitness-c.Fitness) +
			cfg.C2*r2*(gbestFitness-c.Fitness)
	}
}

// rebuildPath reconstructs c.Path from its velocity magnitudes, per spec.md
// §4.4: for each hop slot, index into available by
// floor(|v|*len(available)) mod len(available), skipping duplicates and
// the destination, then append destination.
func (c *Chromosome) rebuildPath(self, dest identity.NodeID, available []identity.NodeID) {
	if len(available) == 0 {
		c.Path = []identity.NodeID{self, dest}
		return
	}

	path := make([]identity.NodeID, 0, len(c.Velocity)+2)
	path = append(path, self)
	used := map[identity.NodeID]struct{}{self: {}, dest: {}}

	for _, v := range c.Velocity {
		idx := int(math.Abs(v)*float64(len(available))) % len(available)
		candidate := available[idx]
		if candidate == dest {
			continue
		}
		if _, dup := used[candidate]; dup {
			continue
		}
		path = append(path, candidate)
		used[candidate] = struct{}{}
	}
	path = append(path, dest)
	c.Path = path
	c.Velocity = make([]float64, len(path)-1)
}
