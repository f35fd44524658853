package optimizer

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/metrics"
	"github.com/meshrelay/aodv-psoga/core/routing"
)

// Config tunes the PSO-GA search (spec.md §4.4 constants).
type Config struct {
	NumParticles  int
	W, C1, C2     float64
	EliteFraction float64
	CrossoverRate float64
	MutationRate  float64

	MaxIterations        int
	ConvergenceThreshold float64
	NoImprovementLimit   int

	SinkNodeID identity.NodeID

	Logger *slog.Logger
}

const (
	DefaultNumParticles         = 30
	DefaultW                    = 0.7
	DefaultC1                   = 1.5
	DefaultC2                   = 1.5
	DefaultEliteFraction        = 0.1
	DefaultCrossoverRate        = 0.8
	DefaultMutationRate         = 0.05
	DefaultMaxIterations        = 50
	DefaultConvergenceThreshold = 0.001
	DefaultNoImprovementLimit   = 10
	DefaultSinkNodeID           = 0
)

func (c *Config) applyDefaults() {
	if c.NumParticles == 0 {
		c.NumParticles = DefaultNumParticles
	}
	if c.W == 0 {
		c.W = DefaultW
	}
	if c.C1 == 0 {
		c.C1 = DefaultC1
	}
	if c.C2 == 0 {
		c.C2 = DefaultC2
	}
	if c.EliteFraction == 0 {
		c.EliteFraction = DefaultEliteFraction
	}
	if c.CrossoverRate == 0 {
		c.CrossoverRate = DefaultCrossoverRate
	}
	if c.MutationRate == 0 {
		c.MutationRate = DefaultMutationRate
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ConvergenceThreshold == 0 {
		c.ConvergenceThreshold = DefaultConvergenceThreshold
	}
	if c.NoImprovementLimit == 0 {
		c.NoImprovementLimit = DefaultNoImprovementLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ErrNoCandidate is returned when no valid path could be found, even after
// the one-hop fallback search (spec.md §7 "Optimizer finds no candidate").
var ErrNoCandidate = errors.New("optimizer: no candidate route found")

// Optimizer runs the PSO-GA search over the metric store's edge
// observations.
type Optimizer struct {
	cfg   Config
	log   *slog.Logger
	edges *metrics.EdgeStore
	rng   *rand.Rand
}

// New creates an Optimizer. rngSeed selects the search's deterministic
// entropy source (pass time.Now().UnixNano() in production; a fixed seed
// in tests).
func New(cfg Config, edges *metrics.EdgeStore, rngSeed int64) *Optimizer {
	cfg.applyDefaults()
	return &Optimizer{
		cfg:   cfg,
		log:   cfg.Logger.WithGroup("optimizer"),
		edges: edges,
		rng:   rand.New(rand.NewSource(rngSeed)),
	}
}

// Result is one completed optimization run.
type Result struct {
	Path       []identity.NodeID
	Fitness    float64
	Iterations int
	AvgRSSI    float64
	AvgDelay   float64
	AvgPDR     float64
}

// Optimize searches for the best path from self to dest among the given
// active neighbors (spec.md §4.4). available must exclude self and dest.
func (o *Optimizer) Optimize(self, dest identity.NodeID, available []identity.NodeID) (Result, error) {
	if len(available) == 0 {
		return o.oneHopFallback(self, dest, available)
	}

	pop := make([]Chromosome, o.cfg.NumParticles)
	for i := range pop {
		pop[i] = newRandomChromosome(o.rng, self, dest, available)
		pop[i].evaluate(o.edges, self, dest)
	}

	var gbestPath []identity.NodeID
	gbestFitness := math.Inf(-1)
	for _, c := range pop {
		if c.Fitness > gbestFitness {
			gbestFitness = c.Fitness
			gbestPath = clonePath(c.Path)
		}
	}

	noImprovement := 0
	iterations := 0
	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		iterations = iter + 1
		prevGbest := gbestFitness

		for i := range pop {
			pop[i].updateVelocity(o.rng, gbestFitness, o.cfg)
			pop[i].rebuildPath(self, dest, available)
			pop[i].evaluate(o.edges, self, dest)
			if pop[i].Fitness > gbestFitness {
				gbestFitness = pop[i].Fitness
				gbestPath = clonePath(pop[i].Path)
			}
		}

		pop = o.gaStep(pop, self, dest, available)
		for i := range pop {
			if pop[i].Fitness > gbestFitness {
				gbestFitness = pop[i].Fitness
				gbestPath = clonePath(pop[i].Path)
			}
		}

		if math.Abs(gbestFitness-prevGbest) < o.cfg.ConvergenceThreshold {
			noImprovement++
			if noImprovement >= o.cfg.NoImprovementLimit {
				break
			}
		} else {
			noImprovement = 0
		}
	}

	o.log.Debug("optimization converged", "iterations", iterations, "fitness", gbestFitness, "dest", dest)

	if !ValidatePath(gbestPath, self, dest) {
		return o.oneHopFallback(self, dest, available)
	}

	avgR, avgL, avgD := averagePathMetrics(o.edges, gbestPath)
	return Result{Path: gbestPath, Fitness: gbestFitness, Iterations: iterations, AvgRSSI: avgR, AvgDelay: avgL, AvgPDR: avgD}, nil
}

// gaStep performs one elitism + roulette-crossover/clone + mutation pass
// (spec.md §4.4 "GA step").
func (o *Optimizer) gaStep(pop []Chromosome, self, dest identity.NodeID, available []identity.NodeID) []Chromosome {
	sortByFitnessDesc(pop)
	elites := eliteCount(len(pop), o.cfg.EliteFraction)

	next := make([]Chromosome, 0, len(pop))
	next = append(next, pop[:elites]...)

	for len(next) < len(pop) {
		p1 := selectParent(o.rng, pop)
		var child Chromosome
		if o.rng.Float64() < o.cfg.CrossoverRate {
			p2 := selectParent(o.rng, pop)
			child = arithmeticCrossover(o.rng, p1, p2, self, dest)
		} else {
			child = Chromosome{Path: clonePath(p1.Path), Velocity: append([]float64(nil), p1.Velocity...)}
		}
		if len(next) >= elites && o.rng.Float64() < o.cfg.MutationRate {
			mutate(o.rng, &child, self, dest, available)
		}
		child.evaluate(o.edges, self, dest)
		next = append(next, child)
	}
	return next
}

// oneHopFallback scores the direct path [self, dest] and every two-hop
// path [self, n, dest] through an available neighbor, returning the
// highest-fitness one (spec.md §4.4 "Output").
func (o *Optimizer) oneHopFallback(self, dest identity.NodeID, available []identity.NodeID) (Result, error) {
	best := Result{Fitness: math.Inf(-1)}
	found := false

	direct := []identity.NodeID{self, dest}
	if f := Fitness(o.edges, direct, self, dest); f > best.Fitness {
		r, g, d := averagePathMetrics(o.edges, direct)
		best = Result{Path: direct, Fitness: f, Iterations: 0, AvgRSSI: r, AvgDelay: g, AvgPDR: d}
		found = true
	}

	for _, n := range available {
		if n == self || n == dest {
			continue
		}
		path := []identity.NodeID{self, n, dest}
		if f := Fitness(o.edges, path, self, dest); f > best.Fitness {
			r, g, d := averagePathMetrics(o.edges, path)
			best = Result{Path: clonePath(path), Fitness: f, Iterations: 0, AvgRSSI: r, AvgDelay: g, AvgPDR: d}
			found = true
		}
	}

	if !found {
		return Result{}, ErrNoCandidate
	}
	return best, nil
}

func averagePathMetrics(edges *metrics.EdgeStore, p []identity.NodeID) (avgRSSI, avgDelay, avgPDR float64) {
	hops := len(p) - 1
	if hops < 1 {
		return 0, 0, 0
	}
	var r, l, d float64
	for i := 0; i < hops; i++ {
		r += edges.EdgeMetric(p[i], p[i+1], "rssi", DefaultRSSI)
		l += edges.EdgeMetric(p[i], p[i+1], "delay", DefaultDelay)
		d += edges.EdgeMetric(p[i], p[i+1], "pdr", DefaultPDR)
	}
	n := float64(hops)
	return r / n, l / n, d / n
}

// Commit installs result.Path into table as a routing entry, and — only
// when dest == SinkNodeID — returns a persistence-ready record for the
// optimized_routes table (spec.md §4.4 "Route commit").
func (o *Optimizer) Commit(table *routing.Table, self, dest identity.NodeID, seqNum uint32, agentID string, now time.Time, result Result) *OptimizedRouteRecord {
	entry := routing.Entry{
		NextHop:    result.Path[1],
		HopCount:   len(result.Path) - 1,
		SeqNum:     seqNum,
		LastUpdate: now,
		Path:       clonePath(result.Path),
	}
	table.Set(dest, entry)

	if dest != o.cfg.SinkNodeID {
		return nil
	}
	return &OptimizedRouteRecord{
		SourceNode:      self,
		DestinationNode: dest,
		BestRoute:       result.Path,
		Fitness:         result.Fitness,
		AvgRSSI:         result.AvgRSSI,
		AvgDelay:        result.AvgDelay,
		AvgPDR:          result.AvgPDR,
		Iterations:      result.Iterations,
		AgentID:         agentID,
		At:              now,
	}
}

// OptimizedRouteRecord is the persistence-ready shape of one committed
// route to the sink (spec.md §6 optimized_routes table).
type OptimizedRouteRecord struct {
	SourceNode      identity.NodeID
	DestinationNode identity.NodeID
	BestRoute       []identity.NodeID
	Fitness         float64
	AvgRSSI         float64
	AvgDelay        float64
	AvgPDR          float64
	Iterations      int
	AgentID         string
	At              time.Time
}
