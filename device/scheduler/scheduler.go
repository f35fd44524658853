// Package scheduler drives the three periodic tasks of spec.md §4.5: HELLO
// emission, the optimization sweep over active neighbors, and the
// application-level DATA send cadence.
//
// Grounded on the teacher's device/advert.Scheduler: the same
// ticker-driven checkTimers shape and nowFn-overridable clock, generalized
// from two timers (local/flood advert) to three independent ones.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/liveness"
)

const (
	DefaultHelloInterval        = 2 * time.Second
	DefaultOptimizationInterval = 15 * time.Second

	// tickInterval is the resolution of the scheduler's timer check loop.
	tickInterval = 100 * time.Millisecond
)

// Config configures a Scheduler.
type Config struct {
	// HelloInterval is the HELLO emission cadence. Default: 2 seconds.
	// 0 disables it when any other interval is set (see applyDefaults).
	HelloInterval time.Duration

	// OptimizationInterval is the optimization sweep cadence. Default: 15
	// seconds. 0 disables it when any other interval is set.
	OptimizationInterval time.Duration

	// DataInterval is the application DATA send driver cadence. Zero
	// disables the driver entirely — callers who originate DATA sends
	// directly (rather than on a fixed cadence) can leave this unset.
	DataInterval time.Duration

	Logger *slog.Logger
}

// applyDefaults only substitutes defaults when every interval is left at
// its zero value — i.e. the caller didn't configure scheduling at all.
// Once any interval is set, a 0 on another field is an explicit "disable
// this timer", matching the teacher's advert.Scheduler convention.
func (c *Config) applyDefaults() {
	if c.HelloInterval == 0 && c.OptimizationInterval == 0 && c.DataInterval == 0 {
		c.HelloInterval = DefaultHelloInterval
		c.OptimizationInterval = DefaultOptimizationInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler runs the three periodic mesh agent tasks on independent
// timers, sharing a single tick loop (spec.md §5 "at minimum one receiver
// task, one HELLO emitter, one periodic optimizer, and one application
// driver").
type Scheduler struct {
	cfg  Config
	log  *slog.Logger
	live *liveness.Tracker

	emitHello func(now time.Time) error
	optimize  func(neighbors []identity.NodeID, now time.Time)
	driveData func(now time.Time)

	mu         sync.Mutex
	nextHello  time.Time
	nextOptim  time.Time
	nextDrive  time.Time
	cancel     context.CancelFunc
	nowFn      func() time.Time
}

// Deps bundles the callbacks a Scheduler drives.
type Deps struct {
	// Live supplies the active-neighbor set for each optimization sweep.
	Live *liveness.Tracker

	// EmitHello broadcasts one HELLO beacon.
	EmitHello func(now time.Time) error

	// Optimize runs one optimization sweep over the active neighbors at the
	// time of the call. Never called with a nil slice.
	Optimize func(neighbors []identity.NodeID, now time.Time)

	// DriveData is called every DataInterval, if set. Nil is valid when
	// the application originates DATA sends directly rather than on a
	// fixed cadence.
	DriveData func(now time.Time)
}

// New creates a Scheduler over the given dependencies.
func New(cfg Config, deps Deps) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:       cfg,
		log:       cfg.Logger.WithGroup("scheduler"),
		live:      deps.Live,
		emitHello: deps.EmitHello,
		optimize:  deps.Optimize,
		driveData: deps.DriveData,
		nowFn:     time.Now,
	}
}

// Start begins the periodic loop. Blocks until ctx is done; run it in a
// goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.resetTimers()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkTimers()
		}
	}
}

// Stop cancels the scheduler's context, stopping the periodic loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) resetTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	if s.cfg.HelloInterval > 0 {
		s.nextHello = now.Add(s.cfg.HelloInterval)
	}
	if s.cfg.OptimizationInterval > 0 {
		s.nextOptim = now.Add(s.cfg.OptimizationInterval)
	}
	if s.cfg.DataInterval > 0 {
		s.nextDrive = now.Add(s.cfg.DataInterval)
	}
}

// checkTimers fires any timer that has elapsed. Each task's own work runs
// outside the scheduler's lock so a slow optimization sweep never stalls
// HELLO emission.
func (s *Scheduler) checkTimers() {
	now := s.nowFn()

	s.mu.Lock()
	fireHello := s.cfg.HelloInterval > 0 && !s.nextHello.IsZero() && !now.Before(s.nextHello)
	if fireHello {
		s.nextHello = now.Add(s.cfg.HelloInterval)
	}
	fireOptim := s.cfg.OptimizationInterval > 0 && !s.nextOptim.IsZero() && !now.Before(s.nextOptim)
	if fireOptim {
		s.nextOptim = now.Add(s.cfg.OptimizationInterval)
	}
	fireDrive := s.cfg.DataInterval > 0 && !s.nextDrive.IsZero() && !now.Before(s.nextDrive)
	if fireDrive {
		s.nextDrive = now.Add(s.cfg.DataInterval)
	}
	s.mu.Unlock()

	if fireHello && s.emitHello != nil {
		if err := s.emitHello(now); err != nil {
			s.log.Debug("hello emission failed", "error", err)
		}
	}
	if fireOptim && s.optimize != nil {
		neighbors := s.live.ActiveNeighbors()
		s.optimize(neighbors, now)
	}
	if fireDrive && s.driveData != nil {
		s.driveData(now)
	}
}
