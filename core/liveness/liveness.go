// Package liveness tracks which neighbors have been heard from recently,
// driven by HELLO reception rather than a dedicated keep-alive message
// (spec.md §4.5 "optimization sweep every 15 s over all neighbors seen
// within ROUTE_TIMEOUT").
//
// Adapted from the teacher's device/connection.Manager: the same
// touch/timeout-sweep shape, generalized from a fixed keep-alive multiplier
// to the single ROUTE_TIMEOUT validity window shared with the routing
// table and reverse route cache.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
)

const (
	// DefaultRouteTimeout is the default neighbor staleness window.
	DefaultRouteTimeout = 10 * time.Second

	// checkInterval is the resolution of the tracker's sweep loop.
	checkInterval = time.Second
)

// Config configures a Tracker.
type Config struct {
	// RouteTimeout is the maximum silence before a neighbor is considered
	// inactive. Default: 10 seconds.
	RouteTimeout time.Duration

	// Logger for liveness events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Tracker records the last time each neighbor was heard from (typically
// via HELLO reception) and reports which neighbors are still active.
type Tracker struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	lastSeen map[identity.NodeID]time.Time
	onExpire func(id identity.NodeID)
	cancel   context.CancelFunc

	// nowFn allows overriding time.Now() for testing.
	nowFn func() time.Time
}

// NewTracker creates a liveness Tracker with the given configuration.
func NewTracker(cfg Config) *Tracker {
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = DefaultRouteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg,
		log:      logger.WithGroup("liveness"),
		lastSeen: make(map[identity.NodeID]time.Time),
		nowFn:    time.Now,
	}
}

// SetOnExpire sets the callback invoked when a neighbor falls silent past
// RouteTimeout and is dropped from the active set.
func (t *Tracker) SetOnExpire(fn func(id identity.NodeID)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Touch records that a neighbor was just heard from.
func (t *Tracker) Touch(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[id] = t.nowFn()
}

// ActiveNeighbors returns every neighbor heard from within RouteTimeout of
// now, in no particular order.
func (t *Tracker) ActiveNeighbors() []identity.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFn()
	out := make([]identity.NodeID, 0, len(t.lastSeen))
	for id, seen := range t.lastSeen {
		if now.Sub(seen) <= t.cfg.RouteTimeout {
			out = append(out, id)
		}
	}
	return out
}

// Forget immediately drops id from the active set without waiting for
// RouteTimeout to elapse, without firing onExpire (the caller already knows
// why, e.g. an RERR naming id as unreachable).
func (t *Tracker) Forget(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, id)
}

// IsActive reports whether id has been heard from within RouteTimeout.
func (t *Tracker) IsActive(id identity.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen, ok := t.lastSeen[id]
	if !ok {
		return false
	}
	return t.nowFn().Sub(seen) <= t.cfg.RouteTimeout
}

// checkExpired drops neighbors silent past RouteTimeout and fires onExpire
// for each.
func (t *Tracker) checkExpired() {
	t.mu.Lock()
	now := t.nowFn()

	var expired []identity.NodeID
	for id, seen := range t.lastSeen {
		if now.Sub(seen) > t.cfg.RouteTimeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(t.lastSeen, id)
	}
	onExpire := t.onExpire
	t.mu.Unlock()

	if onExpire != nil {
		for _, id := range expired {
			t.log.Debug("neighbor expired", "node_id", id)
			onExpire(id)
		}
	}
}

// Start begins the periodic expiry check loop. Blocks until ctx is done.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkExpired()
		}
	}
}

// Stop cancels the tracker's context, stopping the expiry check loop.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
