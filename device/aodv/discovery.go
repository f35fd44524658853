package aodv

import (
	"context"
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/routing"
)

// Waiter implements the RREP waiter design note: a condition variable
// protecting a (dest -> last_notify_time) cell, woken by any RREP arrival
// or by deadline expiry. Every wake is treated as possibly spurious — the
// caller re-checks routing table validity after each wake rather than
// trusting that its own dest was the one notified.
//
// Grounded on ack.Tracker's timeout loop, reshaped from a polling ticker
// into a blocking condition variable per spec.md §9 ("RREP waiter").
type Waiter struct {
	mu         sync.Mutex
	cond       *sync.Cond
	lastNotify map[identity.NodeID]time.Time
}

// NewWaiter creates an empty RREP waiter.
func NewWaiter() *Waiter {
	w := &Waiter{lastNotify: make(map[identity.NodeID]time.Time)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Notify records that dest received an RREP at the given time and wakes
// every blocked waiter, regardless of which destination they're waiting on.
func (w *Waiter) Notify(dest identity.NodeID, at time.Time) {
	w.mu.Lock()
	w.lastNotify[dest] = at
	w.mu.Unlock()
	w.broadcast()
}

// LastNotify returns the last time dest was notified, if ever.
func (w *Waiter) LastNotify(dest identity.NodeID) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.lastNotify[dest]
	return t, ok
}

func (w *Waiter) broadcast() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Wait blocks until Notify is called for any destination, the deadline
// passes, or ctx is cancelled — whichever comes first. A single spurious
// wake is normal: callers must re-check the condition they're waiting for.
func (w *Waiter) Wait(ctx context.Context, deadline time.Time) {
	stop := make(chan struct{})
	defer close(stop)

	// Take the lock before arming the wake sources: broadcast takes the
	// same lock, so a wake that fires early cannot be lost before cond.Wait.
	w.mu.Lock()
	timer := time.AfterFunc(time.Until(deadline), w.broadcast)
	defer timer.Stop()

	go func() {
		select {
		case <-ctx.Done():
			w.broadcast()
		case <-stop:
		}
	}()

	w.cond.Wait()
	w.mu.Unlock()
}

// DiscoverRoute implements the discovery contract (spec.md §4.2): returns
// success iff a valid routing entry for dest exists. If not, it issues up
// to retries+1 RREQs spaced by wait, blocking until a matching RREP arrives
// or the final wait elapses. Idempotent when a valid route already exists.
//
// sendRREQ originates one RREQ toward dest; it is the caller's
// responsibility (the Engine) to assign a fresh rreq_id and broadcast it.
func DiscoverRoute(
	ctx context.Context,
	dest identity.NodeID,
	table *routing.Table,
	routeTimeout time.Duration,
	waiter *Waiter,
	sendRREQ func(),
	wait time.Duration,
	retries int,
	nowFn func() time.Time,
) (routing.Entry, bool) {
	if e, ok := table.Valid(dest, nowFn(), routeTimeout); ok {
		return e, true
	}

	for attempt := 0; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return routing.Entry{}, false
		}

		sendRREQ()
		deadline := nowFn().Add(wait)

		for {
			now := nowFn()
			if !now.Before(deadline) {
				break
			}
			if ctx.Err() != nil {
				return routing.Entry{}, false
			}
			waiter.Wait(ctx, deadline)
			if e, ok := table.Valid(dest, nowFn(), routeTimeout); ok {
				return e, true
			}
		}

		if e, ok := table.Valid(dest, nowFn(), routeTimeout); ok {
			return e, true
		}
	}

	return routing.Entry{}, false
}
