package aodv

import (
	"sync"
	"time"

	"github.com/meshrelay/aodv-psoga/core/codec"
)

// Send priorities. Lower values are dequeued first — control traffic that
// unblocks a discovery waiter or tears down a stale route goes out ahead
// of application data, which in turn goes out ahead of periodic HELLO.
const (
	PriorityControl = 0 // RREQ, RREP, RERR
	PriorityData    = 1 // DATA, ACK
	PriorityHello   = 2 // HELLO
)

// SendQueue is a priority-ordered outbound frame queue, adapted from the
// teacher's device/router.SendQueue: same delayed-readiness and
// priority-then-insertion-order semantics, generalized from MeshCore's
// flood/direct priority scheme to AODV's HELLO/DATA/control tiers.
type SendQueue struct {
	mu    sync.Mutex
	items []queueItem
}

type queueItem struct {
	frame    *codec.Frame
	priority uint8
	readyAt  time.Time
}

// NewSendQueue creates an empty send queue.
func NewSendQueue() *SendQueue {
	return &SendQueue{}
}

// Push adds a frame to the queue with the given priority and delay.
// Priority 0 is highest. The frame will not be returned by Pop until the
// delay has elapsed relative to now.
func (q *SendQueue) Push(frame *codec.Frame, priority uint8, delay time.Duration, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queueItem{
		frame:    frame,
		priority: priority,
		readyAt:  now.Add(delay),
	})
}

// Pop returns the highest-priority ready frame as of now, or nil if none
// are ready. Among items with equal priority, the earliest-inserted item
// is returned.
func (q *SendQueue) Pop(now time.Time) *codec.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	bestIdx := -1
	var bestPri uint8 = 255

	for i, item := range q.items {
		if now.Before(item.readyAt) {
			continue
		}
		if bestIdx == -1 || item.priority < bestPri {
			bestIdx = i
			bestPri = item.priority
		}
	}

	if bestIdx == -1 {
		return nil
	}

	frame := q.items[bestIdx].frame
	q.items = append(q.items[:bestIdx], q.items[bestIdx+1:]...)
	return frame
}

// Len returns the total number of items in the queue (ready or not).
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
