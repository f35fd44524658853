package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/device/aodv"
	"github.com/meshrelay/aodv-psoga/device/optimizer"
)

// fakeExecer records every NamedExecContext call in order, standing in
// for a real *sqlx.DB the same way engine_test.go's bus stands in for a
// socket transport.
type fakeExecer struct {
	mu      sync.Mutex
	queries []string
	args    []interface{}
	failNext bool
}

func (f *fakeExecer) NamedExecContext(_ context.Context, query string, arg interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return 0, errors.New("simulated write failure")
	}
	f.queries = append(f.queries, query)
	f.args = append(f.args, arg)
	return 1, nil
}

func (f *fakeExecer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func waitForCount(t *testing.T, f *fakeExecer, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writes, got %d", n, f.count())
}

func TestAdapter_WriteE2EMetric_DispatchesInsert(t *testing.T) {
	fx := &fakeExecer{}
	a := newAdapter(fx, Config{QueueCapacity: 4}, slog.Default())
	defer a.Close()

	a.WriteE2EMetric(aodv.E2EMetricRecord{
		PacketID:        7,
		SourceNode:      1,
		DestinationNode: 9,
		Route:           "1-2-9",
		Hops:            2,
		DelayMS:         12.5,
		RSSIMin:         -70,
		RSSIAvg:         -60,
		Success:         true,
		WindowPDR:       95,
		AgentID:         "agent-a",
		At:              time.Now(),
	})

	waitForCount(t, fx, 1)
	if fx.queries[0] != e2eMetricInsert {
		t.Errorf("wrong query dispatched for E2EMetricRecord")
	}
	row, ok := fx.args[0].(e2eMetricRow)
	if !ok {
		t.Fatalf("arg type = %T, want e2eMetricRow", fx.args[0])
	}
	if row.PacketID != 7 || row.Route != "1-2-9" {
		t.Errorf("row = %+v, unexpected values", row)
	}
}

func TestAdapter_WriteOptimizedRoute_DispatchesInsertAndEncodesPath(t *testing.T) {
	fx := &fakeExecer{}
	a := newAdapter(fx, Config{QueueCapacity: 4}, slog.Default())
	defer a.Close()

	a.WriteOptimizedRoute(optimizer.OptimizedRouteRecord{
		SourceNode:      identity.NodeID(3),
		DestinationNode: identity.NodeID(0),
		BestRoute:       []identity.NodeID{3, 2, 0},
		Fitness:         0.77,
		AvgRSSI:         -55,
		AvgDelay:        15,
		AvgPDR:          90,
		Iterations:      12,
		AgentID:         "agent-b",
		At:              time.Now(),
	})

	waitForCount(t, fx, 1)
	if fx.queries[0] != optimizedRouteInsert {
		t.Errorf("wrong query dispatched for OptimizedRouteRecord")
	}
	row, ok := fx.args[0].(optimizedRouteRow)
	if !ok {
		t.Fatalf("arg type = %T, want optimizedRouteRow", fx.args[0])
	}
	if row.BestRoute != "3-2-0" {
		t.Errorf("BestRoute = %q, want %q", row.BestRoute, "3-2-0")
	}
}

func TestAdapter_Enqueue_DropsOldestOnOverflow(t *testing.T) {
	fx := &fakeExecer{}
	// Capacity 1 with the writer goroutine never started, so the queue stays
	// full and enqueue() has to make room by dropping the oldest record.
	a := &Adapter{
		ex:     fx,
		log:    slog.Default(),
		queue:  make(chan any, 1),
		cancel: func() {},
		done:   make(chan struct{}),
	}
	close(a.done) // run() loop never started; we exercise enqueue() directly.

	first := aodv.E2EMetricRecord{PacketID: 1, Route: "1-9"}
	second := aodv.E2EMetricRecord{PacketID: 2, Route: "1-9"}
	third := aodv.E2EMetricRecord{PacketID: 3, Route: "1-9"}

	a.queue <- first
	a.enqueue(second) // queue full: drops `first`, enqueues `second`
	select {
	case got := <-a.queue:
		rec := got.(aodv.E2EMetricRecord)
		if rec.PacketID != 2 {
			t.Errorf("expected oldest record dropped, got PacketID=%d", rec.PacketID)
		}
	default:
		t.Fatal("expected one record in queue")
	}

	a.enqueue(third)
	select {
	case got := <-a.queue:
		rec := got.(aodv.E2EMetricRecord)
		if rec.PacketID != 3 {
			t.Errorf("PacketID = %d, want 3", rec.PacketID)
		}
	default:
		t.Fatal("expected record in queue")
	}
}

func TestAdapter_WriteFailureIsLoggedNotPanicked(t *testing.T) {
	fx := &fakeExecer{failNext: true}
	a := newAdapter(fx, Config{QueueCapacity: 4}, slog.Default())
	defer a.Close()

	a.WriteE2EMetric(aodv.E2EMetricRecord{PacketID: 1, Route: "1-9", At: time.Now()})

	// Give the writer goroutine a moment; a panic would fail the test via
	// the race/panic detector rather than this assertion.
	time.Sleep(20 * time.Millisecond)
	if fx.count() != 0 {
		t.Errorf("expected the failed write to not be recorded as a success")
	}
}
