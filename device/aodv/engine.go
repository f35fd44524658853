// Package aodv implements the reactive route discovery and forwarding
// state machine (spec.md §4.2): HELLO emission and reception, RREQ/RREP
// discovery, DATA forwarding, ACK return, and RERR-triggered route
// invalidation.
//
// Grounded on the teacher's device/router.Router: the same gated
// HandleFrame dispatch shape (validate → per-type gate → drop/forward/
// reply), the same SendQueue priority-with-delay pattern (aodv/queue.go),
// and the same atomic RouterCounters pattern (aodv/counters.go) for
// packets-sent/recv/duplicate/forwarded observability.
package aodv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshrelay/aodv-psoga/core/codec"
	"github.com/meshrelay/aodv-psoga/core/dedupe"
	"github.com/meshrelay/aodv-psoga/core/identity"
	"github.com/meshrelay/aodv-psoga/core/liveness"
	"github.com/meshrelay/aodv-psoga/core/metrics"
	"github.com/meshrelay/aodv-psoga/core/probe"
	"github.com/meshrelay/aodv-psoga/core/routing"
	"github.com/meshrelay/aodv-psoga/transport"
)

// Default constants (spec.md §6).
const (
	DefaultHelloInterval    = 2 * time.Second
	DefaultRouteTimeout     = 10 * time.Second
	DefaultMaxHops          = 10
	DefaultMinDelayMS       = 10.0
	DefaultDiscoveryWait    = 2 * time.Second
	DefaultDiscoveryRetries = 2
)

// ErrNoRouteToDestination is returned by SendData when neither a routing
// entry nor a direct MAC is known for the destination (spec.md §7
// "No route and no direct MAC").
var ErrNoRouteToDestination = errors.New("aodv: no route and no direct mac for destination")

// E2EMetricRecord is the persistence-ready shape of one completed (or
// best-effort inferred) end-to-end DATA/ACK round trip (spec.md §6
// e2e_metrics table). Package persistence implements PersistenceSink to
// consume these without aodv importing persistence.
type E2EMetricRecord struct {
	PacketID        int32
	SourceNode      identity.NodeID
	DestinationNode identity.NodeID
	Route           string
	Hops            int
	DelayMS         float64
	RSSIMin         float64
	RSSIAvg         float64
	Success         bool
	WindowPDR       float64
	AgentID         string
	At              time.Time
}

// PersistenceSink receives completed e2e records. Writes must not block the
// caller (spec.md §5 "Persistence operations must not block receive
// tasks"); implementations are expected to queue asynchronously.
type PersistenceSink interface {
	WriteE2EMetric(rec E2EMetricRecord)
}

// Config configures an Engine. Zero-value fields take the documented
// defaults in New.
type Config struct {
	Self    identity.NodeID
	SelfMAC identity.MAC
	AgentID string

	HelloInterval    time.Duration
	RouteTimeout     time.Duration
	MaxHops          int
	MinDelayMS       float64
	DiscoveryWait    time.Duration
	DiscoveryRetries int

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.HelloInterval <= 0 {
		c.HelloInterval = DefaultHelloInterval
	}
	if c.RouteTimeout <= 0 {
		c.RouteTimeout = DefaultRouteTimeout
	}
	if c.MaxHops <= 0 {
		c.MaxHops = DefaultMaxHops
	}
	if c.MinDelayMS <= 0 {
		c.MinDelayMS = DefaultMinDelayMS
	}
	if c.DiscoveryWait <= 0 {
		c.DiscoveryWait = DefaultDiscoveryWait
	}
	if c.DiscoveryRetries <= 0 {
		c.DiscoveryRetries = DefaultDiscoveryRetries
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine is the AODV route discovery and forwarding state machine. Every
// shared container it touches (table, reverse, dedup, edges, hello, e2e,
// live) is independently guarded; Engine's own mutex guards only its
// transport list, persistence sink and background context, and its
// counters are atomics.
type Engine struct {
	cfg Config
	log *slog.Logger

	addr    *identity.AddressMap
	table   *routing.Table
	reverse *routing.ReverseCache
	dedup   *dedupe.Set
	edges   *metrics.EdgeStore
	hello   *metrics.HelloLog
	e2e     *metrics.E2ETracker
	live    *liveness.Tracker
	probe   probe.Prober

	waiter   *Waiter
	Counters Counters

	mu         sync.Mutex
	transports []transport.Transport
	persist    PersistenceSink
	cancel     context.CancelFunc
	bgCtx      context.Context

	seqCounter    atomic.Uint32
	rreqCounter   atomic.Uint32
	packetCounter atomic.Int32

	queue *SendQueue
	nowFn func() time.Time
}

// Deps bundles the shared containers an Engine operates over. Each is
// constructed once at startup and shared with the scheduler and (for
// table/e2e) the optimizer.
type Deps struct {
	Addr    *identity.AddressMap
	Table   *routing.Table
	Reverse *routing.ReverseCache
	Dedup   *dedupe.Set
	Edges   *metrics.EdgeStore
	Hello   *metrics.HelloLog
	E2E     *metrics.E2ETracker
	Live    *liveness.Tracker
	Probe   probe.Prober
}

// New creates an Engine over the given shared containers.
func New(cfg Config, deps Deps) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:     cfg,
		log:     cfg.Logger.WithGroup("aodv"),
		addr:    deps.Addr,
		table:   deps.Table,
		reverse: deps.Reverse,
		dedup:   deps.Dedup,
		edges:   deps.Edges,
		hello:   deps.Hello,
		e2e:     deps.E2E,
		live:    deps.Live,
		probe:   deps.Probe,
		waiter:  NewWaiter(),
		bgCtx:   context.Background(),
		queue:   NewSendQueue(),
		nowFn:   time.Now,
	}
}

// Start records the context used for asynchronous background work the
// engine itself originates (RERR-triggered re-discovery). Transports and
// periodic schedules are started independently by their owners.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.bgCtx = ctx
	e.cancel = cancel
	e.mu.Unlock()
}

// Stop cancels any asynchronous work the engine originated.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// SetPersistence wires an optional sink for completed e2e records. Nil
// (the default) disables persistence without changing engine behavior.
func (e *Engine) SetPersistence(sink PersistenceSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persist = sink
}

// AddTransport registers a transport as both a frame source and an
// outbound broadcast target.
func (e *Engine) AddTransport(t transport.Transport) {
	t.SetFrameHandler(e.handleIncoming)
	e.mu.Lock()
	e.transports = append(e.transports, t)
	e.mu.Unlock()
}

func (e *Engine) broadcastAll(frame *codec.Frame) error {
	e.mu.Lock()
	transports := append([]transport.Transport(nil), e.transports...)
	e.mu.Unlock()

	var firstErr error
	for _, t := range transports {
		if !t.IsConnected() {
			continue
		}
		if err := t.SendFrame(frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// dispatch pushes frame onto the priority send queue and immediately
// drains every frame that is ready as of now, adapted from the teacher's
// SendQueue. All priorities use a zero send delay — spec.md names no
// outbound jitter requirement — so draining is synchronous with Push and
// frames from one caller leave in call order. The priority tiers (control
// traffic RREQ/RREP/RERR ahead of DATA/ACK, which go ahead of HELLO) only
// decide the order among frames that concurrent dispatch calls have queued
// at the same moment.
func (e *Engine) dispatch(frame *codec.Frame, priority uint8) error {
	now := e.nowFn()
	e.queue.Push(frame, priority, 0, now)

	var firstErr error
	for {
		ready := e.queue.Pop(now)
		if ready == nil {
			break
		}
		if err := e.broadcastAll(ready); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) selfMACArr() [6]byte {
	return [6]byte(e.cfg.SelfMAC)
}

func broadcastMACArr() [6]byte {
	return [6]byte(identity.BroadcastMAC)
}

func nowSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromSeconds(s float64) time.Time {
	if s <= 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(s*1e9))
}

func nodeIDsToInts(path []identity.NodeID) []int {
	out := make([]int, len(path))
	for i, n := range path {
		out[i] = int(n)
	}
	return out
}

func intsToNodeIDs(path []int) []identity.NodeID {
	out := make([]identity.NodeID, len(path))
	for i, n := range path {
		out[i] = identity.NodeID(n)
	}
	return out
}

func pathToString(path []identity.NodeID) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(int(n))
	}
	return strings.Join(parts, "-")
}

func intsToString(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "-")
}

func reverseNodeIDs(path []uint8) []uint8 {
	out := make([]uint8, len(path))
	for i, v := range path {
		out[len(path)-1-i] = v
	}
	return out
}

func indexOfNode(path []uint8, id identity.NodeID) (int, bool) {
	for i, v := range path {
		if identity.NodeID(v) == id {
			return i, true
		}
	}
	return 0, false
}

// measureDelay implements spec.md §4.2 "Delay measurement": a timestamp
// that's absent or implausible (< 1e9) is treated as unusable and the
// floor is used; negative clock drift clamps to zero before the floor.
func (e *Engine) measureDelay(ts float64, now time.Time) float64 {
	if ts < 1e9 {
		return e.cfg.MinDelayMS
	}
	deltaMS := (nowSeconds(now) - ts) * 1000
	if deltaMS < 0 {
		deltaMS = 0
	}
	if deltaMS < e.cfg.MinDelayMS {
		deltaMS = e.cfg.MinDelayMS
	}
	return deltaMS
}

// handleIncoming is the transport.FrameHandler wired into every transport.
// It implements the generic reception gate of spec.md §4.1 (ttl==0 or
// dst_mac neither self nor broadcast → drop) before per-type dispatch.
func (e *Engine) handleIncoming(frame *codec.Frame, source transport.PacketSource) {
	now := e.nowFn()

	if frame.TTL == 0 {
		e.Counters.framesDropped.Add(1)
		return
	}
	if !e.addr.IsSelfOrBroadcast(identity.MAC(frame.DstMAC)) {
		return
	}

	switch frame.Type {
	case codec.PacketHello:
		e.handleHello(frame, now)
	case codec.PacketRREQ:
		e.handleRREQ(frame, now)
	case codec.PacketRREP:
		e.handleRREP(frame, now)
	case codec.PacketData:
		e.handleData(frame, now)
	case codec.PacketRERR:
		e.handleRERR(frame, now)
	case codec.PacketACK:
		e.handleAck(frame, now)
	default:
		e.Counters.framesDropped.Add(1)
	}
}

// EmitHello broadcasts a HELLO beacon (spec.md §4.2 "HELLO").
func (e *Engine) EmitHello(now time.Time) error {
	seq := e.seqCounter.Add(1)
	payload := codec.HelloPayload{
		NodeID:    uint8(e.cfg.Self),
		SeqNum:    seq,
		Timestamp: nowSeconds(now),
		MAC:       e.cfg.SelfMAC.String(),
		AgentID:   e.cfg.AgentID,
		Type:      "hello",
	}
	frame := &codec.Frame{
		Type:    codec.PacketHello,
		SrcMAC:  e.selfMACArr(),
		DstMAC:  broadcastMACArr(),
		TTL:     uint8(e.cfg.MaxHops),
		Payload: codec.Marshal(payload),
	}
	e.Counters.helloSent.Add(1)
	return e.dispatch(frame, PriorityHello)
}

func (e *Engine) handleHello(frame *codec.Frame, now time.Time) {
	var p codec.HelloPayload
	if err := codec.Unmarshal(frame.Payload, &p); err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}
	e.Counters.helloRecv.Add(1)

	src := identity.NodeID(p.NodeID)
	e.addr.Set(src, identity.MAC(frame.SrcMAC))
	e.live.Touch(src)
	e.hello.RecordReception(src, now)

	delay := e.measureDelay(p.Timestamp, now)
	var rssiPtr *float64
	if rssi, ok := e.probe.RSSI(); ok {
		rssiPtr = &rssi
	}
	e.edges.Record(src, e.cfg.Self, metrics.Sample{RSSI: rssiPtr, Delay: &delay}, now)
}

// SendRREQ originates an RREQ toward dest (spec.md §4.2 "RREQ"). Intended
// as the sendRREQ callback passed to DiscoverRoute.
func (e *Engine) SendRREQ(dest identity.NodeID, now time.Time) {
	rreqID := e.rreqCounter.Add(1)
	e.dedup.HasSeen(dedupe.Key{Origin: e.cfg.Self, RREQID: rreqID}, now)

	payload := codec.RREQPayload{
		OriginID:  uint8(e.cfg.Self),
		DestID:    uint8(dest),
		RREQID:    rreqID,
		HopCount:  0,
		Timestamp: nowSeconds(now),
		Path:      []uint8{uint8(e.cfg.Self)},
	}
	frame := &codec.Frame{
		Type:    codec.PacketRREQ,
		SrcMAC:  e.selfMACArr(),
		DstMAC:  broadcastMACArr(),
		TTL:     uint8(e.cfg.MaxHops),
		Payload: codec.Marshal(payload),
	}
	e.Counters.rreqSent.Add(1)
	if err := e.dispatch(frame, PriorityControl); err != nil {
		e.log.Debug("rreq broadcast failed", "dest", dest, "error", err)
	}
}

// Discover implements the discovery contract (spec.md §4.2 "Discovery
// contract"), using the engine's own table, waiter, and configured
// wait/retries.
func (e *Engine) Discover(ctx context.Context, dest identity.NodeID) (routing.Entry, bool) {
	return DiscoverRoute(ctx, dest, e.table, e.cfg.RouteTimeout, e.waiter,
		func() { e.SendRREQ(dest, e.nowFn()) },
		e.cfg.DiscoveryWait, e.cfg.DiscoveryRetries, e.nowFn)
}

func (e *Engine) handleRREQ(frame *codec.Frame, now time.Time) {
	var p codec.RREQPayload
	if err := codec.Unmarshal(frame.Payload, &p); err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}
	e.Counters.rreqRecv.Add(1)

	origin := identity.NodeID(p.OriginID)
	dest := identity.NodeID(p.DestID)
	key := dedupe.Key{Origin: origin, RREQID: p.RREQID}
	if e.dedup.HasSeen(key, now) {
		e.Counters.rreqDuplicate.Add(1)
		return
	}

	prevHop, err := e.addr.NodeFor(identity.MAC(frame.SrcMAC))
	if err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}
	e.reverse.Record(origin, prevHop, p.HopCount+1, now)

	ownPathSoFar := append(append([]uint8(nil), p.Path...), uint8(e.cfg.Self))

	if dest == e.cfg.Self {
		e.replyRREP(origin, dest, p.RREQID, 0, reverseNodeIDs(ownPathSoFar), now)
		return
	}

	if entry, ok := e.table.Valid(dest, now, e.cfg.RouteTimeout); ok {
		fullPath := append(append([]uint8(nil), ownPathSoFar[:len(ownPathSoFar)-1]...), nodeIDsToUint8(entry.Path)...)
		e.replyRREP(origin, dest, p.RREQID, entry.HopCount, reverseNodeIDs(fullPath), now)
		return
	}

	fwd := frame.Clone()
	newTTL := fwd.DecrementTTL()
	if newTTL == 0 {
		e.Counters.framesDropped.Add(1)
		return
	}
	fwd.SrcMAC = e.selfMACArr()
	fwd.DstMAC = broadcastMACArr()
	fwd.Payload = codec.Marshal(codec.RREQPayload{
		OriginID:  p.OriginID,
		DestID:    p.DestID,
		RREQID:    p.RREQID,
		HopCount:  p.HopCount + 1,
		Timestamp: p.Timestamp,
		Path:      ownPathSoFar,
	})
	e.Counters.rreqForwarded.Add(1)
	if err := e.dispatch(fwd, PriorityControl); err != nil {
		e.log.Debug("rreq forward failed", "origin", origin, "dest", dest, "error", err)
	}
}

func nodeIDsToUint8(path []identity.NodeID) []uint8 {
	out := make([]uint8, len(path))
	for i, n := range path {
		out[i] = uint8(n)
	}
	return out
}

// replyRREP unicasts an RREP toward origin via the cached reverse route.
// fullPathDestToOrigin is the complete static path, dest-first, that every
// subsequent forwarder passes through unchanged.
func (e *Engine) replyRREP(origin, dest identity.NodeID, rreqID uint32, hopCount int, fullPathDestToOrigin []uint8, now time.Time) {
	rev, ok := e.reverse.Valid(origin, now, e.cfg.RouteTimeout)
	if !ok {
		return
	}
	nextHopMAC, err := e.addr.MACFor(rev.NextHop)
	if err != nil {
		return
	}

	payload := codec.RREPPayload{
		OriginID:  uint8(origin),
		DestID:    uint8(dest),
		RREQID:    rreqID,
		HopCount:  hopCount,
		Timestamp: nowSeconds(now),
		Path:      fullPathDestToOrigin,
	}
	frame := &codec.Frame{
		Type:    codec.PacketRREP,
		SrcMAC:  e.selfMACArr(),
		DstMAC:  [6]byte(nextHopMAC),
		TTL:     uint8(e.cfg.MaxHops),
		Payload: codec.Marshal(payload),
	}
	e.Counters.rrepSent.Add(1)
	if err := e.dispatch(frame, PriorityControl); err != nil {
		e.log.Debug("rrep send failed", "origin", origin, "dest", dest, "error", err)
	}
}

func (e *Engine) handleRREP(frame *codec.Frame, now time.Time) {
	var p codec.RREPPayload
	if err := codec.Unmarshal(frame.Payload, &p); err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}
	e.Counters.rrepRecv.Add(1)

	origin := identity.NodeID(p.OriginID)
	dest := identity.NodeID(p.DestID)

	prevHop, err := e.addr.NodeFor(identity.MAC(frame.SrcMAC))
	if err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}

	idx, found := indexOfNode(p.Path, e.cfg.Self)
	if !found {
		e.Counters.framesDropped.Add(1)
		return
	}
	ownForwardPath := intsToNodeIDs(reverseUint8ToInts(p.Path[:idx+1]))

	candidate := routing.Entry{
		NextHop:    prevHop,
		HopCount:   p.HopCount + 1,
		SeqNum:     e.seqCounter.Load(),
		LastUpdate: now,
		Path:       ownForwardPath,
	}
	e.table.UpdateIfBetter(dest, now, e.cfg.RouteTimeout, candidate)

	if origin == e.cfg.Self {
		e.waiter.Notify(dest, now)
		return
	}

	rev, ok := e.reverse.Valid(origin, now, e.cfg.RouteTimeout)
	if !ok {
		return
	}
	nextHopMAC, err := e.addr.MACFor(rev.NextHop)
	if err != nil {
		return
	}

	fwd := frame.Clone()
	newTTL := fwd.DecrementTTL()
	if newTTL == 0 {
		e.Counters.framesDropped.Add(1)
		return
	}
	fwd.SrcMAC = e.selfMACArr()
	fwd.DstMAC = [6]byte(nextHopMAC)
	fwd.Payload = codec.Marshal(codec.RREPPayload{
		OriginID:  p.OriginID,
		DestID:    p.DestID,
		RREQID:    p.RREQID,
		HopCount:  p.HopCount + 1,
		Timestamp: p.Timestamp,
		Path:      p.Path,
	})
	e.Counters.rrepForwarded.Add(1)
	if err := e.dispatch(fwd, PriorityControl); err != nil {
		e.log.Debug("rrep forward failed", "origin", origin, "dest", dest, "error", err)
	}
}

func reverseUint8ToInts(path []uint8) []int {
	out := make([]int, len(path))
	for i, v := range path {
		out[len(path)-1-i] = int(v)
	}
	return out
}

// SendData originates a DATA packet toward dest (spec.md §4.2 "DATA send").
func (e *Engine) SendData(dest identity.NodeID, payload string, now time.Time) error {
	packetID := e.packetCounter.Add(1)

	var nextHopMAC identity.MAC
	var path []identity.NodeID

	if entry, ok := e.table.Valid(dest, now, e.cfg.RouteTimeout); ok {
		mac, err := e.addr.MACFor(entry.NextHop)
		if err == nil {
			nextHopMAC = mac
			path = entry.Path
		}
	}
	if path == nil {
		if mac, err := e.addr.MACFor(dest); err == nil {
			nextHopMAC = mac
			path = []identity.NodeID{e.cfg.Self, dest}
		} else {
			e.emitRERR(dest, now)
			return fmt.Errorf("%w: %d", ErrNoRouteToDestination, dest)
		}
	}

	intPath := nodeIDsToInts(path)
	dataPayload := codec.DataPayload{
		PacketID:    packetID,
		Payload:     payload,
		Source:      uint8(e.cfg.Self),
		Destination: uint8(dest),
		Timestamp:   nowSeconds(now),
		Path:        intPath,
		Route:       intPath,
		AgentID:     e.cfg.AgentID,
		Type:        "data",
	}
	frame := &codec.Frame{
		Type:    codec.PacketData,
		SrcMAC:  e.selfMACArr(),
		DstMAC:  [6]byte(nextHopMAC),
		TTL:     uint8(e.cfg.MaxHops),
		Payload: codec.Marshal(dataPayload),
	}

	e.e2e.RecordSend(packetID, metrics.PendingSend{
		Dest:  dest,
		T0:    now,
		Route: path,
		Hops:  len(path) - 1,
	})
	e.Counters.dataSent.Add(1)
	return e.dispatch(frame, PriorityData)
}

func (e *Engine) handleData(frame *codec.Frame, now time.Time) {
	var p codec.DataPayload
	if err := codec.Unmarshal(frame.Payload, &p); err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}
	e.Counters.dataRecv.Add(1)

	dest := identity.NodeID(p.Destination)
	if dest == e.cfg.Self {
		src, err := e.addr.NodeFor(identity.MAC(frame.SrcMAC))
		if err != nil {
			e.Counters.framesDropped.Add(1)
			return
		}
		var rssiPtr *float64
		if rssi, ok := e.probe.RSSI(); ok {
			rssiPtr = &rssi
		}
		p.HopMetrics = append(p.HopMetrics, codec.HopMetric{U: uint8(src), V: uint8(e.cfg.Self), RSSI: rssiPtr})
		e.sendAck(p, now)
		return
	}

	entry, ok := e.table.Valid(dest, now, e.cfg.RouteTimeout)
	if !ok {
		e.Counters.dataDropped.Add(1)
		return
	}
	nextHopMAC, err := e.addr.MACFor(entry.NextHop)
	if err != nil {
		e.Counters.dataDropped.Add(1)
		return
	}

	fwd := frame.Clone()
	newTTL := fwd.DecrementTTL()
	if newTTL == 0 {
		e.Counters.dataDropped.Add(1)
		return
	}
	fwd.SrcMAC = e.selfMACArr()
	fwd.DstMAC = [6]byte(nextHopMAC)
	e.Counters.dataForwarded.Add(1)
	if err := e.dispatch(fwd, PriorityData); err != nil {
		e.log.Debug("data forward failed", "dest", dest, "error", err)
	}
}

func (e *Engine) sendAck(p codec.DataPayload, now time.Time) {
	ackPayload := codec.AckPayload{
		PacketID:    p.PacketID,
		SentTS:      p.Timestamp,
		AckTS:       nowSeconds(now),
		Source:      p.Destination,
		Destination: p.Source,
		Route:       p.Route,
		HopMetrics:  p.HopMetrics,
		AgentID:     e.cfg.AgentID,
		Type:        "ack",
	}

	originNode := identity.NodeID(p.Source)
	var dstMAC identity.MAC
	if entry, ok := e.table.Valid(originNode, now, e.cfg.RouteTimeout); ok {
		if mac, err := e.addr.MACFor(entry.NextHop); err == nil {
			dstMAC = mac
		}
	}
	if dstMAC.IsZero() {
		mac, err := e.addr.MACFor(originNode)
		if err != nil {
			return
		}
		dstMAC = mac
	}

	frame := &codec.Frame{
		Type:    codec.PacketACK,
		SrcMAC:  e.selfMACArr(),
		DstMAC:  [6]byte(dstMAC),
		TTL:     uint8(e.cfg.MaxHops),
		Payload: codec.Marshal(ackPayload),
	}
	e.Counters.ackSent.Add(1)
	if err := e.dispatch(frame, PriorityData); err != nil {
		e.log.Debug("ack send failed", "dest", originNode, "error", err)
	}
}

func (e *Engine) handleAck(frame *codec.Frame, now time.Time) {
	var p codec.AckPayload
	if err := codec.Unmarshal(frame.Payload, &p); err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}

	finalRecipient := identity.NodeID(p.Destination)
	if finalRecipient != e.cfg.Self {
		entry, ok := e.table.Valid(finalRecipient, now, e.cfg.RouteTimeout)
		if !ok {
			e.Counters.framesDropped.Add(1)
			return
		}
		nextHopMAC, err := e.addr.MACFor(entry.NextHop)
		if err != nil {
			e.Counters.framesDropped.Add(1)
			return
		}
		fwd := frame.Clone()
		newTTL := fwd.DecrementTTL()
		if newTTL == 0 {
			e.Counters.framesDropped.Add(1)
			return
		}
		fwd.SrcMAC = e.selfMACArr()
		fwd.DstMAC = [6]byte(nextHopMAC)
		if err := e.dispatch(fwd, PriorityData); err != nil {
			e.log.Debug("ack forward failed", "dest", finalRecipient, "error", err)
		}
		return
	}

	e.Counters.ackRecv.Add(1)
	if e.e2e.IsDuplicateAck(p.PacketID) {
		e.Counters.ackDuplicate.Add(1)
		return
	}

	var t0 time.Time
	var dest identity.NodeID
	var hops int
	var routeStr string

	if pending, ok := e.e2e.TakePending(p.PacketID); ok {
		t0 = pending.T0
		dest = pending.Dest
		hops = pending.Hops
		routeStr = pathToString(pending.Route)
	} else {
		dest = identity.NodeID(p.Source)
		t0 = timeFromSeconds(p.SentTS)
		hops = len(p.Route) - 1
		routeStr = intsToString(p.Route)
	}

	delayMS := 0.0
	if !t0.IsZero() {
		delayMS = math.Max(0, now.Sub(t0).Seconds()*1000)
	}
	rssiMin, rssiAvg := reduceHopMetrics(p.HopMetrics)

	e.e2e.RecordAck(dest, now, p.PacketID, delayMS, rssiMin, rssiAvg, routeStr, hops)
	stats := e.e2e.WindowedStats(dest, now)

	e.mu.Lock()
	persist := e.persist
	e.mu.Unlock()
	if persist != nil {
		rec := E2EMetricRecord{
			PacketID:        p.PacketID,
			SourceNode:      e.cfg.Self,
			DestinationNode: dest,
			Route:           routeStr,
			Hops:            hops,
			DelayMS:         delayMS,
			Success:         true,
			WindowPDR:       stats.PDR,
			AgentID:         e.cfg.AgentID,
			At:              now,
		}
		if rssiMin != nil {
			rec.RSSIMin = *rssiMin
		}
		if rssiAvg != nil {
			rec.RSSIAvg = *rssiAvg
		}
		persist.WriteE2EMetric(rec)
	}
}

func reduceHopMetrics(hops []codec.HopMetric) (min, avg *float64) {
	var vals []float64
	for _, h := range hops {
		if h.RSSI != nil {
			vals = append(vals, *h.RSSI)
		}
	}
	if len(vals) == 0 {
		return nil, nil
	}
	lo := vals[0]
	sum := 0.0
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		sum += v
	}
	avgVal := sum / float64(len(vals))
	return &lo, &avgVal
}

// emitRERR broadcasts an RERR naming an unreachable destination (spec.md
// §4.2 "DATA send" failure path and §7 "Unknown destination MAC at send").
func (e *Engine) emitRERR(unreachable identity.NodeID, now time.Time) {
	seq := e.seqCounter.Add(1)
	payload := codec.RerrPayload{
		UnreachableNode: uint8(unreachable),
		SeqNum:          seq,
		Timestamp:       nowSeconds(now),
	}
	frame := &codec.Frame{
		Type:    codec.PacketRERR,
		SrcMAC:  e.selfMACArr(),
		DstMAC:  broadcastMACArr(),
		TTL:     uint8(e.cfg.MaxHops),
		Payload: codec.Marshal(payload),
	}
	e.Counters.rerrSent.Add(1)
	if err := e.dispatch(frame, PriorityControl); err != nil {
		e.log.Debug("rerr broadcast failed", "unreachable", unreachable, "error", err)
	}
}

func (e *Engine) handleRERR(frame *codec.Frame, now time.Time) {
	var p codec.RerrPayload
	if err := codec.Unmarshal(frame.Payload, &p); err != nil {
		e.Counters.framesDropped.Add(1)
		return
	}
	e.Counters.rerrRecv.Add(1)

	unreachable := identity.NodeID(p.UnreachableNode)
	e.table.Delete(unreachable)
	e.live.Forget(unreachable)

	e.mu.Lock()
	ctx := e.bgCtx
	e.mu.Unlock()
	go e.Discover(ctx, unreachable)
}
