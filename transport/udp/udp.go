// Package udp provides the primary link-local broadcast transport
// (spec.md §2 item 2, §4.1).
//
// A single non-blocking UDP socket bound to 0.0.0.0:UDP_PORT, broadcast
// and address-reuse enabled, is shared by one sender and one receiver
// task. The receiver uses a short poll timeout so shutdown is bounded
// (spec.md §5 "the socket's poll timeout bounds shutdown latency"),
// following the same Start/Stop/IsConnected lifecycle shape the teacher's
// serial and MQTT transports use.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/meshrelay/aodv-psoga/core/codec"
	"github.com/meshrelay/aodv-psoga/transport"
	"golang.org/x/sys/unix"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultPort is the well-known mesh UDP port (spec.md §6 UDP_PORT).
	DefaultPort = 5000

	// DefaultReadTimeout bounds each receive call so the read loop can
	// notice context cancellation promptly (spec.md §4.1 "~100 ms").
	DefaultReadTimeout = 100 * time.Millisecond

	// broadcastAddr is the destination every send targets; logical
	// destination filtering happens at the receiver via dst_mac
	// (spec.md §4.1).
	broadcastAddr = "255.255.255.255"

	maxDatagramSize = 2048
)

// setReuseAndBroadcast enables SO_REUSEADDR and SO_BROADCAST on the
// listening socket before bind, matching spec.md §4.1 "enables broadcast
// and address reuse".
func setReuseAndBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			sockErr = e
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Config holds the configuration for the UDP broadcast transport.
type Config struct {
	// Port is the UDP port to bind and broadcast to. Default: 5000.
	Port int
	// ReadTimeout bounds each receive call. Default: 100ms.
	ReadTimeout time.Duration
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over a broadcast UDP socket.
type Transport struct {
	cfg  Config
	conn *net.UDPConn
	log  *slog.Logger

	mu           sync.RWMutex
	connected    bool
	cancel       context.CancelFunc
	done         chan struct{}
	frameHandler transport.FrameHandler
	stateHandler transport.StateHandler
}

// New creates a new UDP broadcast transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("udp"),
	}
}

// Start binds the broadcast socket and begins the receive loop.
func (t *Transport) Start(ctx context.Context) error {
	lc := net.ListenConfig{Control: setReuseAndBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", t.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding udp socket: %w", err)
	}
	conn := pc.(*net.UDPConn)

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.done = make(chan struct{})
	handler := t.stateHandler
	t.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go t.readLoop(readCtx)

	t.log.Info("bound udp broadcast socket", "port", t.cfg.Port)

	if handler != nil {
		handler(t, transport.EventConnected)
	}
	return nil
}

// Stop closes the socket and waits for the receive loop to exit.
func (t *Transport) Stop() error {
	t.mu.Lock()
	handler := t.stateHandler
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	t.connected = false
	conn := t.conn
	t.conn = nil
	done := t.done
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if done != nil {
		<-done
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
	return err
}

// IsConnected returns true if the socket is bound.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetFrameHandler sets the callback for incoming frames.
func (t *Transport) SetFrameHandler(fn transport.FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// SendFrame broadcasts a frame to 255.255.255.255:Port. Sends are
// best-effort and non-blocking; the logical destination is carried in the
// frame's dst_mac field, not the UDP destination address (spec.md §4.1).
func (t *Transport) SendFrame(frame *codec.Frame) error {
	t.mu.RLock()
	conn := t.conn
	connected := t.connected
	t.mu.RUnlock()

	if !connected || conn == nil {
		return errors.New("not connected")
	}

	dst := &net.UDPAddr{IP: net.ParseIP(broadcastAddr), Port: t.cfg.Port}
	_, err := conn.WriteToUDP(frame.Encode(), dst)
	if err != nil {
		return fmt.Errorf("sending udp broadcast: %w", err)
	}
	return nil
}

// readLoop polls the socket with a short timeout so context cancellation
// is noticed promptly, decoding and dispatching every well-formed frame.
func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.mu.RLock()
		conn := t.conn
		t.mu.RUnlock()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout)); err != nil {
			t.log.Error("failed to set read deadline", "error", err)
			return
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.log.Debug("udp read error", "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		frame, err := codec.Decode(buf[:n])
		if err != nil {
			t.log.Debug("dropping short udp datagram", "error", err)
			continue
		}

		t.mu.RLock()
		handler := t.frameHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(frame, transport.PacketSourceUDP)
		}
	}
}
