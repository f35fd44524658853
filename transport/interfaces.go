// Package transport provides the transport interface shared by every
// physical layer a mesh node can send/receive frames over (spec.md §4.1
// "Transport").
package transport

import (
	"context"

	"github.com/meshrelay/aodv-psoga/core/codec"
)

// Transport is the base interface for all transport implementations.
type Transport interface {
	// Start begins the transport's connection and message handling.
	// The provided context controls the transport's lifetime.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the transport.
	Stop() error
	// IsConnected returns true if the transport is currently connected.
	IsConnected() bool
	// SetFrameHandler sets the callback for incoming frames.
	SetFrameHandler(fn FrameHandler)
	// SetStateHandler sets the callback for transport state changes.
	SetStateHandler(fn StateHandler)
	// SendFrame encodes and transmits a frame over the transport.
	SendFrame(frame *codec.Frame) error
}

// FrameHandler is called when a frame is received.
type FrameHandler func(frame *codec.Frame, source PacketSource)

// StateHandler is called when the transport state changes.
type StateHandler func(transport Transport, event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the transport connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the transport disconnects.
	EventDisconnected
	// EventReconnecting is fired when the transport is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// PacketSource indicates where a packet originated from.
type PacketSource int

const (
	// PacketSourceUDP indicates the frame came from the UDP broadcast
	// transport, the primary physical layer (spec.md §4.1).
	PacketSourceUDP PacketSource = iota
	// PacketSourceMQTT indicates the frame came from the MQTT uplink bridge.
	PacketSourceMQTT
	// PacketSourceSerial indicates the frame came from a serial connection.
	PacketSourceSerial
	// PacketSourceLocal indicates the frame was originated by this node (TX).
	PacketSourceLocal
)

func (s PacketSource) String() string {
	switch s {
	case PacketSourceUDP:
		return "udp"
	case PacketSourceMQTT:
		return "mqtt"
	case PacketSourceSerial:
		return "serial"
	case PacketSourceLocal:
		return "local"
	default:
		return "unknown"
	}
}
