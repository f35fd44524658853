package serial

import (
	"sync"
	"testing"

	"github.com/meshrelay/aodv-psoga/core/codec"
	"github.com/meshrelay/aodv-psoga/transport"
)

func makeTestFrame() *codec.Frame {
	return &codec.Frame{
		Type:    codec.PacketHello,
		SrcMAC:  [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		DstMAC:  [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		TTL:     codec.InitialTTL,
		Payload: []byte{0x01, 0x02, 0x03, 0x04},
	}
}

// bridgeFrame wraps a wire frame in an RS232 bridge frame.
func bridgeFrame(t *testing.T, f *codec.Frame) []byte {
	t.Helper()
	data := f.Encode()
	bf, err := codec.EncodeRS232Frame(data)
	if err != nil {
		t.Fatalf("failed to encode RS232 frame: %v", err)
	}
	return bf
}

func TestProcessFrames_SingleFrame(t *testing.T) {
	f := makeTestFrame()
	raw := bridgeFrame(t, f)

	var received []*codec.Frame
	var mu sync.Mutex

	tr := &Transport{}
	tr.frameHandler = func(got *codec.Frame, source transport.PacketSource) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, got)
		if source != transport.PacketSourceSerial {
			t.Errorf("expected PacketSourceSerial, got %v", source)
		}
	}

	remaining := tr.processFrames(raw)
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(received))
	}
	if received[0].Type != f.Type {
		t.Errorf("type mismatch: got %v, want %v", received[0].Type, f.Type)
	}
}

func TestProcessFrames_MultipleFrames(t *testing.T) {
	f1 := makeTestFrame()
	f2 := makeTestFrame()
	f2.Type = codec.PacketACK

	raw1 := bridgeFrame(t, f1)
	raw2 := bridgeFrame(t, f2)
	combined := append(raw1, raw2...)

	var received []*codec.Frame
	var mu sync.Mutex

	tr := &Transport{}
	tr.frameHandler = func(got *codec.Frame, _ transport.PacketSource) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, got)
	}

	remaining := tr.processFrames(combined)
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(received))
	}
	if received[0].Type != f1.Type || received[1].Type != f2.Type {
		t.Errorf("type mismatch: got %v, %v", received[0].Type, received[1].Type)
	}
}

func TestProcessFrames_IncompleteFrame(t *testing.T) {
	f := makeTestFrame()
	raw := bridgeFrame(t, f)
	partial := raw[:len(raw)-2]

	var received []*codec.Frame

	tr := &Transport{}
	tr.frameHandler = func(got *codec.Frame, _ transport.PacketSource) {
		received = append(received, got)
	}

	remaining := tr.processFrames(partial)
	if len(received) != 0 {
		t.Errorf("expected 0 frames from incomplete data, got %d", len(received))
	}
	if len(remaining) != len(partial) {
		t.Errorf("expected all bytes returned as remaining, got %d vs %d", len(remaining), len(partial))
	}
}

func TestProcessFrames_IncrementalAssembly(t *testing.T) {
	f := makeTestFrame()
	raw := bridgeFrame(t, f)

	var received []*codec.Frame

	tr := &Transport{}
	tr.frameHandler = func(got *codec.Frame, _ transport.PacketSource) {
		received = append(received, got)
	}

	var buf []byte
	for _, b := range raw {
		buf = append(buf, b)
		buf = tr.processFrames(buf)
	}

	if len(received) != 1 {
		t.Fatalf("expected 1 frame after incremental assembly, got %d", len(received))
	}
	if len(buf) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(buf))
	}
}

func TestProcessFrames_GarbageBeforeFrame(t *testing.T) {
	f := makeTestFrame()
	raw := bridgeFrame(t, f)

	garbage := []byte{0x00, 0x01, 0x02, 0xFF}
	data := append(garbage, raw...)

	var received []*codec.Frame

	tr := &Transport{}
	tr.frameHandler = func(got *codec.Frame, _ transport.PacketSource) {
		received = append(received, got)
	}

	remaining := tr.processFrames(data)

	if len(received) != 1 {
		t.Fatalf("expected 1 frame after skipping garbage, got %d", len(received))
	}
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}
}

func TestProcessFrames_NoHandler(t *testing.T) {
	f := makeTestFrame()
	raw := bridgeFrame(t, f)

	tr := &Transport{}
	// No handler set — should not panic.

	remaining := tr.processFrames(raw)
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}
}

func TestFindMagic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{name: "magic at start", data: []byte{0xC0, 0x3E, 0x05}, want: 0},
		{name: "magic in middle", data: []byte{0x00, 0x01, 0xC0, 0x3E, 0x05}, want: 2},
		{name: "no magic", data: []byte{0x00, 0x01, 0x02, 0x03}, want: -1},
		{name: "partial magic at end", data: []byte{0x00, 0xC0}, want: -1},
		{name: "empty", data: []byte{}, want: -1},
		{name: "just magic", data: []byte{0xC0, 0x3E}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findMagic(tt.data)
			if got != tt.want {
				t.Errorf("findMagic() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSendFrame_NotConnected(t *testing.T) {
	tr := New(Config{Port: "/dev/null", BaudRate: 115200})

	f := makeTestFrame()
	err := tr.SendFrame(f)
	if err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestNew_Defaults(t *testing.T) {
	tr := New(Config{Port: "/dev/ttyUSB0"})
	if tr.cfg.BaudRate != DefaultBaudRate {
		t.Errorf("expected default baud rate %d, got %d", DefaultBaudRate, tr.cfg.BaudRate)
	}
	if tr.log == nil {
		t.Error("expected logger to be set")
	}
}
