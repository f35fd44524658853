package codec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := &Frame{
		Type:    PacketData,
		SrcMAC:  [6]byte{1, 2, 3, 4, 5, 6},
		DstMAC:  [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		TTL:     9,
		Payload: []byte(`{"packet_id":42}`),
	}

	encoded := f.Encode()
	if len(encoded) != HeaderSize+len(f.Payload) {
		t.Fatalf("encoded length = %d; want %d", len(encoded), HeaderSize+len(f.Payload))
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != f.Type || decoded.SrcMAC != f.SrcMAC || decoded.DstMAC != f.DstMAC || decoded.TTL != f.TTL {
		t.Fatalf("decoded header mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Payload, f.Payload) {
		t.Fatalf("decoded payload = %q; want %q", decoded.Payload, f.Payload)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	f := &Frame{Type: PacketHello, TTL: InitialTTL}
	decoded, err := Decode(f.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Payload) != 0 {
		t.Fatalf("Payload = %v; want empty", decoded.Payload)
	}
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	if err != ErrFrameTooShort {
		t.Fatalf("err = %v; want ErrFrameTooShort", err)
	}
}

func TestDecodeTolerantOfBadUTF8Payload(t *testing.T) {
	// Decode never validates or rejects the payload; malformed content is
	// a concern for the caller (dispatch layer), not the frame codec.
	f := &Frame{Type: PacketData, TTL: 5, Payload: []byte{0xff, 0xfe, 0x00}}
	decoded, err := Decode(f.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.Payload, f.Payload) {
		t.Fatalf("payload mismatch: %v vs %v", decoded.Payload, f.Payload)
	}
}

func TestDecrementTTL(t *testing.T) {
	f := &Frame{TTL: 1}
	if got := f.DecrementTTL(); got != 0 {
		t.Fatalf("DecrementTTL() = %d; want 0", got)
	}
	if got := f.DecrementTTL(); got != 0 {
		t.Fatalf("DecrementTTL() at zero = %d; want saturate at 0", got)
	}
}

func TestClone(t *testing.T) {
	f := &Frame{Type: PacketACK, TTL: 3, Payload: []byte("abc")}
	clone := f.Clone()
	clone.Payload[0] = 'z'
	if f.Payload[0] == 'z' {
		t.Fatal("Clone should deep-copy payload")
	}
}

func TestPacketTypeString(t *testing.T) {
	cases := map[PacketType]string{
		PacketHello: "HELLO",
		PacketRREQ:  "RREQ",
		PacketRREP:  "RREP",
		PacketData:  "DATA",
		PacketRERR:  "RERR",
		PacketACK:   "ACK",
		PacketType(99): "UNKNOWN",
	}
	for pt, want := range cases {
		if got := pt.String(); got != want {
			t.Errorf("PacketType(%d).String() = %q; want %q", pt, got, want)
		}
	}
}
