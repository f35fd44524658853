package codec

import "encoding/json"

// Payload field names are normative per spec.md §6; they are the wire
// contract other AODV implementations in this mesh interoperate against.

// HelloPayload is the JSON body of a HELLO packet.
type HelloPayload struct {
	NodeID    uint8   `json:"node_id"`
	SeqNum    uint32  `json:"seq_num"`
	Timestamp float64 `json:"timestamp"`
	MAC       string  `json:"mac_address"`
	AgentID   string  `json:"agent_id"`
	Type      string  `json:"type"`
}

// RREQPayload is the JSON body of an RREQ packet. Path is additive and
// non-normative: it accumulates the node IDs traversed so far (origin
// first) so the eventual RREP can embed a full path instead of only a
// hop count. Readers that don't know the field ignore it per spec.md §6.
type RREQPayload struct {
	OriginID  uint8   `json:"origin_id"`
	DestID    uint8   `json:"dest_id"`
	RREQID    uint32  `json:"rreq_id"`
	HopCount  int     `json:"hop_count"`
	Timestamp float64 `json:"timestamp"`
	Path      []uint8 `json:"path,omitempty"`
}

// RREPPayload is the JSON body of an RREP packet. Same shape as RREQPayload;
// kept as a distinct type so callers can't accidentally cross-wire the two.
// Path is the full static path from whoever originated the RREP back to the
// RREQ origin (destination first); it is set once by the originator and
// passed through unchanged by every forwarding hop.
type RREPPayload struct {
	OriginID  uint8   `json:"origin_id"`
	DestID    uint8   `json:"dest_id"`
	RREQID    uint32  `json:"rreq_id"`
	HopCount  int     `json:"hop_count"`
	Timestamp float64 `json:"timestamp"`
	Path      []uint8 `json:"path,omitempty"`
}

// DataPayload is the JSON body of a DATA packet. Path and Route carry the
// same list for wire compatibility with the originating protocol.
type DataPayload struct {
	PacketID    int32   `json:"packet_id"`
	Payload     string  `json:"payload"`
	Source      uint8   `json:"source"`
	Destination uint8   `json:"destination"`
	Timestamp   float64 `json:"timestamp"`
	Path        []int   `json:"path"`
	Route       []int   `json:"route"`
	AgentID     string  `json:"agent_id"`
	Type        string  `json:"type"`
	// HopMetrics is populated by the destination before returning an ACK
	// (spec.md §4.2 "DATA receive"). Not set by the sender.
	HopMetrics []HopMetric `json:"hop_metrics,omitempty"`
}

// HopMetric is one observed link measurement, used both inside a DATA
// payload's HopMetrics (populated at the destination) and inside an ACK's
// HopMetrics (the full per-hop history returned to the source).
type HopMetric struct {
	U     uint8    `json:"u"`
	V     uint8    `json:"v"`
	RSSI  *float64 `json:"rssi,omitempty"`
	Delay *float64 `json:"delay,omitempty"`
	PDR   *float64 `json:"pdr,omitempty"`
}

// AckPayload is the JSON body of an ACK packet.
type AckPayload struct {
	PacketID    int32       `json:"packet_id"`
	SentTS      float64     `json:"sent_ts"`
	AckTS       float64     `json:"ack_ts"`
	Source      uint8       `json:"source"`      // == DataPayload.Destination
	Destination uint8       `json:"destination"` // == DataPayload.Source
	Route       []int       `json:"route"`
	HopMetrics  []HopMetric `json:"hop_metrics"`
	AgentID     string      `json:"agent_id"`
	Type        string      `json:"type"`
}

// RerrPayload is the JSON body of an RERR packet.
type RerrPayload struct {
	UnreachableNode uint8   `json:"unreachable_node"`
	SeqNum          uint32  `json:"seq_num"`
	Timestamp       float64 `json:"timestamp"`
}

// Marshal encodes v as the Payload of a new Frame-ready byte slice. Decode
// errors in the payload are the caller's concern; Marshal itself only fails
// on programmer error (a type json can't encode), which callers here never
// hit since all payload types above are plain encodable structs.
func Marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Every payload type above is a plain JSON-encodable struct; a
		// failure here means a field type was changed without updating
		// this comment's invariant.
		panic("codec: payload marshal: " + err.Error())
	}
	return b
}

// Unmarshal decodes a Frame's Payload into v. Malformed or truncated JSON
// is reported to the caller, which per spec.md §4.1/§7 should drop the
// frame's application handling (not the frame itself) on error.
func Unmarshal(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}
