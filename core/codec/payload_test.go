package codec

import "testing"

func TestHelloPayloadRoundTrip(t *testing.T) {
	in := HelloPayload{NodeID: 4, SeqNum: 7, Timestamp: 1700000000.5, MAC: "aa:bb:cc:dd:ee:ff", AgentID: "agent-1", Type: "hello"}
	raw := Marshal(in)

	var out HelloPayload
	if err := Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestDataPayloadPathAndRouteCompatibility(t *testing.T) {
	in := DataPayload{
		PacketID: 123, Payload: "hi", Source: 4, Destination: 0,
		Path: []int{4, 1, 0}, Route: []int{4, 1, 0},
	}
	raw := Marshal(in)

	var out DataPayload
	if err := Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Path) != 3 || len(out.Route) != 3 {
		t.Fatalf("path/route not preserved: %+v", out)
	}
}

func TestUnmarshalMalformedJSONIsReported(t *testing.T) {
	var out HelloPayload
	err := Unmarshal([]byte("{not json"), &out)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestUnmarshalMissingFieldsUsesZeroValues(t *testing.T) {
	var out RREQPayload
	if err := Unmarshal([]byte(`{"origin_id":4}`), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.OriginID != 4 || out.DestID != 0 || out.HopCount != 0 {
		t.Fatalf("unexpected defaults: %+v", out)
	}
}

func TestHopMetricOptionalFields(t *testing.T) {
	raw := []byte(`{"u":4,"v":0}`)
	var hm HopMetric
	if err := Unmarshal(raw, &hm); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if hm.RSSI != nil || hm.Delay != nil || hm.PDR != nil {
		t.Fatalf("expected nil optional fields, got %+v", hm)
	}
}
