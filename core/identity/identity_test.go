package identity

import "testing"

func TestParseMAC(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"aa:bb:cc:dd:ee:ff", false},
		{"aabbccddeeff", false},
		{"ff-ff-ff-ff-ff-ff", false},
		{"not-a-mac", true},
		{"aabbcc", true},
	}
	for _, c := range cases {
		mac, err := ParseMAC(c.in)
		if c.wantErr && err == nil {
			t.Errorf("ParseMAC(%q): expected error, got %v", c.in, mac)
		}
		if !c.wantErr && err != nil {
			t.Errorf("ParseMAC(%q): unexpected error: %v", c.in, err)
		}
	}
}

func TestBroadcastMAC(t *testing.T) {
	if !BroadcastMAC.IsBroadcast() {
		t.Fatal("BroadcastMAC.IsBroadcast() should be true")
	}
	mac, _ := ParseMAC("01:02:03:04:05:06")
	if mac.IsBroadcast() {
		t.Fatal("regular MAC should not be broadcast")
	}
}

func TestAddressMap(t *testing.T) {
	selfMAC, _ := ParseMAC("00:00:00:00:00:04")
	m := NewAddressMap(4, selfMAC)

	sinkMAC, _ := ParseMAC("00:00:00:00:00:00")
	m.Set(0, sinkMAC)

	got, err := m.MACFor(0)
	if err != nil || got != sinkMAC {
		t.Fatalf("MACFor(0) = %v, %v; want %v, nil", got, err, sinkMAC)
	}

	id, err := m.NodeFor(sinkMAC)
	if err != nil || id != 0 {
		t.Fatalf("NodeFor(sinkMAC) = %v, %v; want 0, nil", id, err)
	}

	if _, err := m.MACFor(99); err != ErrNodeNotFound {
		t.Fatalf("MACFor(99) error = %v; want ErrNodeNotFound", err)
	}

	if !m.IsSelfOrBroadcast(selfMAC) {
		t.Error("self MAC should pass IsSelfOrBroadcast")
	}
	if !m.IsSelfOrBroadcast(BroadcastMAC) {
		t.Error("broadcast MAC should pass IsSelfOrBroadcast")
	}
	if m.IsSelfOrBroadcast(sinkMAC) {
		t.Error("unrelated MAC should not pass IsSelfOrBroadcast")
	}
}

func TestAddressMapOverwrite(t *testing.T) {
	selfMAC, _ := ParseMAC("00:00:00:00:00:01")
	m := NewAddressMap(1, selfMAC)

	macA, _ := ParseMAC("00:00:00:00:00:0a")
	macB, _ := ParseMAC("00:00:00:00:00:0b")

	m.Set(2, macA)
	m.Set(2, macB)

	if _, err := m.NodeFor(macA); err != ErrNodeNotFound {
		t.Fatal("stale MAC binding should have been removed")
	}
	id, err := m.NodeFor(macB)
	if err != nil || id != 2 {
		t.Fatalf("NodeFor(macB) = %v, %v; want 2, nil", id, err)
	}
}
