package probe

import "testing"

func TestSynthetic_SampleDecaysWithDelay(t *testing.T) {
	p := NewSynthetic(SyntheticConfig{})

	near, ok := p.Sample(0)
	if !ok {
		t.Fatal("expected ok=true")
	}
	far, ok := p.Sample(100)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if far >= near {
		t.Fatalf("expected larger delay to yield weaker RSSI: near=%v far=%v", near, far)
	}
}

func TestSynthetic_SampleFloors(t *testing.T) {
	p := NewSynthetic(SyntheticConfig{FloorRSSI: -80})
	v, _ := p.Sample(100000)
	if v != -80 {
		t.Fatalf("expected floor -80, got %v", v)
	}
}

func TestSynthetic_NegativeDelayTreatedAsZero(t *testing.T) {
	p := NewSynthetic(SyntheticConfig{})
	zero, _ := p.Sample(0)
	neg, _ := p.Sample(-5)
	if zero != neg {
		t.Fatalf("expected negative delay clamped to zero: zero=%v neg=%v", zero, neg)
	}
}

func TestUnavailable_AlwaysUnknown(t *testing.T) {
	var p Unavailable
	if _, ok := p.RSSI(); ok {
		t.Fatal("expected Unavailable to never have a reading")
	}
}
