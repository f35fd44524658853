package ring

import "testing"

func TestBufferBasic(t *testing.T) {
	b := New[int](3)
	if b.Len() != 0 || b.Cap() != 3 {
		t.Fatalf("new buffer: len=%d cap=%d", b.Len(), b.Cap())
	}
	b.Push(1)
	b.Push(2)
	if got := b.Items(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Items() = %v", got)
	}
}

func TestBufferEviction(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d; want 3", b.Len())
	}
	got := b.Items()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Items() = %v; want %v", got, want)
		}
	}
}

func TestBufferClear(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("Len() after Clear = %d", b.Len())
	}
	b.Push(9)
	if got := b.Items(); len(got) != 1 || got[0] != 9 {
		t.Fatalf("Items() after Clear+Push = %v", got)
	}
}

func TestBufferFilter(t *testing.T) {
	b := New[int](5)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	b.Filter(func(v int) bool { return v%2 == 0 })
	got := b.Items()
	want := []int{2, 4}
	if len(got) != len(want) {
		t.Fatalf("Items() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Items() = %v; want %v", got, want)
		}
	}
}
