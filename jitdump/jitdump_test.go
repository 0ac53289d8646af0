package jitdump

import "testing"

func TestAddPathDedups(t *testing.T) {
	m := NewManager()
	m.AddPath("/tmp/jit-123.dump")
	m.AddPath("/tmp/jit-123.dump")
	m.AddPath("/tmp/jit-124.dump")
	if got := m.Paths(); len(got) != 2 {
		t.Fatalf("Paths() = %v, want 2 distinct entries", got)
	}
}

func TestPollIsNoop(t *testing.T) {
	m := NewManager()
	m.AddPath("/tmp/jit-123.dump")
	if n := m.Poll(); n != 0 {
		t.Errorf("Poll() = %d, want 0", n)
	}
}
