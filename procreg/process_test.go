package procreg

import (
	"testing"

	"github.com/go-prof/profconv/profileout"
)

func TestLibraryForPrefersMostRecentOverlap(t *testing.T) {
	p := NewProcess(1)
	p.AddModule(0x1000, 0x2000, 7)
	p.AddModule(0x1800, 0x2800, 9) // remaps part of the first region

	lib, ok := p.LibraryFor(0x1900)
	if !ok || lib != 9 {
		t.Fatalf("LibraryFor(0x1900) = (%d, %v), want (9, true)", lib, ok)
	}
	lib, ok = p.LibraryFor(0x1200)
	if !ok || lib != 7 {
		t.Fatalf("LibraryFor(0x1200) = (%d, %v), want (7, true)", lib, ok)
	}
	if _, ok := p.LibraryFor(0x5000); ok {
		t.Error("LibraryFor outside any mapping should report false")
	}
}

func TestMemoryCounterLazilyCreatedOnce(t *testing.T) {
	p := NewProcess(1)
	calls := 0
	newCounter := func(name string) profileout.CounterHandle {
		calls++
		return profileout.CounterHandle(42)
	}
	h1 := p.MemoryCounter(newCounter)
	h2 := p.MemoryCounter(newCounter)
	if calls != 1 {
		t.Errorf("newCounter called %d times, want 1", calls)
	}
	if h1 != h2 || h1 != 42 {
		t.Errorf("MemoryCounter = (%d, %d), want both 42", h1, h2)
	}
}
