package profileout

import "testing"

func TestAddLibAndMapping(t *testing.T) {
	b := NewBuilder()
	h := b.AddLib(LibraryInfo{Path: "/lib/libc.so.6", DebugID: "abcd"})
	b.RegisterMapping(h, 0x1000, 0x2000, 0)

	m := b.mapping(h)
	if m == nil {
		t.Fatal("mapping not found")
	}
	if m.File != "/lib/libc.so.6" || m.Start != 0x1000 || m.Limit != 0x2000 {
		t.Errorf("mapping = %+v", m)
	}
}

func TestAddSampleDedupsLocations(t *testing.T) {
	b := NewBuilder()
	lib := b.AddLib(LibraryInfo{Path: "a.so"})
	proc := b.NewProcess()
	thread := b.NewThread(proc)
	b.SetProcessName(proc, "myapp")
	b.SetThreadName(thread, "main")

	frames := []FrameRef{{Lib: lib, Address: 0x100, Name: "foo"}}
	b.AddSample(proc, thread, 1000, 1, 50, frames)
	b.AddSample(proc, thread, 2000, 1, 75, frames)

	prof := b.Build()
	if len(prof.Sample) != 2 {
		t.Fatalf("len(Sample) = %d, want 2", len(prof.Sample))
	}
	if len(prof.Location) != 1 {
		t.Errorf("len(Location) = %d, want 1 (dedup by lib+addr)", len(prof.Location))
	}
	if prof.Sample[0].Label["process"][0] != "myapp" {
		t.Errorf("process label = %v", prof.Sample[0].Label["process"])
	}
	if prof.Sample[0].NumLabel["timestamp"][0] != 1000 {
		t.Errorf("timestamp label = %v", prof.Sample[0].NumLabel["timestamp"])
	}
}

func TestAddCounterSample(t *testing.T) {
	b := NewBuilder()
	c := b.NewCounter("rss-anon")
	b.AddCounterSample(c, 500, 4096, 0)

	prof := b.Build()
	if len(prof.Sample) != 1 {
		t.Fatalf("len(Sample) = %d, want 1", len(prof.Sample))
	}
	if prof.Sample[0].Value[0] != 4096 {
		t.Errorf("Value = %v, want [4096]", prof.Sample[0].Value)
	}
	if prof.Sample[0].Label["counter"][0] != "rss-anon" {
		t.Errorf("counter label = %v", prof.Sample[0].Label["counter"])
	}
}
