package samplestore

import (
	"testing"

	"github.com/go-prof/profconv/profileout"
	"github.com/go-prof/profconv/rssstat"
	"github.com/go-prof/profconv/stackwalk"
)

type fakeHandles map[int32]profileout.ProcessHandle

func (f fakeHandles) ProcessHandle(pid int32) (profileout.ProcessHandle, bool) {
	h, ok := f[pid]
	return h, ok
}

func TestStoreBufferIsPerPID(t *testing.T) {
	s := NewStore()
	b1 := s.Buffer(10)
	b2 := s.Buffer(10)
	if b1 != b2 {
		t.Error("Buffer should return the same instance for a repeated pid")
	}
	b3 := s.Buffer(20)
	if b3 == b1 {
		t.Error("Buffer should return distinct instances for distinct pids")
	}
}

func TestFinishResolvesSamplesAndMarkers(t *testing.T) {
	s := NewStore()
	prof := profileout.NewBuilder()
	lib := prof.AddLib(profileout.LibraryInfo{Path: "/bin/app"})
	proc := prof.NewProcess()
	thread := prof.NewThread(proc)
	counter := prof.NewCounter("rss-anon")

	stack := s.Intern([]stackwalk.Frame{{Address: 0x400}})
	buf := s.Buffer(42)
	buf.AddSample(100, thread, stack, 1, 250)
	buf.AddRssStatMarker(100, counter, rssstat.MemberAnonPages, 4096, 4096)
	otherStack := s.Intern([]stackwalk.Frame{{Address: 0x500}})
	buf.AddOtherEventMarker(150, thread, 0, otherStack, true, 1)

	handles := fakeHandles{42: proc}
	resolved := 0
	resolve := func(pid int32, f stackwalk.Frame) profileout.FrameRef {
		resolved++
		return profileout.FrameRef{Lib: lib, Address: f.Address}
	}
	s.Finish(prof, handles, []string{"sched:sched_switch"}, resolve)

	if resolved != 2 {
		t.Errorf("resolve called %d times, want 2", resolved)
	}
	p := prof.Build()
	if len(p.Sample) != 3 {
		t.Fatalf("got %d samples, want 3 (1 cpu + 1 counter + 1 other-event)", len(p.Sample))
	}
}

func TestFinishSkipsUnknownPID(t *testing.T) {
	s := NewStore()
	prof := profileout.NewBuilder()
	thread := prof.NewThread(prof.NewProcess())
	stack := s.Intern([]stackwalk.Frame{{Address: 0x400}})
	s.Buffer(99).AddSample(1, thread, stack, 1, 0)

	s.Finish(prof, fakeHandles{}, nil, func(pid int32, f stackwalk.Frame) profileout.FrameRef {
		t.Fatal("resolve should not be called for an unknown pid")
		return profileout.FrameRef{}
	})
	if len(prof.Build().Sample) != 0 {
		t.Error("want no samples emitted for an unresolvable pid")
	}
}
