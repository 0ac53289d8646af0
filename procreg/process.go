// Package procreg implements the process/thread registry (spec §4.7):
// creation on demand, pid/tid lookup, and the reuse rules that let a
// forked or exec'd entity rebind a recently-ended one of the same
// name (spec §4.7.a).
//
// Grounded on the teacher's perfsession.Session/PIDInfo
// (perfsession/session.go): that type keys a map by pid, creates
// entries on demand via ensurePID, and carries a fork operation that
// clones per-process state onto a new pid. This package generalizes
// that shape to full process/thread lifecycle with a recently-ended
// pool for reuse, which the teacher's 2015-era session tracking never
// needed (it only ever deletes on thread-exit).
package procreg

import (
	"github.com/go-prof/profconv/ctxswitch"
	"github.com/go-prof/profconv/jitdump"
	"github.com/go-prof/profconv/profileout"
	"github.com/go-prof/profconv/stackwalk"
	"github.com/go-prof/profconv/unwind"
)

// RssPrior holds the last-seen value for each RSS-stat member, so the
// dispatcher can turn absolute rss_stat payloads into deltas (spec §3
// Process attribute, "4-member prior-RSS struct").
type RssPrior struct {
	FilePages  int64
	AnonPages  int64
	ShmemPages int64
	SwapEnts   int64
}

// ModuleMapping is one AVMA range a process has mapped to a library,
// recorded by the dispatcher whenever the object-file loader succeeds
// (spec §4.4 step 9/10), so that an assembled stack address can later
// be attributed back to the library that owns it.
type ModuleMapping struct {
	Start, End uint64
	Lib        profileout.LibHandle
}

// Process is the per-process registry entry (spec §3 Process data
// model).
type Process struct {
	PID       int32
	Name      string
	StartTime uint64
	HasStart  bool

	Unwinder unwind.Unwinder
	Threads  *ThreadSet
	JitDump  *jitdump.Manager
	Modules  []ModuleMapping

	Prior RssPrior

	ProfileHandle profileout.ProcessHandle

	memoryCounter    profileout.CounterHandle
	hasMemoryCounter bool
}

// AddModule records a successfully loaded mapping for later address
// attribution (LibraryFor).
func (p *Process) AddModule(start, end uint64, lib profileout.LibHandle) {
	p.Modules = append(p.Modules, ModuleMapping{Start: start, End: end, Lib: lib})
}

// LibraryFor returns the library whose AVMA range contains addr, if
// any. Mappings are searched most-recently-added first, so a library
// remapped over stale bytes shadows the earlier entry.
func (p *Process) LibraryFor(addr uint64) (profileout.LibHandle, bool) {
	for i := len(p.Modules) - 1; i >= 0; i-- {
		m := p.Modules[i]
		if addr >= m.Start && addr < m.End {
			return m.Lib, true
		}
	}
	return 0, false
}

// NewProcess creates a process entry with an empty thread set.
func NewProcess(pid int32) *Process {
	return &Process{PID: pid, Threads: newThreadSet()}
}

// MemoryCounter lazily creates and returns this process's
// memory-delta counter handle via newCounter (spec §3, "lazily-created
// memory-delta counter handle").
func (p *Process) MemoryCounter(newCounter func(name string) profileout.CounterHandle) profileout.CounterHandle {
	if !p.hasMemoryCounter {
		p.memoryCounter = newCounter("memory")
		p.hasMemoryCounter = true
	}
	return p.memoryCounter
}

// Thread is the per-thread registry entry (spec §3 Thread data
// model).
type Thread struct {
	TID       int32
	Name      string
	StartTime uint64
	HasStart  bool
	EndTime   uint64
	HasEnd    bool

	ProfileHandle     profileout.ThreadHandle
	LastSampleTime    uint64
	HasLastSampleTime bool
	CtxSwitch         ctxswitch.State

	SavedOffCPUStack    []stackwalk.Frame
	HasSavedOffCPUStack bool
}

// ThreadSet holds the live and recently-ended threads of one process.
type ThreadSet struct {
	live  map[int32]*Thread
	ended map[string]*Thread // keyed by name, most-recently-ended wins
}

func newThreadSet() *ThreadSet {
	return &ThreadSet{live: make(map[int32]*Thread), ended: make(map[string]*Thread)}
}

func (ts *ThreadSet) Get(tid int32) (*Thread, bool) {
	t, ok := ts.live[tid]
	return t, ok
}

func (ts *ThreadSet) Put(t *Thread) {
	ts.live[t.TID] = t
}

func (ts *ThreadSet) Delete(tid int32) {
	delete(ts.live, tid)
}

func (ts *ThreadSet) All() map[int32]*Thread {
	return ts.live
}

// Retire moves a thread out of the live set. If keepForReuse is set
// (thread-merging enabled), it becomes eligible for rebinding under
// the same name (spec §4.7.a, "thread-end of a non-main thread...if
// thread-merging is enabled, kept for future reuse").
func (ts *ThreadSet) Retire(tid int32, keepForReuse bool) {
	t, ok := ts.live[tid]
	if !ok {
		return
	}
	delete(ts.live, tid)
	if keepForReuse && t.Name != "" {
		ts.ended[t.Name] = t
	}
}

// TryReuse looks for a recently-ended thread with the given name and,
// if found, removes it from the ended pool and returns it for
// rebinding under a new tid (spec §4.7.a).
func (ts *ThreadSet) TryReuse(name string) (*Thread, bool) {
	if name == "" {
		return nil, false
	}
	t, ok := ts.ended[name]
	if ok {
		delete(ts.ended, name)
	}
	return t, ok
}
