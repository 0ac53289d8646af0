// Package profileout backs the external "profile" collaborator (spec
// §6.1) with google/pprof's profile.Profile, the same backing store
// continuous-profiling agents in the wild build on top of (see
// dispatchrun/wzprof and marselester/diy-parca-agent for the
// Location/Mapping/Sample wiring this package follows).
//
// Binaries become profile.Mapping entries, resolved stack frames
// become profile.Location entries addressed by (pid, address), and
// thread/process attribution rides along as per-sample Label/NumLabel
// pairs — pprof's own mechanism for tagging samples, not a bespoke
// extension.
package profileout

import (
	"time"

	"github.com/google/pprof/profile"
)

// LibHandle identifies a registered binary.
type LibHandle uint64

// ProcessHandle and ThreadHandle identify a process/thread for naming
// and sample attribution.
type ProcessHandle uint64
type ThreadHandle uint64

// CounterHandle identifies a named counter stream (e.g. RSS deltas).
type CounterHandle uint64

// LibraryInfo is what the object-file loader knows about a binary
// once parsed (spec §4.4 step 10).
type LibraryInfo struct {
	Path    string
	DebugID string
	CodeID  string

	// JITLabel, when non-empty, marks this binary as a JIT-dumped
	// mapping and replaces Path as the profile.Mapping's displayed
	// name (spec §4.4 step 11: "labelled with the first text symbol's
	// name and routed through the JIT category manager"). A
	// JIT-dumped .so's on-disk path is a meaningless temp name, so the
	// category:symbol label is what's worth keeping in the profile.
	JITLabel string
}

type processInfo struct {
	name      string
	startTime time.Time
}

type threadInfo struct {
	process   ProcessHandle
	name      string
	startTime time.Time
}

type counterInfo struct {
	name string
}

// Builder accumulates a pprof profile.Profile across a conversion
// session.
type Builder struct {
	prof *profile.Profile

	processes map[ProcessHandle]*processInfo
	threads   map[ThreadHandle]*threadInfo
	counters  map[CounterHandle]*counterInfo

	nextProcess ProcessHandle
	nextThread  ThreadHandle
	nextCounter CounterHandle

	locationByKey map[locationKey]*profile.Location
	functionByKey map[functionKey]*profile.Function
}

type locationKey struct {
	lib  LibHandle
	addr uint64
}

type functionKey struct {
	lib  LibHandle
	name string
}

// NewBuilder creates an empty Builder with the standard "samples"
// count sample type (spec §6.1, conventionally index 0, unit
// "count").
func NewBuilder() *Builder {
	return &Builder{
		prof: &profile.Profile{
			SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		},
		processes:     make(map[ProcessHandle]*processInfo),
		threads:       make(map[ThreadHandle]*threadInfo),
		counters:      make(map[CounterHandle]*counterInfo),
		locationByKey: make(map[locationKey]*profile.Location),
		functionByKey: make(map[functionKey]*profile.Function),
	}
}

// AddLib registers a binary and returns a stable handle (spec §6.1
// add_lib).
func (b *Builder) AddLib(info LibraryInfo) LibHandle {
	id := uint64(len(b.prof.Mapping) + 1)
	file := info.Path
	if info.JITLabel != "" {
		file = info.JITLabel
	}
	b.prof.Mapping = append(b.prof.Mapping, &profile.Mapping{
		ID:      id,
		File:    file,
		BuildID: info.DebugID,
	})
	return LibHandle(id)
}

func (b *Builder) mapping(h LibHandle) *profile.Mapping {
	if h == 0 || int(h) > len(b.prof.Mapping) {
		return nil
	}
	return b.prof.Mapping[h-1]
}

// AddKernelLibMapping installs a process-independent kernel mapping
// range on a previously registered library (spec §6.1
// add_kernel_lib_mapping, §4.8).
func (b *Builder) AddKernelLibMapping(h LibHandle, start, end, offset uint64) {
	if m := b.mapping(h); m != nil {
		m.Start = start
		m.Limit = end
		m.Offset = offset
	}
}

// RegisterMapping installs the AVMA range and file offset for a
// regular (non-kernel) per-process module registration, mirroring
// AddKernelLibMapping's field assignment for the common case of one
// mapping per library (spec §4.4 step 11).
func (b *Builder) RegisterMapping(h LibHandle, start, end, offset uint64) {
	b.AddKernelLibMapping(h, start, end, offset)
}

// NewProcess allocates a process handle (spec §6.1, "handle
// allocation... externalized").
func (b *Builder) NewProcess() ProcessHandle {
	b.nextProcess++
	b.processes[b.nextProcess] = &processInfo{}
	return b.nextProcess
}

// NewThread allocates a thread handle belonging to proc.
func (b *Builder) NewThread(proc ProcessHandle) ThreadHandle {
	b.nextThread++
	b.threads[b.nextThread] = &threadInfo{process: proc}
	return b.nextThread
}

// NewCounter allocates a counter handle for a named counter stream.
func (b *Builder) NewCounter(name string) CounterHandle {
	b.nextCounter++
	b.counters[b.nextCounter] = &counterInfo{name: name}
	return b.nextCounter
}

func (b *Builder) SetProcessName(h ProcessHandle, name string) {
	if p, ok := b.processes[h]; ok {
		p.name = name
	}
}

func (b *Builder) SetThreadName(h ThreadHandle, name string) {
	if t, ok := b.threads[h]; ok {
		t.name = name
	}
}

func (b *Builder) SetProcessStartTime(h ProcessHandle, t time.Time) {
	if p, ok := b.processes[h]; ok {
		p.startTime = t
	}
}

func (b *Builder) SetThreadStartTime(h ThreadHandle, t time.Time) {
	if th, ok := b.threads[h]; ok {
		th.startTime = t
	}
}

// SetProduct records the profiled product's name as a profile
// comment, pprof's own free-form annotation channel.
func (b *Builder) SetProduct(name string) {
	b.prof.Comments = append(b.prof.Comments, "product: "+name)
}

// FrameRef identifies one resolved stack frame to attach to a sample:
// the library it falls in (zero if unknown/kernel-less), the absolute
// address, and the symbol name if already resolved.
type FrameRef struct {
	Lib     LibHandle
	Address uint64
	Name    string
}

// AddSample appends one stack-trace sample, value in the "samples"
// sample type slot, attributed to proc/thread via Label/NumLabel (spec
// §6.4: "samples with stack handles resolved to frame sequences").
// frames is ordered callee-most first, matching stackwalk's output;
// pprof wants the same order. cpuDeltaNS is the on-CPU time accrued
// since the thread's last sample (spec §4.1.a step 4/5), carried as a
// NumLabel since pprof samples have no dedicated delta field.
func (b *Builder) AddSample(proc ProcessHandle, thread ThreadHandle, timestamp uint64, weight int64, cpuDeltaNS uint64, frames []FrameRef) {
	locs := make([]*profile.Location, 0, len(frames))
	for _, f := range frames {
		locs = append(locs, b.locationFor(f))
	}
	s := &profile.Sample{
		Value:    []int64{weight},
		Location: locs,
		Label:    map[string][]string{},
		NumLabel: map[string][]int64{
			"timestamp":    {int64(timestamp)},
			"cpu_delta_ns": {int64(cpuDeltaNS)},
		},
	}
	if p, ok := b.processes[proc]; ok && p.name != "" {
		s.Label["process"] = []string{p.name}
	}
	if t, ok := b.threads[thread]; ok && t.name != "" {
		s.Label["thread"] = []string{t.name}
	}
	b.prof.Sample = append(b.prof.Sample, s)
}

// AddEventSample appends one sample from a non-primary tracepoint
// (spec §4.1 OtherEventSample), labelled with the concrete event name
// so distinct tracepoints remain distinguishable once merged into one
// profile.
func (b *Builder) AddEventSample(proc ProcessHandle, thread ThreadHandle, timestamp uint64, weight int64, eventName string, frames []FrameRef) {
	locs := make([]*profile.Location, 0, len(frames))
	for _, f := range frames {
		locs = append(locs, b.locationFor(f))
	}
	s := &profile.Sample{
		Value:    []int64{weight},
		Location: locs,
		Label:    map[string][]string{"event": {eventName}},
		NumLabel: map[string][]int64{"timestamp": {int64(timestamp)}},
	}
	if p, ok := b.processes[proc]; ok && p.name != "" {
		s.Label["process"] = []string{p.name}
	}
	if t, ok := b.threads[thread]; ok && t.name != "" {
		s.Label["thread"] = []string{t.name}
	}
	b.prof.Sample = append(b.prof.Sample, s)
}

// AddCounterSample appends one counter datum (spec §6.1
// add_counter_sample). The datum is a stack-less sample whose single
// "samples" value slot holds value; the counter's name rides in a
// "counter" Label and timestamp/weight in NumLabels, since pprof has
// no native multi-series counter concept.
func (b *Builder) AddCounterSample(counter CounterHandle, timestamp uint64, value int64, weight int64) {
	name := "counter"
	if c, ok := b.counters[counter]; ok {
		name = c.name
	}
	s := &profile.Sample{
		Value: []int64{value},
		Label: map[string][]string{"counter": {name}},
		NumLabel: map[string][]int64{
			"timestamp": {int64(timestamp)},
			"weight":    {weight},
		},
	}
	b.prof.Sample = append(b.prof.Sample, s)
}

func (b *Builder) locationFor(f FrameRef) *profile.Location {
	key := locationKey{lib: f.Lib, addr: f.Address}
	if loc, ok := b.locationByKey[key]; ok {
		return loc
	}
	loc := &profile.Location{
		ID:      uint64(len(b.prof.Location) + 1),
		Address: f.Address,
		Mapping: b.mapping(f.Lib),
	}
	if f.Name != "" {
		loc.Line = []profile.Line{{Function: b.functionFor(f.Lib, f.Name)}}
	}
	b.prof.Location = append(b.prof.Location, loc)
	b.locationByKey[key] = loc
	return loc
}

func (b *Builder) functionFor(lib LibHandle, name string) *profile.Function {
	key := functionKey{lib: lib, name: name}
	if fn, ok := b.functionByKey[key]; ok {
		return fn
	}
	fn := &profile.Function{
		ID:   uint64(len(b.prof.Function) + 1),
		Name: name,
	}
	b.prof.Function = append(b.prof.Function, fn)
	b.functionByKey[key] = fn
	return fn
}

// Build finalizes and returns the accumulated profile.
func (b *Builder) Build() *profile.Profile {
	return b.prof
}
