// Package dispatcher implements the record dispatcher (spec §4.1):
// the top-level core that receives typed records, resolves owning
// processes/threads on demand, and routes each record kind to the
// right collaborator (stack assembler, context-switch tracker,
// object-file loader, process registry, sample store).
package dispatcher

import (
	"encoding/binary"
	"time"

	"github.com/google/pprof/profile"

	"github.com/go-prof/profconv/ctxswitch"
	"github.com/go-prof/profconv/diag"
	"github.com/go-prof/profconv/dsokey"
	"github.com/go-prof/profconv/jitcat"
	"github.com/go-prof/profconv/jitdump"
	"github.com/go-prof/profconv/kernelmod"
	"github.com/go-prof/profconv/objfile"
	"github.com/go-prof/profconv/pecorrelate"
	"github.com/go-prof/profconv/procreg"
	"github.com/go-prof/profconv/profileout"
	"github.com/go-prof/profconv/samplestore"
	"github.com/go-prof/profconv/stackwalk"
	"github.com/go-prof/profconv/timestamp"
	"github.com/go-prof/profconv/unwind"
)

// recorderStubName is the thread name perf synthesizes for the exec
// transition itself; a CommOrExec naming a thread this is never
// treated as the program's real name (SPEC_FULL §C.2).
const recorderStubName = "perf-exec"

// Dispatcher is the single-threaded, cooperative core (spec §5): one
// instance consumes one timestamp-ordered record stream and owns the
// profile, process registry and sample store for the session.
type Dispatcher struct {
	Registry     *procreg.Registry
	Profile      *profileout.Builder
	Store        *samplestore.Store
	Assembler    *stackwalk.Assembler
	CtxTracker   *ctxswitch.Tracker
	ObjLoader    *objfile.Loader
	KernelLoader *kernelmod.Loader
	PECorrelator *pecorrelate.Table
	JitCategory  *jitcat.Manager
	BuildIDs     dsokey.Table

	// EventNames resolves an OtherEventSample's attr_index to a
	// tracepoint name at Finish time (SPEC_FULL §C.1).
	EventNames []string

	Diag diag.Sink

	// ByteOrder decodes tracepoint payloads (RssStat and others) that
	// carry the stream's native endianness (spec §4.1 RssStat, "using
	// the stream's endianness"). Defaults to binary.LittleEndian, the
	// overwhelming majority of recorded hosts.
	ByteOrder binary.ByteOrder

	// ThreadMergingEnabled controls whether a non-main thread exit
	// keeps the thread eligible for reuse (spec §4.7.a).
	ThreadMergingEnabled bool

	// OffCPUSampleWeight is the per-sample weight used when emitting
	// synthetic off-CPU samples: 1 when sampling is time-based, 0 when
	// event-based (spec §4.3.b). Defaults to 1.
	OffCPUSampleWeight int32

	// NewUnwinder constructs a fresh per-process Unwinder. Required for
	// any session that wants DWARF user-stack unwinding; nil means
	// samples fall back to kernel callchain and instruction-pointer-only
	// frames.
	NewUnwinder func() unwind.Unwinder

	// UnwindCache is shared across every process's unwind calls to
	// amortize resolver state (spec §5).
	UnwindCache unwind.Cache

	// ProductNameGenerator derives a product name from the first
	// non-stub exec name seen, invoked at most once (SPEC_FULL §C.2).
	ProductNameGenerator func(execName string) string

	// AnchorWallTime is the wall-clock instant the first observed
	// timestamp maps to (spec §2). Defaults to time.Now() at
	// construction.
	AnchorWallTime time.Time

	processHandles map[int32]profileout.ProcessHandle

	clock         *timestamp.Converter
	clockAnchored bool

	productNamePending bool

	frameBuf []stackwalk.Frame
}

// New creates a Dispatcher wired against prof: the object-file loader,
// kernel-module loader, PE correlator and JIT category manager all
// share the same profile builder.
func New(prof *profileout.Builder) *Dispatcher {
	pe := &pecorrelate.Table{}
	cat := jitcat.NewManager()
	d := &Dispatcher{
		Registry:           procreg.New(),
		Profile:            prof,
		Store:              samplestore.NewStore(),
		Assembler:          &stackwalk.Assembler{FoldRecursivePrefix: true},
		CtxTracker:         ctxswitch.New(0),
		PECorrelator:       pe,
		JitCategory:        cat,
		BuildIDs:           dsokey.Table{},
		OffCPUSampleWeight: 1,
		ByteOrder:          binary.LittleEndian,
		AnchorWallTime:     time.Now(),
		processHandles:     make(map[int32]profileout.ProcessHandle),
		productNamePending: true,
	}
	d.ObjLoader = &objfile.Loader{PECorrelator: pe, JitCategory: cat, Profile: prof, Diag: d.Diag}
	d.KernelLoader = &kernelmod.Loader{Profile: prof}
	return d
}

// ProcessHandle implements samplestore.ProcessHandles for Finish.
func (d *Dispatcher) ProcessHandle(pid int32) (profileout.ProcessHandle, bool) {
	h, ok := d.processHandles[pid]
	return h, ok
}

// Finish drains the sample store into the profile and returns it
// (spec §5, "finish drains all per-process state into the profile and
// returns it; the core is consumed").
func (d *Dispatcher) Finish() *profile.Profile {
	d.Store.Finish(d.Profile, d, d.EventNames, d.resolveFrame)
	return d.Profile.Build()
}

func (d *Dispatcher) resolveFrame(pid int32, f stackwalk.Frame) profileout.FrameRef {
	ref := profileout.FrameRef{Address: f.Address}
	if proc, ok := d.Registry.Get(pid); ok {
		if lib, ok := proc.LibraryFor(f.Address); ok {
			ref.Lib = lib
		}
	}
	return ref
}

func (d *Dispatcher) wall(ts uint64) time.Time {
	if !d.clockAnchored {
		d.clock = timestamp.WithReferenceTimestamp(ts, d.AnchorWallTime)
		d.clockAnchored = true
	}
	return d.clock.Convert(ts)
}

// ensureProcess resolves pid to its registry entry, creating it and
// its profile handle on demand, wiring a fresh unwinder and jitdump
// manager, and invoking the jitdump-polling hook (spec §4.1: "For
// every record that carries a pid... invokes the jitdump-polling
// hook").
func (d *Dispatcher) ensureProcess(pid int32) *procreg.Process {
	proc := d.Registry.Ensure(pid)
	d.attachProcess(proc)
	if proc.JitDump != nil {
		proc.JitDump.Poll()
	}
	return proc
}

func (d *Dispatcher) attachProcess(proc *procreg.Process) {
	if proc.ProfileHandle == 0 {
		proc.ProfileHandle = d.Profile.NewProcess()
	}
	d.processHandles[proc.PID] = proc.ProfileHandle
	if proc.JitDump == nil {
		proc.JitDump = jitdump.NewManager()
	}
	if proc.Unwinder == nil && d.NewUnwinder != nil {
		proc.Unwinder = d.NewUnwinder()
	}
}

func (d *Dispatcher) ensureThread(proc *procreg.Process, tid int32) *procreg.Thread {
	th, ok := proc.Threads.Get(tid)
	if !ok {
		th = &procreg.Thread{TID: tid}
		proc.Threads.Put(th)
	}
	if th.ProfileHandle == 0 {
		th.ProfileHandle = d.Profile.NewThread(proc.ProfileHandle)
	}
	return th
}

func (d *Dispatcher) stampProcessStart(proc *procreg.Process, ts uint64) {
	if proc.HasStart {
		return
	}
	proc.StartTime = ts
	proc.HasStart = true
	d.Profile.SetProcessStartTime(proc.ProfileHandle, d.wall(ts))
}

func (d *Dispatcher) stampThreadStart(th *procreg.Thread, ts uint64) {
	if th.HasStart {
		return
	}
	th.StartTime = ts
	th.HasStart = true
	d.Profile.SetThreadStartTime(th.ProfileHandle, d.wall(ts))
}
