package dispatcher

import (
	"strings"

	"github.com/go-prof/profconv/diag"
	"github.com/go-prof/profconv/dsokey"
	"github.com/go-prof/profconv/kernelmod"
	"github.com/go-prof/profconv/objfile"
	"github.com/go-prof/profconv/pecorrelate"
	"github.com/go-prof/profconv/perfevent"
)

// DispatchMmap handles a PERF_RECORD_MMAP (spec §6.3, §4.4).
func (d *Dispatcher) DispatchMmap(m *perfevent.Mmap) {
	d.dispatchMapping(mappingFields{
		pid:        m.PID,
		start:      m.Address,
		length:     m.Length,
		pageOffset: m.PageOffset,
		mode:       m.CPUMode,
		path:       m.Path,
		executable: m.IsExecutable,
	})
}

// DispatchMmap2 handles a PERF_RECORD_MMAP2, resolving a missing
// inline build id through the (inode, generation)-keyed build-id
// table fallback (spec §6.3, "the latter falls back to a build-id
// table keyed by DSO key").
func (d *Dispatcher) DispatchMmap2(m *perfevent.Mmap2) {
	buildID := m.FileID.BuildID
	path := string(m.Path)

	if len(buildID) == 0 && m.FileID.HasInodeAndGen {
		if key, ok := dsokey.Detect(m.Path, m.CPUMode); ok {
			if id, resolvedPath, ok := d.BuildIDs.Resolve(key); ok {
				buildID = id
				if resolvedPath != "" {
					path = resolvedPath
				}
			}
		}
	}

	d.dispatchMapping(mappingFields{
		pid:        m.PID,
		start:      m.Address,
		length:     m.Length,
		pageOffset: m.PageOffset,
		mode:       m.CPUMode,
		path:       []byte(path),
		executable: m.Protection&0x4 != 0,
		buildID:    buildID,
	})
}

// mappingFields normalizes the fields Mmap and Mmap2 share so both
// dispatch methods fall through the same §4.4/§4.5/§4.8 pipeline.
type mappingFields struct {
	pid        int32
	start      uint64
	length     uint64
	pageOffset uint64
	mode       perfevent.CPUMode
	path       []byte
	executable bool
	buildID    []byte
}

func (d *Dispatcher) dispatchMapping(m mappingFields) {
	// Kernel-wide mappings (pid -1) never get a process entry or a
	// jitdump manager; route them straight to the kernel-module loader
	// (spec §4.8).
	if m.pid == -1 {
		if m.executable {
			d.loadKernelMapping(m)
		}
		return
	}

	proc := d.ensureProcess(m.pid)

	if pathStr := string(m.path); isJitdumpPath(pathStr) && proc.JitDump != nil {
		proc.JitDump.AddPath(pathStr)
	}

	// PE correlator candidate insertion (spec §4.5): only for file
	// offset zero and a .exe/.dll suffix.
	if m.pageOffset == 0 && pecorrelate.IsPECandidatePath(m.path) {
		d.PECorrelator.Insert(string(m.path), m.start)
	}

	if !m.executable {
		return
	}

	loaded, err := d.ObjLoader.Load(objfile.Request{
		PID:        m.pid,
		Path:       string(m.path),
		FileOffset: m.pageOffset,
		StartAVMA:  m.start,
		Size:       m.length,
		BuildID:    m.buildID,
	})
	if err != nil || loaded == nil {
		return
	}

	if loaded.IsJIT {
		diag.Report(d.Diag, "dispatcher: pid %d mapped JIT module %s as %q", m.pid, m.path, loaded.JITName)
	}

	proc.AddModule(m.start, m.start+m.length, loaded.Lib)
	if proc.Unwinder != nil {
		proc.Unwinder.AddModule(loaded.Module)
	}
}

func (d *Dispatcher) loadKernelMapping(m mappingFields) {
	if _, err := d.KernelLoader.Load(kernelmod.Mapping{
		Path:    m.path,
		Mode:    m.mode,
		BuildID: m.buildID,
		Start:   m.start,
		Len:     m.length,
		Offset:  m.pageOffset,
	}); err != nil {
		return
	}
}

// isJitdumpPath reports whether path looks like a jitdump side-channel
// file perf's JIT agents create (conventionally "jit-<pid>.dump" or
// "jit-<pid>-<n>.dump").
func isJitdumpPath(path string) bool {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.HasPrefix(base, "jit-") && strings.HasSuffix(base, ".dump")
}

// DispatchContextSwitch handles a PERF_RECORD_SWITCH[_CPU_WIDE]
// record, routing direction to the context-switch tracker. On
// switch-in, an off-CPU group reported by the tracker is emitted right
// away, together with the consumed CPU delta, when the thread has a
// saved off-CPU stack (spec §4.1, §4.3.a).
func (d *Dispatcher) DispatchContextSwitch(cs *perfevent.ContextSwitch) {
	proc := d.ensureProcess(cs.PID)
	thread := d.ensureThread(proc, cs.TID)

	switch cs.Direction {
	case perfevent.ContextSwitchOut:
		d.CtxTracker.HandleSwitchOut(cs.Timestamp, &thread.CtxSwitch)
	case perfevent.ContextSwitchIn:
		if group := d.CtxTracker.HandleSwitchIn(cs.Timestamp, &thread.CtxSwitch); group != nil && thread.HasSavedOffCPUStack {
			cpuDelta := d.CtxTracker.ConsumeCPUDelta(&thread.CtxSwitch)
			d.emitOffCPUGroup(proc.PID, thread, *group, cpuDelta)
		}
	}
}
