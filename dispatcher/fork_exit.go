package dispatcher

import (
	"github.com/go-prof/profconv/perfevent"
	"github.com/go-prof/profconv/procreg"
)

// DispatchFork handles a PERF_RECORD_FORK, routed to either a new
// process or a new thread within an existing one depending on whether
// pid == ppid (spec §4.1 Fork).
func (d *Dispatcher) DispatchFork(f *perfevent.Fork) {
	if f.PID != f.PPID {
		d.forkProcess(f)
		return
	}
	d.forkThread(f)
}

func (d *Dispatcher) forkProcess(f *perfevent.Fork) {
	var parentName, parentThreadName string
	if parent, ok := d.Registry.Get(f.PPID); ok {
		parentName = parent.Name
		if pt, ok := parent.Threads.Get(f.PTID); ok {
			parentThreadName = pt.Name
		}
	}

	child, reused := d.Registry.Fork(f.PID, parentName)
	child.Name = parentName
	d.attachProcess(child)
	if !reused {
		d.stampProcessStart(child, f.Timestamp)
	}

	thread := d.ensureThread(child, f.TID)
	thread.Name = parentThreadName
	if !reused {
		d.stampThreadStart(thread, f.Timestamp)
	}
}

func (d *Dispatcher) forkThread(f *perfevent.Fork) {
	proc := d.ensureProcess(f.PID)

	var parentThreadName string
	if pt, ok := proc.Threads.Get(f.PTID); ok {
		parentThreadName = pt.Name
	}

	thread, reused := proc.Threads.TryReuse(parentThreadName)
	if reused {
		thread.TID = f.TID
		proc.Threads.Put(thread)
	} else {
		thread = d.ensureThread(proc, f.TID)
	}
	thread.Name = parentThreadName
	if thread.ProfileHandle == 0 {
		thread.ProfileHandle = d.Profile.NewThread(proc.ProfileHandle)
	}
	if !reused {
		d.stampThreadStart(thread, f.Timestamp)
	}
}

// DispatchExit handles a PERF_RECORD_EXIT: tid == pid retires the
// whole process, otherwise only the named thread (spec §4.1 Exit).
func (d *Dispatcher) DispatchExit(e *perfevent.Exit) {
	if e.TID == e.PID {
		d.Registry.Retire(e.PID, true)
		return
	}
	proc, ok := d.Registry.Get(e.PID)
	if !ok {
		return
	}
	if th, ok := proc.Threads.Get(e.TID); ok {
		th.EndTime = e.Timestamp
		th.HasEnd = true
	}
	proc.Threads.Retire(e.TID, d.ThreadMergingEnabled)
}

// DispatchCommOrExec handles a PERF_RECORD_COMM (spec §4.1
// CommOrExec). On an execve-flagged record, the prior process/thread
// identity is retired at the record's own timestamp (falling back to
// the thread's last observed sample time) and a same- or new-named
// entity is rebound in its place before the rename is applied.
func (d *Dispatcher) DispatchCommOrExec(c *perfevent.CommOrExec) {
	name := string(c.Name)
	proc := d.ensureProcess(c.PID)
	thread := d.ensureThread(proc, c.TID)
	isMain := c.TID == c.PID

	if c.IsExecve {
		ts := d.commTimestamp(thread, c.Timestamp)
		reboundProc, reused := d.Registry.Execve(c.PID, name, ts)
		d.attachProcess(reboundProc)
		if !reused {
			d.stampProcessStart(reboundProc, ts)
		}
		thread = d.ensureThread(reboundProc, c.TID)
		if !reused {
			d.stampThreadStart(thread, ts)
		}
		proc = reboundProc

		if d.productNamePending && name != recorderStubName && d.ProductNameGenerator != nil {
			d.Profile.SetProduct(d.ProductNameGenerator(name))
			d.productNamePending = false
		}
	}

	thread.Name = name
	d.Profile.SetThreadName(thread.ProfileHandle, name)
	if isMain {
		proc.Name = name
		d.Profile.SetProcessName(proc.ProfileHandle, name)
	}
}

// commTimestamp resolves the effective timestamp for an execve-flagged
// CommOrExec: the record's own timestamp when present and non-zero,
// else the thread's last observed sample time (spec §4.1 CommOrExec,
// S6).
func (d *Dispatcher) commTimestamp(thread *procreg.Thread, recordTS *uint64) uint64 {
	if recordTS != nil && *recordTS != 0 {
		return *recordTS
	}
	return thread.LastSampleTime
}
