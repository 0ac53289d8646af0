package dispatcher

import (
	"github.com/go-prof/profconv/ctxswitch"
	"github.com/go-prof/profconv/perfevent"
	"github.com/go-prof/profconv/procreg"
	"github.com/go-prof/profconv/rssstat"
	"github.com/go-prof/profconv/stackwalk"
)

// DispatchSample handles a PERF_RECORD_SAMPLE (spec §4.1.a).
func (d *Dispatcher) DispatchSample(s *perfevent.Sample) {
	proc := d.ensureProcess(s.PID)
	thread := d.ensureThread(proc, s.TID)

	// Step 1: duplicate suppression (invariant 4).
	if thread.HasLastSampleTime && thread.LastSampleTime == s.Timestamp {
		return
	}

	// Step 2: assemble the frame sequence.
	d.frameBuf = d.Assembler.Assemble(s, proc.Unwinder, d.UnwindCache, d.frameBuf)
	frames := append([]stackwalk.Frame(nil), d.frameBuf...)

	// Step 3/4: context-switch tracker, off-CPU emission, CPU delta.
	group := d.CtxTracker.HandleSample(s.Timestamp, &thread.CtxSwitch)
	cpuDelta := d.CtxTracker.ConsumeCPUDelta(&thread.CtxSwitch)
	if group != nil && thread.HasSavedOffCPUStack {
		d.emitOffCPUGroup(proc.PID, thread, *group, cpuDelta)
		cpuDelta = 0
	}

	// Step 5: intern and buffer.
	handle := d.Store.Intern(frames)
	d.Store.Buffer(proc.PID).AddSample(s.Timestamp, thread.ProfileHandle, handle, 1, cpuDelta)

	thread.LastSampleTime = s.Timestamp
	thread.HasLastSampleTime = true
}

func (d *Dispatcher) emitOffCPUGroup(pid int32, thread *procreg.Thread, group ctxswitch.OffCpuSampleGroup, leftoverCPUDeltaNS uint64) {
	handle := d.Store.Intern(thread.SavedOffCPUStack)
	buf := d.Store.Buffer(pid)
	ctxswitch.EmitOffCpuSamples(group, leftoverCPUDeltaNS, d.OffCPUSampleWeight, func(ts, cpuDelta uint64, weight int32) {
		buf.AddSample(ts, thread.ProfileHandle, handle, int64(weight), cpuDelta)
	})
	thread.HasSavedOffCPUStack = false
}

// DispatchSchedSwitch handles a sched:sched_switch tracepoint sample:
// it assembles the user-only stack (kernel frames omitted) and saves
// it as the thread's off-CPU stack for the next off-CPU emission
// (spec §4.1 SchedSwitch).
func (d *Dispatcher) DispatchSchedSwitch(s *perfevent.Sample) {
	proc := d.ensureProcess(s.PID)
	thread := d.ensureThread(proc, s.TID)

	userOnly := *s
	userOnly.Callchain = nil
	d.frameBuf = d.Assembler.Assemble(&userOnly, proc.Unwinder, d.UnwindCache, d.frameBuf)

	thread.SavedOffCPUStack = append(thread.SavedOffCPUStack[:0], d.frameBuf...)
	thread.HasSavedOffCPUStack = true
}

// DispatchRssStat handles a kmem:rss_stat tracepoint sample (spec
// §4.1 RssStat): decodes {member, size}, turns it into a delta against
// the process's prior value, routes anonymous-page deltas to the
// process memory counter, and always attaches a labelled marker.
func (d *Dispatcher) DispatchRssStat(s *perfevent.Sample) {
	proc := d.ensureProcess(s.PID)
	thread := d.ensureThread(proc, s.TID)

	stat, err := rssstat.Parse(s.Raw, d.ByteOrder)
	if err != nil {
		return // payload-parse failure: silent skip (spec §7)
	}

	prior := rssPriorFor(&proc.Prior, stat.Member)
	delta := stat.Size - *prior
	*prior = stat.Size

	if stat.Member == rssstat.MemberAnonPages {
		counter := proc.MemoryCounter(d.Profile.NewCounter)
		d.Store.Buffer(proc.PID).AddRssStatMarker(s.Timestamp, counter, stat.Member, stat.Size, delta)
	}

	d.frameBuf = d.Assembler.Assemble(s, proc.Unwinder, d.UnwindCache, d.frameBuf)
	handle := d.Store.Intern(d.frameBuf)
	d.Store.Buffer(proc.PID).AddLabeledEventMarker(s.Timestamp, thread.ProfileHandle, rssMemberLabel(stat.Member), handle, true, 0)
}

func rssMemberLabel(m rssstat.Member) string {
	switch m {
	case rssstat.MemberFilePages:
		return "rss:file"
	case rssstat.MemberAnonPages:
		return "rss:anon"
	case rssstat.MemberShmemPages:
		return "rss:shmem"
	default:
		return "rss:swap"
	}
}

func rssPriorFor(p *procreg.RssPrior, member rssstat.Member) *int64 {
	switch member {
	case rssstat.MemberFilePages:
		return &p.FilePages
	case rssstat.MemberAnonPages:
		return &p.AnonPages
	case rssstat.MemberShmemPages:
		return &p.ShmemPages
	default:
		return &p.SwapEnts
	}
}

// DispatchOtherEventSample handles a non-primary-counter tracepoint
// sample, labelled by an index into Dispatcher.EventNames (SPEC_FULL
// §C.1).
func (d *Dispatcher) DispatchOtherEventSample(s *perfevent.Sample, attrIndex int) {
	proc := d.ensureProcess(s.PID)
	thread := d.ensureThread(proc, s.TID)

	d.frameBuf = d.Assembler.Assemble(s, proc.Unwinder, d.UnwindCache, d.frameBuf)
	handle := d.Store.Intern(d.frameBuf)
	d.Store.Buffer(proc.PID).AddOtherEventMarker(s.Timestamp, thread.ProfileHandle, attrIndex, handle, true, 1)
}
