// Command profconv reads a "perf.data" file and converts it into a
// pprof-compatible profile (spec §1, §6.3). It adapts the internal
// perffile reader onto the dispatcher package's typed record contract,
// the only bridge between the two.
package main

import (
	"github.com/go-prof/profconv/internal/perffile"
	"github.com/go-prof/profconv/perfevent"
)

// eventIndex maps a record's *perffile.EventAttr to its position in
// (*perffile.File).Events, which is the attr_index the dispatcher's
// EventNames table is keyed by (SPEC_FULL §C.1).
type eventIndex map[*perffile.EventAttr]int

func newEventIndex(f *perffile.File) eventIndex {
	idx := make(eventIndex, len(f.Events))
	for i, attr := range f.Events {
		idx[attr] = i
	}
	return idx
}

func (idx eventIndex) indexOf(attr *perffile.EventAttr) (int, bool) {
	i, ok := idx[attr]
	return i, ok
}

func cpuMode(m perffile.CPUMode) perfevent.CPUMode {
	switch m {
	case perffile.CPUModeKernel:
		return perfevent.CPUModeKernel
	case perffile.CPUModeUser:
		return perfevent.CPUModeUser
	case perffile.CPUModeHypervisor:
		return perfevent.CPUModeHypervisor
	case perffile.CPUModeGuestKernel:
		return perfevent.CPUModeGuestKernel
	case perffile.CPUModeGuestUser:
		return perfevent.CPUModeGuestUser
	default:
		return perfevent.CPUModeUnknown
	}
}

// translateSample converts a perffile.RecordSample into a
// perfevent.Sample. The two register/stack fields needed for DWARF
// unwinding (RegsUser, StackUser) are carried through verbatim; the
// PERF_CONTEXT_* sentinels in Callchain are left untouched for the
// stack assembler to interpret (spec §4.2 step 2).
func translateSample(r *perffile.RecordSample) *perfevent.Sample {
	s := &perfevent.Sample{
		PID:              int32(r.PID),
		TID:              int32(r.TID),
		Timestamp:        r.Time,
		CPUMode:          cpuMode(r.CPUMode),
		Callchain:        r.Callchain,
		UserRegs:         r.RegsUser,
		UserStack:        r.StackUser,
		UserStackDynSize: r.StackUserDynSize,
		Raw:              r.Raw,
	}
	if r.Format&perffile.SampleFormatIP != 0 {
		ip := r.IP
		s.IP = &ip
	}
	if r.Format&perffile.SampleFormatPeriod != 0 {
		period := r.Period
		s.Period = &period
	}
	return s
}

// translateMmapOrMmap2 converts a perffile.RecordMmap into either a
// perfevent.Mmap or a perfevent.Mmap2, depending on whether the
// record carries a build id or an (inode, generation) pair: plain
// PERF_RECORD_MMAP carries neither (spec §6.3).
//
// recordMiscMmapData (r.Data) marks the mapping as a data (non-text)
// mapping; IsExecutable is its negation.
func translateMmapOrMmap2(r *perffile.RecordMmap) (mmap *perfevent.Mmap, mmap2 *perfevent.Mmap2) {
	path := []byte(r.Filename)
	if len(r.BuildID) == 0 && r.Ino == 0 && r.InoGeneration == 0 {
		return &perfevent.Mmap{
			PID:          int32(r.PID),
			TID:          int32(r.TID),
			Address:      r.Addr,
			Length:       r.Len,
			PageOffset:   r.FileOffset,
			CPUMode:      cpuMode(r.CPUMode),
			Path:         path,
			IsExecutable: !r.Data,
		}, nil
	}

	var prot uint32
	if !r.Data {
		prot = 0x4 // PROT_EXEC
	}
	return nil, &perfevent.Mmap2{
		PID:        int32(r.PID),
		TID:        int32(r.TID),
		Address:    r.Addr,
		Length:     r.Len,
		PageOffset: r.FileOffset,
		CPUMode:    cpuMode(r.CPUMode),
		Path:       path,
		Protection: prot,
		FileID: perfevent.Mmap2FileID{
			BuildID:        r.BuildID,
			Inode:          r.Ino,
			InoGen:         r.InoGeneration,
			HasInodeAndGen: len(r.BuildID) == 0,
		},
	}
}

func translateFork(r *perffile.RecordFork) *perfevent.Fork {
	return &perfevent.Fork{
		PID:       int32(r.PID),
		PPID:      int32(r.PPID),
		TID:       int32(r.TID),
		PTID:      int32(r.PTID),
		Timestamp: r.Time,
	}
}

func translateExit(r *perffile.RecordExit) *perfevent.Exit {
	return &perfevent.Exit{
		PID:       int32(r.PID),
		PPID:      int32(r.PPID),
		TID:       int32(r.TID),
		PTID:      int32(r.PTID),
		Timestamp: r.Time,
	}
}

// translateComm converts a perffile.RecordComm. The kernel only
// attaches a sample_id trailer (and hence a usable RecordCommon.Time)
// when the session was recorded with -identifier/sample_id_all;
// Format carries whether that happened (spec §4.1 CommOrExec, S6).
func translateComm(r *perffile.RecordComm) *perfevent.CommOrExec {
	c := &perfevent.CommOrExec{
		PID:      int32(r.PID),
		TID:      int32(r.TID),
		Name:     []byte(r.Comm),
		IsExecve: r.Exec,
	}
	if r.Format&perffile.SampleFormatTime != 0 {
		ts := r.Time
		c.Timestamp = &ts
	}
	return c
}

func translateSwitch(r *perffile.RecordSwitch) *perfevent.ContextSwitch {
	return &perfevent.ContextSwitch{
		PID:       int32(r.PID),
		TID:       int32(r.TID),
		Timestamp: r.Time,
		Direction: switchDirection(r.Out),
	}
}

func translateSwitchCPUWide(r *perffile.RecordSwitchCPUWide) *perfevent.ContextSwitch {
	return &perfevent.ContextSwitch{
		PID:       int32(r.PID),
		TID:       int32(r.TID),
		Timestamp: r.Time,
		Direction: switchDirection(r.Out),
	}
}

func switchDirection(out bool) perfevent.ContextSwitchDirection {
	if out {
		return perfevent.ContextSwitchOut
	}
	return perfevent.ContextSwitchIn
}
