// Package stackwalk implements the stack assembler (spec §4.2):
// building a single callee-to-caller frame sequence out of a sample's
// kernel callchain and, if present, a DWARF-unwound user stack.
package stackwalk

import (
	"encoding/binary"

	"github.com/go-prof/profconv/perfevent"
	"github.com/go-prof/profconv/unwind"
)

// FrameKind distinguishes the sample-level instruction pointer from a
// return address, and marks the synthetic "truncated" frame emitted
// when DWARF unwinding fails mid-walk.
type FrameKind uint8

const (
	KindInstructionPointer FrameKind = iota
	KindReturnAddress
	KindTruncatedMarker
)

// Frame is one assembled stack frame, ordered callee-most first.
type Frame struct {
	Address uint64
	Mode    perfevent.CPUMode
	Kind    FrameKind
}

// Assembler builds frame sequences, reusing an unwind.Cache across
// calls to amortize unwinder resolver state (spec §5).
type Assembler struct {
	FoldRecursivePrefix bool
}

// Assemble appends the frame sequence for sample e to out (which is
// truncated first), using unwinder for any DWARF unwinding needed.
// Output order is callee-most first, caller-most last; the kernel
// slice (from e.Callchain) precedes the user slice (spec §4.2,
// invariant 2).
func (a *Assembler) Assemble(e *perfevent.Sample, unwinder unwind.Unwinder, cache unwind.Cache, out []Frame) []Frame {
	out = out[:0]

	if e.Callchain != nil {
		mode := e.CPUMode
		isFirst := true
		for _, addr := range e.Callchain {
			if addr >= perfevent.ContextMarkerThreshold {
				if newMode, ok := perfevent.ModeFromContextFrame(addr); ok {
					mode = newMode
				}
				continue
			}
			kind := KindReturnAddress
			if isFirst {
				kind = KindInstructionPointer
			}
			out = append(out, Frame{Address: addr, Mode: mode, Kind: kind})
			isFirst = false
		}
	}

	if e.UserRegs != nil && e.UserStack != nil && unwinder != nil {
		out = a.appendDWARFFrames(e, unwinder, cache, out)
	}

	if len(out) == 0 {
		if e.IP != nil {
			out = append(out, Frame{Address: *e.IP, Mode: e.CPUMode, Kind: KindInstructionPointer})
		}
		return out
	}

	if a.FoldRecursivePrefix {
		out = foldRecursivePrefix(out)
	}
	return out
}

// appendDWARFFrames performs DWARF unwinding using the register
// snapshot and captured raw stack bytes (spec §4.2 step 3).
func (a *Assembler) appendDWARFFrames(e *perfevent.Sample, unwinder unwind.Unwinder, cache unwind.Cache, out []Frame) []Frame {
	sp := regValue(e.UserRegs, regSPIndex)
	pc := regValue(e.UserRegs, regPCIndex)
	fp := regValue(e.UserRegs, regFPIndex)

	stackWords := asLittleEndianU64s(e.UserStack)
	readStack := func(addr uint64) (uint64, error) {
		offset, ok := subNonNegative(addr, sp)
		if !ok {
			return 0, errOutOfRange
		}
		index := offset / 8
		if index >= uint64(len(stackWords)) {
			return 0, errOutOfRange
		}
		return stackWords[index], nil
	}

	regs := unwind.UnwindRegs{PC: pc, SP: sp, Extra: map[string]uint64{"rbp": fp}}
	frames := unwinder.IterFrames(pc, regs, cache, readStack)
	isFirst := true
	for {
		frame, ok, err := frames.Next()
		if err != nil {
			out = append(out, Frame{Kind: KindTruncatedMarker})
			break
		}
		if !ok {
			break
		}
		kind := KindReturnAddress
		if isFirst {
			kind = KindInstructionPointer
		}
		out = append(out, Frame{Address: frame.Address, Mode: perfevent.CPUModeUser, Kind: kind})
		isFirst = false
	}
	return out
}

// foldRecursivePrefix collapses a repeated base-of-stack frame: while
// the last two frames are equal, pop one (spec §4.2 step 5).
func foldRecursivePrefix(frames []Frame) []Frame {
	if len(frames) == 0 {
		return frames
	}
	last := frames[len(frames)-1]
	for len(frames) >= 2 && frames[len(frames)-2] == last {
		frames = frames[:len(frames)-1]
	}
	return frames
}

// These indices are placeholders for "which register index in
// Sample.UserRegs holds sp/pc/fp"; the concrete mapping is
// architecture-specific and supplied by the caller's register
// conversion (spec §6.2, "dynamic dispatch over the unwinder... one
// architecture per session"). For the reference x86-64 layout used by
// PERF_SAMPLE_REGS_USER with a default regs mask, the ABI order is
// AX,BX,CX,DX,SI,DI,BP,SP,IP,... — we only need BP, SP, IP.
const (
	regPCIndex = 8
	regSPIndex = 7
	regFPIndex = 6
)

func regValue(regs []uint64, idx int) uint64 {
	if idx < 0 || idx >= len(regs) {
		return 0
	}
	return regs[idx]
}

func subNonNegative(a, b uint64) (uint64, bool) {
	if a < b {
		return 0, false
	}
	return a - b, true
}

func asLittleEndianU64s(data []byte) []uint64 {
	n := len(data) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
	}
	return out
}

type stackwalkError string

func (e stackwalkError) Error() string { return string(e) }

const errOutOfRange = stackwalkError("stackwalk: address outside captured user stack")
