// Package unwind defines the capability the core consumes from "the
// generic unwinder library" (spec §1 scope, §6.2, §9 "Dynamic dispatch
// over the unwinder"). The core is polymorphic over any Unwinder
// implementation; one architecture is used per session. This package
// defines only the operations the core calls — add_module and
// iter_frames — plus, for testing and for the demonstration binary, a
// reference frame-pointer-based implementation (fpwalk.go) grounded on
// the x86-64 stack-walking convention documented in
// delve's pkg/proc/amd64_arch.go (retrieval pack,
// ChuanlongChen-LuaInterpreter/.../amd64_arch.go): return address at
// [rbp+8], saved caller rbp at [rbp].
package unwind

// FrameKind distinguishes the first frame of an unwind (the precise
// instruction pointer) from subsequent frames (return addresses, which
// point just after the call instruction).
type FrameKind uint8

const (
	FrameInstructionPointer FrameKind = iota
	FrameReturnAddress
)

// Frame is one frame produced by iterating an unwind.
type Frame struct {
	Address uint64
	Kind    FrameKind
}

// StackReader reads a little-endian 8-byte word from the captured
// user stack at the given absolute address. It returns an error if
// the address falls outside the captured range (spec §4.2 step 3).
type StackReader func(addr uint64) (uint64, error)

// SVMARange is a half-open range in section-virtual-memory-address
// space, i.e. as if the image were loaded at its preferred base.
type SVMARange struct {
	Start, End uint64
}

// Size returns End - Start, or 0 if the range is absent (zero value).
func (r SVMARange) Size() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// ModuleSVMAInfo carries the section ranges the unwinder needs to
// locate unwind data, all in SVMA space (spec §3 Module: "section
// ranges in SVMA space").
type ModuleSVMAInfo struct {
	BaseSVMA                                uint64
	Text, TextEnv, EHFrame, EHFrameHdr, GOT *SVMARange
}

// UnwindDataKind selects which unwind data a module carries (spec §3
// Module: "either none, .eh_frame only, or .eh_frame_hdr+.eh_frame").
type UnwindDataKind uint8

const (
	UnwindDataNone UnwindDataKind = iota
	UnwindDataEHFrame
	UnwindDataEHFrameHdrAndEHFrame
)

// UnwindData bundles the raw section bytes backing UnwindDataKind.
type UnwindData struct {
	Kind       UnwindDataKind
	EHFrame    []byte
	EHFrameHdr []byte
}

// TextByteData is the raw instruction bytes extracted for a module,
// together with the AVMA range they cover (spec §3 Module: "optional
// raw text bytes with their AVMA range").
type TextByteData struct {
	Data      []byte
	AVMAStart uint64
}

// Module describes one mapped binary to an Unwinder (spec §3,
// §6.2 add_module).
type Module struct {
	Path       string
	AVMAStart  uint64
	AVMAEnd    uint64
	BaseAVMA   uint64
	SVMA       ModuleSVMAInfo
	UnwindData UnwindData
	TextData   *TextByteData
}

// Cache is an opaque per-session resolver cache, reused across all
// samples of all processes to amortize unwind state (spec §5).
type Cache interface{}

// FrameIter is a fallible lazy sequence of unwound frames (spec §6.2
// iter_frames: "returning a fallible lazy sequence").
type FrameIter interface {
	// Next returns the next frame, or ok=false at the end of the
	// stack, or an error if unwinding failed mid-walk (spec §4.2 step
	// 3: "If the unwinder returns an error, append a dedicated
	// 'truncated' marker frame and stop").
	Next() (frame Frame, ok bool, err error)
}

// Unwinder is the per-process-architecture capability the core relies
// on for DWARF-based user-stack reconstruction.
type Unwinder interface {
	// AddModule registers a newly mapped binary so later IterFrames
	// calls covering its AVMA range can find unwind data in it.
	AddModule(m Module)

	// IterFrames begins unwinding a user stack starting at the given
	// program counter and stack pointer / register snapshot, reading
	// stack memory through readStack.
	IterFrames(pc uint64, regs UnwindRegs, cache Cache, readStack StackReader) FrameIter
}

// UnwindRegs is the architecture-specific register snapshot needed to
// seed an unwind: at minimum a stack pointer, plus whatever else the
// concrete Unwinder's architecture needs (frame pointer, link
// register, etc).
type UnwindRegs struct {
	PC, SP uint64
	Extra  map[string]uint64
}
