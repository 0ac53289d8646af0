package unwind

import "fmt"

// FPWalker is a reference Unwinder that walks the classic x86-64
// frame-pointer chain: the return address lives 8 bytes above the
// saved frame pointer, and the saved frame pointer is the first word
// of the frame. It ignores eh_frame/eh_frame_hdr entirely and so gives
// wrong answers for frame-pointer-omitted code, but it's enough to
// exercise the stack assembler and the dispatcher end-to-end in
// tests and in the demonstration binary without vendoring a full
// DWARF CFI evaluator.
//
// Grounded on the frame-pointer walking convention documented in
// delve's amd64 arch support (retrieval pack,
// .../pkg/proc/amd64_arch.go): rbp chains via [rbp] -> saved rbp,
// return address at [rbp+8].
type FPWalker struct {
	modules []Module
}

var _ Unwinder = (*FPWalker)(nil)

// NewFPWalker returns an empty frame-pointer unwinder.
func NewFPWalker() *FPWalker { return &FPWalker{} }

func (w *FPWalker) AddModule(m Module) {
	w.modules = append(w.modules, m)
}

// moduleFor returns the module containing pc, if any.
func (w *FPWalker) moduleFor(pc uint64) (Module, bool) {
	for _, m := range w.modules {
		if pc >= m.AVMAStart && pc < m.AVMAEnd {
			return m, true
		}
	}
	return Module{}, false
}

type fpFrameIter struct {
	pc, fp     uint64
	readStack  StackReader
	first      bool
	w          *FPWalker
	maxFrames  int
	frameCount int
}

func (w *FPWalker) IterFrames(pc uint64, regs UnwindRegs, cache Cache, readStack StackReader) FrameIter {
	fp := regs.Extra["rbp"]
	return &fpFrameIter{pc: pc, fp: fp, readStack: readStack, first: true, w: w, maxFrames: 4096}
}

func (it *fpFrameIter) Next() (Frame, bool, error) {
	if it.first {
		it.first = false
		it.frameCount++
		return Frame{Address: it.pc, Kind: FrameInstructionPointer}, true, nil
	}
	if it.fp == 0 {
		return Frame{}, false, nil
	}
	if it.frameCount >= it.maxFrames {
		return Frame{}, false, fmt.Errorf("unwind: exceeded maximum frame count")
	}

	savedFP, err := it.readStack(it.fp)
	if err != nil {
		return Frame{}, false, err
	}
	retAddr, err := it.readStack(it.fp + 8)
	if err != nil {
		return Frame{}, false, err
	}
	if retAddr == 0 {
		return Frame{}, false, nil
	}
	if _, ok := it.w.moduleFor(retAddr); !ok {
		// We can't verify this return address belongs to any known
		// mapping; treat it as the end of the stack rather than
		// walking garbage indefinitely.
		return Frame{}, false, nil
	}

	it.fp = savedFP
	it.frameCount++
	return Frame{Address: retAddr, Kind: FrameReturnAddress}, true, nil
}
