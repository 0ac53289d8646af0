package stackwalk

import (
	"testing"

	"github.com/go-prof/profconv/perfevent"
	"github.com/go-prof/profconv/unwind"
)

func TestAssembleCallchainOnly(t *testing.T) {
	a := &Assembler{}
	e := &perfevent.Sample{
		CPUMode: perfevent.CPUModeUser,
		Callchain: []uint64{
			0x1000, 0x2000, // user frames
		},
	}
	frames := a.Assemble(e, nil, nil, nil)
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if frames[0].Kind != KindInstructionPointer {
		t.Errorf("frames[0].Kind = %v, want IP", frames[0].Kind)
	}
	if frames[1].Kind != KindReturnAddress {
		t.Errorf("frames[1].Kind = %v, want ReturnAddress", frames[1].Kind)
	}
}

func TestAssembleKernelThenUserOrdering(t *testing.T) {
	a := &Assembler{}
	kernelMarker, _ := perfevent.ModeFromContextFrame(0)
	_ = kernelMarker
	e := &perfevent.Sample{
		CPUMode: perfevent.CPUModeUser,
		Callchain: []uint64{
			0xffffffffffffff80, // PERF_CONTEXT_KERNEL
			0xaaaa,
			0xfffffffffffffe00, // PERF_CONTEXT_USER
			0xbbbb,
		},
	}
	frames := a.Assemble(e, nil, nil, nil)
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2, got %+v", len(frames), frames)
	}
	if frames[0].Mode != perfevent.CPUModeKernel || frames[0].Address != 0xaaaa {
		t.Errorf("frames[0] = %+v, want kernel 0xaaaa", frames[0])
	}
	if frames[1].Mode != perfevent.CPUModeUser || frames[1].Address != 0xbbbb {
		t.Errorf("frames[1] = %+v, want user 0xbbbb", frames[1])
	}
}

func TestAssembleFallbackToIP(t *testing.T) {
	a := &Assembler{}
	ip := uint64(0x4242)
	e := &perfevent.Sample{CPUMode: perfevent.CPUModeUser, IP: &ip}
	frames := a.Assemble(e, nil, nil, nil)
	if len(frames) != 1 || frames[0].Address != ip {
		t.Fatalf("frames = %+v, want single IP frame", frames)
	}
}

func TestAssembleFoldRecursivePrefix(t *testing.T) {
	a := &Assembler{FoldRecursivePrefix: true}
	e := &perfevent.Sample{
		CPUMode:   perfevent.CPUModeUser,
		Callchain: []uint64{0x1, 0x2, 0x2, 0x2},
	}
	frames := a.Assemble(e, nil, nil, nil)
	// Repeated base-of-stack frame 0x2 should be collapsed to one.
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2, got %+v", len(frames), frames)
	}
	if frames[len(frames)-1].Address != 0x2 {
		t.Errorf("last frame = %+v, want address 0x2", frames[len(frames)-1])
	}
}

// failingUnwinder always returns an error on the first Next call, to
// exercise the truncated-marker path (spec §4.2 step 3).
type failingUnwinder struct{}

func (failingUnwinder) AddModule(unwind.Module) {}
func (failingUnwinder) IterFrames(pc uint64, regs unwind.UnwindRegs, cache unwind.Cache, readStack unwind.StackReader) unwind.FrameIter {
	return failingIter{}
}

type failingIter struct{}

func (failingIter) Next() (unwind.Frame, bool, error) {
	return unwind.Frame{}, false, errTest
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")

func TestAssembleTruncatedOnUnwindError(t *testing.T) {
	a := &Assembler{}
	regs := make([]uint64, 16)
	e := &perfevent.Sample{
		CPUMode:   perfevent.CPUModeUser,
		UserRegs:  regs,
		UserStack: make([]byte, 64),
	}
	frames := a.Assemble(e, failingUnwinder{}, nil, nil)
	if len(frames) != 1 || frames[0].Kind != KindTruncatedMarker {
		t.Fatalf("frames = %+v, want single truncated marker", frames)
	}
}
