package kernelmod

import (
	"testing"

	"github.com/go-prof/profconv/perfevent"
	"github.com/go-prof/profconv/profileout"
)

func TestLoadAttachesSymbolsOnMatchingBuildID(t *testing.T) {
	buildID := []byte{1, 2, 3, 4}
	l := &Loader{
		Profile:               profileout.NewBuilder(),
		RunningKernelBuildID:  buildID,
		LinuxVersion:          "6.1.0-generic",
		KernelSymbolsBaseAVMA: 0xffffffff81000000,
	}

	res, err := l.Load(Mapping{
		Path:    []byte("[kernel.kallsyms]_text"),
		Mode:    perfevent.CPUModeKernel,
		BuildID: buildID,
		Start:   0xffffffff81000000,
		Len:     0x1000000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsKernelImage {
		t.Error("want IsKernelImage")
	}
	if !res.AttachedSymbols {
		t.Error("want AttachedSymbols on matching build id")
	}
	if res.DebugPath != "/usr/lib/debug/boot/vmlinux-6.1.0-generic" {
		t.Errorf("DebugPath = %q", res.DebugPath)
	}
}

func TestLoadSkipsAttachOnMismatch(t *testing.T) {
	l := &Loader{
		Profile:               profileout.NewBuilder(),
		RunningKernelBuildID:  []byte{1, 2, 3, 4},
		KernelSymbolsBaseAVMA: 0xffffffff81000000,
	}
	res, err := l.Load(Mapping{
		Path:    []byte("[kernel.kallsyms]"),
		Mode:    perfevent.CPUModeKernel,
		BuildID: []byte{9, 9, 9, 9},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AttachedSymbols {
		t.Error("want no attach on build id mismatch")
	}
}

func TestLoadSkipsAttachWhenBaseAVMAUnknown(t *testing.T) {
	buildID := []byte{1, 2, 3, 4}
	l := &Loader{Profile: profileout.NewBuilder(), RunningKernelBuildID: buildID}
	res, err := l.Load(Mapping{Path: []byte("[kernel.kallsyms]"), Mode: perfevent.CPUModeKernel, BuildID: buildID})
	if err != nil {
		t.Fatal(err)
	}
	if res.AttachedSymbols {
		t.Error("want no attach when KernelSymbolsBaseAVMA is zero")
	}
}

func TestLoadKernelModuleIsNotKernelImage(t *testing.T) {
	l := &Loader{Profile: profileout.NewBuilder()}
	res, err := l.Load(Mapping{Path: []byte("[nvidia]"), Mode: perfevent.CPUModeKernel})
	if err != nil {
		t.Fatal(err)
	}
	if res.AttachedSymbols {
		t.Error("a module should never get symbol-table attach")
	}
}
