// Package kernelmod implements the kernel-module loader (spec §4.8):
// when an executable mapping belongs to pid -1, it is the kernel
// image or a kernel module rather than a userspace binary, and is
// registered as a single process-independent mapping rather than
// routed through the per-process object-file loader.
package kernelmod

import (
	"bytes"
	"fmt"

	"github.com/go-prof/profconv/dsokey"
	"github.com/go-prof/profconv/perfevent"
	"github.com/go-prof/profconv/profileout"
)

// kallsymsDebugPathFmt mirrors perf's own convention for where a
// distro keeps the separate (unstripped) kernel image.
const kallsymsDebugPathFmt = "/usr/lib/debug/boot/vmlinux-%s"

// Loader attaches the running kernel's symbol table to the
// [kernel.kallsyms] synthetic mapping when the recorded build id
// matches, and registers every kernel module mapping with the
// profile.
type Loader struct {
	Profile *profileout.Builder

	// RunningKernelBuildID is the build id of the kernel actually
	// running during capture, known out of band (e.g. from
	// /sys/kernel/notes on the recording host).
	RunningKernelBuildID []byte

	// LinuxVersion feeds the synthesized debug path for
	// [kernel.kallsyms] mappings (spec §4.8).
	LinuxVersion string

	// KernelSymbolsBaseAVMA guards whether the kernel symbol table is
	// attached at all: a zero value means no kernel base address is
	// known yet and attachment is skipped (spec §4.4(C) supplemented
	// feature, "kernel_symbols.base_avma != 0").
	KernelSymbolsBaseAVMA uint64

	attached bool
}

// Mapping describes one pid=-1 executable mapping to register.
type Mapping struct {
	Path    []byte
	Mode    perfevent.CPUMode
	BuildID []byte
	Start   uint64
	Len     uint64
	Offset  uint64
}

// Result reports what the loader decided for a mapping.
type Result struct {
	Lib             profileout.LibHandle
	IsKernelImage   bool
	AttachedSymbols bool
	DebugPath       string
}

// Load registers m with the profile, attaching the running kernel's
// symbol table if m is the kernel image and its build id matches
// (spec §4.8).
func (l *Loader) Load(m Mapping) (*Result, error) {
	key, ok := dsokey.Detect(m.Path, m.Mode)
	if !ok {
		return nil, fmt.Errorf("kernelmod: could not classify path %q", m.Path)
	}

	debugID := profileout.CodeIDFromBuildID(m.BuildID)
	libInfo := profileout.LibraryInfo{Path: key.Name, DebugID: debugID, CodeID: debugID}
	lib := l.Profile.AddLib(libInfo)
	l.Profile.AddKernelLibMapping(lib, m.Start, m.Start+m.Len, m.Offset)

	res := &Result{Lib: lib, IsKernelImage: key.IsKernel}
	if !key.IsKernel {
		return res, nil
	}

	matches := len(l.RunningKernelBuildID) > 0 && bytes.Equal(l.RunningKernelBuildID, m.BuildID)
	if matches && l.KernelSymbolsBaseAVMA != 0 && !l.attached {
		l.attached = true
		res.AttachedSymbols = true
		if key.Name == "[kernel.kallsyms]" {
			res.DebugPath = fmt.Sprintf(kallsymsDebugPathFmt, l.LinuxVersion)
		}
	}
	return res, nil
}
