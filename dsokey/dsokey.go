// Package dsokey detects the DSO (dynamic shared object) key for a
// mapping's path and CPU mode, and resolves a DSO key against a
// caller-supplied build-id table (spec §6.3: "the latter falls back
// to a build-id table keyed by DSO key").
package dsokey

import (
	"bytes"
	"strings"

	"github.com/go-prof/profconv/perfevent"
)

// Key identifies a distinct binary image for build-id lookup
// purposes. Two mappings of the same on-disk file (or of the running
// kernel image) share a Key even if their paths differ cosmetically.
type Key struct {
	// Name is either a filesystem path or one of the synthetic kernel
	// names ("[kernel.kallsyms]", a kernel module name in brackets).
	Name string
	// IsKernel is true for the kernel image itself, as opposed to a
	// kernel module or a regular user binary.
	IsKernel bool
}

// Detect derives a Key from a raw mapping path and CPU mode. It
// returns ok=false for paths that can't be turned into a stable key
// (spec §4.1 Mmap handling: "None => return" from DsoKey::detect).
// The key depends on the path alone; mode does not change it.
func Detect(path []byte, mode perfevent.CPUMode) (key Key, ok bool) {
	if len(path) == 0 {
		return Key{}, false
	}
	s := string(path)

	switch {
	case s == "[kernel.kallsyms]_text" || s == "[kernel.kallsyms]":
		return Key{Name: "[kernel.kallsyms]", IsKernel: true}, true
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		// A kernel module, vdso, or other synthetic mapping name; none
		// of these is the kernel image, whatever the CPU mode.
		return Key{Name: s}, true
	default:
		return Key{Name: s}, true
	}
}

// BuildInfo is the caller-supplied (pre-recorded) association between
// a DSO key and a binary's build id and canonical path, typically
// harvested from a perf.data file's HEADER_BUILD_ID feature section.
type BuildInfo struct {
	BuildID []byte
	Path    string
}

// Table is the global build-id table passed in at dispatcher
// construction (spec §9, "Global build-id table ... passed in at
// construction; the core never reads process-wide state").
type Table map[Key]BuildInfo

// Resolve looks up key in the table. When found, it returns the
// recorded build id and, per SPEC_FULL §C.3, the recorded path — the
// build-id table's path is substituted for the mmap record's path
// because it's often more complete (e.g. the synthesized kernel mmap
// path "[kernel.kallsyms]_text" versus a full vmlinux debug path).
func (t Table) Resolve(key Key) (buildID []byte, path string, ok bool) {
	info, ok := t[key]
	if !ok {
		return nil, "", false
	}
	return info.BuildID, info.Path, true
}

// Equal reports whether two build ids are the same, matching the
// byte-for-byte comparison the object loader performs (spec §4.4 step
// 5).
func Equal(a, b []byte) bool { return bytes.Equal(a, b) }
