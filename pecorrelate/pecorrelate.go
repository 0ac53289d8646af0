// Package pecorrelate implements the PE-on-Linux (Wine) mapping
// correlator (spec §4.5): Wine maps unaligned PE sections as
// anonymous memory, so only the PE header — mapped first, at file
// offset 0, and always page-aligned — can be correlated directly to
// its source file. Later anonymous mappings that fall within the
// header's declared image size are matched back to it.
//
// The ordered-map-with-floor-lookup requirement (spec §9, "a sorted
// container with binary search over keys suffices") is implemented
// the same way the teacher implements its own range lookups in
// perfsession/ranges.go: a slice kept sorted by key, searched with
// sort.Search.
package pecorrelate

import (
	"bytes"
	"debug/pe"
	"os"
	"sort"
)

// SuspectedMapping is a candidate Wine PE mapping (spec §3
// SuspectedPeMapping).
type SuspectedMapping struct {
	Path  string
	Start uint64
	Size  uint64
}

// Table holds suspected PE mappings keyed by start AVMA, in ascending
// order.
type Table struct {
	entries []SuspectedMapping // kept sorted by Start
}

// IsPECandidatePath reports whether path has one of the extensions
// that make it worth attempting a PE header parse (spec §4.5: "On
// every mmap/mmap2 with file offset zero and a filename ending in
// .exe, .dll, .EXE, or .DLL").
func IsPECandidatePath(path []byte) bool {
	for _, ext := range [][]byte{[]byte(".exe"), []byte(".dll"), []byte(".EXE"), []byte(".DLL")} {
		if bytes.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Insert records a suspected PE mapping at startAVMA if path opens and
// parses as a PE file; a failure to open or parse is a silent skip
// (spec §4.5: "Failure to parse silently skips").
func (t *Table) Insert(path string, startAVMA uint64) {
	size, ok := peSizeOfImage(path)
	if !ok {
		return
	}
	t.insert(SuspectedMapping{Path: path, Start: startAVMA, Size: size})
}

func (t *Table) insert(m SuspectedMapping) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Start >= m.Start })
	if i < len(t.entries) && t.entries[i].Start == m.Start {
		t.entries[i] = m
		return
	}
	t.entries = append(t.entries, SuspectedMapping{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = m
}

// Lookup finds the greatest-keyed candidate with Start <= startAVMA
// and reports whether it contains [startAVMA, startAVMA+size) (spec
// §4.5 Lookup rule, testable property 7).
func (t *Table) Lookup(startAVMA, size uint64) (SuspectedMapping, bool) {
	// Greatest index with entries[i].Start <= startAVMA.
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Start > startAVMA }) - 1
	if i < 0 {
		return SuspectedMapping{}, false
	}
	m := t.entries[i]
	if startAVMA >= m.Start && startAVMA+size <= m.Start+m.Size {
		return m, true
	}
	return SuspectedMapping{}, false
}

// peSizeOfImage opens path and reads SizeOfImage from its PE optional
// header (32- or 64-bit). Any failure returns ok=false.
func peSizeOfImage(path string) (size uint64, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	pf, err := pe.NewFile(f)
	if err != nil {
		return 0, false
	}
	defer pf.Close()

	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return uint64(oh.SizeOfImage), true
	case *pe.OptionalHeader64:
		return uint64(oh.SizeOfImage), true
	default:
		return 0, false
	}
}
