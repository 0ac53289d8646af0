// Package objfile implements the object-file loader (spec §4.4): the
// component that turns an mmap'd path into a registered module, ready
// for stack unwinding and symbol attribution. It is the convergence
// point for the PE-mapping correlator (pecorrelate), the malformed
// JIT-SO repair pass (jitfix), and the profile/unwinder collaborators.
//
// Grounded on the teacher's perfsession/symbolize.go, which opens and
// parses ELF+DWARF for a mapped file but leaves "TODO: Relocate ELF"
// — the bias computation in bias.go is exactly that TODO, generalized
// to ELF, PE, and Mach-O via parse.go.
package objfile

import (
	"bytes"
	"os"

	"github.com/ianlancetaylor/demangle"

	"github.com/go-prof/profconv/diag"
	"github.com/go-prof/profconv/jitcat"
	"github.com/go-prof/profconv/jitfix"
	"github.com/go-prof/profconv/pecorrelate"
	"github.com/go-prof/profconv/profileout"
	"github.com/go-prof/profconv/unwind"
)

// Request describes one mapping to load (spec §4.4 input: "(pid,
// path, mapping file offset, mapping start AVMA, mapping size,
// optional build id, timestamp)").
type Request struct {
	PID        int32
	Path       string
	FileOffset uint64
	StartAVMA  uint64
	Size       uint64
	BuildID    []byte
	Timestamp  uint64
}

// Loaded is the outcome of a successful Load: a module ready for
// AddModule on the process's unwinder, plus the registered library
// handle.
type Loaded struct {
	Module  unwind.Module
	Lib     profileout.LibHandle
	IsJIT   bool
	JITName string // category:symbol label applied when IsJIT, else ""
	DebugID string
	CodeID  string
}

// Loader implements spec §4.4's procedure.
type Loader struct {
	// ExtraSearchDir is consulted when the recorded path can't be
	// opened directly (spec §4.4 step 1, "fallback search directory").
	ExtraSearchDir string

	// SynthesizeMissingDebugID opts into deriving a debug id for
	// binaries lacking a build-id note, via profileout.SyntheticDebugID.
	// Off by default to match the spec's default of treating a missing
	// build id as simply absent.
	SynthesizeMissingDebugID bool

	PECorrelator *pecorrelate.Table
	JitCategory  *jitcat.Manager
	Profile      *profileout.Builder
	Diag         diag.Sink
}

// Load runs the full §4.4 procedure for one mapping. A nil, nil
// return means the mapping was deliberately skipped (already
// reported via l.Diag); a non-nil error means an unexpected failure
// in a collaborator.
func (l *Loader) Load(req Request) (*Loaded, error) {
	path := req.Path
	f, openedPath, err := OpenWithFallback(path, l.ExtraSearchDir)
	correlatedBaseAVMA, haveCorrelatedBase := uint64(0), false

	if err != nil {
		if l.PECorrelator != nil {
			if m, ok := l.PECorrelator.Lookup(req.StartAVMA, req.Size); ok {
				f, openedPath, err = OpenWithFallback(m.Path, l.ExtraSearchDir)
				correlatedBaseAVMA, haveCorrelatedBase = m.Start, true
			}
		}
	}
	if err != nil || f == nil {
		diag.Report(l.Diag, "objfile: could not open %s for pid %d, synthesizing best-effort mapping", path, req.PID)
		return l.synthesizeUnopenable(req)
	}
	defer f.Close()

	if jitfix.IsJitDumpSOPath(openedPath) {
		if fixedPath, err := jitfix.Repair(openedPath); err == nil && fixedPath != openedPath {
			f.Close()
			nf, err := os.Open(fixedPath)
			if err != nil {
				diag.Report(l.Diag, "objfile: reopening repaired %s: %v", fixedPath, err)
				return nil, nil
			}
			f = nf
			openedPath = fixedPath
			defer f.Close()
		}
	}

	obj, err := parseObject(f)
	if err != nil {
		diag.Report(l.Diag, "objfile: parse failure for %s: %v", openedPath, err)
		return nil, nil
	}

	if len(req.BuildID) > 0 {
		if len(obj.BuildID) == 0 || !bytes.Equal(obj.BuildID, req.BuildID) {
			diag.Report(l.Diag, "objfile: build id mismatch for %s", openedPath)
			return nil, nil
		}
	}

	var baseAVMA uint64
	if haveCorrelatedBase {
		baseAVMA = correlatedBaseAVMA
	} else {
		bias, ok := ComputeBias(obj.Loads, req.FileOffset, req.StartAVMA)
		if !ok {
			diag.Report(l.Diag, "objfile: no bias computable for %s", openedPath)
			return nil, nil
		}
		baseAVMA = bias
	}

	svma := unwind.ModuleSVMAInfo{BaseSVMA: 0}
	if s, ok := obj.Sections[".text"]; ok {
		svma.Text = &unwind.SVMARange{Start: s.Addr, End: s.Addr + s.Size}
	}
	if s, ok := obj.Sections["text_env"]; ok {
		svma.TextEnv = &unwind.SVMARange{Start: s.Addr, End: s.Addr + s.Size}
	}
	var ehFrame, ehFrameHdr *unwind.SVMARange
	if s, ok := obj.Sections[".eh_frame"]; ok {
		r := unwind.SVMARange{Start: s.Addr, End: s.Addr + s.Size}
		ehFrame = &r
	}
	if s, ok := obj.Sections[".eh_frame_hdr"]; ok {
		r := unwind.SVMARange{Start: s.Addr, End: s.Addr + s.Size}
		ehFrameHdr = &r
	}
	if s, ok := obj.Sections[".got"]; ok {
		svma.GOT = &unwind.SVMARange{Start: s.Addr, End: s.Addr + s.Size}
	}
	svma.EHFrame = ehFrame
	svma.EHFrameHdr = ehFrameHdr

	unwindData := unwind.UnwindData{Kind: unwind.UnwindDataNone}
	switch {
	case ehFrameHdr != nil && ehFrame != nil:
		unwindData = unwind.UnwindData{
			Kind:       unwind.UnwindDataEHFrameHdrAndEHFrame,
			EHFrame:    obj.Sections[".eh_frame"].data,
			EHFrameHdr: obj.Sections[".eh_frame_hdr"].data,
		}
	case ehFrame != nil:
		unwindData = unwind.UnwindData{Kind: unwind.UnwindDataEHFrame, EHFrame: obj.Sections[".eh_frame"].data}
	}

	var textData *unwind.TextByteData
	if len(obj.MachoText) > 0 {
		textData = &unwind.TextByteData{Data: obj.MachoText, AVMAStart: ApplyBias(obj.MachoStart, baseAVMA)}
	} else if s, ok := obj.Sections[".text"]; ok && s.data != nil {
		textData = &unwind.TextByteData{Data: s.data, AVMAStart: ApplyBias(s.Addr, baseAVMA)}
	}

	module := unwind.Module{
		Path:       openedPath,
		AVMAStart:  req.StartAVMA,
		AVMAEnd:    req.StartAVMA + req.Size,
		BaseAVMA:   baseAVMA,
		SVMA:       svma,
		UnwindData: unwindData,
		TextData:   textData,
	}

	debugID, codeID := l.computeIDs(obj, openedPath, req.Size)
	isJIT := jitfix.IsJitDumpSOPath(openedPath)

	libInfo := profileout.LibraryInfo{Path: openedPath, DebugID: debugID, CodeID: codeID}
	var jitName string
	if isJIT {
		jitName = l.jitLabel(obj.FirstTextSymbol)
		libInfo.JITLabel = jitName
	}
	lib := l.Profile.AddLib(libInfo)
	l.Profile.RegisterMapping(lib, req.StartAVMA, req.StartAVMA+req.Size, req.FileOffset)

	return &Loaded{Module: module, Lib: lib, IsJIT: isJIT, JITName: jitName, DebugID: debugID, CodeID: codeID}, nil
}

// jitLabel classifies a JIT mapping's first text symbol through the
// category manager and combines the two into the mapping's profile
// label (spec §4.4 step 11). symbol may be empty (stripped dump with
// no usable symbol table); the category alone is still a meaningful
// label in that case.
func (l *Loader) jitLabel(symbol string) string {
	symbol = DemangleJITSymbol(symbol)

	category := jitcat.DefaultCategory
	if l.JitCategory != nil {
		category = l.JitCategory.CategoryFor(symbol)
	}
	if symbol == "" {
		return category
	}
	return category + ":" + symbol
}

// computeIDs derives debug/code ids from the parsed object's build
// id, or synthesizes one if configured to (spec §4.4 step 10).
func (l *Loader) computeIDs(obj *parsedObject, path string, size uint64) (debugID, codeID string) {
	if len(obj.BuildID) > 0 {
		return profileout.DebugIDFromBuildID(obj.BuildID, obj.LittleEndian), profileout.CodeIDFromBuildID(obj.BuildID)
	}
	if l.SynthesizeMissingDebugID {
		return profileout.SyntheticDebugID(path, size), ""
	}
	return "", ""
}

// DemangleJITSymbol demangles a JIT mapping's first text symbol name
// before the category manager classifies it (spec §4.4 step 11).
func DemangleJITSymbol(name string) string {
	if demangled := demangle.Filter(name); demangled != name {
		return demangled
	}
	return name
}

// synthesizeUnopenable builds a best-effort mapping assuming
// file-offset-equals-SVMA, used when the underlying file could not be
// opened at all (spec §4.4, final paragraph).
func (l *Loader) synthesizeUnopenable(req Request) (*Loaded, error) {
	debugID, codeID := "", ""
	if len(req.BuildID) > 0 {
		debugID = profileout.DebugIDFromBuildID(req.BuildID, true)
		codeID = profileout.CodeIDFromBuildID(req.BuildID)
	}
	lib := l.Profile.AddLib(profileout.LibraryInfo{Path: req.Path, DebugID: debugID, CodeID: codeID})
	l.Profile.RegisterMapping(lib, req.StartAVMA, req.StartAVMA+req.Size, req.FileOffset)

	module := unwind.Module{
		Path:      req.Path,
		AVMAStart: req.StartAVMA,
		AVMAEnd:   req.StartAVMA + req.Size,
		BaseAVMA:  req.StartAVMA - req.FileOffset,
	}
	return &Loaded{Module: module, Lib: lib, DebugID: debugID, CodeID: codeID}, nil
}

// IsJITPath is a thin re-export so callers (procreg, dispatcher) don't
// need to import jitfix just to classify a mapping.
func IsJITPath(path string) bool {
	return jitfix.IsJitDumpSOPath(path)
}
