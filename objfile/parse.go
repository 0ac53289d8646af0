package objfile

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"os"
)

// sectionRange is one named section's location in both file and
// virtual-address (SVMA) space.
type sectionRange struct {
	Offset uint64
	Addr   uint64
	Size   uint64
	data   []byte // populated only for sections we actually read (.text et al)
}

// parsedObject is the uniform view of an ELF, PE, or Mach-O binary
// that the loader needs, regardless of which debug/* package produced
// it (spec §4.4: the loader is agnostic to object kind past this
// point).
type parsedObject struct {
	Order        binary.ByteOrder
	LittleEndian bool
	Is64         bool
	Loads        []LoadSegment
	Sections     map[string]sectionRange
	BuildID      []byte
	MachoText    []byte // raw __TEXT segment bytes, Mach-O only
	MachoStart   uint64 // AVMA the __TEXT bytes start at, Mach-O only

	// FirstTextSymbol is the lowest-addressed STT_FUNC symbol inside
	// .text, ELF only. JIT-dumped shared objects are the only callers
	// that need this (spec §4.4 step 11): they carry exactly one
	// function per mapping, so "first" is unambiguous.
	FirstTextSymbol string
}

var (
	elfMagic   = []byte{0x7f, 'E', 'L', 'F'}
	peMagic    = []byte{'M', 'Z'}
	machoMagic = [][]byte{
		{0xfe, 0xed, 0xfa, 0xce}, {0xce, 0xfa, 0xed, 0xfe}, // 32-bit
		{0xfe, 0xed, 0xfa, 0xcf}, {0xcf, 0xfa, 0xed, 0xfe}, // 64-bit
	}
)

// parseObject sniffs the magic bytes of f and dispatches to the
// matching debug/* parser.
func parseObject(f *os.File) (*parsedObject, error) {
	var head [4]byte
	if _, err := f.ReadAt(head[:], 0); err != nil {
		return nil, fmt.Errorf("objfile: read header: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(head[:], elfMagic):
		return parseELF(f)
	case bytes.HasPrefix(head[:], peMagic):
		return parsePE(f)
	default:
		for _, m := range machoMagic {
			if bytes.Equal(head[:], m) {
				return parseMachO(f)
			}
		}
	}
	return nil, fmt.Errorf("objfile: unrecognized object format")
}

func parseELF(f *os.File) (*parsedObject, error) {
	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	order := binary.ByteOrder(binary.LittleEndian)
	littleEndian := true
	if ef.ByteOrder == binary.BigEndian {
		order = binary.BigEndian
		littleEndian = false
	}

	obj := &parsedObject{
		Order:        order,
		LittleEndian: littleEndian,
		Is64:         ef.Class == elf.ELFCLASS64,
		Sections:     make(map[string]sectionRange),
	}

	for _, p := range ef.Progs {
		if p.Type == elf.PT_LOAD {
			obj.Loads = append(obj.Loads, LoadSegment{
				Offset:   p.Off,
				FileSize: p.Filesz,
				Vaddr:    p.Vaddr,
			})
		}
	}

	for _, name := range []string{".text", "text_env", ".eh_frame", ".eh_frame_hdr", ".got"} {
		s := ef.Section(name)
		if s == nil {
			continue
		}
		sr := sectionRange{Offset: s.Offset, Addr: s.Addr, Size: s.Size}
		if name == ".text" || name == ".eh_frame" || name == ".eh_frame_hdr" {
			if data, err := s.Data(); err == nil {
				sr.data = data
			}
		}
		obj.Sections[name] = sr
	}

	obj.BuildID = elfBuildID(ef)
	if s, ok := obj.Sections[".text"]; ok {
		obj.FirstTextSymbol = firstTextSymbol(ef, s)
	}
	return obj, nil
}

// firstTextSymbol returns the name of the lowest-addressed function
// symbol lying within text. It checks the static symbol table first,
// falling back to the dynamic one (stripped JIT .so files only ever
// populate the latter).
func firstTextSymbol(ef *elf.File, text sectionRange) string {
	syms, err := ef.Symbols()
	if err != nil || len(syms) == 0 {
		syms, err = ef.DynamicSymbols()
		if err != nil {
			return ""
		}
	}

	name := ""
	lowest := ^uint64(0)
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Value < text.Addr || s.Value >= text.Addr+text.Size {
			continue
		}
		if s.Value < lowest {
			lowest = s.Value
			name = s.Name
		}
	}
	return name
}

// elfBuildID scans NOTE sections for an NT_GNU_BUILD_ID note (the
// same identifier perf itself reads from .note.gnu.build-id).
func elfBuildID(ef *elf.File) []byte {
	const noteGNU = "GNU"
	const ntGNUBuildID = 3

	for _, s := range ef.Sections {
		if s.Type != elf.SHT_NOTE {
			continue
		}
		data, err := s.Data()
		if err != nil {
			continue
		}
		id, ok := firstNote(data, noteGNU, ntGNUBuildID, ef.ByteOrder)
		if ok {
			return id
		}
	}
	return nil
}

// firstNote walks an ELF note section's records looking for one
// matching (name, noteType).
func firstNote(data []byte, name string, noteType uint32, order binary.ByteOrder) ([]byte, bool) {
	for len(data) >= 12 {
		nameSize := order.Uint32(data[0:4])
		descSize := order.Uint32(data[4:8])
		typ := order.Uint32(data[8:12])
		data = data[12:]

		nameLen := align4(nameSize)
		if uint32(len(data)) < nameLen {
			return nil, false
		}
		noteName := data[:nameSize]
		data = data[nameLen:]

		descLen := align4(descSize)
		if uint32(len(data)) < descLen {
			return nil, false
		}
		desc := data[:descSize]
		data = data[descLen:]

		if typ == noteType && bytes.Equal(bytes.TrimRight(noteName, "\x00"), []byte(name)) {
			return desc, true
		}
	}
	return nil, false
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

func parsePE(f *os.File) (*parsedObject, error) {
	pf, err := pe.NewFile(f)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	obj := &parsedObject{
		Order:        binary.LittleEndian,
		LittleEndian: true,
		Sections:     make(map[string]sectionRange),
	}
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		obj.Is64 = false
		_ = oh
	case *pe.OptionalHeader64:
		obj.Is64 = true
	}
	for _, s := range pf.Sections {
		name := s.Name
		switch name {
		case ".text", ".eh_frame", ".eh_frame_hdr", ".got", "text_env":
			sr := sectionRange{
				Offset: uint64(s.Offset),
				Addr:   uint64(s.VirtualAddress),
				Size:   uint64(s.Size),
			}
			if name == ".text" {
				if data, err := s.Data(); err == nil {
					sr.data = data
				}
			}
			obj.Sections[name] = sr
		}
	}
	return obj, nil
}

func parseMachO(f *os.File) (*parsedObject, error) {
	mf, err := macho.NewFile(f)
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	obj := &parsedObject{
		Order:        binary.LittleEndian,
		LittleEndian: true,
		Is64:         mf.Magic == macho.Magic64,
		Sections:     make(map[string]sectionRange),
	}
	if mf.ByteOrder == binary.BigEndian {
		obj.Order = binary.BigEndian
		obj.LittleEndian = false
	}

	for _, l := range mf.Loads {
		seg, ok := l.(*macho.Segment)
		if !ok {
			continue
		}
		obj.Loads = append(obj.Loads, LoadSegment{
			Offset:   seg.Offset,
			FileSize: seg.Filesz,
			Vaddr:    seg.Addr,
		})
		if seg.Name == "__TEXT" {
			if data, err := seg.Data(); err == nil {
				obj.MachoText = data
				obj.MachoStart = seg.Addr
			}
		}
	}
	for _, s := range mf.Sections {
		switch s.Name {
		case "__text":
			obj.Sections[".text"] = sectionRange{Offset: uint64(s.Offset), Addr: s.Addr, Size: s.Size}
		case "__eh_frame":
			obj.Sections[".eh_frame"] = sectionRange{Offset: uint64(s.Offset), Addr: s.Addr, Size: s.Size}
		}
	}

	// Mach-O build-id comparison (LC_UUID) is left to the caller-supplied
	// build id path: debug/macho exposes no typed UUID load command, and
	// JIT/Wine mappings (the only objects this loader deals with beyond
	// ELF) never carry one.
	return obj, nil
}
