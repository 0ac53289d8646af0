// Package jitfix repairs the malformed JIT-emitted ELF files produced
// by certain perf releases (spec §4.6): the loader writes a PT_LOAD
// program header whose file offset doesn't match the section headers'
// idea of where .text begins, which trips up every downstream ELF
// reader. The fix drops the broken program header table outright,
// since symbolization only needs the section headers.
//
// debug/elf can parse far enough to detect the bug, but it has no
// write path, so the rewrite itself is done by hand against the ELF32
// and ELF64 header layouts (ELF spec, not a third-party dependency in
// the retrieval pack provides ELF mutation).
package jitfix

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsJitDumpSOPath reports whether path looks like a jitdump-emitted
// shared object (spec §4.6: "path matches */jitted-*.so").
func IsJitDumpSOPath(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "jitted-") && strings.HasSuffix(base, ".so")
}

// NeedsRepair opens path and reports whether it exhibits the dropped
// program-header bug: exactly one PT_LOAD segment located at address
// 0 with file offset 0, while the .text section's file offset is
// nonzero (spec §4.6 detection rule).
func NeedsRepair(path string) (bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return false, fmt.Errorf("jitfix: open %s: %w", path, err)
	}
	defer f.Close()

	var loads []*elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			loads = append(loads, p)
		}
	}
	if len(loads) != 1 {
		return false, nil
	}
	load := loads[0]
	if load.Vaddr != 0 || load.Off != 0 {
		return false, nil
	}

	text := f.Section(".text")
	if text == nil {
		return false, nil
	}
	return text.Offset != 0, nil
}

// Repair reads the malformed ELF file at path and writes a corrected
// sibling file at the same path with "-fixed" inserted before the
// extension, dropping the program header table entirely (spec §4.6
// repair: "rewrite e_phoff/e_phnum to zero, drop the program header
// bytes"). It returns the path of the written file.
//
// Calling Repair on an already-fixed file is a no-op that returns the
// input path unchanged (spec invariant 8, idempotency): NeedsRepair
// on a file with no program headers reports false, and Repair checks
// that first.
func Repair(path string) (string, error) {
	needs, err := NeedsRepair(path)
	if err != nil {
		return "", err
	}
	if !needs {
		return path, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("jitfix: read %s: %w", path, err)
	}

	fixed, err := dropProgramHeaders(raw)
	if err != nil {
		return "", fmt.Errorf("jitfix: %s: %w", path, err)
	}

	out := fixedSiblingPath(path)
	if err := os.WriteFile(out, fixed, 0o644); err != nil {
		return "", fmt.Errorf("jitfix: write %s: %w", out, err)
	}
	return out, nil
}

func fixedSiblingPath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "-fixed" + ext
}

const (
	elfIdentSize = 16
	elfClass32   = 1
	elfClass64   = 2
)

// dropProgramHeaders zeroes e_phoff/e_phnum (and e_phentsize, for
// cleanliness) in the ELF header, leaving section headers and all
// other content untouched.
func dropProgramHeaders(raw []byte) ([]byte, error) {
	if len(raw) < elfIdentSize+4 || !bytes.HasPrefix(raw, []byte(elf.ELFMAG)) {
		return nil, fmt.Errorf("not an ELF file")
	}
	out := append([]byte(nil), raw...)

	var order binary.ByteOrder = binary.LittleEndian
	if out[5] == byte(elf.ELFDATA2MSB) {
		order = binary.BigEndian
	}

	switch out[elf.EI_CLASS] {
	case elfClass32:
		// Elf32_Ehdr: e_phoff at 28 (4 bytes), e_phentsize at 42 (2
		// bytes), e_phnum at 44 (2 bytes).
		if len(out) < 48 {
			return nil, fmt.Errorf("truncated ELF32 header")
		}
		order.PutUint32(out[28:32], 0)
		order.PutUint16(out[42:44], 0)
		order.PutUint16(out[44:46], 0)
	case elfClass64:
		// Elf64_Ehdr: e_phoff at 32 (8 bytes), e_phentsize at 54 (2
		// bytes), e_phnum at 56 (2 bytes).
		if len(out) < 64 {
			return nil, fmt.Errorf("truncated ELF64 header")
		}
		order.PutUint64(out[32:40], 0)
		order.PutUint16(out[54:56], 0)
		order.PutUint16(out[56:58], 0)
	default:
		return nil, fmt.Errorf("unknown ELF class %d", out[elf.EI_CLASS])
	}
	return out, nil
}
