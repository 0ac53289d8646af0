package jitfix

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildMalformedELF constructs a minimal ELF64 shared object exhibiting
// the dropped-program-header-offset bug: one PT_LOAD segment claiming
// file offset 0, while .text actually starts partway through the file.
func buildMalformedELF() []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
		shdrSize = 64
	)
	textOff := 128
	textSize := 16
	shstrtabOff := textOff + textSize // 144
	shstrtab := []byte("\x00.text\x00.shstrtab\x00")
	shoff := ((shstrtabOff + len(shstrtab) + 7) / 8) * 8

	total := shoff + 3*shdrSize
	buf := make([]byte, total)

	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EI_VERSION

	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 3)        // e_type = ET_DYN
	le.PutUint16(buf[18:20], 62)       // e_machine = EM_X86_64
	le.PutUint32(buf[20:24], 1)        // e_version
	le.PutUint64(buf[24:32], 0)        // e_entry
	le.PutUint64(buf[32:40], ehdrSize) // e_phoff
	le.PutUint64(buf[40:48], uint64(shoff))
	le.PutUint32(buf[48:52], 0) // e_flags
	le.PutUint16(buf[52:54], ehdrSize)
	le.PutUint16(buf[54:56], phdrSize)
	le.PutUint16(buf[56:58], 1) // e_phnum
	le.PutUint16(buf[58:60], shdrSize)
	le.PutUint16(buf[60:62], 3) // e_shnum
	le.PutUint16(buf[62:64], 2) // e_shstrndx

	// Program header: PT_LOAD, offset 0, vaddr 0 -- the buggy claim.
	ph := buf[ehdrSize : ehdrSize+phdrSize]
	le.PutUint32(ph[0:4], 1)   // p_type = PT_LOAD
	le.PutUint32(ph[4:8], 5)   // p_flags = R+X
	le.PutUint64(ph[8:16], 0)  // p_offset
	le.PutUint64(ph[16:24], 0) // p_vaddr
	le.PutUint64(ph[24:32], 0) // p_paddr
	le.PutUint64(ph[32:40], uint64(shstrtabOff))
	le.PutUint64(ph[40:48], uint64(shstrtabOff))
	le.PutUint64(ph[48:56], 1) // p_align

	copy(buf[textOff:textOff+textSize], []byte{0x90, 0x90, 0x90, 0x90})
	copy(buf[shstrtabOff:], shstrtab)

	sh := buf[shoff:]
	// Section 0: null, all zero already.
	// Section 1: .text
	s1 := sh[shdrSize : 2*shdrSize]
	le.PutUint32(s1[0:4], 1)  // sh_name -> ".text"
	le.PutUint32(s1[4:8], 1)  // sh_type = SHT_PROGBITS
	le.PutUint64(s1[8:16], 6) // sh_flags = ALLOC|EXECINSTR
	le.PutUint64(s1[16:24], 0)
	le.PutUint64(s1[24:32], uint64(textOff)) // sh_offset -- nonzero
	le.PutUint64(s1[32:40], uint64(textSize))
	le.PutUint64(s1[48:56], 1)

	// Section 2: .shstrtab
	s2 := sh[2*shdrSize : 3*shdrSize]
	le.PutUint32(s2[0:4], 7) // sh_name -> ".shstrtab"
	le.PutUint32(s2[4:8], 3) // sh_type = SHT_STRTAB
	le.PutUint64(s2[24:32], uint64(shstrtabOff))
	le.PutUint64(s2[32:40], uint64(len(shstrtab)))
	le.PutUint64(s2[48:56], 1)

	return buf
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIsJitDumpSOPath(t *testing.T) {
	if !IsJitDumpSOPath("/tmp/jit/jitted-12345-6.so") {
		t.Error("want match")
	}
	if IsJitDumpSOPath("/tmp/libc.so") {
		t.Error("want no match")
	}
}

func TestNeedsRepairDetectsBug(t *testing.T) {
	path := writeTemp(t, "jitted-1-1.so", buildMalformedELF())
	needs, err := NeedsRepair(path)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Error("NeedsRepair = false, want true")
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	path := writeTemp(t, "jitted-2-1.so", buildMalformedELF())

	fixedPath, err := Repair(path)
	if err != nil {
		t.Fatal(err)
	}
	if fixedPath == path {
		t.Fatal("Repair returned the original path for a malformed file")
	}

	needs, err := NeedsRepair(fixedPath)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("fixed file still reports NeedsRepair = true")
	}

	// Running Repair again on the already-fixed file is a no-op
	// (spec invariant 8).
	again, err := Repair(fixedPath)
	if err != nil {
		t.Fatal(err)
	}
	if again != fixedPath {
		t.Errorf("Repair on fixed file = %q, want %q (no-op)", again, fixedPath)
	}
}
