package main

import (
	"testing"

	"github.com/go-prof/profconv/internal/perffile"
	"github.com/go-prof/profconv/perfevent"
)

func TestTranslateMmapPlain(t *testing.T) {
	r := &perffile.RecordMmap{
		RecordCommon: perffile.RecordCommon{PID: 100, TID: 100},
		Data:         false,
		Addr:         0x1000,
		Len:          0x2000,
		FileOffset:   0,
		Filename:     "/usr/bin/foo",
	}

	mmap, mmap2 := translateMmapOrMmap2(r)
	if mmap2 != nil {
		t.Fatalf("got Mmap2, want plain Mmap for a record with no build id or inode")
	}
	if mmap == nil {
		t.Fatal("got nil Mmap")
	}
	if mmap.PID != 100 || mmap.Address != 0x1000 || mmap.Length != 0x2000 {
		t.Errorf("mmap = %+v, want PID=100 Address=0x1000 Length=0x2000", mmap)
	}
	if !mmap.IsExecutable {
		t.Error("IsExecutable = false, want true (Data = false)")
	}
	if string(mmap.Path) != "/usr/bin/foo" {
		t.Errorf("Path = %q, want /usr/bin/foo", mmap.Path)
	}
}

func TestTranslateMmap2WithBuildID(t *testing.T) {
	r := &perffile.RecordMmap{
		RecordCommon: perffile.RecordCommon{PID: 100, TID: 100},
		Data:         false,
		Addr:         0x1000,
		Len:          0x2000,
		BuildID:      []byte{1, 2, 3, 4},
		Filename:     "/usr/bin/foo",
	}

	mmap, mmap2 := translateMmapOrMmap2(r)
	if mmap != nil {
		t.Fatalf("got plain Mmap, want Mmap2 for a record with a build id")
	}
	if mmap2 == nil {
		t.Fatal("got nil Mmap2")
	}
	if len(mmap2.FileID.BuildID) != 4 {
		t.Errorf("BuildID = %v, want 4 bytes", mmap2.FileID.BuildID)
	}
	if mmap2.Protection&0x4 == 0 {
		t.Error("Protection missing PROT_EXEC for an executable (Data = false) mapping")
	}
}

func TestTranslateMmap2WithoutBuildIDFallsBackToInode(t *testing.T) {
	r := &perffile.RecordMmap{
		RecordCommon:  perffile.RecordCommon{PID: 100, TID: 100},
		Ino:           42,
		InoGeneration: 1,
		Filename:      "/usr/bin/foo",
	}

	_, mmap2 := translateMmapOrMmap2(r)
	if mmap2 == nil {
		t.Fatal("got nil Mmap2")
	}
	if !mmap2.FileID.HasInodeAndGen {
		t.Error("HasInodeAndGen = false, want true when no build id is present")
	}
	if mmap2.FileID.Inode != 42 {
		t.Errorf("Inode = %d, want 42", mmap2.FileID.Inode)
	}
}

func TestTranslateCommExecUsesTrailerTimestampWhenPresent(t *testing.T) {
	r := &perffile.RecordComm{
		RecordCommon: perffile.RecordCommon{PID: 1, TID: 1, Time: 555, Format: perffile.SampleFormatTime},
		Exec:         true,
		Comm:         "foo",
	}

	c := translateComm(r)
	if !c.IsExecve {
		t.Error("IsExecve = false, want true")
	}
	if c.Timestamp == nil || *c.Timestamp != 555 {
		t.Errorf("Timestamp = %v, want pointer to 555", c.Timestamp)
	}
}

func TestTranslateCommWithoutTrailerTimestampIsNil(t *testing.T) {
	r := &perffile.RecordComm{
		RecordCommon: perffile.RecordCommon{PID: 1, TID: 1},
		Comm:         "foo",
	}

	c := translateComm(r)
	if c.Timestamp != nil {
		t.Errorf("Timestamp = %v, want nil (no sample_id trailer)", *c.Timestamp)
	}
}

func TestTranslateSwitchDirection(t *testing.T) {
	out := translateSwitch(&perffile.RecordSwitch{Out: true})
	if out.Direction != perfevent.ContextSwitchOut {
		t.Errorf("Out=true translated to direction %v, want ContextSwitchOut", out.Direction)
	}
	in := translateSwitch(&perffile.RecordSwitch{Out: false})
	if in.Direction != perfevent.ContextSwitchIn {
		t.Errorf("Out=false translated to direction %v, want ContextSwitchIn", in.Direction)
	}
}

func TestEventIndexRoundTrip(t *testing.T) {
	a, b := &perffile.EventAttr{}, &perffile.EventAttr{}
	f := &perffile.File{Events: []*perffile.EventAttr{a, b}}
	idx := newEventIndex(f)

	if i, ok := idx.indexOf(a); !ok || i != 0 {
		t.Errorf("indexOf(a) = (%d, %v), want (0, true)", i, ok)
	}
	if i, ok := idx.indexOf(b); !ok || i != 1 {
		t.Errorf("indexOf(b) = (%d, %v), want (1, true)", i, ok)
	}
	if _, ok := idx.indexOf(&perffile.EventAttr{}); ok {
		t.Error("indexOf on an unregistered attr pointer should report false")
	}
}
