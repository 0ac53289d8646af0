package pecorrelate

import "testing"

func TestIsPECandidatePath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/home/user/.wine/drive_c/windows/system32/ntdll.dll", true},
		{"C:\\Program Files\\app\\App.EXE", true},
		{"/lib/x86_64-linux-gnu/libc.so.6", false},
		{"app.DLL", true},
	}
	for _, c := range cases {
		if got := IsPECandidatePath([]byte(c.path)); got != c.want {
			t.Errorf("IsPECandidatePath(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestTableInsertAndLookup(t *testing.T) {
	var tbl Table
	tbl.insert(SuspectedMapping{Path: "a.dll", Start: 0x10000, Size: 0x4000})
	tbl.insert(SuspectedMapping{Path: "b.dll", Start: 0x1000, Size: 0x2000})
	tbl.insert(SuspectedMapping{Path: "c.dll", Start: 0x20000, Size: 0x1000})

	m, ok := tbl.Lookup(0x11000, 0x100)
	if !ok || m.Path != "a.dll" {
		t.Fatalf("Lookup(0x11000) = %+v, %v, want a.dll", m, ok)
	}

	// Query entirely within b's range.
	m, ok = tbl.Lookup(0x1500, 0x10)
	if !ok || m.Path != "b.dll" {
		t.Fatalf("Lookup(0x1500) = %+v, %v, want b.dll", m, ok)
	}

	// Query below the first entry: no candidate.
	if _, ok := tbl.Lookup(0x500, 0x10); ok {
		t.Error("Lookup below first entry should fail")
	}

	// Query that falls in the gap between b's end (0x3000) and a's
	// start (0x10000): greatest-key-<=-start is b, but b does not
	// contain it, so no other candidate may match (invariant 7).
	if _, ok := tbl.Lookup(0x5000, 0x10); ok {
		t.Error("Lookup in gap between ranges should fail, not fall through to a later entry")
	}

	// Query that overruns the end of its containing candidate.
	if _, ok := tbl.Lookup(0x20000, 0x2000); ok {
		t.Error("Lookup exceeding candidate size should fail")
	}
}

func TestTableInsertReplacesSameStart(t *testing.T) {
	var tbl Table
	tbl.insert(SuspectedMapping{Path: "old.dll", Start: 0x1000, Size: 0x1000})
	tbl.insert(SuspectedMapping{Path: "new.dll", Start: 0x1000, Size: 0x2000})
	if len(tbl.entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(tbl.entries))
	}
	if tbl.entries[0].Path != "new.dll" {
		t.Errorf("entries[0].Path = %q, want new.dll", tbl.entries[0].Path)
	}
}
