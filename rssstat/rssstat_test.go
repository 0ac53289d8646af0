package rssstat

import (
	"encoding/binary"
	"testing"
)

func TestParse(t *testing.T) {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], 1234) // mm_id
	binary.LittleEndian.PutUint32(buf[4:8], 1)    // curr
	binary.LittleEndian.PutUint32(buf[8:12], uint32(MemberAnonPages))
	binary.LittleEndian.PutUint64(buf[16:24], 4096)

	stat, err := Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stat.Member != MemberAnonPages {
		t.Errorf("Member = %v, want MemberAnonPages", stat.Member)
	}
	if stat.Size != 4096 {
		t.Errorf("Size = %d, want 4096", stat.Size)
	}
}

func TestParseTooShort(t *testing.T) {
	if _, err := Parse(make([]byte, 4), binary.LittleEndian); err == nil {
		t.Fatal("Parse: want error on short payload, got nil")
	}
}
