// Package rssstat parses the raw tracepoint payload of a
// "kmem:rss_stat" sample (spec §4.1 RssStat). Fields are read at
// fixed offsets with an explicit byte order; unlike the teacher's
// perffile.bufDecoder (internal/perffile/bufdecoder.go), no cursor is
// advanced.
package rssstat

import (
	"encoding/binary"
	"fmt"
)

// Member identifies which resident-memory counter an RssStat record
// updates (spec Data Model invariant 5).
type Member uint32

const (
	MemberFilePages Member = iota
	MemberAnonPages
	MemberShmemPages
	MemberSwapEnts
)

// Stat is the decoded payload: which member changed, and its new
// cumulative size in pages.
type Stat struct {
	Member Member
	Size   int64
}

// tracepoint format for kmem:rss_stat, as laid out by the kernel's
// TP_STRUCT__entry: a common field header (we don't need it), then
// `int mm_id`, `unsigned int curr`, `int member`, `long size`. Real
// perf.data tracepoint records prefix this with the format's common
// fields, whose length varies by kernel. Callers of Parse pass the
// already-offset payload (past the common fields), as decided by the
// caller's tracepoint-format metadata — see dispatcher.rssPayload.
const payloadLen = 4 + 4 + 4 + 4 + 8 // mm_id, curr, member, padding to align size, size

// Parse decodes an RssStat payload using the given byte order.
// Malformed or short payloads are a silent-skip condition per spec §7
// ("Payload-parse failures"): the caller drops the record.
func Parse(raw []byte, order binary.ByteOrder) (Stat, error) {
	if len(raw) < payloadLen {
		return Stat{}, fmt.Errorf("rssstat: payload too short: %d bytes", len(raw))
	}
	// Skip mm_id (4 bytes) and curr (4 bytes); we only care about
	// member and size.
	member := order.Uint32(raw[8:12])
	size := int64(order.Uint64(raw[16:24]))
	return Stat{Member: Member(member), Size: size}, nil
}
