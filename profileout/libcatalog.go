package profileout

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// debugIDNamespace seeds synthetic debug-id derivation; any fixed
// namespace works since we only need stability across a run, not
// cross-run stability with a real symbol server.
var debugIDNamespace = uuid.MustParse("d6e8f9a0-1f2e-4b3c-8a9d-0123456789ab")

// DebugIDFromBuildID derives a debug id from an object's build id and
// byte order, following the convention of folding endianness into the
// id since build ids themselves don't encode it (spec §4.4 step 10,
// "a debug id... combined with endianness").
func DebugIDFromBuildID(buildID []byte, littleEndian bool) string {
	tagged := make([]byte, len(buildID)+1)
	copy(tagged, buildID)
	if littleEndian {
		tagged[len(buildID)] = 1
	}
	return hex.EncodeToString(tagged)
}

// CodeIDFromBuildID is the hex encoding of the raw build id (spec
// §4.4 step 10, "hex of build id").
func CodeIDFromBuildID(buildID []byte) string {
	return hex.EncodeToString(buildID)
}

// SyntheticDebugID derives a stable debug id for a binary that has no
// build-id note, by hashing its path and size into a SHA1-based UUID
// (opt-in: most binaries do carry a build id, and callers should only
// reach for this when objfile.Loader.SynthesizeMissingDebugID is set).
func SyntheticDebugID(path string, size uint64) string {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, size)
	name := append([]byte(path), buf...)
	id := uuid.NewSHA1(debugIDNamespace, name)
	return id.String()
}
