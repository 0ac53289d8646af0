// Package perfevent defines the typed record shapes that the core
// dispatcher consumes (spec §6.3). Decoding a raw "perf.data" byte
// stream into these shapes is the job of an upstream reader/demuxer
// (see cmd/profconv, which adapts github.com/aclements/go-perf's
// perffile package); this package only defines the contract.
package perfevent

// CPUMode records which privilege level a sampled or unwound address
// belongs to.
type CPUMode uint8

const (
	CPUModeUnknown CPUMode = iota
	CPUModeKernel
	CPUModeUser
	CPUModeHypervisor
	CPUModeGuestKernel
	CPUModeGuestUser
)

// ContextMarkerThreshold is PERF_CONTEXT_MAX from
// include/uapi/linux/perf_event.h: callchain entries at or above this
// value are sentinels that switch the current stack mode rather than
// real addresses.
const ContextMarkerThreshold = uint64(0xfffffffffffff001) // (__u64)-4095

// perf_event.h PERF_CONTEXT_* constants: small negative values cast to
// u64, written here as bitwise complements (^uint64(n) == -(n+1)).
const (
	contextHV          = ^uint64(31)   // -32
	contextKernel      = ^uint64(127)  // -128
	contextUser        = ^uint64(511)  // -512
	contextGuest       = ^uint64(2047) // -2048
	contextGuestKernel = ^uint64(2175) // -2176
	contextGuestUser   = ^uint64(2559) // -2560
)

// ModeFromContextFrame maps a PERF_CONTEXT_* sentinel callchain entry
// to the CPUMode it selects. It returns (_, false) for values that
// aren't a recognized context marker.
func ModeFromContextFrame(address uint64) (CPUMode, bool) {
	switch address {
	case contextHV:
		return CPUModeHypervisor, true
	case contextKernel:
		return CPUModeKernel, true
	case contextUser:
		return CPUModeUser, true
	case contextGuestKernel:
		return CPUModeGuestKernel, true
	case contextGuestUser:
		return CPUModeGuestUser, true
	case contextGuest:
		return CPUModeUnknown, true
	default:
		return CPUModeUnknown, false
	}
}
