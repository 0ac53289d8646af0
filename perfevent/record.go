package perfevent

// Sample is a PERF_RECORD_SAMPLE record that carries period/counter
// data, a kernel callchain, and/or raw user stack bytes for DWARF
// unwinding (spec §6.3).
type Sample struct {
	PID, TID  int32
	Timestamp uint64
	CPUMode   CPUMode

	// Callchain is the kernel-synthesized frame address array, or nil.
	// Entries >= ContextMarkerThreshold are mode-switch sentinels, not
	// addresses (spec §4.2 step 2).
	Callchain []uint64

	// UserRegs is the ABI register snapshot captured at sample time for
	// DWARF unwinding, or nil if the sample wasn't recorded with
	// --call-graph dwarf.
	UserRegs []uint64

	// UserStack is the raw bytes copied off the top of the user stack
	// for DWARF unwinding, and UserStackDynSize is the portion of it
	// that was actually live stack (the rest may be padding).
	UserStack        []byte
	UserStackDynSize uint64

	// IP is the sampled instruction pointer, used as a last-resort
	// single frame when no callchain or DWARF unwind is available.
	IP *uint64

	// Period is the raw counter period for this sample, used as a
	// CPU-delta fallback when context switches aren't available
	// (spec §4.1 step 4, §9).
	Period *uint64

	// Raw carries the tracepoint payload for RssStat and other
	// raw-sample-shaped records.
	Raw []byte
}

// Mmap is a PERF_RECORD_MMAP record: an executable-or-not mapping
// change for a process, reported with page-granularity fields only
// (no build id; see Mmap2 for that).
type Mmap struct {
	PID, TID     int32
	Address      uint64
	Length       uint64
	PageOffset   uint64
	CPUMode      CPUMode
	Path         []byte
	IsExecutable bool
}

// Mmap2FileID is either an inline build id or an (inode, generation)
// pair that must be resolved through a DSO-key build-id table.
type Mmap2FileID struct {
	BuildID        []byte // nil if not present
	Inode, InoGen  uint64
	HasInodeAndGen bool
}

// Mmap2 is a PERF_RECORD_MMAP2 record: a richer mapping change that
// usually carries a build id directly.
type Mmap2 struct {
	PID, TID   int32
	Address    uint64
	Length     uint64
	PageOffset uint64
	CPUMode    CPUMode
	Path       []byte
	Protection uint32 // PROT_* bits; PROT_EXEC = 0x4
	FileID     Mmap2FileID
}

// ContextSwitchDirection distinguishes a thread being scheduled onto
// versus off of a CPU.
type ContextSwitchDirection uint8

const (
	ContextSwitchOut ContextSwitchDirection = iota
	ContextSwitchIn
)

// ContextSwitch is a PERF_RECORD_SWITCH[_CPU_WIDE] record.
type ContextSwitch struct {
	PID, TID  int32
	Timestamp uint64
	Direction ContextSwitchDirection
}

// Fork is a PERF_RECORD_FORK record, emitted for both new-process and
// new-thread creation (spec §4.1 Fork).
type Fork struct {
	PID, PPID int32
	TID, PTID int32
	Timestamp uint64
}

// Exit is a PERF_RECORD_EXIT record, emitted for both process and
// thread termination (spec §4.1 Exit).
type Exit struct {
	PID, PPID int32
	TID, PTID int32
	Timestamp uint64
}

// CommOrExec is a PERF_RECORD_COMM record: a thread (re)naming, with
// IsExecve set when the name change is due to an execve() rather than
// a plain prctl(PR_SET_NAME).
type CommOrExec struct {
	PID, TID int32
	Name     []byte
	IsExecve bool

	// Timestamp is the record's own timestamp, if the kernel attached
	// a sample_id trailer. Nil when unavailable; the dispatcher then
	// falls back to the last observed sample timestamp (spec §4.1
	// CommOrExec, S6).
	Timestamp *uint64
}
