// Package ctxswitch implements the context-switch / off-CPU
// accounting engine (spec §4.3): per-thread on-/off-CPU bookkeeping,
// and synthesis of off-CPU sample groups covering descheduled
// intervals.
package ctxswitch

// State is the per-thread bookkeeping the tracker needs (spec §4.3,
// "Maintains per-thread state": last-switch-in time, accumulated
// on-CPU nanoseconds since last sample, last-switch-out time).
type State struct {
	onCPUSince    *uint64 // nil while the thread is off-CPU
	switchedOutAt *uint64 // nil unless there's an unconsumed off-CPU interval
	accumulatedNS uint64
}

// OffCpuSampleGroup describes a synthetic batch of samples covering
// the duration a thread was descheduled (spec §3, §4.3.b).
type OffCpuSampleGroup struct {
	Begin, End uint64
	Count      uint64
}

// DefaultOffCPUSamplingIntervalNS is the 1ms default used when
// sampling is event-based (spec §4.3).
const DefaultOffCPUSamplingIntervalNS = uint64(1_000_000)

// Tracker computes off-CPU sample groups given a configured sampling
// interval (spec §4.3: "default 1 ms when sampling is event-based;
// equal to the real sampling interval when time-based").
type Tracker struct {
	offCPUSamplingIntervalNS uint64

	// onDurations/offDurations record every completed on-/off-CPU
	// interval observed across all threads, backing Stats.
	onDurations  []float64
	offDurations []float64
}

// New creates a Tracker configured with the given off-CPU sampling
// interval in nanoseconds. A zero interval is treated as
// DefaultOffCPUSamplingIntervalNS.
func New(offCPUSamplingIntervalNS uint64) *Tracker {
	if offCPUSamplingIntervalNS == 0 {
		offCPUSamplingIntervalNS = DefaultOffCPUSamplingIntervalNS
	}
	return &Tracker{offCPUSamplingIntervalNS: offCPUSamplingIntervalNS}
}

// HandleSample consumes any pending off-CPU interval as of ts, accrues
// on-CPU time since the last accrual point into the thread's running
// total, and resets the accrual point to ts (spec §4.3.a
// handle_sample).
func (t *Tracker) HandleSample(ts uint64, s *State) *OffCpuSampleGroup {
	group := t.consumePendingOffCPU(ts, s)
	t.accrue(ts, s)
	s.onCPUSince = ptr(ts)
	return group
}

// HandleSwitchIn is symmetric to HandleSample: it closes out any
// pending off-CPU interval as of ts and marks the thread on-CPU from
// ts onward (spec §4.3.a handle_switch_in).
func (t *Tracker) HandleSwitchIn(ts uint64, s *State) *OffCpuSampleGroup {
	group := t.consumePendingOffCPU(ts, s)
	s.onCPUSince = ptr(ts)
	return group
}

// HandleSwitchOut accrues any remaining on-CPU time and records the
// switch-out time (spec §4.3.a handle_switch_out).
func (t *Tracker) HandleSwitchOut(ts uint64, s *State) {
	t.accrue(ts, s)
	s.onCPUSince = nil
	s.switchedOutAt = ptr(ts)
}

// ConsumeCPUDelta returns and resets the accumulated on-CPU
// nanoseconds (spec §4.3.a consume_cpu_delta).
func (t *Tracker) ConsumeCPUDelta(s *State) uint64 {
	d := s.accumulatedNS
	s.accumulatedNS = 0
	return d
}

func (t *Tracker) accrue(ts uint64, s *State) {
	if s.onCPUSince != nil && ts > *s.onCPUSince {
		delta := ts - *s.onCPUSince
		s.accumulatedNS += delta
		t.onDurations = append(t.onDurations, float64(delta))
	}
}

// consumePendingOffCPU computes and clears the pending off-CPU
// interval, if any, ending at ts.
func (t *Tracker) consumePendingOffCPU(ts uint64, s *State) *OffCpuSampleGroup {
	if s.switchedOutAt == nil {
		return nil
	}
	begin := *s.switchedOutAt
	s.switchedOutAt = nil
	if ts <= begin {
		return &OffCpuSampleGroup{Begin: begin, End: ts, Count: 0}
	}
	duration := ts - begin
	t.offDurations = append(t.offDurations, float64(duration))
	count := duration / t.offCPUSamplingIntervalNS
	return &OffCpuSampleGroup{Begin: begin, End: ts, Count: count}
}

func ptr(v uint64) *uint64 { return &v }

// EmitOffCpuSamples computes the one-or-two synthetic samples for an
// off-CPU group (spec §4.3.b), invoking addSample(timestamp,
// cpuDeltaNS, weight) in begin-then-end order.
func EmitOffCpuSamples(group OffCpuSampleGroup, leftoverCPUDeltaNS uint64, perSampleWeight int32, addSample func(timestamp uint64, cpuDeltaNS uint64, weight int32)) {
	addSample(group.Begin, leftoverCPUDeltaNS, perSampleWeight)
	if group.Count > 1 {
		rest := group.Count - 1
		weight := saturatingMul32(rest, perSampleWeight)
		addSample(group.End, 0, weight)
	}
}

// saturatingMul32 computes count * perSample, saturating to 0 on
// overflow of an int32 (spec §4.3.b: "Overflow of the multiplication
// saturates to zero").
func saturatingMul32(count uint64, perSample int32) int32 {
	if perSample == 0 || count == 0 {
		return 0
	}
	product := int64(count) * int64(perSample)
	const maxInt32 = int64(1<<31 - 1)
	const minInt32 = -int64(1 << 31)
	if product > maxInt32 || product < minInt32 {
		return 0
	}
	return int32(product)
}
