package samplestore

import (
	"github.com/go-prof/profconv/profileout"
	"github.com/go-prof/profconv/rssstat"
)

// Sample is a buffered CPU sample awaiting stack resolution: a
// timestamp, the owning thread, an interned stack handle and a
// sample weight (spec §3, "Unresolved sample/marker buffer keyed by
// stack-intern handles").
type Sample struct {
	Timestamp  uint64
	Thread     profileout.ThreadHandle
	Stack      StackHandle
	Weight     int64
	CPUDeltaNS uint64
}

// RssMarker is a buffered kmem:rss_stat delta, attributed to a
// process-level memory counter rather than a stack (spec §4.1
// RssStat). Counter is the handle the dispatcher already allocated
// for this process/member via procreg.Process.MemoryCounter; Value is
// the new cumulative page count and Delta the change since the prior
// reading.
type RssMarker struct {
	Timestamp uint64
	Counter   profileout.CounterHandle
	Member    rssstat.Member
	Value     int64
	Delta     int64
}

// OtherEventMarker is a buffered non-primary-counter tracepoint
// occurrence (spec §4.1 OtherEventSample): it carries its own stack,
// since any tracepoint sample may include a callchain, and either an
// attr_index into the dispatcher's event_names table or an explicit
// Label (used by RssStat markers, labelled by RSS member rather than
// attr_index), so the name lookup happens once at Finish.
type OtherEventMarker struct {
	Timestamp uint64
	Thread    profileout.ThreadHandle
	AttrIndex int
	Label     string
	Stack     StackHandle
	HasStack  bool
	Weight    int64
}

// Buffer accumulates one process's unresolved samples and markers
// until Store.Finish resolves them into the profile.
type Buffer struct {
	Samples      []Sample
	RssMarkers   []RssMarker
	OtherMarkers []OtherEventMarker
}

// AddSample appends a CPU sample referencing an already-interned
// stack handle.
func (b *Buffer) AddSample(timestamp uint64, thread profileout.ThreadHandle, stack StackHandle, weight int64, cpuDeltaNS uint64) {
	b.Samples = append(b.Samples, Sample{Timestamp: timestamp, Thread: thread, Stack: stack, Weight: weight, CPUDeltaNS: cpuDeltaNS})
}

// AddRssStatMarker appends an RSS counter delta.
func (b *Buffer) AddRssStatMarker(timestamp uint64, counter profileout.CounterHandle, member rssstat.Member, value, delta int64) {
	b.RssMarkers = append(b.RssMarkers, RssMarker{Timestamp: timestamp, Counter: counter, Member: member, Value: value, Delta: delta})
}

// AddOtherEventMarker appends an arbitrary tracepoint occurrence,
// optionally with a resolved stack handle.
func (b *Buffer) AddOtherEventMarker(timestamp uint64, thread profileout.ThreadHandle, attrIndex int, stack StackHandle, hasStack bool, weight int64) {
	b.OtherMarkers = append(b.OtherMarkers, OtherEventMarker{
		Timestamp: timestamp,
		Thread:    thread,
		AttrIndex: attrIndex,
		Stack:     stack,
		HasStack:  hasStack,
		Weight:    weight,
	})
}

// AddLabeledEventMarker appends a tracepoint occurrence labelled with
// an explicit name rather than an attr_index lookup (spec §4.1
// RssStat, "attach a marker with the current stack, labelled by the
// member").
func (b *Buffer) AddLabeledEventMarker(timestamp uint64, thread profileout.ThreadHandle, label string, stack StackHandle, hasStack bool, weight int64) {
	b.OtherMarkers = append(b.OtherMarkers, OtherEventMarker{
		Timestamp: timestamp,
		Thread:    thread,
		AttrIndex: -1,
		Label:     label,
		Stack:     stack,
		HasStack:  hasStack,
		Weight:    weight,
	})
}

// Len reports the total number of buffered entries across all three
// slices, used by callers enforcing the sample store's memory budget.
func (b *Buffer) Len() int {
	return len(b.Samples) + len(b.RssMarkers) + len(b.OtherMarkers)
}
