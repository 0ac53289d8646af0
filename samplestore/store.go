package samplestore

import (
	"github.com/go-prof/profconv/profileout"
	"github.com/go-prof/profconv/stackwalk"
)

// Store owns the stack intern table and one Buffer per pid. It exists
// so the dispatcher can intern a stack once and buffer samples/markers
// against it across many records without resolving addresses to
// library/function names until the very end (spec §3, "Sample store").
type Store struct {
	Stacks  *UnresolvedStacks
	buffers map[int32]*Buffer
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{Stacks: NewUnresolvedStacks(), buffers: make(map[int32]*Buffer)}
}

// Buffer returns the buffer for pid, creating it on first use.
func (s *Store) Buffer(pid int32) *Buffer {
	b, ok := s.buffers[pid]
	if !ok {
		b = &Buffer{}
		s.buffers[pid] = b
	}
	return b
}

// Intern deduplicates a callee-first frame sequence into a stable
// handle, shared across every process's buffer.
func (s *Store) Intern(calleeFirst []stackwalk.Frame) StackHandle {
	return s.Stacks.Intern(calleeFirst)
}

// FrameResolver maps one assembled frame, in the context of pid, to
// the (library, address, name) triple the profile collaborator wants.
// It is supplied by the caller because only the caller (via the
// per-process unwinder's module list and the object-file loader's
// library catalog) knows which library backs a given address.
type FrameResolver func(pid int32, f stackwalk.Frame) profileout.FrameRef

// ProcessHandles maps a pid to the profile handles the dispatcher
// allocated for it and its threads, so Finish can emit samples without
// the store needing to track profile handles itself.
type ProcessHandles interface {
	ProcessHandle(pid int32) (profileout.ProcessHandle, bool)
}

// Finish drains every buffered sample and marker into prof, resolving
// each interned stack's frames via resolve. Buffers and the intern
// table are left intact; callers that want a one-shot drain should
// discard the Store afterward.
func (s *Store) Finish(prof *profileout.Builder, handles ProcessHandles, eventNames []string, resolve FrameResolver) {
	for pid, buf := range s.buffers {
		proc, ok := handles.ProcessHandle(pid)
		if !ok {
			continue
		}
		for _, sm := range buf.Samples {
			frames := s.resolveFrames(pid, sm.Stack, resolve)
			prof.AddSample(proc, sm.Thread, sm.Timestamp, sm.Weight, sm.CPUDeltaNS, frames)
		}
		for _, m := range buf.OtherMarkers {
			var frames []profileout.FrameRef
			if m.HasStack {
				frames = s.resolveFrames(pid, m.Stack, resolve)
			}
			name := "unknown"
			switch {
			case m.Label != "":
				name = m.Label
			case m.AttrIndex >= 0 && m.AttrIndex < len(eventNames):
				name = eventNames[m.AttrIndex]
			}
			prof.AddEventSample(proc, m.Thread, m.Timestamp, m.Weight, name, frames)
		}
		for _, rs := range buf.RssMarkers {
			prof.AddCounterSample(rs.Counter, rs.Timestamp, rs.Delta, rs.Delta)
		}
	}
}

func (s *Store) resolveFrames(pid int32, h StackHandle, resolve FrameResolver) []profileout.FrameRef {
	frames := s.Stacks.Frames(h)
	out := make([]profileout.FrameRef, len(frames))
	for i, f := range frames {
		out[i] = resolve(pid, f)
	}
	return out
}
