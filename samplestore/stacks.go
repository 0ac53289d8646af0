// Package samplestore implements the sample store (spec §3,
// "Unresolved sample/marker buffer keyed by stack-intern handles"):
// an UnresolvedStacks intern table that deduplicates stack sequences,
// and per-process UnresolvedSamples buffers of samples and markers
// that reference those interned stacks until finish() resolves them
// into frame sequences the profile collaborator can consume.
package samplestore

import (
	"strconv"
	"strings"

	"github.com/go-prof/profconv/stackwalk"
)

// StackHandle is a stable reference to one interned stack.
type StackHandle uint32

// UnresolvedStacks deduplicates stack sequences into stable handles
// (spec §3 UnresolvedStacks). Internally stacks are kept in
// caller-to-callee order per the spec's description of the table;
// Intern/Frames translate to and from the callee-first order the rest
// of the core (stackwalk, profileout) uses.
type UnresolvedStacks struct {
	byKey  map[string]StackHandle
	stacks [][]stackwalk.Frame // caller-to-callee
}

// NewUnresolvedStacks creates an empty intern table.
func NewUnresolvedStacks() *UnresolvedStacks {
	return &UnresolvedStacks{byKey: make(map[string]StackHandle)}
}

// Intern deduplicates a callee-first frame sequence and returns a
// stable handle.
func (s *UnresolvedStacks) Intern(calleeFirst []stackwalk.Frame) StackHandle {
	key := stackKey(calleeFirst)
	if h, ok := s.byKey[key]; ok {
		return h
	}
	reversed := make([]stackwalk.Frame, len(calleeFirst))
	for i, f := range calleeFirst {
		reversed[len(calleeFirst)-1-i] = f
	}
	h := StackHandle(len(s.stacks))
	s.stacks = append(s.stacks, reversed)
	s.byKey[key] = h
	return h
}

// Frames returns the callee-first frame sequence for handle h.
func (s *UnresolvedStacks) Frames(h StackHandle) []stackwalk.Frame {
	reversed := s.stacks[h]
	out := make([]stackwalk.Frame, len(reversed))
	for i, f := range reversed {
		out[len(reversed)-1-i] = f
	}
	return out
}

// Len reports how many distinct stacks have been interned.
func (s *UnresolvedStacks) Len() int {
	return len(s.stacks)
}

func stackKey(frames []stackwalk.Frame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(strconv.FormatUint(f.Address, 16))
		b.WriteByte(':')
		b.WriteByte(byte(f.Mode))
		b.WriteByte(':')
		b.WriteByte(byte(f.Kind))
		b.WriteByte(',')
	}
	return b.String()
}
