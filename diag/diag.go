// Package diag implements the diagnostic-reporting half of the error
// taxonomy in spec §7: mapping-fatal-record-ignored conditions and
// unexpected-invariant-violation conditions are reported once to a
// sink rather than aborting the conversion. The teacher
// (github.com/aclements/go-perf) has no such package of its own — its
// commands just fmt.Fprintf to os.Stderr (see cmd/dump/main.go) — so
// this is a thin generalization of that texture into something the
// core can depend on without importing os directly.
package diag

import "fmt"

// Sink receives diagnostic messages emitted while converting a
// record stream. A nil Sink is valid and discards everything.
type Sink interface {
	Diagf(format string, args ...interface{})
}

// Discard is a Sink that drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Diagf(string, ...interface{}) {}

// Func adapts a plain function to the Sink interface.
type Func func(string, ...interface{})

func (f Func) Diagf(format string, args ...interface{}) { f(format, args...) }

// Report writes to sink, tolerating a nil sink.
func Report(sink Sink, format string, args ...interface{}) {
	if sink == nil {
		return
	}
	sink.Diagf(format, args...)
}

// Fatal is the error type used for spec §7's "missing required sample
// fields" class: contract violations by the upstream reader that
// abort only the offending record; never the whole session.
type Fatal struct {
	Record string
	Reason string
}

func (e *Fatal) Error() string {
	return fmt.Sprintf("%s: %s", e.Record, e.Reason)
}

// NewFatal builds a Fatal diagnostic for a record of the given kind.
func NewFatal(record, reason string) *Fatal {
	return &Fatal{Record: record, Reason: reason}
}
