// Package timestamp converts monotonic perf-clock nanosecond
// timestamps into wall-clock time, anchored at the first sample seen
// in the stream (spec §2, "Timestamp converter").
package timestamp

import "time"

// Converter maps a monotonic record timestamp (nanoseconds, as found
// in perf sample_id.time) to a wall-clock time.Time. It is anchored
// once, at construction, to the timestamp of the first sample the
// caller observed — the core does not know the wall-clock time the
// recording started, only that "now" (profile construction time)
// corresponds to some known mono timestamp.
type Converter struct {
	referenceMono uint64
	referenceWall time.Time
}

// WithReferenceTimestamp anchors the converter: firstSampleMono is the
// monotonic timestamp of the first sample in the stream, which is
// defined to map to the wall-clock instant the caller supplies as
// referenceWall (typically time.Now() at profile-construction time).
func WithReferenceTimestamp(firstSampleMono uint64, referenceWall time.Time) *Converter {
	return &Converter{referenceMono: firstSampleMono, referenceWall: referenceWall}
}

// Convert maps a monotonic timestamp to wall-clock time. Timestamps
// before the reference produce a time before referenceWall; the
// mapping is a pure linear shift, matching the 1:1 nanosecond
// correspondence of the underlying clock.
func (c *Converter) Convert(mono uint64) time.Time {
	delta := int64(mono) - int64(c.referenceMono)
	return c.referenceWall.Add(time.Duration(delta))
}
