package ctxswitch

import "github.com/aclements/go-moremath/stats"

// DurationSummary is a descriptive summary of a set of observed
// on-/off-CPU interval lengths, in nanoseconds.
type DurationSummary struct {
	Count  int
	Mean   float64
	StdDev float64
}

// Stats summarizes every on-CPU and off-CPU interval the Tracker has
// closed out so far, across every thread it has been used for. This
// is bookkeeping for the demonstration binary's summary output, not
// anything the conversion itself depends on.
type Stats struct {
	OnCPU  DurationSummary
	OffCPU DurationSummary
}

// Stats reports the current on-/off-CPU duration distributions.
func (t *Tracker) Stats() Stats {
	return Stats{
		OnCPU:  summarize(t.onDurations),
		OffCPU: summarize(t.offDurations),
	}
}

func summarize(xs []float64) DurationSummary {
	if len(xs) == 0 {
		return DurationSummary{}
	}
	sample := stats.Sample{Xs: xs}
	return DurationSummary{
		Count:  len(xs),
		Mean:   sample.Mean(),
		StdDev: sample.StdDev(),
	}
}
