package ctxswitch

import "testing"

func TestOffCpuAccounting(t *testing.T) {
	tr := New(1_000_000) // 1ms, event-based default
	var s State

	if g := tr.HandleSample(1000, &s); g != nil {
		t.Fatalf("HandleSample(1000) = %+v, want nil", g)
	}
	if d := tr.ConsumeCPUDelta(&s); d != 0 {
		t.Fatalf("ConsumeCPUDelta after first sample = %d, want 0", d)
	}

	tr.HandleSwitchOut(2000, &s)

	g := tr.HandleSwitchIn(5_001_000, &s)
	if g == nil {
		t.Fatal("HandleSwitchIn: want off-CPU group, got nil")
	}
	if g.Begin != 2000 || g.End != 5_001_000 {
		t.Errorf("group = %+v, want begin=2000 end=5001000", g)
	}
	wantCount := (5_001_000 - uint64(2000)) / 1_000_000
	if g.Count != wantCount {
		t.Errorf("group.Count = %d, want %d", g.Count, wantCount)
	}

	if g2 := tr.HandleSample(5_002_000, &s); g2 != nil {
		t.Fatalf("HandleSample(5002000) = %+v, want nil (already consumed at switch-in)", g2)
	}
	// Nothing consumed the delta at switch-in, so both on-CPU intervals
	// [1000,2000) and [5001000,5002000) have accumulated.
	if d := tr.ConsumeCPUDelta(&s); d != 2000 {
		t.Fatalf("ConsumeCPUDelta after second sample = %d, want 2000", d)
	}
}

func TestEmitOffCpuSamplesTimeBased(t *testing.T) {
	group := OffCpuSampleGroup{Begin: 2000, End: 5000, Count: 3}
	var calls []struct {
		ts     uint64
		delta  uint64
		weight int32
	}
	EmitOffCpuSamples(group, 42, 1, func(ts, delta uint64, weight int32) {
		calls = append(calls, struct {
			ts     uint64
			delta  uint64
			weight int32
		}{ts, delta, weight})
	})
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].ts != 2000 || calls[0].delta != 42 || calls[0].weight != 1 {
		t.Errorf("calls[0] = %+v", calls[0])
	}
	if calls[1].ts != 5000 || calls[1].delta != 0 || calls[1].weight != 2 {
		t.Errorf("calls[1] = %+v", calls[1])
	}
	totalWeight := calls[0].weight + calls[1].weight
	if int64(totalWeight) != int64(group.Count) {
		t.Errorf("total weight = %d, want %d (time-based conservation, spec invariant 5)", totalWeight, group.Count)
	}
}

func TestEmitOffCpuSamplesEventBasedZeroWeight(t *testing.T) {
	group := OffCpuSampleGroup{Begin: 2000, End: 5000, Count: 3}
	var totalWeight int32
	EmitOffCpuSamples(group, 0, 0, func(ts, delta uint64, weight int32) {
		totalWeight += weight
	})
	if totalWeight != 0 {
		t.Errorf("total weight = %d, want 0 (event-based conservation, spec invariant 5)", totalWeight)
	}
}

func TestEmitOffCpuSamplesSingleCount(t *testing.T) {
	group := OffCpuSampleGroup{Begin: 100, End: 200, Count: 1}
	var calls int
	EmitOffCpuSamples(group, 5, 1, func(ts, delta uint64, weight int32) {
		calls++
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no rest sample when count <= 1)", calls)
	}
}
