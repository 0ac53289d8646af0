// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-prof/profconv/dispatcher"
	"github.com/go-prof/profconv/dsokey"
	"github.com/go-prof/profconv/internal/perffile"
	"github.com/go-prof/profconv/profileout"
	"github.com/go-prof/profconv/unwind"
)

func main() {
	var (
		flagInput      = flag.String("i", "perf.data", "input perf.data `file`")
		flagOutput     = flag.String("o", "profile.pb.gz", "output pprof `file`")
		flagOrder      = flag.String("order", "time", "sort `order`; one of: file, time, causal")
		flagEventNames = flag.String("event-names", "", "comma-separated names for each event attr, in the order they appear in the file's event list; a tracepoint named \"sched:sched_switch\" or \"kmem:rss_stat\" is routed specially")
		flagUnwind     = flag.Bool("unwind", true, "reconstruct user stacks with frame-pointer unwinding")
		flagThreads    = flag.Bool("merge-threads", true, "allow a same-named thread to reuse a recently exited thread's identity")
	)
	flag.Parse()

	order, ok := parseOrder(*flagOrder)
	if flag.NArg() > 0 || !ok {
		flag.Usage()
		os.Exit(1)
	}

	f, err := perffile.Open(*flagInput)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	idx := newEventIndex(f)
	names := make([]string, len(f.Events))
	for i, name := range strings.Split(*flagEventNames, ",") {
		if i < len(names) {
			names[i] = strings.TrimSpace(name)
		}
	}

	prof := profileout.NewBuilder()
	d := dispatcher.New(prof)
	d.EventNames = names
	d.BuildIDs = buildIDTable(f)
	d.ThreadMergingEnabled = *flagThreads
	if *flagUnwind {
		d.NewUnwinder = func() unwind.Unwinder { return unwind.NewFPWalker() }
	}

	rs := f.Records(order)
	for rs.Next() {
		dispatchRecord(d, rs.Record, idx, names)
	}
	if err := rs.Err(); err != nil {
		log.Fatal(err)
	}

	result := d.Finish()

	out, err := os.Create(*flagOutput)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()
	if err := result.Write(out); err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d samples to %s\n", len(result.Sample), *flagOutput)
}

// dispatchRecord translates one perffile.Record into its perfevent
// shape and routes it to the matching Dispatcher method (spec §4.1).
// Record kinds the spec doesn't model (lost-event markers, aux
// traces, BPF/ksymbol registrations, and the like) are dropped.
func dispatchRecord(d *dispatcher.Dispatcher, r perffile.Record, idx eventIndex, names []string) {
	switch rec := r.(type) {
	case *perffile.RecordSample:
		dispatchSample(d, rec, idx, names)
	case *perffile.RecordMmap:
		mmap, mmap2 := translateMmapOrMmap2(rec)
		if mmap2 != nil {
			d.DispatchMmap2(mmap2)
		} else {
			d.DispatchMmap(mmap)
		}
	case *perffile.RecordComm:
		d.DispatchCommOrExec(translateComm(rec))
	case *perffile.RecordFork:
		d.DispatchFork(translateFork(rec))
	case *perffile.RecordExit:
		d.DispatchExit(translateExit(rec))
	case *perffile.RecordSwitch:
		d.DispatchContextSwitch(translateSwitch(rec))
	case *perffile.RecordSwitchCPUWide:
		d.DispatchContextSwitch(translateSwitchCPUWide(rec))
	}
}

// dispatchSample routes a decoded sample to the plain CPU-sample path,
// the sched-switch off-CPU-stack path, the rss_stat memory-counter
// path, or the generic other-event path, depending on the tracepoint
// name configured for its attr (SPEC_FULL §C.1).
func dispatchSample(d *dispatcher.Dispatcher, rec *perffile.RecordSample, idx eventIndex, names []string) {
	sample := translateSample(rec)

	if !isTracepoint(rec) {
		d.DispatchSample(sample)
		return
	}

	i, ok := idx.indexOf(rec.EventAttr)
	var name string
	if ok && i < len(names) {
		name = names[i]
	}

	switch name {
	case "sched:sched_switch":
		d.DispatchSchedSwitch(sample)
	case "kmem:rss_stat":
		d.DispatchRssStat(sample)
	default:
		d.DispatchOtherEventSample(sample, i)
	}
}

func isTracepoint(rec *perffile.RecordSample) bool {
	if rec.EventAttr == nil {
		return false
	}
	return rec.EventAttr.Event.Generic().Type == perffile.EventTypeTracepoint
}

// buildIDTable adapts a perf.data file's HEADER_BUILD_ID feature
// section into the dsokey.Table the dispatcher resolves Mmap2 records
// without an inline build id against (spec §6.3).
func buildIDTable(f *perffile.File) dsokey.Table {
	table := make(dsokey.Table, len(f.Meta.BuildIDs))
	for _, bid := range f.Meta.BuildIDs {
		key, ok := dsokey.Detect([]byte(bid.Filename), cpuMode(bid.CPUMode))
		if !ok {
			continue
		}
		table[key] = dsokey.BuildInfo{BuildID: []byte(bid.BuildID), Path: bid.Filename}
	}
	return table
}

func parseOrder(order string) (perffile.RecordsOrder, bool) {
	switch order {
	case "file":
		return perffile.RecordsFileOrder, true
	case "time":
		return perffile.RecordsTimeOrder, true
	case "causal":
		return perffile.RecordsCausalOrder, true
	}
	return 0, false
}
