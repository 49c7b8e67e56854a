// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfbench

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aclements/go-papi/papi"
)

// A metric is an event reported as unit/op.
type metric struct {
	code papi.EventCode
	unit string
}

var defaultMetrics = []metric{
	{papi.TOTCYC, "cpu-cycles"},
	{papi.TOTINS, "instructions"},
	{papi.L3TCM, "cache-misses"},
	{papi.BRMSP, "branch-misses"},
}

// Counters is a set of performance counters that will be reported in benchmark
// results.
type Counters struct {
	b   testingB
	bN  int
	lib *papi.Library
	es  papi.EventSet

	metrics []metric // The members of es, in order
	total   []int64  // Counts accumulated while stopped
	running bool
}

// testingB is the *testing.B interface needed by Counters. Used for testing.
type testingB interface {
	ReportMetric(n float64, unit string)
	Logf(format string, args ...any)
	Cleanup(func())
}

var errNoSubsystem = errors.New("perfbench: no counter subsystem on this platform")

// library is the process-wide counter subsystem.
var library = sync.OnceValues(func() (*papi.Library, error) {
	b := newBackend()
	if b == nil {
		return nil, errNoSubsystem
	}
	lib := papi.New(b)
	if _, err := lib.Init(papi.VersionCurrent); err != nil {
		return nil, err
	}
	return lib, nil
})

var printUnits = sync.OnceFunc(func() {
	// Print unit metadata.
	for _, m := range defaultMetrics {
		// Currently all events are better=lower.
		fmt.Printf("Unit %s better=lower\n", m.unit)
	}
	fmt.Printf("\n")
})

var openErrors sync.Map

// logOnce logs msg to b unless it has already been logged, to avoid flooding
// the benchmark log.
func logOnce(b testingB, msg string) {
	if _, prev := openErrors.Swap(msg, true); !prev {
		b.Logf("%s", msg)
	}
}

func open(b testingB, bN int, lib *papi.Library) *Counters {
	es, err := lib.CreateEventSet()
	if err != nil {
		logOnce(b, fmt.Sprintf("error creating event set: %v", err))
		return nil
	}
	cs := &Counters{b: b, bN: bN, lib: lib, es: es}
	for _, m := range defaultMetrics {
		if err := lib.AddEvent(es, m.code); err != nil {
			logOnce(b, fmt.Sprintf("error opening counter %s: %v", m.unit, err))
			continue
		}
		cs.metrics = append(cs.metrics, m)
	}
	cs.total = make([]int64, len(cs.metrics))

	b.Cleanup(cs.close)

	// Start all of the counters.
	cs.Start()

	return cs
}

func (cs *Counters) Start() {
	if cs == nil || cs.running || len(cs.metrics) == 0 {
		return
	}
	if err := cs.lib.Start(cs.es); err != nil {
		logOnce(cs.b, fmt.Sprintf("error starting counters: %v", err))
		return
	}
	cs.running = true
}

func (cs *Counters) Stop() {
	if cs == nil || !cs.running {
		return
	}
	counts, err := cs.lib.Stop(cs.es)
	cs.running = false
	if err != nil {
		logOnce(cs.b, fmt.Sprintf("error stopping counters: %v", err))
		return
	}
	for i, v := range counts {
		cs.total[i] += v
	}
}

func (cs *Counters) Reset() {
	if cs == nil {
		return
	}
	clear(cs.total)
	if cs.running {
		if err := cs.lib.Reset(cs.es); err != nil {
			logOnce(cs.b, fmt.Sprintf("error resetting counters: %v", err))
		}
	}
}

// Total returns the total count of the named counter, which is a reported
// metric name without the "/op". If the named counter is unknown or could not
// be opened, this returns 0, false.
func (cs *Counters) Total(name string) (float64, bool) {
	if cs == nil {
		return 0, false
	}
	for i, m := range cs.metrics {
		if m.unit != name {
			continue
		}
		total := cs.total[i]
		if cs.running {
			counts, err := cs.lib.Read(cs.es)
			if err != nil {
				return 0, false
			}
			total += counts[i]
		}
		return float64(total), true
	}
	return 0, false
}

func (cs *Counters) close() {
	if cs.b == nil {
		return
	}

	cs.Stop()
	for i, m := range cs.metrics {
		cs.b.ReportMetric(float64(cs.total[i])/float64(cs.bN), m.unit+"/op")
	}
	if err := cs.lib.Destroy(cs.es); err != nil {
		cs.b.Logf("error destroying event set: %v", err)
	}
	cs.b = nil
}
