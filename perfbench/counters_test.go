// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfbench

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-papi/papi"
	"github.com/aclements/go-papi/sim"
)

type testB struct {
	t       *testing.T
	metrics map[string]float64
	logs    []string
	cleanup func()
}

func (tb *testB) ReportMetric(n float64, unit string) {
	if tb.metrics == nil {
		tb.metrics = map[string]float64{}
	}
	tb.metrics[unit] = n
}

func (tb *testB) Logf(format string, args ...any) {
	tb.logs = append(tb.logs, fmt.Sprintf(format, args...))
}

func (tb *testB) Cleanup(fn func()) {
	tb.cleanup = fn
}

// simLibrary returns a Library over a simulated subsystem that can count all
// of the default metrics.
func simLibrary(t *testing.T, clk *sim.ManualClock, opts ...sim.Option) *papi.Library {
	opts = append([]sim.Option{sim.WithClock(clk.Now), sim.WithRate(papi.L3TCM, 0.001)}, opts...)
	lib := papi.New(sim.New(opts...))
	_, err := lib.Init(papi.VersionCurrent)
	require.NoError(t, err)
	t.Cleanup(lib.Shutdown)
	return lib
}

func TestBasicSim(t *testing.T) {
	clk := new(sim.ManualClock)
	tb := &testB{t: t}
	open(tb, 10, simLibrary(t, clk))
	clk.Advance(1000)
	tb.cleanup()

	assert.Empty(t, tb.logs)
	assert.Equal(t, map[string]float64{
		"cpu-cycles/op":    300,
		"instructions/op":  200,
		"cache-misses/op":  0.1,
		"branch-misses/op": 1,
	}, tb.metrics)
}

func TestStopSim(t *testing.T) {
	clk := new(sim.ManualClock)
	tb := &testB{t: t}
	cs := open(tb, 1, simLibrary(t, clk))
	clk.Advance(1000)
	cs.Stop()
	cs.Stop()
	clk.Advance(1000000)
	cs.Start()
	clk.Advance(1000)
	tb.cleanup()
	assert.Equal(t, 4000.0, tb.metrics["instructions/op"])
}

func TestResetRunningSim(t *testing.T) {
	clk := new(sim.ManualClock)
	tb := &testB{t: t}
	cs := open(tb, 1, simLibrary(t, clk))
	clk.Advance(100000)
	cs.Reset()
	clk.Advance(500)
	tb.cleanup()
	assert.Equal(t, 1000.0, tb.metrics["instructions/op"])
}

func TestResetStoppedSim(t *testing.T) {
	clk := new(sim.ManualClock)
	tb := &testB{t: t}
	cs := open(tb, 1, simLibrary(t, clk))
	clk.Advance(1000)
	cs.Stop()
	cs.Reset()
	clk.Advance(1000)
	tb.cleanup()
	assert.Zero(t, tb.metrics["instructions/op"])
}

func TestTotalSim(t *testing.T) {
	clk := new(sim.ManualClock)
	tb := &testB{t: t}
	cs := open(tb, 1, simLibrary(t, clk))
	clk.Advance(1000)
	cs.Stop()
	cs.Start()
	clk.Advance(1000)
	v, ok := cs.Total("cpu-cycles")
	assert.True(t, ok)
	assert.Equal(t, 6000.0, v)
	_, ok = cs.Total("cpu-cycles/op")
	assert.False(t, ok)
	tb.cleanup()
}

func TestMissingEventSim(t *testing.T) {
	openErrors.Clear()
	clk := new(sim.ManualClock)
	lib := simLibrary(t, clk, sim.WithoutEvent(papi.L3TCM))
	for range 2 {
		tb := &testB{t: t}
		open(tb, 1, lib)
		clk.Advance(1000)
		tb.cleanup()
		assert.Len(t, tb.metrics, len(defaultMetrics)-1)
		assert.NotContains(t, tb.metrics, "cache-misses/op")
	}
	// The second benchmark doesn't repeat the error.
	var n int
	openErrors.Range(func(key, _ any) bool {
		assert.Contains(t, key, "cache-misses")
		n++
		return true
	})
	assert.Equal(t, 1, n)
}

func TestNilCounters(t *testing.T) {
	var cs *Counters
	cs.Start()
	cs.Stop()
	cs.Reset()
	_, ok := cs.Total("instructions")
	assert.False(t, ok)
}

func TestReleasesEventSets(t *testing.T) {
	clk := new(sim.ManualClock)
	lib := simLibrary(t, clk)
	for range 2 * sim.MaxEventSets {
		tb := &testB{t: t}
		open(tb, 1, lib)
		tb.cleanup()
		require.Empty(t, tb.logs)
	}
}
