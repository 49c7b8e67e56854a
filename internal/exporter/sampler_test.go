// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exporter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aclements/go-papi/papi"
	"github.com/aclements/go-papi/sim"
)

func newLibrary(t *testing.T, opts ...sim.Option) *papi.Library {
	t.Helper()
	lib := papi.New(sim.New(opts...), papi.WithLogger(zaptest.NewLogger(t)))
	_, err := lib.Init(papi.VersionCurrent)
	require.NoError(t, err)
	t.Cleanup(lib.Shutdown)
	return lib
}

// manualSampler returns a Sampler over a simulated subsystem whose clock
// only moves with clk.
func manualSampler(t *testing.T, clk *sim.ManualClock, events ...string) *Sampler {
	t.Helper()
	lib := newLibrary(t, sim.WithClock(clk.Now))
	epoch := time.Unix(1700000000, 0)
	return NewSampler(lib, events, time.Second,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return epoch.Add(clk.Now()) }))
}

func TestSample(t *testing.T) {
	clk := new(sim.ManualClock)
	s := manualSampler(t, clk, "PAPI_TOT_CYC", "PAPI_TOT_INS")
	require.NoError(t, s.open())
	t.Cleanup(func() { assert.NoError(t, s.close()) })

	snap := s.Snapshot()
	assert.Equal(t, []int64{0, 0}, snap.Counts)
	assert.Zero(t, snap.Samples)

	clk.Advance(time.Microsecond)
	require.NoError(t, s.sample())
	snap = s.Snapshot()
	assert.Equal(t, []string{"PAPI_TOT_CYC", "PAPI_TOT_INS"}, snap.Events)
	assert.Equal(t, []int64{3000, 2000}, snap.Counts)
	assert.InDeltaSlice(t, []float64{3e9, 2e9}, snap.Rates, 1)
	assert.Equal(t, 1, snap.Samples)

	// Rates cover only the latest interval.
	clk.Advance(2 * time.Microsecond)
	require.NoError(t, s.sample())
	snap = s.Snapshot()
	assert.Equal(t, []int64{9000, 6000}, snap.Counts)
	assert.InDeltaSlice(t, []float64{3e9, 2e9}, snap.Rates, 1)
	assert.Equal(t, 2, snap.Samples)
	assert.Zero(t, snap.Errors)
}

func TestSampleError(t *testing.T) {
	clk := new(sim.ManualClock)
	s := manualSampler(t, clk, "PAPI_TOT_CYC")
	require.NoError(t, s.open())
	require.NoError(t, s.close())

	err := s.sample()
	assert.True(t, papi.IsKind(err, papi.InvalidValue), "got %v", err)
	assert.Equal(t, 1, s.Snapshot().Errors)
}

func TestOpenErrors(t *testing.T) {
	clk := new(sim.ManualClock)
	s := manualSampler(t, clk)
	assert.Error(t, s.open())

	s = manualSampler(t, clk, "PAPI_TOT_CYC", "PAPI_L2_ICM")
	err := s.open()
	assert.True(t, papi.IsKind(err, papi.NoSuchEvent), "got %v", err)
	assert.ErrorContains(t, err, "PAPI_L2_ICM")

	s = manualSampler(t, clk, "no::such::event")
	assert.Error(t, s.open())
}

func TestRun(t *testing.T) {
	lib := newLibrary(t)
	s := NewSampler(lib, []string{"PAPI_TOT_INS"}, time.Millisecond, WithLogger(zaptest.NewLogger(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Snapshot().Samples >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Positive(t, s.Snapshot().Counts[0])
	assert.True(t, s.es.IsNull(), "Run left its event set open")
}

func TestRunSetupError(t *testing.T) {
	lib := newLibrary(t)
	s := NewSampler(lib, []string{"PAPI_L2_ICM"}, time.Millisecond)
	err := s.Run(context.Background())
	assert.True(t, papi.IsKind(err, papi.NoSuchEvent), "got %v", err)
}

func TestCollector(t *testing.T) {
	clk := new(sim.ManualClock)
	s := manualSampler(t, clk, "PAPI_TOT_CYC", "PAPI_TOT_INS")
	require.NoError(t, s.open())
	t.Cleanup(func() { assert.NoError(t, s.close()) })
	clk.Advance(time.Microsecond)
	require.NoError(t, s.sample())

	c := NewCollector(s)
	assert.Equal(t, 6, testutil.CollectAndCount(c))

	expected := `
# HELP papi_event_count_total Events counted since sampling started
# TYPE papi_event_count_total counter
papi_event_count_total{event="PAPI_TOT_CYC"} 3000
papi_event_count_total{event="PAPI_TOT_INS"} 2000
# HELP papi_samples_total Successful event set reads
# TYPE papi_samples_total counter
papi_samples_total 1
# HELP papi_sample_errors_total Failed event set reads
# TYPE papi_sample_errors_total counter
papi_sample_errors_total 0
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"papi_event_count_total", "papi_samples_total", "papi_sample_errors_total")
	assert.NoError(t, err)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestCollectorRates(t *testing.T) {
	clk := new(sim.ManualClock)
	s := manualSampler(t, clk, "PAPI_TOT_INS")
	require.NoError(t, s.open())
	t.Cleanup(func() { assert.NoError(t, s.close()) })
	clk.Advance(time.Microsecond)
	require.NoError(t, s.sample())

	ch := make(chan prometheus.Metric, 10)
	NewCollector(s).Collect(ch)
	close(ch)

	var rate *dto.Metric
	for m := range ch {
		if !strings.Contains(m.Desc().String(), "papi_event_rate") {
			continue
		}
		rate = new(dto.Metric)
		require.NoError(t, m.Write(rate))
	}
	require.NotNil(t, rate, "no papi_event_rate metric")
	require.Len(t, rate.GetLabel(), 1)
	assert.Equal(t, "event", rate.GetLabel()[0].GetName())
	assert.Equal(t, "PAPI_TOT_INS", rate.GetLabel()[0].GetValue())
	assert.InDelta(t, 2e9, rate.GetGauge().GetValue(), 1)
}
