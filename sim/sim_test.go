// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-papi/papi"
)

func newInited(t *testing.T, opts ...Option) *Backend {
	t.Helper()
	b := New(opts...)
	require.Equal(t, papi.Errno(papi.VersionCurrent), b.Init(papi.VersionCurrent))
	return b
}

func TestUninitialized(t *testing.T) {
	b := New()
	assert.False(t, b.IsInitialized())
	_, st := b.CreateEventSet()
	assert.Equal(t, papi.ENOINIT, st)
	assert.Equal(t, int(papi.ENOINIT), b.NumEvents(1))
}

func TestSlotExhaustion(t *testing.T) {
	b := newInited(t)
	var handles []int
	for i := 1; i < MaxEventSets; i++ {
		h, st := b.CreateEventSet()
		require.Equal(t, papi.OK, st)
		handles = append(handles, h)
	}
	_, st := b.CreateEventSet()
	assert.Equal(t, papi.ENOMEM, st)

	h := handles[3]
	require.Equal(t, papi.OK, b.Destroy(&h))
	assert.Equal(t, papi.NullHandle, h)
	h2, st := b.CreateEventSet()
	assert.Equal(t, papi.OK, st)
	assert.Equal(t, handles[3], h2, "freed slot is reused")
}

func TestCounterLimit(t *testing.T) {
	b := newInited(t, WithCounters(2))
	h, _ := b.CreateEventSet()
	n, st := b.AddEvents(h, []papi.EventCode{papi.TOTCYC, papi.TOTINS, papi.FPINS})
	assert.Equal(t, 2, n)
	assert.Equal(t, papi.ECNFLCT, st)
	assert.Equal(t, 2, b.NumEvents(h))
}

func TestAddErrors(t *testing.T) {
	b := newInited(t, WithoutEvent(papi.L3DCM))
	h, _ := b.CreateEventSet()
	assert.Equal(t, papi.EINVAL, b.AddEvent(h+1, papi.TOTCYC))
	assert.Equal(t, papi.ENOEVNT, b.AddEvent(h, papi.L3DCM))
	assert.Equal(t, papi.ENOEVNT, b.AddEvent(h, papi.NativeCode(len(natives))))
	require.Equal(t, papi.OK, b.AddEvent(h, papi.TOTCYC))
	assert.Equal(t, papi.ECNFLCT, b.AddEvent(h, papi.TOTCYC))
}

func TestCounts(t *testing.T) {
	var clk ManualClock
	b := newInited(t, WithClock(clk.Now), WithRate(papi.FPINS, 0.25))
	h, _ := b.CreateEventSet()
	_, st := b.AddEvents(h, []papi.EventCode{papi.TOTCYC, papi.TOTINS, papi.FPINS, papi.NativeCode(0)})
	require.Equal(t, papi.OK, st)

	out := make([]int64, 4)
	assert.Equal(t, papi.ENOTRUN, b.Read(h, out))
	require.Equal(t, papi.OK, b.Start(h))
	assert.Equal(t, papi.EISRUN, b.Start(h))

	clk.Advance(time.Microsecond)
	require.Equal(t, papi.OK, b.Read(h, out))
	assert.Equal(t, []int64{3000, 2000, 250, 1000}, out)

	require.Equal(t, papi.OK, b.Reset(h))
	clk.Advance(2 * time.Microsecond)
	require.Equal(t, papi.OK, b.Stop(h, out))
	assert.Equal(t, []int64{6000, 4000, 500, 2000}, out)

	state, _ := b.State(h)
	assert.Equal(t, papi.StateStopped, state)
	assert.Equal(t, papi.ENOTRUN, b.Stop(h, out))
}

func TestRunningGuards(t *testing.T) {
	b := newInited(t)
	h, _ := b.CreateEventSet()
	assert.Equal(t, papi.EINVAL, b.Start(h), "empty set")
	require.Equal(t, papi.OK, b.AddEvent(h, papi.TOTCYC))
	require.Equal(t, papi.OK, b.Start(h))

	assert.Equal(t, papi.EISRUN, b.AddEvent(h, papi.TOTINS))
	assert.Equal(t, papi.EISRUN, b.RemoveEvent(h, papi.TOTCYC))
	assert.Equal(t, papi.EISRUN, b.Cleanup(h))
	hh := h
	assert.Equal(t, papi.EISRUN, b.Destroy(&hh))
	assert.Equal(t, h, hh)
	state, _ := b.State(h)
	assert.Equal(t, papi.StateRunning, state)
}

func TestRemoveKeepsOrder(t *testing.T) {
	b := newInited(t)
	h, _ := b.CreateEventSet()
	codes := []papi.EventCode{papi.TOTCYC, papi.TOTINS, papi.BRINS, papi.L1DCM}
	_, st := b.AddEvents(h, codes)
	require.Equal(t, papi.OK, st)

	n, st := b.RemoveEvents(h, []papi.EventCode{papi.TOTINS, papi.FPINS})
	assert.Equal(t, 1, n)
	assert.Equal(t, papi.EINVAL, st)

	out := make([]papi.EventCode, 8)
	n, st = b.ListEvents(h, out)
	require.Equal(t, papi.OK, st)
	assert.Equal(t, []papi.EventCode{papi.TOTCYC, papi.BRINS, papi.L1DCM}, out[:n])
}

func TestShutdownClears(t *testing.T) {
	b := newInited(t)
	h, _ := b.CreateEventSet()
	b.Shutdown()
	assert.Equal(t, int(papi.ENOINIT), b.NumEvents(h))
	b.Init(papi.VersionCurrent)
	assert.Equal(t, int(papi.EINVAL), b.NumEvents(h))
}

func TestEnumAvail(t *testing.T) {
	b := New(WithoutEvent(papi.L1ICM))
	var got []papi.EventCode
	code := papi.Presets()[0].Code
	for {
		next, st := b.EnumEvent(code, papi.PresetEnumAvail)
		if st != papi.OK {
			assert.Equal(t, papi.ENOEVNT, st)
			break
		}
		got = append(got, next)
		code = next
	}
	// L1_DCM is the first preset, so it isn't returned.
	assert.Len(t, got, len(defaultRates)-2)
	assert.NotContains(t, got, papi.L1ICM)
	assert.NotContains(t, got, papi.L3ICM)
}

func TestEnumNative(t *testing.T) {
	b := New()
	code, st := b.EnumEvent(papi.NativeMask, papi.EnumFirst)
	require.Equal(t, papi.OK, st)
	var names []string
	for st == papi.OK {
		name, nst := b.EventCodeToName(code)
		require.Equal(t, papi.OK, nst)
		names = append(names, name)
		code, st = b.EnumEvent(code, papi.EnumEvents)
	}
	assert.Equal(t, papi.ENOEVNT, st)
	assert.Equal(t, []string{"sim::ticks", "sim::cycles", "sim::instructions_retired", "sim::cache_misses"}, names)

	_, st = b.EnumEvent(papi.NativeCode(0), papi.PresetEnumAvail)
	assert.Equal(t, papi.EINVAL, st)
}

func TestEventInfo(t *testing.T) {
	b := New(WithoutEvent(papi.TLBIM))
	info, st := b.EventInfo(papi.TLBIM)
	require.Equal(t, papi.OK, st)
	assert.Equal(t, "PAPI_TLB_IM", info.Symbol)
	assert.Zero(t, info.Count)

	info, st = b.EventInfo(papi.TOTCYC)
	require.Equal(t, papi.OK, st)
	assert.Equal(t, 1, info.Count)

	_, st = b.EventInfo(papi.EventCode(0x1234))
	assert.Equal(t, papi.ENOEVNT, st)
}
