// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-papi/papi"
	"github.com/aclements/go-papi/sim"
)

func TestVersion(t *testing.T) {
	v := papi.Version(7, 1, 0, 0)
	assert.Equal(t, 0x07010000, v)
	assert.Equal(t, 7, papi.VersionMajor(v))
	assert.Equal(t, v, papi.VersionCurrent)
}

func TestInitIdempotent(t *testing.T) {
	clk := new(sim.ManualClock)
	lib := newLibrary(t, clk)
	es, err := lib.CreateEventSet()
	require.NoError(t, err)
	require.NoError(t, lib.AddEvent(es, papi.TOTCYC))

	v, err := lib.Init(papi.VersionCurrent)
	require.NoError(t, err)
	assert.Equal(t, papi.VersionCurrent, v)
	n, err := lib.NumEvents(es)
	require.NoError(t, err, "re-init keeps event sets")
	assert.Equal(t, 1, n)
}

func TestInitVersionMismatch(t *testing.T) {
	lib := papi.New(sim.New())
	_, err := lib.Init(papi.Version(6, 0, 0, 0))
	requireKind(t, err, papi.InvalidValue)
	assert.False(t, lib.IsInitialized())
}

func TestNotInitialized(t *testing.T) {
	lib := papi.New(sim.New())
	es := papi.NullEventSet
	codes := []papi.EventCode{papi.TOTCYC}
	ops := map[string]func() error{
		"CreateEventSet":   func() error { _, err := lib.CreateEventSet(); return err },
		"AddEvent":         func() error { return lib.AddEvent(es, papi.TOTCYC) },
		"AddNamedEvent":    func() error { return lib.AddNamedEvent(es, "PAPI_TOT_CYC") },
		"AddEvents":        func() error { return lib.AddEvents(es, codes) },
		"RemoveEvent":      func() error { return lib.RemoveEvent(es, papi.TOTCYC) },
		"RemoveNamedEvent": func() error { return lib.RemoveNamedEvent(es, "PAPI_TOT_CYC") },
		"RemoveEvents":     func() error { return lib.RemoveEvents(es, codes) },
		"Start":            func() error { return lib.Start(es) },
		"Read":             func() error { _, err := lib.Read(es); return err },
		"Stop":             func() error { _, err := lib.Stop(es); return err },
		"Reset":            func() error { return lib.Reset(es) },
		"Cleanup":          func() error { return lib.Cleanup(es) },
		"Destroy":          func() error { return lib.Destroy(es) },
		"State":            func() error { _, err := lib.State(es); return err },
		"NumEvents":        func() error { _, err := lib.NumEvents(es); return err },
		"ListEvents":       func() error { _, err := lib.ListEvents(es); return err },
		"IPC":              func() error { _, err := lib.IPC(); return err },
		"Flips":            func() error { _, err := lib.Flips(0); return err },
		"Flops":            func() error { _, err := lib.Flops(0); return err },
		"EPC":              func() error { _, err := lib.EPC(0); return err },
		"GetEventInfo":     func() error { _, err := lib.GetEventInfo(papi.TOTCYC); return err },
		"EventCodeToName":  func() error { _, err := lib.EventCodeToName(papi.TOTCYC); return err },
		"EventNameToCode":  func() error { _, err := lib.EventNameToCode("PAPI_TOT_CYC"); return err },
		"EnumEvent":        func() error { _, err := lib.EnumEvent(papi.PresetMask, papi.EnumFirst); return err },
		"NumComponents":    func() error { _, err := lib.NumComponents(); return err },
		"GetComponentInfo": func() error { _, err := lib.GetComponentInfo(0); return err },
		"GetHardwareInfo":  func() error { _, err := lib.GetHardwareInfo(); return err },
		"GetDmemInfo":      func() error { _, err := lib.GetDmemInfo(); return err },
		"GetExecutable":    func() error { _, err := lib.GetExecutableInfo(); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			requireKind(t, op(), papi.NotInitialized)
		})
	}
}

func TestShutdownInvalidates(t *testing.T) {
	lib := newLibrary(t, new(sim.ManualClock))
	es, err := lib.CreateEventSet()
	require.NoError(t, err)
	require.NoError(t, lib.AddEvent(es, papi.TOTCYC))
	require.NoError(t, lib.Start(es))

	lib.Shutdown()
	lib.Shutdown()
	assert.False(t, lib.IsInitialized())
	_, err = lib.Read(es)
	requireKind(t, err, papi.NotInitialized)

	_, err = lib.Init(papi.VersionCurrent)
	require.NoError(t, err)
	_, err = lib.Read(es)
	requireKind(t, err, papi.InvalidValue)
	es2, err := lib.CreateEventSet()
	require.NoError(t, err)
	assert.NotEqual(t, es, es2)
}

func TestStrerrorOverride(t *testing.T) {
	lib := papi.New(sim.New())
	assert.Equal(t, "EventSet is not started", lib.Strerror(papi.ENOTRUN))
	assert.Equal(t, papi.Strerror(papi.ENOMEM), lib.Strerror(papi.ENOMEM))
	assert.Equal(t, "Unknown error code: -77", lib.Strerror(-77))
}

func TestTimers(t *testing.T) {
	clk := new(sim.ManualClock)
	lib := newLibrary(t, clk)
	clk.Advance(2500)
	assert.EqualValues(t, 2500, lib.RealNsec())
	assert.EqualValues(t, 2, lib.RealUsec())
	assert.EqualValues(t, 7500, lib.RealCycles())
	assert.EqualValues(t, 2500, lib.VirtNsec())
	assert.EqualValues(t, 2, lib.VirtUsec())
	assert.EqualValues(t, 7500, lib.VirtCycles())
}
