// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"github.com/aclements/go-papi/papi"
)

// defaultRates are the presets the simulated CPU can count, in events per
// nanosecond of process time. The core runs at 3 GHz and retires two
// instructions per ns.
var defaultRates = map[papi.EventCode]float64{
	papi.TOTCYC: 3,
	papi.REFCYC: 2.5,
	papi.TOTINS: 2,
	papi.INTINS: 1.2,
	papi.FPINS:  0.5,
	papi.FPOPS:  1,
	papi.SPOPS:  0.5,
	papi.DPOPS:  0.5,
	papi.VECINS: 0.25,
	papi.VECSP:  0.125,
	papi.VECDP:  0.125,
	papi.LDINS:  0.6,
	papi.SRINS:  0.3,
	papi.LSTINS: 0.9,
	papi.BRINS:  0.4,
	papi.BRCN:   0.3,
	papi.BRTKN:  0.15,
	papi.BRMSP:  0.01,
	papi.BRPRC:  0.29,
	papi.L1DCA:  0.8,
	papi.L1DCM:  0.02,
	papi.L1ICA:  0.5,
	papi.L1ICM:  0.001,
	papi.L2DCA:  0.02,
	papi.L2DCM:  0.005,
	papi.L3DCA:  0.005,
	papi.L3DCM:  0.001,
	papi.TLBDM:  0.0005,
	papi.TLBIM:  0.0001,
	papi.RESSTL: 0.75,
}

// A native is a native event of the simulated CPU.
type native struct {
	name string
	desc string
	rate float64
}

var natives = []native{
	{"sim::ticks", "Nanoseconds of process time", 1},
	{"sim::cycles", "Core clock cycles", 3},
	{"sim::instructions_retired", "Retired instructions", 2},
	{"sim::cache_misses", "Last level cache misses", 0.001},
}

// known reports whether b has an event with code, and returns its rate.
func (b *Backend) known(code papi.EventCode) (float64, bool) {
	if code.IsNative() {
		i := code.NativeIndex()
		if i >= len(natives) {
			return 0, false
		}
		return natives[i].rate, true
	}
	rate, ok := b.rates[code]
	return rate, ok
}

// EventCodeToName returns the preset symbol or native name of code. Presets
// the simulated CPU can't count still have names.
func (b *Backend) EventCodeToName(code papi.EventCode) (string, papi.Errno) {
	if code.IsNative() {
		if i := code.NativeIndex(); i < len(natives) {
			return natives[i].name, papi.OK
		}
		return "", papi.ENOEVNT
	}
	if p, ok := papi.LookupPreset(code); ok {
		return p.Symbol, papi.OK
	}
	return "", papi.ENOEVNT
}

// EventNameToCode returns the code of a preset symbol or native name.
func (b *Backend) EventNameToCode(name string) (papi.EventCode, papi.Errno) {
	if p, ok := papi.LookupPresetName(name); ok {
		return p.Code, papi.OK
	}
	for i, n := range natives {
		if n.name == name {
			return papi.NativeCode(i), papi.OK
		}
	}
	return 0, papi.ENOEVNT
}

// EnumEvent walks the preset table or the native table.
func (b *Backend) EnumEvent(code papi.EventCode, modifier papi.EnumModifier) (papi.EventCode, papi.Errno) {
	switch modifier {
	case papi.EnumFirst:
		if code.IsNative() {
			return papi.NativeCode(0), papi.OK
		}
		if !code.IsPreset() {
			return 0, papi.EINVAL
		}
		return papi.Presets()[0].Code, papi.OK

	case papi.EnumEvents:
		if code.IsNative() {
			i := code.NativeIndex() + 1
			if i >= len(natives) {
				return 0, papi.ENOEVNT
			}
			return papi.NativeCode(i), papi.OK
		}
		if !code.IsPreset() {
			return 0, papi.EINVAL
		}
		p, ok := papi.NextPreset(code)
		if !ok {
			return 0, papi.ENOEVNT
		}
		return p.Code, papi.OK

	case papi.PresetEnumAvail:
		if !code.IsPreset() {
			return 0, papi.EINVAL
		}
		for p, ok := papi.NextPreset(code); ok; p, ok = papi.NextPreset(p.Code) {
			if _, avail := b.rates[p.Code]; avail {
				return p.Code, papi.OK
			}
		}
		return 0, papi.ENOEVNT
	}
	return 0, papi.EINVAL
}

// EventInfo describes code. Presets the simulated CPU can't count are
// described with a Count of 0.
func (b *Backend) EventInfo(code papi.EventCode) (*papi.EventInfo, papi.Errno) {
	if code.IsNative() {
		i := code.NativeIndex()
		if i >= len(natives) {
			return nil, papi.ENOEVNT
		}
		n := natives[i]
		return &papi.EventInfo{
			EventCode:  code,
			Symbol:     n.name,
			ShortDescr: n.desc,
			LongDescr:  n.desc,
			Count:      1,
			Derived:    "NOT_DERIVED",
			Codes:      []papi.EventCode{code},
			Names:      []string{n.name},
		}, papi.OK
	}
	p, ok := papi.LookupPreset(code)
	if !ok {
		return nil, papi.ENOEVNT
	}
	info := &papi.EventInfo{
		EventCode:  code,
		Symbol:     p.Symbol,
		ShortDescr: p.ShortDesc,
		LongDescr:  p.LongDesc,
		Derived:    "NOT_DERIVED",
	}
	if _, avail := b.rates[code]; avail {
		info.Count = 1
		info.Codes = []papi.EventCode{code}
		info.Names = []string{p.Symbol}
	}
	return info, papi.OK
}
