// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perf

import (
	"go.uber.org/zap"

	"github.com/aclements/go-papi/events"
	"github.com/aclements/go-papi/papi"
)

// presetEvents maps presets to the perf events that count them. Presets
// that aren't listed here can't be counted on any machine.
var presetEvents = map[papi.EventCode]string{
	papi.TOTCYC: "cpu-cycles",
	papi.TOTINS: "instructions",
	papi.REFCYC: "ref-cycles",
	papi.BRINS:  "branch-instructions",
	papi.BRMSP:  "branch-misses",
	papi.L1DCM:  "L1-dcache-load-misses",
	papi.L1DCA:  "L1-dcache-loads",
	papi.L1ICM:  "L1-icache-load-misses",
	papi.L3TCM:  "cache-misses",
	papi.TLBDM:  "dTLB-load-misses",
	papi.TLBIM:  "iTLB-load-misses",
	papi.RESSTL: "stalled-cycles-backend",
}

// A native is a perf event that has been assigned a native event code.
type native struct {
	name string
	ev   events.Event
}

// loadEvents resolves the preset and native tables. b.mu must be held.
func (b *Backend) loadEvents() {
	b.natives = b.natives[:0]
	b.nativeIdx = make(map[string]int)
	for _, name := range events.Names() {
		if _, err := b.register(name); err != nil {
			b.log.Debug("skipping native event", zap.String("event", name), zap.Error(err))
		}
	}

	b.presets = make(map[papi.EventCode]papi.EventCode)
	for code, name := range presetEvents {
		nc, err := b.register(name)
		if err == nil {
			err = b.probe(b.natives[nc.NativeIndex()].ev)
		}
		if err != nil {
			b.log.Debug("preset unavailable", zap.Stringer("preset", code), zap.String("event", name), zap.Error(err))
			continue
		}
		b.presets[code] = nc
	}
}

// register returns the native code of the named perf event, assigning a
// new one if necessary. b.mu must be held.
func (b *Backend) register(name string) (papi.EventCode, error) {
	if i, ok := b.nativeIdx[name]; ok {
		return papi.NativeCode(i), nil
	}
	ev, err := events.ParseEvent(name)
	if err != nil {
		return 0, err
	}
	i := len(b.natives)
	b.natives = append(b.natives, native{name, ev})
	b.nativeIdx[name] = i
	return papi.NativeCode(i), nil
}

// probe checks that ev can be counted on the calling thread.
func (b *Backend) probe(ev events.Event) error {
	c, err := b.opts.Open(TargetThisGoroutine, ev)
	if err != nil {
		return err
	}
	c.Close()
	return nil
}

// resolve returns the perf event that counts code. b.mu must be held.
func (b *Backend) resolve(code papi.EventCode) (events.Event, bool) {
	if code.IsPreset() {
		nc, ok := b.presets[code]
		if !ok {
			return nil, false
		}
		code = nc
	}
	i := code.NativeIndex()
	if i < 0 || i >= len(b.natives) {
		return nil, false
	}
	return b.natives[i].ev, true
}

func (b *Backend) EventCodeToName(code papi.EventCode) (string, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return "", papi.ENOINIT
	}
	if code.IsNative() {
		if i := code.NativeIndex(); i < len(b.natives) {
			return b.natives[i].name, papi.OK
		}
		return "", papi.ENOEVNT
	}
	if p, ok := papi.LookupPreset(code); ok {
		return p.Symbol, papi.OK
	}
	return "", papi.ENOEVNT
}

// EventNameToCode returns the code of a preset symbol or perf event name.
// Any name perf can parse, including raw PMU encodings, is assigned a native
// code on first use.
func (b *Backend) EventNameToCode(name string) (papi.EventCode, papi.Errno) {
	if p, ok := papi.LookupPresetName(name); ok {
		return p.Code, papi.OK
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return 0, papi.ENOINIT
	}
	code, err := b.register(name)
	if err != nil {
		b.log.Debug("unknown event", zap.String("event", name), zap.Error(err))
		return 0, papi.ENOEVNT
	}
	return code, papi.OK
}

func (b *Backend) EnumEvent(code papi.EventCode, modifier papi.EnumModifier) (papi.EventCode, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return 0, papi.ENOINIT
	}
	switch modifier {
	case papi.EnumFirst:
		if code.IsNative() {
			if len(b.natives) == 0 {
				return 0, papi.ENOEVNT
			}
			return papi.NativeCode(0), papi.OK
		}
		if !code.IsPreset() {
			return 0, papi.EINVAL
		}
		return papi.Presets()[0].Code, papi.OK

	case papi.EnumEvents:
		if code.IsNative() {
			i := code.NativeIndex() + 1
			if i >= len(b.natives) {
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
			if _, avail := b.presets[p.Code]; avail {
				return p.Code, papi.OK
			}
		}
		return 0, papi.ENOEVNT
	}
	return 0, papi.EINVAL
}

// EventInfo describes code. A preset is described in terms of the native
// event that counts it, or with a Count of 0 if this machine can't count it.
func (b *Backend) EventInfo(code papi.EventCode) (*papi.EventInfo, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return nil, papi.ENOINIT
	}
	if code.IsNative() {
		i := code.NativeIndex()
		if i >= len(b.natives) {
			return nil, papi.ENOEVNT
		}
		n := b.natives[i]
		desc := events.Description(n.name)
		if desc == "" {
			desc = n.name
		}
		info := &papi.EventInfo{
			EventCode:  code,
			Symbol:     n.name,
			ShortDescr: desc,
			LongDescr:  desc,
			Count:      1,
			Codes:      []papi.EventCode{code},
			Names:      []string{n.name},
		}
		if es, ok := n.ev.(events.EventScale); ok {
			_, info.Units = es.ScaleUnit()
		}
		return info, papi.OK
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
	if nc, avail := b.presets[code]; avail {
		info.Count = 1
		info.Codes = []papi.EventCode{nc}
		info.Names = []string{b.natives[nc.NativeIndex()].name}
	}
	return info, papi.OK
}
