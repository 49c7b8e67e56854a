// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi

import (
	"fmt"
	"sort"
)

// An EventCode identifies a countable event. Preset events have
// [PresetMask] set and name portable events such as total cycles. Native
// events have [NativeMask] set and are assigned by the counter subsystem.
type EventCode int32

const (
	PresetMask EventCode = -0x80000000 // 0x80000000
	NativeMask EventCode = 0x40000000

	presetAndMask EventCode = 0x7fffffff
	nativeAndMask EventCode = -0x40000001 // ^NativeMask
)

// IsPreset reports whether c is a preset event code.
func (c EventCode) IsPreset() bool {
	return c&PresetMask != 0
}

// IsNative reports whether c is a native event code.
func (c EventCode) IsNative() bool {
	return c&PresetMask == 0 && c&NativeMask != 0
}

// PresetIndex returns the index of preset c in the preset table, or -1 if c
// is not a preset.
func (c EventCode) PresetIndex() int {
	if !c.IsPreset() {
		return -1
	}
	return int(c & presetAndMask)
}

// NativeIndex returns the subsystem-assigned index of native c, or -1.
func (c EventCode) NativeIndex() int {
	if !c.IsNative() {
		return -1
	}
	return int(c & nativeAndMask)
}

func (c EventCode) String() string {
	if p, ok := presetByCode[c]; ok {
		return p.Symbol
	}
	return fmt.Sprintf("%#x", uint32(c))
}

// NativeCode returns the native event code with index i.
func NativeCode(i int) EventCode {
	return NativeMask | EventCode(i)
}

func preset(i int) EventCode {
	return PresetMask | EventCode(i)
}

// Preset events.
var (
	L1DCM  = preset(0x00)
	L1ICM  = preset(0x01)
	L2DCM  = preset(0x02)
	L2ICM  = preset(0x03)
	L3DCM  = preset(0x04)
	L3ICM  = preset(0x05)
	L1TCM  = preset(0x06)
	L2TCM  = preset(0x07)
	L3TCM  = preset(0x08)
	TLBDM  = preset(0x14)
	TLBIM  = preset(0x15)
	L1LDM  = preset(0x17)
	L1STM  = preset(0x18)
	STLICY = preset(0x25)
	BRCN   = preset(0x2b)
	BRTKN  = preset(0x2c)
	BRMSP  = preset(0x2e)
	BRPRC  = preset(0x2f)
	TOTINS = preset(0x32)
	INTINS = preset(0x33)
	FPINS  = preset(0x34)
	LDINS  = preset(0x35)
	SRINS  = preset(0x36)
	BRINS  = preset(0x37)
	VECINS = preset(0x38)
	RESSTL = preset(0x39)
	TOTCYC = preset(0x3b)
	LSTINS = preset(0x3c)
	L1DCA  = preset(0x40)
	L2DCA  = preset(0x41)
	L3DCA  = preset(0x42)
	L1ICA  = preset(0x4c)
	FPOPS  = preset(0x66)
	SPOPS  = preset(0x67)
	DPOPS  = preset(0x68)
	VECSP  = preset(0x69)
	VECDP  = preset(0x6a)
	REFCYC = preset(0x6b)
)

// A Preset describes a preset event.
type Preset struct {
	Code      EventCode
	Symbol    string // e.g., "PAPI_TOT_CYC"
	ShortDesc string
	LongDesc  string
}

var presets = []Preset{
	{L1DCM, "PAPI_L1_DCM", "L1D cache misses", "Level 1 data cache misses"},
	{L1ICM, "PAPI_L1_ICM", "L1I cache misses", "Level 1 instruction cache misses"},
	{L2DCM, "PAPI_L2_DCM", "L2D cache misses", "Level 2 data cache misses"},
	{L2ICM, "PAPI_L2_ICM", "L2I cache misses", "Level 2 instruction cache misses"},
	{L3DCM, "PAPI_L3_DCM", "L3D cache misses", "Level 3 data cache misses"},
	{L3ICM, "PAPI_L3_ICM", "L3I cache misses", "Level 3 instruction cache misses"},
	{L1TCM, "PAPI_L1_TCM", "L1 cache misses", "Level 1 cache misses"},
	{L2TCM, "PAPI_L2_TCM", "L2 cache misses", "Level 2 cache misses"},
	{L3TCM, "PAPI_L3_TCM", "L3 cache misses", "Level 3 cache misses"},
	{TLBDM, "PAPI_TLB_DM", "Data TLB misses", "Data translation lookaside buffer misses"},
	{TLBIM, "PAPI_TLB_IM", "Instr TLB misses", "Instruction translation lookaside buffer misses"},
	{L1LDM, "PAPI_L1_LDM", "L1 load misses", "Level 1 load misses"},
	{L1STM, "PAPI_L1_STM", "L1 store misses", "Level 1 store misses"},
	{STLICY, "PAPI_STL_ICY", "No instr issue", "Cycles with no instruction issue"},
	{BRCN, "PAPI_BR_CN", "Cond branch", "Conditional branch instructions"},
	{BRTKN, "PAPI_BR_TKN", "Cond br taken", "Conditional branch instructions taken"},
	{BRMSP, "PAPI_BR_MSP", "Cond br mspredictd", "Conditional branch instructions mispredicted"},
	{BRPRC, "PAPI_BR_PRC", "Cond br predicted", "Conditional branch instructions correctly predicted"},
	{TOTINS, "PAPI_TOT_INS", "Instr completed", "Instructions completed"},
	{INTINS, "PAPI_INT_INS", "Int instructions", "Integer instructions"},
	{FPINS, "PAPI_FP_INS", "FP instructions", "Floating point instructions"},
	{LDINS, "PAPI_LD_INS", "Loads", "Load instructions"},
	{SRINS, "PAPI_SR_INS", "Stores", "Store instructions"},
	{BRINS, "PAPI_BR_INS", "Branches", "Branch instructions"},
	{VECINS, "PAPI_VEC_INS", "Vector/SIMD instr", "Vector/SIMD instructions (could include integer)"},
	{RESSTL, "PAPI_RES_STL", "Stalled res cycles", "Cycles stalled on any resource"},
	{TOTCYC, "PAPI_TOT_CYC", "Total cycles", "Total cycles"},
	{LSTINS, "PAPI_LST_INS", "L/S completed", "Load/store instructions completed"},
	{L1DCA, "PAPI_L1_DCA", "L1D cache accesses", "Level 1 data cache accesses"},
	{L2DCA, "PAPI_L2_DCA", "L2D cache accesses", "Level 2 data cache accesses"},
	{L3DCA, "PAPI_L3_DCA", "L3D cache accesses", "Level 3 data cache accesses"},
	{L1ICA, "PAPI_L1_ICA", "L1I cache accesses", "Level 1 instruction cache accesses"},
	{FPOPS, "PAPI_FP_OPS", "FP operations", "Floating point operations"},
	{SPOPS, "PAPI_SP_OPS", "SP operations", "Floating point operations; optimized to count scaled single precision vector operations"},
	{DPOPS, "PAPI_DP_OPS", "DP operations", "Floating point operations; optimized to count scaled double precision vector operations"},
	{VECSP, "PAPI_VEC_SP", "SP Vector/SIMD instr", "Single precision vector/SIMD instructions"},
	{VECDP, "PAPI_VEC_DP", "DP Vector/SIMD instr", "Double precision vector/SIMD instructions"},
	{REFCYC, "PAPI_REF_CYC", "Ref cycles", "Reference clock cycles"},
}

var (
	presetByCode = map[EventCode]Preset{}
	presetByName = map[string]Preset{}
)

func init() {
	sort.Slice(presets, func(i, j int) bool {
		return presets[i].Code.PresetIndex() < presets[j].Code.PresetIndex()
	})
	for _, p := range presets {
		presetByCode[p.Code] = p
		presetByName[p.Symbol] = p
	}
}

// Presets returns the preset event table in code order.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// LookupPreset returns the preset with code c.
func LookupPreset(c EventCode) (Preset, bool) {
	p, ok := presetByCode[c]
	return p, ok
}

// LookupPresetName returns the preset with symbol name.
func LookupPresetName(name string) (Preset, bool) {
	p, ok := presetByName[name]
	return p, ok
}

// NextPreset returns the first preset with a code greater than c, for
// enumerating the preset table. It returns false after the last preset.
func NextPreset(c EventCode) (Preset, bool) {
	idx := c.PresetIndex()
	i := sort.Search(len(presets), func(i int) bool {
		return presets[i].Code.PresetIndex() > idx
	})
	if i == len(presets) {
		return Preset{}, false
	}
	return presets[i], true
}
