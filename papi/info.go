// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

// Native string buffer sizes. Strings in descriptor records are truncated to
// one less than their buffer size.
const (
	MinStrLen  = 64
	MaxStrLen  = 128
	Max2StrLen = 256
	HugeStrLen = 1024

	MaxInfoTerms = 12 // Terms in a derived event
	PMUMax       = 40 // PMU names per component
)

// symbolLen bounds event names everywhere they are accepted or returned.
const symbolLen = HugeStrLen

// Counting domains.
const (
	DomUser       = 0x1
	DomKernel     = 0x2
	DomOther      = 0x4
	DomSupervisor = 0x8
	DomAll        = DomUser | DomKernel | DomOther | DomSupervisor
)

// Counting granularities.
const (
	GrnThr    = 0x1
	GrnProc   = 0x2
	GrnProcG  = 0x4
	GrnSys    = 0x8
	GrnSysCPU = 0x10
)

// EventInfo describes an event.
type EventInfo struct {
	EventCode      EventCode
	Symbol         string
	ShortDescr     string
	LongDescr      string
	ComponentIndex int
	Units          string
	Location       int
	DataType       int
	ValueType      int
	Timescope      int
	UpdateType     int
	UpdateFreq     int
	Count          int // Number of native terms in Codes and Names
	EventType      int
	Derived        string // e.g., "NOT_DERIVED", "DERIVED_ADD"
	Postfix        string
	Codes          []EventCode
	Names          []string
	Note           string
}

// ComponentInfo describes a component of the counter subsystem.
type ComponentInfo struct {
	Name           string
	ShortName      string
	Description    string
	Version        string
	SupportVersion string
	KernelVersion  string
	DisabledReason string
	Disabled       Errno // Status explaining why the component is disabled, or OK
	CmpIdx         int

	NumCntrs        int
	NumMpxCntrs     int
	NumPresetEvents int
	NumNativeEvents int

	DefaultDomain          int
	AvailableDomains       int
	DefaultGranularity     int
	AvailableGranularities int
	HardwareIntrSig        int
	PMUNames               []string

	HardwareIntr      bool
	PreciseIntr       bool
	Posix1bTimers     bool
	KernelProfile     bool
	KernelMultiplex   bool
	DataAddressRange  bool
	InstrAddressRange bool
	FastCounterRead   bool
	FastRealTimer     bool
	FastVirtualTimer  bool
	Attach            bool
	AttachMustPtrace  bool
	EdgeDetect        bool
	Invert            bool
	ReadReset         bool
	Inherit           bool
	CPU               bool
	CntrUmasks        bool
}

// HardwareInfo describes the host hardware.
type HardwareInfo struct {
	NCPU          int // CPUs per node
	Threads       int // Threads per core
	Cores         int // Cores per socket
	Sockets       int
	NNodes        int
	TotalCPUs     int
	Vendor        int
	VendorString  string
	Model         int
	ModelString   string
	Revision      float64
	CPUIDFamily   int
	CPUIDModel    int
	CPUIDStepping int
	CPUMaxMHz     int
	CPUMinMHz     int
}

// DmemInfo describes the memory use of the calling process. Sizes are in
// kilobytes, except Pagesize, which is in bytes.
type DmemInfo struct {
	Peak          int64
	Size          int64
	Resident      int64
	HighWaterMark int64
	Shared        int64
	Text          int64
	Library       int64
	Heap          int64
	Locked        int64
	Stack         int64
	Pagesize      int64
	PTE           int64
}

// AddressMap is the load layout of an executable.
type AddressMap struct {
	Name      string
	TextStart uint64
	TextEnd   uint64
	DataStart uint64
	DataEnd   uint64
	BssStart  uint64
	BssEnd    uint64
}

// ExecutableInfo describes the running executable.
type ExecutableInfo struct {
	FullName    string
	AddressInfo AddressMap
}

// bound truncates s so that it fits in a NUL-terminated buffer of size n,
// without splitting a UTF-8 sequence.
func bound(s string, n int) string {
	if len(s) < n {
		return s
	}
	s = s[:n-1]
	// Drop a trailing partial rune.
	for i := 0; i < utf8.UTFMax-1 && len(s) > 0; i++ {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

func (e EventInfo) bounded() EventInfo {
	e.Symbol = bound(e.Symbol, symbolLen)
	e.ShortDescr = bound(e.ShortDescr, MinStrLen)
	e.LongDescr = bound(e.LongDescr, HugeStrLen)
	e.Units = bound(e.Units, MinStrLen)
	e.Derived = bound(e.Derived, MinStrLen)
	e.Postfix = bound(e.Postfix, Max2StrLen)
	e.Note = bound(e.Note, HugeStrLen)
	if len(e.Codes) > MaxInfoTerms {
		e.Codes = e.Codes[:MaxInfoTerms]
	}
	e.Codes = append([]EventCode(nil), e.Codes...)
	names := make([]string, 0, len(e.Names))
	for i, name := range e.Names {
		if i == MaxInfoTerms {
			break
		}
		names = append(names, bound(name, Max2StrLen))
	}
	e.Names = names
	if e.Count > len(e.Codes) {
		e.Count = len(e.Codes)
	}
	return e
}

func (c ComponentInfo) bounded() ComponentInfo {
	c.Name = bound(c.Name, MaxStrLen)
	c.ShortName = bound(c.ShortName, MinStrLen)
	c.Description = bound(c.Description, MaxStrLen)
	c.Version = bound(c.Version, MinStrLen)
	c.SupportVersion = bound(c.SupportVersion, MinStrLen)
	c.KernelVersion = bound(c.KernelVersion, MinStrLen)
	c.DisabledReason = bound(c.DisabledReason, MaxStrLen)
	pmus := make([]string, 0, len(c.PMUNames))
	for i, name := range c.PMUNames {
		if i == PMUMax {
			break
		}
		pmus = append(pmus, bound(name, MaxStrLen))
	}
	c.PMUNames = pmus
	return c
}

func (h HardwareInfo) bounded() HardwareInfo {
	h.VendorString = bound(h.VendorString, MaxStrLen)
	h.ModelString = bound(h.ModelString, MaxStrLen)
	return h
}

func (x ExecutableInfo) bounded() ExecutableInfo {
	x.FullName = bound(x.FullName, HugeStrLen)
	x.AddressInfo.Name = bound(x.AddressInfo.Name, MaxStrLen)
	return x
}

// GetEventInfo returns the description of event code.
func (l *Library) GetEventInfo(code EventCode) (EventInfo, error) {
	const op = "get event info"
	if err := l.requireInit(op); err != nil {
		return EventInfo{}, err
	}
	info, st := l.b.EventInfo(code)
	if err := l.check(op, st); err != nil {
		return EventInfo{}, err
	}
	if info == nil {
		return EventInfo{}, l.fail(op, ENOEVNT)
	}
	return info.bounded(), nil
}

// EventCodeToName returns the symbolic name of event code.
func (l *Library) EventCodeToName(code EventCode) (string, error) {
	const op = "event code to name"
	if err := l.requireInit(op); err != nil {
		return "", err
	}
	name, st := l.b.EventCodeToName(code)
	if err := l.check(op, st); err != nil {
		return "", err
	}
	if name == "" {
		return "", l.fail(op, ENOEVNT)
	}
	return bound(name, symbolLen), nil
}

// EventNameToCode returns the code of the event with the given name. The
// name may be a preset symbol or any native event name the subsystem
// recognizes.
func (l *Library) EventNameToCode(name string) (EventCode, error) {
	const op = "event name to code"
	if err := l.requireInit(op); err != nil {
		return 0, err
	}
	if name == "" || len(name) >= symbolLen {
		return 0, l.fail(op, EINVAL)
	}
	code, st := l.b.EventNameToCode(name)
	if err := l.check(op, st); err != nil {
		return 0, err
	}
	return code, nil
}

// EnumEvent returns the event after code under modifier. It fails with
// NoSuchEvent when the enumeration is exhausted.
//
// To walk every available preset:
//
//	code, err := lib.EnumEvent(papi.PresetMask, papi.EnumFirst)
//	for err == nil {
//		// ...
//		code, err = lib.EnumEvent(code, papi.PresetEnumAvail)
//	}
func (l *Library) EnumEvent(code EventCode, modifier EnumModifier) (EventCode, error) {
	const op = "enum event"
	if err := l.requireInit(op); err != nil {
		return 0, err
	}
	next, st := l.b.EnumEvent(code, modifier)
	if err := l.check(op, st); err != nil {
		return 0, err
	}
	return next, nil
}

// NumComponents returns the number of components in the subsystem.
func (l *Library) NumComponents() (int, error) {
	const op = "num components"
	if err := l.requireInit(op); err != nil {
		return 0, err
	}
	n := l.b.NumComponents()
	if n < 0 {
		return 0, l.fail(op, Errno(n))
	}
	return n, nil
}

// GetComponentInfo returns the description of component idx.
func (l *Library) GetComponentInfo(idx int) (ComponentInfo, error) {
	const op = "get component info"
	if err := l.requireInit(op); err != nil {
		return ComponentInfo{}, err
	}
	info := l.b.ComponentInfo(idx)
	if info == nil {
		l.log.Debug("no such component", zap.Int("component", idx))
		return ComponentInfo{}, l.fail(op, EINVAL)
	}
	return info.bounded(), nil
}

// GetHardwareInfo returns the description of the host hardware.
func (l *Library) GetHardwareInfo() (HardwareInfo, error) {
	const op = "get hardware info"
	if err := l.requireInit(op); err != nil {
		return HardwareInfo{}, err
	}
	info := l.b.HardwareInfo()
	if info == nil {
		return HardwareInfo{}, l.fail(op, EINVAL)
	}
	return info.bounded(), nil
}

// GetDmemInfo returns the current memory use of the calling process.
func (l *Library) GetDmemInfo() (DmemInfo, error) {
	const op = "get dmem info"
	if err := l.requireInit(op); err != nil {
		return DmemInfo{}, err
	}
	info, st := l.b.DmemInfo()
	if err := l.check(op, st); err != nil {
		return DmemInfo{}, err
	}
	if info == nil {
		return DmemInfo{}, l.fail(op, EINVAL)
	}
	return *info, nil
}

// GetExecutableInfo returns the layout of the running executable.
func (l *Library) GetExecutableInfo() (ExecutableInfo, error) {
	const op = "get executable info"
	if err := l.requireInit(op); err != nil {
		return ExecutableInfo{}, err
	}
	info := l.b.ExecutableInfo()
	if info == nil {
		return ExecutableInfo{}, l.fail(op, EINVAL)
	}
	return info.bounded(), nil
}
