// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"slices"

	"golang.org/x/sys/unix"
)

// An Event represents a performance event that perf can count.
type Event interface {
	// String returns the string representation of this event, preferably as the
	// name used by "perf record -e".
	String() string

	// SetAttrs sets the attributes for this event in the [unix.PerfEventAttr]
	// struct.
	SetAttrs(*unix.PerfEventAttr) error
}

// An EventScale is an Event that provides a scaling factor and unit to convert
// raw values into meaningful values.
type EventScale interface {
	Event

	// ScaleUnit returns the factor to multiply raw values by to compute a
	// meaningful value, plus the unit of that value. A no-op implementation
	// should return 1.0, "".
	ScaleUnit() (scale float64, unit string)
}

// An attrEvent is a fully resolved event.
type attrEvent struct {
	name   string
	typ    uint32
	config [3]uint64 // config, config1, config2
	period uint64

	scale float64 // 0 means 1
	unit  string
}

// regPeriod selects attrEvent.period in reg. Registers 0 through 2 are the
// config words.
const regPeriod = 3

// reg returns the config register i, or the sample period.
func (e *attrEvent) reg(i int) *uint64 {
	if i == regPeriod {
		return &e.period
	}
	return &e.config[i]
}

func (e *attrEvent) String() string {
	return e.name
}

func (e *attrEvent) SetAttrs(attr *unix.PerfEventAttr) error {
	attr.Type = e.typ
	attr.Config = e.config[0]
	attr.Ext1 = e.config[1]
	attr.Ext2 = e.config[2]
	attr.Sample = e.period // Union of sample_period and sample_freq
	return nil
}

func (e *attrEvent) ScaleUnit() (float64, string) {
	if e.scale == 0 {
		return 1, e.unit
	}
	return e.scale, e.unit
}

func symbolEvent(name string) Event {
	ev, ok := resolveSymbol("", name)
	if !ok {
		panic("unknown built-in event " + name)
	}
	ev.name = name
	return ev
}

// Common hardware and software events.
var (
	EventCPUCycles    = symbolEvent("cpu-cycles")
	EventInstructions = symbolEvent("instructions")
	EventCacheMisses  = symbolEvent("cache-misses")
	EventBranchMisses = symbolEvent("branch-misses")
	EventTaskClock    = symbolEvent("task-clock")
	EventPageFaults   = symbolEvent("page-faults")
)

// Names returns the canonical names of the events ParseEvent can resolve
// without parameters: the built-in hardware and software events, followed by
// the events the CPU PMU describes in /sys, each group sorted.
func Names() []string {
	names := symbolNames()
	p, err := pmus.get("cpu")
	if err != nil {
		// Machines without a hardware PMU still have the software events.
		return names
	}
	var sys []string
	for name := range p.aliases {
		if _, ok := symbols()[name]; !ok {
			sys = append(sys, name)
		}
	}
	slices.Sort(sys)
	return append(names, sys...)
}

// Description returns a one-line description of the named event, or "" if
// there is none. Built-in events are described here; other events are
// described by "perf list" if it's installed.
func Description(name string) string {
	if d := describeSymbol(name); d != "" {
		return d
	}
	list, err := perfList()
	if err != nil {
		return ""
	}
	return list[name].BriefDescription
}
