// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi

// A Backend is a counter subsystem. It exposes the C-style native interface:
// every fallible call reports an [Errno] status, and event sets are named by
// integer handles owned by the subsystem. [Library] is the only intended
// caller; it enforces initialization, translates statuses into errors and
// maps handles to [EventSet] tokens.
//
// Implementations need not be safe for concurrent use on a single handle.
type Backend interface {
	// Init initializes the subsystem. It returns the subsystem version on
	// success, or a negative status. If already initialized, it returns the
	// version without reinitializing.
	Init(version int) Errno
	// Shutdown releases all subsystem resources and invalidates all handles.
	Shutdown()
	IsInitialized() bool

	CreateEventSet() (handle int, st Errno)
	AddEvent(handle int, code EventCode) Errno
	// AddEvents adds codes in order, stopping at the first failure. It
	// returns the number of codes added and the status of the failed add.
	AddEvents(handle int, codes []EventCode) (added int, st Errno)
	RemoveEvent(handle int, code EventCode) Errno
	// RemoveEvents removes codes in order, stopping at the first failure.
	RemoveEvents(handle int, codes []EventCode) (removed int, st Errno)
	Start(handle int) Errno
	// Stop stops counting and stores one value per member in out.
	Stop(handle int, out []int64) Errno
	// Read stores one value per member in out without stopping.
	Read(handle int, out []int64) Errno
	Reset(handle int) Errno
	Cleanup(handle int) Errno
	// Destroy frees the event set and sets *handle to NullHandle.
	Destroy(handle *int) Errno
	// State returns a bit mask of StateStopped, StateRunning, ...
	State(handle int) (state int, st Errno)
	// NumEvents returns the member count, or a negative status.
	NumEvents(handle int) int
	// ListEvents stores up to len(out) members in out and returns the total
	// number of members.
	ListEvents(handle int, out []EventCode) (n int, st Errno)

	EventCodeToName(code EventCode) (string, Errno)
	EventNameToCode(name string) (EventCode, Errno)
	// EnumEvent returns the event following code under modifier.
	EnumEvent(code EventCode, modifier EnumModifier) (EventCode, Errno)
	EventInfo(code EventCode) (*EventInfo, Errno)

	NumComponents() int
	// ComponentInfo returns nil if idx is not a component.
	ComponentInfo(idx int) *ComponentInfo
	// HardwareInfo returns nil if the information isn't available.
	HardwareInfo() *HardwareInfo
	DmemInfo() (*DmemInfo, Errno)
	// ExecutableInfo returns nil if the information isn't available.
	ExecutableInfo() *ExecutableInfo

	// Strerror returns the subsystem's message for st, or "" to use
	// [Strerror].
	Strerror(st Errno) string

	RealNsec() int64
	RealCycles() int64
	VirtNsec() int64
	VirtCycles() int64
}

// NullHandle is the invalid backend event set handle.
const NullHandle = -1

// Event set state bits reported by [Backend.State].
const (
	StateStopped = 0x01
	StateRunning = 0x02
)

// An EnumModifier selects how [Library.EnumEvent] advances.
type EnumModifier int

const (
	// EnumEvents steps to the next event of the same class (preset or
	// native) as the given code.
	EnumEvents EnumModifier = 0
	// EnumFirst returns the first event of the class of the given code.
	EnumFirst EnumModifier = 1
	// PresetEnumAvail steps to the next preset the subsystem can count.
	PresetEnumAvail EnumModifier = 2
)
