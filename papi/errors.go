// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi

import (
	"errors"
	"fmt"
)

// An Errno is a status code returned by the counter subsystem. Zero is
// success, negative values are failures, and positive values are reserved for
// calls that return a count or version in the status channel.
//
// Errno implements error, so the constants below can be used as targets for
// [errors.Is].
type Errno int32

const (
	OK           Errno = 0
	EINVAL       Errno = -1  // Invalid argument
	ENOMEM       Errno = -2  // Insufficient memory
	ESYS         Errno = -3  // A System/C library call failed
	ECMP         Errno = -4  // Not supported by component
	ECLOST       Errno = -5  // Access to the counters was lost or interrupted
	EBUG         Errno = -6  // Internal error
	ENOEVNT      Errno = -7  // Event does not exist
	ECNFLCT      Errno = -8  // Event exists, but cannot be counted due to counter resource limitations
	ENOTRUN      Errno = -9  // EventSet is currently not running
	EISRUN       Errno = -10 // EventSet is currently counting
	ENOEVST      Errno = -11 // No such EventSet available
	ENOTPRESET   Errno = -12 // Event in argument is not a valid preset
	ENOCNTR      Errno = -13 // Hardware does not support performance counters
	EMISC        Errno = -14 // Unknown error code
	EPERM        Errno = -15 // Permission level does not permit operation
	ENOINIT      Errno = -16 // Subsystem hasn't been initialized yet
	ENOCMP       Errno = -17 // Component index isn't set
	ENOSUPP      Errno = -18 // Not supported
	ENOIMPL      Errno = -19 // Not implemented
	EBUF         Errno = -20 // Buffer size exceeded
	EINVALDOM    Errno = -21 // EventSet domain is not supported for the operation
	EATTR        Errno = -22 // Invalid or missing event attributes
	ECOUNT       Errno = -23 // Too many events or attributes
	ECOMBO       Errno = -24 // Bad combination of features
	ECMPDISABLED Errno = -25 // Component containing event is disabled
	EDELAYINIT   Errno = -26 // Delayed initialization component failure
)

// A Kind classifies an error returned by the counter subsystem. The set of
// kinds is closed: every status code maps to exactly one Kind, and codes this
// package doesn't know map to Miscellaneous.
type Kind int

const (
	Miscellaneous Kind = iota
	InvalidValue
	NoMemory
	SystemError
	ComponentError
	CountersLost
	InternalBug
	NoSuchEvent
	ResourceConflict
	NotRunning
	AlreadyRunning
	NoSuchEventSet
	NotAPreset
	NoCounterHardware
	PermissionDenied
	NotInitialized
	NoSuchComponent
	NotSupported
	NotImplemented
	BufferTooSmall
	InvalidDomain
	InvalidAttribute
	TooManyItems
	InvalidCombination
	ComponentDisabled
	DelayedInitFailure
)

type errnoDesc struct {
	kind Kind
	name string
	msg  string
}

var errnoTable = map[Errno]errnoDesc{
	EINVAL:       {InvalidValue, "EINVAL", "Invalid argument"},
	ENOMEM:       {NoMemory, "ENOMEM", "Insufficient memory"},
	ESYS:         {SystemError, "ESYS", "A System/C library call failed"},
	ECMP:         {ComponentError, "ECMP", "Not supported by component"},
	ECLOST:       {CountersLost, "ECLOST", "Access to the counters was lost or interrupted"},
	EBUG:         {InternalBug, "EBUG", "Internal error, please send mail to the developers"},
	ENOEVNT:      {NoSuchEvent, "ENOEVNT", "Event does not exist"},
	ECNFLCT:      {ResourceConflict, "ECNFLCT", "Event exists, but cannot be counted due to counter resource limitations"},
	ENOTRUN:      {NotRunning, "ENOTRUN", "EventSet is currently not running"},
	EISRUN:       {AlreadyRunning, "EISRUN", "EventSet is currently counting"},
	ENOEVST:      {NoSuchEventSet, "ENOEVST", "No such EventSet available"},
	ENOTPRESET:   {NotAPreset, "ENOTPRESET", "Event in argument is not a valid preset"},
	ENOCNTR:      {NoCounterHardware, "ENOCNTR", "Hardware does not support performance counters"},
	EMISC:        {Miscellaneous, "EMISC", "Unknown error code"},
	EPERM:        {PermissionDenied, "EPERM", "Permission level does not permit operation"},
	ENOINIT:      {NotInitialized, "ENOINIT", "Counter subsystem hasn't been initialized yet"},
	ENOCMP:       {NoSuchComponent, "ENOCMP", "Component Index isn't set"},
	ENOSUPP:      {NotSupported, "ENOSUPP", "Not supported"},
	ENOIMPL:      {NotImplemented, "ENOIMPL", "Not implemented"},
	EBUF:         {BufferTooSmall, "EBUF", "Buffer size exceeded"},
	EINVALDOM:    {InvalidDomain, "EINVAL_DOM", "EventSet domain is not supported for the operation"},
	EATTR:        {InvalidAttribute, "EATTR", "Invalid or missing event attributes"},
	ECOUNT:       {TooManyItems, "ECOUNT", "Too many events or attributes"},
	ECOMBO:       {InvalidCombination, "ECOMBO", "Bad combination of features"},
	ECMPDISABLED: {ComponentDisabled, "ECMP_DISABLED", "Component containing event is disabled"},
	EDELAYINIT:   {DelayedInitFailure, "EDELAY_INIT", "Delayed initialization component failure"},
}

var kindNames = [...]string{
	Miscellaneous:      "Miscellaneous",
	InvalidValue:       "InvalidValue",
	NoMemory:           "NoMemory",
	SystemError:        "SystemError",
	ComponentError:     "ComponentError",
	CountersLost:       "CountersLost",
	InternalBug:        "InternalBug",
	NoSuchEvent:        "NoSuchEvent",
	ResourceConflict:   "ResourceConflict",
	NotRunning:         "NotRunning",
	AlreadyRunning:     "AlreadyRunning",
	NoSuchEventSet:     "NoSuchEventSet",
	NotAPreset:         "NotAPreset",
	NoCounterHardware:  "NoCounterHardware",
	PermissionDenied:   "PermissionDenied",
	NotInitialized:     "NotInitialized",
	NoSuchComponent:    "NoSuchComponent",
	NotSupported:       "NotSupported",
	NotImplemented:     "NotImplemented",
	BufferTooSmall:     "BufferTooSmall",
	InvalidDomain:      "InvalidDomain",
	InvalidAttribute:   "InvalidAttribute",
	TooManyItems:       "TooManyItems",
	InvalidCombination: "InvalidCombination",
	ComponentDisabled:  "ComponentDisabled",
	DelayedInitFailure: "DelayedInitFailure",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Errnos returns every status code with a dedicated Kind, in code order.
func Errnos() []Errno {
	codes := make([]Errno, 0, len(errnoTable))
	for c := EINVAL; c >= EDELAYINIT; c-- {
		codes = append(codes, c)
	}
	return codes
}

// Kind returns the Kind of status code e. Codes without a dedicated Kind are
// Miscellaneous.
func (e Errno) Kind() Kind {
	if d, ok := errnoTable[e]; ok {
		return d.kind
	}
	return Miscellaneous
}

// Name returns the symbolic name of e, such as "ENOTRUN".
func (e Errno) Name() string {
	if e == OK {
		return "OK"
	}
	if d, ok := errnoTable[e]; ok {
		return d.name
	}
	return fmt.Sprintf("E%d", int32(e))
}

func (e Errno) Error() string {
	return Strerror(e)
}

// Strerror returns the message for status code e. It never fails: codes
// without a message produce one naming the code.
func Strerror(e Errno) string {
	if e == OK {
		return "No error"
	}
	if d, ok := errnoTable[e]; ok {
		return d.msg
	}
	return fmt.Sprintf("Unknown error code: %d", int32(e))
}

// An Error is a failed counter subsystem operation.
type Error struct {
	Op      string // Operation that failed, such as "start"
	Code    Errno  // Raw status code
	Kind    Kind
	Message string // Message from the subsystem's strerror
}

func (e *Error) Error() string {
	if e.Op == "" {
		return "papi: " + e.Message
	}
	return "papi: " + e.Op + ": " + e.Message
}

// Is reports whether target is the Errno carried by e, or an *Error of the
// same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Errno:
		return e.Code == t
	case *Error:
		return e.Kind == t.Kind && (t.Code == OK || t.Code == e.Code)
	}
	return false
}

func (e *Error) Unwrap() error {
	return e.Code
}

// KindOf returns the Kind of err if err is or wraps an *Error or Errno, and
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	var en Errno
	if errors.As(err, &en) && en != OK {
		return en.Kind(), true
	}
	return Miscellaneous, false
}

// IsKind reports whether err is a counter subsystem error of Kind k.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// newError classifies a failed status. msg is the subsystem's message for
// st; if it is empty, Strerror is used.
func newError(op string, st Errno, msg string) *Error {
	if msg == "" {
		msg = Strerror(st)
	}
	return &Error{Op: op, Code: st, Kind: st.Kind(), Message: msg}
}
