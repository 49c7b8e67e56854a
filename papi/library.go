// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package papi provides event sets over hardware performance counters,
// modeled on the PAPI low-level interface.
//
// A [Library] wraps a counter subsystem ([Backend]) and must be initialized
// with [Library.Init] before use:
//
//	lib := papi.New(backend)
//	if _, err := lib.Init(papi.VersionCurrent); err != nil {
//		// ...
//	}
//	defer lib.Shutdown()
//
//	es, err := lib.CreateEventSet()
//	// ...
//	err = lib.AddEvents(es, []papi.EventCode{papi.TOTCYC, papi.TOTINS})
//	err = lib.Start(es)
//	work()
//	counts, err := lib.Stop(es)
//
// Every failure is an [*Error] whose [Kind] callers can match on. Operations
// on a single EventSet must not be called concurrently. Counter hardware is
// usually thread affine, so callers using a real subsystem should keep an
// event set on one goroutine locked to its OS thread.
package papi

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Version returns the encoded subsystem version maj.min.rev.inc.
func Version(maj, min, rev, inc int) int {
	return maj<<24 | min<<16 | rev<<8 | inc
}

// VersionMajor returns the major component of version v.
func VersionMajor(v int) int {
	return v >> 24 & 0xff
}

// VersionCurrent is the version this package implements.
var VersionCurrent = Version(7, 1, 0, 0)

// DefaultSampleWindow is how long the derived-metric functions count for.
const DefaultSampleWindow = 10 * time.Millisecond

// A Library is a handle on a counter subsystem. It owns the table of live
// event sets. Init and Shutdown modify subsystem-wide state and must not race
// with other operations.
type Library struct {
	b      Backend
	log    *zap.Logger
	window time.Duration
	sleep  func(time.Duration)

	mu     sync.Mutex
	sets   map[uint64]*eventSet
	nextID uint64
}

// An Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger. The default discards all output.
func WithLogger(log *zap.Logger) Option {
	return func(l *Library) { l.log = log }
}

// WithSampleWindow sets the measurement window of the derived-metric
// functions.
func WithSampleWindow(d time.Duration) Option {
	return func(l *Library) { l.window = d }
}

// WithSleep sets the function used to wait out a measurement window. The
// default is [time.Sleep].
func WithSleep(sleep func(time.Duration)) Option {
	return func(l *Library) { l.sleep = sleep }
}

// New returns a Library over counter subsystem b. The Library is not
// initialized.
func New(b Backend, opts ...Option) *Library {
	l := &Library{
		b:      b,
		log:    zap.NewNop(),
		window: DefaultSampleWindow,
		sleep:  time.Sleep,
		sets:   make(map[uint64]*eventSet),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init initializes the counter subsystem and returns its version. Calling
// Init again while initialized returns the current version and leaves all
// state alone. version must have the same major version as
// [VersionCurrent].
func (l *Library) Init(version int) (int, error) {
	const op = "init"
	if VersionMajor(version) != VersionMajor(VersionCurrent) {
		return 0, l.fail(op, EINVAL)
	}
	already := l.b.IsInitialized()
	st := l.b.Init(version)
	if err := l.check(op, st); err != nil {
		l.log.Warn("counter subsystem init failed", zap.Error(err))
		return 0, err
	}
	if !already {
		l.log.Debug("counter subsystem initialized", zap.Int("version", int(st)))
	}
	return int(st), nil
}

// Shutdown releases the counter subsystem. All EventSets become invalid.
// Shutdown never fails.
func (l *Library) Shutdown() {
	l.mu.Lock()
	n := len(l.sets)
	clear(l.sets)
	l.mu.Unlock()

	l.b.Shutdown()
	l.log.Debug("counter subsystem shut down", zap.Int("invalidated", n))
}

// IsInitialized reports whether the counter subsystem is initialized.
func (l *Library) IsInitialized() bool {
	return l.b.IsInitialized()
}

// Strerror returns the subsystem's message for status st.
func (l *Library) Strerror(st Errno) string {
	if msg := l.b.Strerror(st); msg != "" {
		return msg
	}
	return Strerror(st)
}

// RealNsec returns the wall clock time in nanoseconds.
func (l *Library) RealNsec() int64 { return l.b.RealNsec() }

// RealUsec returns the wall clock time in microseconds.
func (l *Library) RealUsec() int64 { return l.b.RealNsec() / 1000 }

// RealCycles returns the wall clock time in cycles.
func (l *Library) RealCycles() int64 { return l.b.RealCycles() }

// VirtNsec returns the process CPU time in nanoseconds.
func (l *Library) VirtNsec() int64 { return l.b.VirtNsec() }

// VirtUsec returns the process CPU time in microseconds.
func (l *Library) VirtUsec() int64 { return l.b.VirtNsec() / 1000 }

// VirtCycles returns the process CPU time in cycles.
func (l *Library) VirtCycles() int64 { return l.b.VirtCycles() }

func (l *Library) requireInit(op string) error {
	if !l.b.IsInitialized() {
		return l.fail(op, ENOINIT)
	}
	return nil
}

// check translates a subsystem status. Non-negative statuses succeed.
func (l *Library) check(op string, st Errno) error {
	if st >= 0 {
		return nil
	}
	return l.fail(op, st)
}

func (l *Library) fail(op string, st Errno) *Error {
	err := newError(op, st, l.b.Strerror(st))
	l.log.Debug("counter subsystem call failed",
		zap.String("op", op),
		zap.String("code", st.Name()),
		zap.Stringer("kind", err.Kind))
	return err
}
