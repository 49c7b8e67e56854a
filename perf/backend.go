// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perf

import (
	"errors"
	"math"
	"slices"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/aclements/go-papi/events"
	"github.com/aclements/go-papi/papi"
)

// DefaultMaxEvents is the default number of events an event set can hold.
// perf multiplexes groups larger than the hardware supports.
const DefaultMaxEvents = 16

// Backend is a [papi.Backend] that counts events on the calling goroutine with
// perf_event_open.
//
// Each running event set is an open perf [Counter] group, which locks the
// goroutine that started it to its OS thread until it's stopped. Callers
// must start, read and stop an event set from the same goroutine.
type Backend struct {
	log       *zap.Logger
	opts      OpenOptions
	maxEvents int

	mu        sync.Mutex
	inited    bool
	sets      map[int]*eventSet
	next      int
	natives   []native
	nativeIdx map[string]int
	presets   map[papi.EventCode]papi.EventCode // Preset -> native code
	mhz       int
}

var _ papi.Backend = (*Backend)(nil)

type eventSet struct {
	codes []papi.EventCode
	evs   []events.Event
	c     *Counter // Non-nil while running
}

// An Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. The default discards all output.
func WithLogger(log *zap.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// WithOpenOptions sets the flags used to open every counter. The default
// counts user space only.
func WithOpenOptions(o OpenOptions) Option {
	return func(b *Backend) { b.opts = o }
}

// WithMaxEvents sets the number of events an event set can hold.
func WithMaxEvents(n int) Option {
	return func(b *Backend) { b.maxEvents = n }
}

// New returns a new, uninitialized perf counter subsystem.
func New(opts ...Option) *Backend {
	b := &Backend{
		log:       zap.NewNop(),
		opts:      OpenOptions{ExcludeKernel: true, ExcludeHypervisor: true},
		maxEvents: DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Init(version int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		b.sets = make(map[int]*eventSet)
		b.next = 1
		b.loadEvents()
		b.mhz = cpuMHz()
		b.inited = true
		b.log.Debug("perf initialized",
			zap.Int("natives", len(b.natives)),
			zap.Int("presets", len(b.presets)),
			zap.Int("mhz", b.mhz))
	}
	return papi.Errno(papi.VersionCurrent)
}

func (b *Backend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.sets {
		e.c.Close()
	}
	b.sets = nil
	b.inited = false
}

func (b *Backend) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inited
}

// errnoOf translates an error opening or reading a perf counter. grouped
// reports whether the event was being added to a non-empty group, in which
// case an invalid configuration more likely means the group conflicts.
func errnoOf(err error, grouped bool) papi.Errno {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return papi.ESYS
	}
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return papi.EPERM
	case syscall.ENOENT, syscall.EOPNOTSUPP, syscall.ENODEV:
		return papi.ENOEVNT
	case syscall.ENOSPC, syscall.EBUSY:
		return papi.ECNFLCT
	case syscall.EINVAL:
		if grouped {
			return papi.ECNFLCT
		}
		return papi.ENOEVNT
	case syscall.EMFILE, syscall.ENOMEM:
		return papi.ENOMEM
	}
	return papi.ESYS
}

// get returns event set h. b.mu must be held.
func (b *Backend) get(h int) (*eventSet, papi.Errno) {
	if !b.inited {
		return nil, papi.ENOINIT
	}
	e, ok := b.sets[h]
	if !ok {
		return nil, papi.EINVAL
	}
	return e, papi.OK
}

func (b *Backend) CreateEventSet() (int, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return papi.NullHandle, papi.ENOINIT
	}
	if b.next == math.MaxInt32 {
		return papi.NullHandle, papi.ENOMEM
	}
	h := b.next
	b.next++
	b.sets[h] = new(eventSet)
	return h, papi.OK
}

func (b *Backend) AddEvent(h int, code papi.EventCode) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addEvent(h, code)
}

func (b *Backend) addEvent(h int, code papi.EventCode) papi.Errno {
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	if e.c != nil {
		return papi.EISRUN
	}
	ev, ok := b.resolve(code)
	if !ok {
		return papi.ENOEVNT
	}
	if slices.Contains(e.codes, code) || len(e.codes) >= b.maxEvents {
		return papi.ECNFLCT
	}
	// Open the whole group to check the kernel accepts the new member.
	evs := append(slices.Clip(e.evs), ev)
	c, err := b.opts.Open(TargetThisGoroutine, evs...)
	if err != nil {
		b.log.Debug("perf rejected event", zap.Stringer("event", code), zap.Error(err))
		return errnoOf(err, len(e.evs) > 0)
	}
	c.Close()
	e.codes = append(e.codes, code)
	e.evs = evs
	return papi.OK
}

func (b *Backend) AddEvents(h int, codes []papi.EventCode) (int, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, code := range codes {
		if st := b.addEvent(h, code); st != papi.OK {
			return i, st
		}
	}
	return len(codes), papi.OK
}

func (b *Backend) RemoveEvent(h int, code papi.EventCode) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeEvent(h, code)
}

func (b *Backend) removeEvent(h int, code papi.EventCode) papi.Errno {
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	if e.c != nil {
		return papi.EISRUN
	}
	i := slices.Index(e.codes, code)
	if i < 0 {
		return papi.EINVAL
	}
	e.codes = slices.Delete(e.codes, i, i+1)
	e.evs = slices.Delete(e.evs, i, i+1)
	return papi.OK
}

func (b *Backend) RemoveEvents(h int, codes []papi.EventCode) (int, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, code := range codes {
		if st := b.removeEvent(h, code); st != papi.OK {
			return i, st
		}
	}
	return len(codes), papi.OK
}

func (b *Backend) Start(h int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	if e.c != nil {
		return papi.EISRUN
	}
	if len(e.evs) == 0 {
		return papi.EINVAL
	}
	c, err := b.opts.Open(TargetThisGoroutine, e.evs...)
	if err != nil {
		b.log.Debug("opening counter group", zap.Int("handle", h), zap.Error(err))
		return errnoOf(err, len(e.evs) > 1)
	}
	if err := c.Start(); err != nil {
		c.Close()
		b.log.Debug("enabling counter group", zap.Int("handle", h), zap.Error(err))
		return papi.ESYS
	}
	e.c = c
	return papi.OK
}

// read stores the current values of e's counters in out. b.mu must be held.
func (b *Backend) read(h int, out []int64) (*eventSet, papi.Errno) {
	e, st := b.get(h)
	if st != papi.OK {
		return nil, st
	}
	if e.c == nil {
		return nil, papi.ENOTRUN
	}
	if len(out) < len(e.codes) {
		return nil, papi.EINVAL
	}
	cs := make([]Count, len(e.codes))
	if err := e.c.ReadGroup(cs); err != nil {
		b.log.Debug("reading counter group", zap.Int("handle", h), zap.Error(err))
		return nil, papi.ECLOST
	}
	for i, c := range cs {
		v, _ := c.Value()
		out[i] = int64(math.Round(v))
	}
	return e, papi.OK
}

func (b *Backend) Read(h int, out []int64) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, st := b.read(h, out)
	return st
}

func (b *Backend) Stop(h int, out []int64) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	if e.c == nil {
		return papi.ENOTRUN
	}
	if len(out) < len(e.codes) {
		return papi.EINVAL
	}
	if err := e.c.Stop(); err != nil {
		b.log.Debug("disabling counter group", zap.Int("handle", h), zap.Error(err))
	}
	_, st = b.read(h, out)
	e.c.Close()
	e.c = nil
	return st
}

func (b *Backend) Reset(h int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	// A stopped event set always starts from zero.
	if err := e.c.Reset(); err != nil {
		return papi.ECLOST
	}
	return papi.OK
}

func (b *Backend) Cleanup(h int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	if e.c != nil {
		return papi.EISRUN
	}
	e.codes, e.evs = nil, nil
	return papi.OK
}

func (b *Backend) Destroy(h *int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(*h)
	if st != papi.OK {
		return st
	}
	if e.c != nil {
		return papi.EISRUN
	}
	delete(b.sets, *h)
	*h = papi.NullHandle
	return papi.OK
}

func (b *Backend) State(h int) (int, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return 0, st
	}
	if e.c != nil {
		return papi.StateRunning, papi.OK
	}
	return papi.StateStopped, papi.OK
}

func (b *Backend) NumEvents(h int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return int(st)
	}
	return len(e.codes)
}

func (b *Backend) ListEvents(h int, out []papi.EventCode) (int, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return 0, st
	}
	copy(out, e.codes)
	return len(e.codes), papi.OK
}

func (b *Backend) Strerror(st papi.Errno) string {
	if st == papi.EPERM {
		return "Permission level does not permit operation (check " + paranoidPath + ")"
	}
	return ""
}
