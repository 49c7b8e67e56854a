// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim implements a simulated counter subsystem for [papi.Library].
//
// Counts are computed from a clock and a fixed rate per event, so they are
// deterministic when the clocks are controlled with a [ManualClock]. The
// subsystem has a fixed pool of event set slots and a fixed number of
// counters per event set, which makes the resource-exhaustion paths of the
// event set API reachable in tests.
package sim

import (
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aclements/go-papi/papi"
)

const (
	// MaxEventSets is the size of the event set slot table. Slot 0 is
	// never used, so at most MaxEventSets-1 event sets are live at once.
	MaxEventSets = 32

	// DefaultCounters is the default number of counters per event set.
	DefaultCounters = 10

	// ClockMHz is the simulated clock rate used by the cycle timers.
	ClockMHz = 3000
)

// Backend is a simulated counter subsystem. It is safe for concurrent use.
type Backend struct {
	log       *zap.Logger
	clock     func() time.Duration
	procClock func() time.Duration
	counters  int
	rates     map[papi.EventCode]float64

	mu     sync.Mutex
	inited bool
	slots  [MaxEventSets]*eventSet
}

var _ papi.Backend = (*Backend)(nil)

type eventSet struct {
	codes   []papi.EventCode
	rates   []float64
	base    []int64 // Counter values at start or reset
	running bool
}

// An Option configures a Backend.
type Option func(*Backend)

// WithClock sets the wall clock. The default is the monotonic time since the
// Backend was created.
func WithClock(clock func() time.Duration) Option {
	return func(b *Backend) { b.clock = clock }
}

// WithProcClock sets the process CPU clock, which drives all event counts.
// The default is the wall clock.
func WithProcClock(clock func() time.Duration) Option {
	return func(b *Backend) { b.procClock = clock }
}

// WithCounters sets the number of events an event set can hold.
func WithCounters(n int) Option {
	return func(b *Backend) { b.counters = n }
}

// WithRate sets the rate of preset code in events per nanosecond of process
// time, making it countable if it wasn't.
func WithRate(code papi.EventCode, perNs float64) Option {
	return func(b *Backend) { b.rates[code] = perNs }
}

// WithoutEvent makes preset code uncountable.
func WithoutEvent(code papi.EventCode) Option {
	return func(b *Backend) { delete(b.rates, code) }
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(log *zap.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// New returns a new, uninitialized simulated counter subsystem.
func New(opts ...Option) *Backend {
	b := &Backend{
		log:      zap.NewNop(),
		counters: DefaultCounters,
		rates:    maps.Clone(defaultRates),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.clock == nil {
		b.clock = monotonic()
	}
	if b.procClock == nil {
		b.procClock = b.clock
	}
	return b
}

func (b *Backend) Init(version int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		b.slots = [MaxEventSets]*eventSet{}
		b.inited = true
		b.log.Debug("sim initialized", zap.Int("counters", b.counters), zap.Int("presets", len(b.rates)))
	}
	return papi.Errno(papi.VersionCurrent)
}

func (b *Backend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inited = false
	b.slots = [MaxEventSets]*eventSet{}
}

func (b *Backend) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inited
}

// get returns the event set in slot h. b.mu must be held.
func (b *Backend) get(h int) (*eventSet, papi.Errno) {
	if !b.inited {
		return nil, papi.ENOINIT
	}
	if h <= 0 || h >= MaxEventSets || b.slots[h] == nil {
		return nil, papi.EINVAL
	}
	return b.slots[h], papi.OK
}

func (b *Backend) CreateEventSet() (int, papi.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return papi.NullHandle, papi.ENOINIT
	}
	for h := 1; h < MaxEventSets; h++ {
		if b.slots[h] == nil {
			b.slots[h] = new(eventSet)
			return h, papi.OK
		}
	}
	b.log.Debug("no free event set slots")
	return papi.NullHandle, papi.ENOMEM
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
	if e.running {
		return papi.EISRUN
	}
	rate, ok := b.known(code)
	if !ok {
		return papi.ENOEVNT
	}
	if slices.Contains(e.codes, code) || len(e.codes) >= b.counters {
		return papi.ECNFLCT
	}
	e.codes = append(e.codes, code)
	e.rates = append(e.rates, rate)
	e.base = append(e.base, 0)
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
	if e.running {
		return papi.EISRUN
	}
	i := slices.Index(e.codes, code)
	if i < 0 {
		return papi.EINVAL
	}
	e.codes = slices.Delete(e.codes, i, i+1)
	e.rates = slices.Delete(e.rates, i, i+1)
	e.base = slices.Delete(e.base, i, i+1)
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

// value returns the current value of counter i of e. b.mu must be held.
func (b *Backend) value(e *eventSet, i int) int64 {
	return int64(e.rates[i] * float64(b.procClock().Nanoseconds()))
}

func (b *Backend) Start(h int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	if e.running {
		return papi.EISRUN
	}
	if len(e.codes) == 0 {
		return papi.EINVAL
	}
	for i := range e.base {
		e.base[i] = b.value(e, i)
	}
	e.running = true
	return papi.OK
}

func (b *Backend) read(h int, out []int64) (*eventSet, papi.Errno) {
	e, st := b.get(h)
	if st != papi.OK {
		return nil, st
	}
	if !e.running {
		return nil, papi.ENOTRUN
	}
	if len(out) < len(e.codes) {
		return nil, papi.EINVAL
	}
	for i := range e.codes {
		out[i] = b.value(e, i) - e.base[i]
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
	e, st := b.read(h, out)
	if st != papi.OK {
		return st
	}
	e.running = false
	return papi.OK
}

func (b *Backend) Reset(h int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(h)
	if st != papi.OK {
		return st
	}
	for i := range e.base {
		e.base[i] = b.value(e, i)
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
	if e.running {
		return papi.EISRUN
	}
	e.codes, e.rates, e.base = nil, nil, nil
	return papi.OK
}

func (b *Backend) Destroy(h *int) papi.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, st := b.get(*h)
	if st != papi.OK {
		return st
	}
	if e.running {
		return papi.EISRUN
	}
	b.slots[*h] = nil
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
	if e.running {
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

// simMessages override the default messages for a few statuses.
var simMessages = map[papi.Errno]string{
	papi.ENOTRUN: "EventSet is not started",
	papi.EISRUN:  "EventSet is currently running",
}

func (b *Backend) Strerror(st papi.Errno) string {
	return simMessages[st]
}

func (b *Backend) RealNsec() int64   { return b.clock().Nanoseconds() }
func (b *Backend) RealCycles() int64 { return b.clock().Nanoseconds() * ClockMHz / 1000 }
func (b *Backend) VirtNsec() int64   { return b.procClock().Nanoseconds() }
func (b *Backend) VirtCycles() int64 { return b.procClock().Nanoseconds() * ClockMHz / 1000 }
