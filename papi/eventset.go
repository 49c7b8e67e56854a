// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// An EventSet names a collection of events counted together. EventSets are
// created by [Library.CreateEventSet] and are valid until destroyed or until
// the Library is shut down. Tokens are never reused, so a destroyed EventSet
// stays invalid.
type EventSet struct {
	id uint64
}

// NullEventSet is the invalid EventSet.
var NullEventSet EventSet

// IsNull reports whether es is NullEventSet.
func (es EventSet) IsNull() bool { return es.id == 0 }

func (es EventSet) String() string {
	if es.IsNull() {
		return "EventSet(null)"
	}
	return fmt.Sprintf("EventSet(%d)", es.id)
}

// A RunState is the counting state of an EventSet.
type RunState int

const (
	Stopped RunState = iota
	Running
)

func (s RunState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

type eventSet struct {
	handle int // Backend handle
}

// lookup returns the live event set for es.
func (l *Library) lookup(op string, es EventSet) (*eventSet, error) {
	if err := l.requireInit(op); err != nil {
		return nil, err
	}
	l.mu.Lock()
	e, ok := l.sets[es.id]
	l.mu.Unlock()
	if !ok {
		return nil, l.fail(op, EINVAL)
	}
	return e, nil
}

// requireStopped fails with an AlreadyRunning error if e is counting.
func (l *Library) requireStopped(op string, e *eventSet) error {
	state, st := l.b.State(e.handle)
	if err := l.check(op, st); err != nil {
		return err
	}
	if state&StateRunning != 0 {
		return l.fail(op, EISRUN)
	}
	return nil
}

// CreateEventSet returns a new, empty, stopped EventSet.
func (l *Library) CreateEventSet() (EventSet, error) {
	const op = "create eventset"
	if err := l.requireInit(op); err != nil {
		return NullEventSet, err
	}
	h, st := l.b.CreateEventSet()
	if err := l.check(op, st); err != nil {
		return NullEventSet, err
	}

	l.mu.Lock()
	l.nextID++
	es := EventSet{l.nextID}
	l.sets[es.id] = &eventSet{handle: h}
	l.mu.Unlock()

	l.log.Debug("created event set", zap.Stringer("eventset", es), zap.Int("handle", h))
	return es, nil
}

// AddEvent appends event code to es. es must be stopped. Adding an event
// that is already a member, or that the hardware can't count alongside the
// current members, fails with ResourceConflict.
func (l *Library) AddEvent(es EventSet, code EventCode) error {
	const op = "add event"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	if err := l.requireStopped(op, e); err != nil {
		return err
	}
	return l.check(op, l.b.AddEvent(e.handle, code))
}

// AddNamedEvent appends the event with the given name to es.
func (l *Library) AddNamedEvent(es EventSet, name string) error {
	code, err := l.EventNameToCode(name)
	if err != nil {
		return err
	}
	return l.AddEvent(es, code)
}

// AddEvents appends codes to es in order. The batch is all-or-nothing: if any
// code can't be added, the codes already added by this call are removed
// again and es is left as it was.
func (l *Library) AddEvents(es EventSet, codes []EventCode) error {
	const op = "add events"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return l.fail(op, EINVAL)
	}
	if err := l.requireStopped(op, e); err != nil {
		return err
	}

	added, st := l.b.AddEvents(e.handle, codes)
	if st >= 0 {
		if added != len(codes) {
			return l.fail(op, EBUG)
		}
		return nil
	}
	err = l.fail(op, st)
	added = min(max(added, 0), len(codes))
	if added > 0 {
		removed, rst := l.b.RemoveEvents(e.handle, codes[:added])
		if rst < 0 || removed != added {
			if rst >= 0 {
				rst = EBUG
			}
			err = multierr.Append(err, fmt.Errorf("rolling back %d added events: %w", added, l.fail("remove events", rst)))
		}
	}
	fields := []zap.Field{zap.Stringer("eventset", es), zap.Int("added", added)}
	if added < len(codes) {
		fields = append(fields, zap.Stringer("failed", codes[added]))
	}
	l.log.Debug("add events failed", fields...)
	return err
}

// RemoveEvent removes event code from es, keeping the order of the other
// members. es must be stopped.
func (l *Library) RemoveEvent(es EventSet, code EventCode) error {
	const op = "remove event"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	if err := l.requireStopped(op, e); err != nil {
		return err
	}
	return l.check(op, l.b.RemoveEvent(e.handle, code))
}

// RemoveNamedEvent removes the event with the given name from es.
func (l *Library) RemoveNamedEvent(es EventSet, name string) error {
	code, err := l.EventNameToCode(name)
	if err != nil {
		return err
	}
	return l.RemoveEvent(es, code)
}

// RemoveEvents removes codes from es. Like AddEvents, the batch is
// all-or-nothing: on failure es is restored to its original members, in
// their original order.
func (l *Library) RemoveEvents(es EventSet, codes []EventCode) error {
	const op = "remove events"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return l.fail(op, EINVAL)
	}
	if err := l.requireStopped(op, e); err != nil {
		return err
	}
	before, err := l.listEvents(op, e)
	if err != nil {
		return err
	}

	removed, st := l.b.RemoveEvents(e.handle, codes)
	if st >= 0 {
		if removed != len(codes) {
			return l.fail(op, EBUG)
		}
		return nil
	}
	err = l.fail(op, st)
	if removed > 0 {
		// Re-adding would append, so rebuild the member list from scratch.
		if rerr := l.restore(e, before); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("rolling back %d removed events: %w", removed, rerr))
		}
	}
	return err
}

// restore resets the members of e to members.
func (l *Library) restore(e *eventSet, members []EventCode) error {
	if err := l.check("cleanup eventset", l.b.Cleanup(e.handle)); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	if _, st := l.b.AddEvents(e.handle, members); st < 0 {
		return l.fail("add events", st)
	}
	return nil
}

// Start starts counting the events in es. es must be stopped.
func (l *Library) Start(es EventSet) error {
	const op = "start"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	return l.check(op, l.b.Start(e.handle))
}

// Read returns the counts accumulated by a running es since it was started
// or reset, one per member in member order. It doesn't stop or reset es.
func (l *Library) Read(es EventSet) ([]int64, error) {
	const op = "read"
	e, err := l.lookup(op, es)
	if err != nil {
		return nil, err
	}
	out, err := l.countBuf(op, e)
	if err != nil {
		return nil, err
	}
	if err := l.check(op, l.b.Read(e.handle, out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Stop stops a running es and returns its final counts, like Read.
func (l *Library) Stop(es EventSet) ([]int64, error) {
	const op = "stop"
	e, err := l.lookup(op, es)
	if err != nil {
		return nil, err
	}
	out, err := l.countBuf(op, e)
	if err != nil {
		return nil, err
	}
	if err := l.check(op, l.b.Stop(e.handle, out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Library) countBuf(op string, e *eventSet) ([]int64, error) {
	n := l.b.NumEvents(e.handle)
	if n < 0 {
		return nil, l.fail(op, Errno(n))
	}
	return make([]int64, n), nil
}

// Reset sets the counts of es to zero. It doesn't change whether es is
// running.
func (l *Library) Reset(es EventSet) error {
	const op = "reset"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	return l.check(op, l.b.Reset(e.handle))
}

// Cleanup removes all events from es. es must be stopped.
func (l *Library) Cleanup(es EventSet) error {
	const op = "cleanup eventset"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	return l.check(op, l.b.Cleanup(e.handle))
}

// Destroy frees es. es must be stopped; it need not be empty. After Destroy
// returns nil, es is invalid.
func (l *Library) Destroy(es EventSet) error {
	const op = "destroy eventset"
	e, err := l.lookup(op, es)
	if err != nil {
		return err
	}
	h := e.handle
	if err := l.check(op, l.b.Destroy(&h)); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.sets, es.id)
	l.mu.Unlock()

	l.log.Debug("destroyed event set", zap.Stringer("eventset", es), zap.Int("handle", e.handle))
	return nil
}

// State returns whether es is counting.
func (l *Library) State(es EventSet) (RunState, error) {
	const op = "state"
	e, err := l.lookup(op, es)
	if err != nil {
		return Stopped, err
	}
	bits, st := l.b.State(e.handle)
	if err := l.check(op, st); err != nil {
		return Stopped, err
	}
	if bits&StateRunning != 0 {
		return Running, nil
	}
	return Stopped, nil
}

// NumEvents returns the number of members of es.
func (l *Library) NumEvents(es EventSet) (int, error) {
	const op = "num events"
	e, err := l.lookup(op, es)
	if err != nil {
		return 0, err
	}
	n := l.b.NumEvents(e.handle)
	if n < 0 {
		return 0, l.fail(op, Errno(n))
	}
	return n, nil
}

// ListEvents returns the members of es in the order they were added.
func (l *Library) ListEvents(es EventSet) ([]EventCode, error) {
	const op = "list events"
	e, err := l.lookup(op, es)
	if err != nil {
		return nil, err
	}
	return l.listEvents(op, e)
}

func (l *Library) listEvents(op string, e *eventSet) ([]EventCode, error) {
	n := l.b.NumEvents(e.handle)
	if n < 0 {
		return nil, l.fail(op, Errno(n))
	}
	out := make([]EventCode, n)
	got, st := l.b.ListEvents(e.handle, out)
	if err := l.check(op, st); err != nil {
		return nil, err
	}
	if got != n {
		return nil, l.fail(op, EBUG)
	}
	return out, nil
}
