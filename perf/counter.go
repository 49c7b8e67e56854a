// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/aclements/go-papi/events"
)

const paranoidPath = "/proc/sys/kernel/perf_event_paranoid"

// Paranoid returns the system's perf_event_paranoid level. Unprivileged
// processes can count their own user-space events at levels up to 2.
func Paranoid() (int, error) {
	data, err := os.ReadFile(paranoidPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(bytes.TrimSpace(data)))
}

// Target specifies what goroutine, thread, or CPU a [Counter] should monitor.
type Target interface {
	pidCPU() (pid, cpu int)
	open()
	close()
}

type targetThisGoroutine struct{}

func (targetThisGoroutine) pidCPU() (pid, cpu int) { return 0, -1 }
func (targetThisGoroutine) open()                  { runtime.LockOSThread() }
func (targetThisGoroutine) close()                 { runtime.UnlockOSThread() }

// TargetThisGoroutine monitors the calling goroutine. This will call
// [runtime.LockOSThread] on Open and [runtime.UnlockOSThread] on Close.
var TargetThisGoroutine Target = targetThisGoroutine{}

// OpenOptions are flags that restrict what a [Counter] counts.
type OpenOptions struct {
	// ExcludeKernel and ExcludeHypervisor stop counting while the target is
	// executing in the kernel or hypervisor. Unprivileged processes
	// generally must exclude the kernel when perf_event_paranoid is 2.
	ExcludeKernel     bool
	ExcludeHypervisor bool
}

// attr returns the perf_event_attr for ev. Only the group leader starts
// disabled; the other members count whenever the leader does.
func (o OpenOptions) attr(ev events.Event, leader bool) (*unix.PerfEventAttr, error) {
	attr := &unix.PerfEventAttr{Size: uint32(unsafe.Sizeof(unix.PerfEventAttr{}))}
	if err := ev.SetAttrs(attr); err != nil {
		return nil, err
	}
	if o.ExcludeKernel {
		attr.Bits |= unix.PerfBitExcludeKernel
	}
	if o.ExcludeHypervisor {
		attr.Bits |= unix.PerfBitExcludeHv
	}
	if leader {
		attr.Bits |= unix.PerfBitDisabled
		attr.Read_format = unix.PERF_FORMAT_TOTAL_TIME_ENABLED |
			unix.PERF_FORMAT_TOTAL_TIME_RUNNING |
			unix.PERF_FORMAT_GROUP
	}
	return attr, nil
}

// A Counter reports the number of times an [events.Event] or group of Events
// occurred.
type Counter struct {
	target  Target
	files   []*os.File // Group leader first
	scales  []scale
	running bool

	buf  []byte  // PERF_FORMAT_GROUP read buffer
	base []Count // Subtracted from reads; see Reset
}

type scale struct {
	scale float64
	unit  string
}

var errClosed = errors.New("counter is closed")

// OpenCounter returns a new [Counter] that reads values for the given
// [events.Event] or group of Events on the given [Target]. Callers are
// expected to call [Counter.Close] when done with this Counter.
//
// If multiple events are given, they are opened as a group, which means they
// will all be scheduled onto the hardware at the same time.
//
// The counter is initially not running. Call [Counter.Start] to start it.
func OpenCounter(target Target, evs ...events.Event) (*Counter, error) {
	return OpenOptions{}.Open(target, evs...)
}

// Open is like [OpenCounter], but applies the flags in o to every event.
func (o OpenOptions) Open(target Target, evs ...events.Event) (*Counter, error) {
	if len(evs) == 0 {
		return nil, nil
	}
	c := &Counter{
		target: target,
		scales: make([]scale, len(evs)),
		buf:    make([]byte, 8*(3+len(evs))),
		base:   make([]Count, len(evs)),
	}
	for i, ev := range evs {
		c.scales[i] = scale{1, ""}
		if es, ok := ev.(events.EventScale); ok {
			c.scales[i].scale, c.scales[i].unit = es.ScaleUnit()
		}
	}

	target.open()
	success := false
	defer func() {
		if !success {
			c.closeFiles()
			target.close()
		}
	}()

	pid, cpu := target.pidCPU()
	group := -1
	for i, ev := range evs {
		attr, err := o.attr(ev, i == 0)
		if err != nil {
			return nil, err
		}
		fd, err := unix.PerfEventOpen(attr, pid, cpu, group, unix.PERF_FLAG_FD_CLOEXEC)
		if errors.Is(err, syscall.EACCES) {
			if level, err2 := Paranoid(); err2 != nil || level > 0 {
				err = fmt.Errorf("%w (consider: echo 0 | sudo tee %s)", err, paranoidPath)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", ev, err)
		}
		if i == 0 {
			group = fd
		}
		// Reads only use the leader, but closing a member's FD removes it
		// from the group.
		c.files = append(c.files, os.NewFile(uintptr(fd), "<perf-event "+ev.String()+">"))
	}
	success = true
	return c, nil
}

func (c *Counter) closeFiles() {
	for _, f := range c.files {
		f.Close()
	}
	c.files = nil
}

// Close closes this counter and unlocks the goroutine from the OS thread.
func (c *Counter) Close() {
	if c == nil || c.files == nil {
		return
	}
	c.closeFiles()
	c.target.close()
	c.target = nil
	c.running = false
}

// ioctl applies req to the whole group.
func (c *Counter) ioctl(req uint) error {
	if c.files == nil {
		return errClosed
	}
	return unix.IoctlSetInt(int(c.files[0].Fd()), req, unix.PERF_IOC_FLAG_GROUP)
}

// Start the counter.
func (c *Counter) Start() error {
	if c == nil || c.running {
		return nil
	}
	if err := c.ioctl(unix.PERF_EVENT_IOC_ENABLE); err != nil {
		return err
	}
	c.running = true
	return nil
}

// Stop the counter.
func (c *Counter) Stop() error {
	if c == nil || !c.running {
		return nil
	}
	if err := c.ioctl(unix.PERF_EVENT_IOC_DISABLE); err != nil {
		return err
	}
	c.running = false
	return nil
}

// Len returns the number of events in c.
func (c *Counter) Len() int {
	if c == nil {
		return 0
	}
	return len(c.scales)
}

// Reset sets the values of all events in c to zero, whether or not c is
// running.
//
// perf has a concept of resetting a counter, but it doesn't reset the
// counter's timers, so instead Reset records a baseline that later reads
// subtract.
func (c *Counter) Reset() error {
	if c == nil {
		return nil
	}
	clear(c.base)
	now := make([]Count, len(c.base))
	if err := c.ReadGroup(now); err != nil {
		return err
	}
	copy(c.base, now)
	return nil
}

// Count is the value of a Counter.
type Count struct {
	RawValue uint64 // The number of events while this counter was running.

	// Normally, TimeEnabled == TimeRunning. However, if more counters are
	// running than the hardware can support, events will be multiplexed onto
	// the hardware. In that case, TimeRunning < TimeEnabled, and the raw
	// counter value should be scaled under the assumption that the event is
	// happening at a regular rate and the sampled time is representative.

	TimeEnabled uint64 // Total time the Counter was started.
	TimeRunning uint64 // Total time the Counter was actually counting.

	scale scale
}

// Value returns the measured value of Count, scaled to account for time the
// counter was scheduled, and to account for any conversion factors in the
// underlying event.
func (c Count) Value() (float64, string) {
	v := float64(c.RawValue)
	if c.TimeEnabled != c.TimeRunning {
		if c.TimeRunning == 0 {
			return 0, c.scale.unit
		}
		v *= float64(c.TimeEnabled) / float64(c.TimeRunning)
	}
	if c.scale.scale != 0 {
		v *= c.scale.scale
	}
	return v, c.scale.unit
}

// ReadOne returns the current value of the first event in c. For counters that
// only have a single Event, this is more ergonomic than [Counter.ReadGroup].
func (c *Counter) ReadOne() (Count, error) {
	// TODO: Use RDPMC when possible.
	var cs [1]Count
	err := c.ReadGroup(cs[:])
	return cs[0], err
}

// ReadGroup stores the current value of each event in c into cs, up to
// len(cs) events.
func (c *Counter) ReadGroup(cs []Count) error {
	if c == nil {
		return nil
	}
	if c.files == nil {
		return errClosed
	}

	// The group format is nr, time_enabled, time_running, then one value per
	// member.
	n, err := c.files[0].Read(c.buf)
	if err != nil {
		return err
	}
	if n != len(c.buf) {
		return fmt.Errorf("short read of %d bytes, expected %d", n, len(c.buf))
	}
	word := func(i int) uint64 { return binary.NativeEndian.Uint64(c.buf[8*i:]) }
	if nr := word(0); nr != uint64(len(c.base)) {
		return fmt.Errorf("read returned %d events, expected %d", nr, len(c.base))
	}
	enabled, running := word(1), word(2)
	for i := range min(len(cs), len(c.base)) {
		b := c.base[i]
		cs[i] = Count{
			RawValue:    word(3+i) - b.RawValue,
			TimeEnabled: enabled - b.TimeEnabled,
			TimeRunning: running - b.TimeRunning,
			scale:       c.scales[i],
		}
	}
	return nil
}
