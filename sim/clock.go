// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"sync"
	"time"
)

// A ManualClock is a clock that only moves when told to. Its Now method can
// be passed to [WithClock] and [WithProcClock].
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now returns the current time of c.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves c forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Sleep advances c by d. It has the signature of [time.Sleep].
func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// monotonic returns a clock that reports the time elapsed since it was
// created.
func monotonic() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}
