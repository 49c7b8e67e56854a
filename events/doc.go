// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package events resolves Linux perf event names into perf_event_open
// attributes.
//
// Names follow the syntax of "perf record -e": built-in hardware, software
// and cache events ("cycles", "L1-dcache-load-misses"), events described by
// a PMU in /sys ("cpu/mem-stores/"), raw PMU encodings
// ("cpu/event=0x3c,umask=0/"), and events known to "perf list".
//
// Everything except this documentation requires Linux.
package events
