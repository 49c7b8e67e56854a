// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perfbench reports hardware performance counters as metrics of a Go
// benchmark.
//
// A benchmark opens counters at its start:
//
//	func BenchmarkX(b *testing.B) {
//		cs := perfbench.Open(b)
//		for range b.N {
//			...
//		}
//	}
//
// and each metric is reported as a per-operation value such as
// "instructions/op" when the benchmark finishes.
package perfbench

import "testing"

// TODO: Let benchmarks choose their own events instead of defaultMetrics.

// Open creates and starts counters for benchmark b on the calling goroutine.
// Their totals are reported with b.ReportMetric from a b.Cleanup function, so
// a benchmark with expensive cleanup may want to call [Counters.Stop] first.
//
// Pair b.StopTimer, b.StartTimer and b.ResetTimer with [Counters.Stop],
// [Counters.Start] and [Counters.Reset].
//
// If no counter subsystem is available, Open logs why and returns nil. All
// methods of a nil *Counters are no-ops.
func Open(b *testing.B) *Counters {
	lib, err := library()
	if err != nil {
		logOnce(b, err.Error())
		return nil
	}
	printUnits()
	return open(b, b.N, lib)
}
