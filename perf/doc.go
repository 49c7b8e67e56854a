// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perf counts hardware and software events with Linux
// perf_event_open.
//
// [Counter] is a group of events on one [Target]. [Backend] builds event
// sets on top of Counters and implements the papi.Backend interface. It
// maps presets such as PAPI_TOT_CYC to perf events and assigns native event
// codes to any event name the events package can resolve.
//
// Everything except this documentation requires Linux.
package perf
