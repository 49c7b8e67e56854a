// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"slices"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// A symbol is an event with a fixed perf type and config. These generally
// don't appear in /sys.
type symbol struct {
	names  []string // Canonical name first
	typ    uint32
	config uint64
	desc   string
}

// See parse-events.c:event_symbols_hw.
var hardwareSymbols = []symbol{
	{[]string{"cpu-cycles", "cycles"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES, "Total cycles"},
	{[]string{"instructions"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS, "Instructions retired"},
	{[]string{"cache-references"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES, "Last level cache accesses"},
	{[]string{"cache-misses"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES, "Last level cache misses"},
	{[]string{"branch-instructions", "branches"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS, "Branch instructions retired"},
	{[]string{"branch-misses"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES, "Mispredicted branch instructions"},
	{[]string{"bus-cycles"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BUS_CYCLES, "Bus cycles"},
	{[]string{"stalled-cycles-frontend", "idle-cycles-frontend"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND, "Cycles stalled on instruction issue"},
	{[]string{"stalled-cycles-backend", "idle-cycles-backend"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND, "Cycles stalled on any resource"},
	{[]string{"ref-cycles"}, unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_REF_CPU_CYCLES, "Reference clock cycles"},
}

// See parse-events.c:event_symbols_sw. x/sys/unix lacks cgroup-switches.
var softwareSymbols = []symbol{
	{[]string{"cpu-clock"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_CLOCK, "CPU clock nanoseconds"},
	{[]string{"task-clock"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_TASK_CLOCK, "Task clock nanoseconds"},
	{[]string{"page-faults", "faults"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS, "Page faults"},
	{[]string{"context-switches", "cs"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES, "Context switches"},
	{[]string{"cpu-migrations", "migrations"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_MIGRATIONS, "Migrations between CPUs"},
	{[]string{"minor-faults"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MIN, "Page faults served without I/O"},
	{[]string{"major-faults"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ, "Page faults that required I/O"},
	{[]string{"alignment-faults"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_ALIGNMENT_FAULTS, "Unaligned access faults"},
	{[]string{"emulation-faults"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_EMULATION_FAULTS, "Emulated instruction faults"},
	{[]string{"dummy"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_DUMMY, "Placeholder that counts nothing"},
	{[]string{"bpf-output"}, unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_BPF_OUTPUT, "BPF perf event output"},
}

// symbols indexes hardwareSymbols and softwareSymbols by every name.
var symbols = sync.OnceValue(func() map[string]*symbol {
	m := make(map[string]*symbol)
	for _, tab := range [][]symbol{hardwareSymbols, softwareSymbols} {
		for i := range tab {
			for _, name := range tab[i].names {
				m[name] = &tab[i]
			}
		}
	}
	return m
})

// symbolNames returns the canonical names of the hardware and software
// symbols, sorted.
func symbolNames() []string {
	var names []string
	for _, tab := range [][]symbol{hardwareSymbols, softwareSymbols} {
		for _, s := range tab {
			names = append(names, s.names[0])
		}
	}
	slices.Sort(names)
	return names
}

// A cacheTerm is one component of a legacy cache event name, such as the
// "L1-dcache", "load" and "misses" of "L1-dcache-load-misses".
type cacheTerm struct {
	value   uint64
	aliases []string // Canonical alias first
}

// See evsel.c:evsel__hw_cache, evsel__hw_cache_op and
// evsel__hw_cache_result.
var (
	cacheLevels = []cacheTerm{
		{unix.PERF_COUNT_HW_CACHE_L1D, []string{"L1-dcache", "l1-d", "l1d", "L1-data"}},
		{unix.PERF_COUNT_HW_CACHE_L1I, []string{"L1-icache", "l1-i", "l1i", "L1-instruction"}},
		{unix.PERF_COUNT_HW_CACHE_LL, []string{"LLC", "L2"}},
		{unix.PERF_COUNT_HW_CACHE_DTLB, []string{"dTLB", "d-tlb", "Data-TLB"}},
		{unix.PERF_COUNT_HW_CACHE_ITLB, []string{"iTLB", "i-tlb", "Instruction-TLB"}},
		{unix.PERF_COUNT_HW_CACHE_BPU, []string{"branch", "branches", "bpu", "btb", "bpc"}},
		{unix.PERF_COUNT_HW_CACHE_NODE, []string{"node"}},
	}
	cacheOps = []cacheTerm{
		{unix.PERF_COUNT_HW_CACHE_OP_READ, []string{"load", "loads", "read"}},
		{unix.PERF_COUNT_HW_CACHE_OP_WRITE, []string{"store", "stores", "write"}},
		{unix.PERF_COUNT_HW_CACHE_OP_PREFETCH, []string{"prefetch", "prefetches", "speculative-read", "speculative-load"}},
	}
	cacheResults = []cacheTerm{
		{unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS, []string{"refs", "Reference", "ops", "access"}},
		{unix.PERF_COUNT_HW_CACHE_RESULT_MISS, []string{"misses", "miss"}},
	}
)

const (
	opRead     = 1 << unix.PERF_COUNT_HW_CACHE_OP_READ
	opWrite    = 1 << unix.PERF_COUNT_HW_CACHE_OP_WRITE
	opPrefetch = 1 << unix.PERF_COUNT_HW_CACHE_OP_PREFETCH
)

// cacheOpsAllowed is the bitmap of the ops each cache level supports.
var cacheOpsAllowed = map[uint64]uint8{
	unix.PERF_COUNT_HW_CACHE_L1D:  opRead | opWrite | opPrefetch,
	unix.PERF_COUNT_HW_CACHE_L1I:  opRead | opPrefetch,
	unix.PERF_COUNT_HW_CACHE_LL:   opRead | opWrite | opPrefetch,
	unix.PERF_COUNT_HW_CACHE_DTLB: opRead | opWrite | opPrefetch,
	unix.PERF_COUNT_HW_CACHE_ITLB: opRead,
	unix.PERF_COUNT_HW_CACHE_BPU:  opRead,
	unix.PERF_COUNT_HW_CACHE_NODE: opRead | opWrite | opPrefetch,
}

// matchTerm matches the longest alias in terms that is all of s or a prefix
// of s followed by "-". It returns the matched term and the rest of s after
// the "-".
func matchTerm(s string, terms []cacheTerm) (term *cacheTerm, rest string, ok bool) {
	best := -1
	for i := range terms {
		for _, a := range terms[i].aliases {
			if len(a) <= best {
				continue
			}
			if s == a {
				term, rest, best = &terms[i], "", len(a)
			} else if strings.HasPrefix(s, a+"-") {
				term, rest, best = &terms[i], s[len(a)+1:], len(a)
			}
		}
	}
	return term, rest, term != nil
}

// cacheEvent is a parsed legacy cache event.
type cacheEvent struct {
	level, op, result *cacheTerm
}

// parseCacheEvent parses a name such as "L1-dcache-load-misses". The op
// defaults to read and the result to access. See
// parse-events.c:parse_events__decode_legacy_cache.
func parseCacheEvent(name string) (cacheEvent, bool) {
	level, s, ok := matchTerm(name, cacheLevels)
	if !ok {
		return cacheEvent{}, false
	}
	ev := cacheEvent{level: level, op: &cacheOps[0], result: &cacheResults[0]}
	// An op and a result may follow, in either order, at most once each.
	var haveOp, haveResult bool
	for s != "" {
		if t, rest, ok := matchTerm(s, cacheOps); ok && !haveOp {
			ev.op, s, haveOp = t, rest, true
		} else if t, rest, ok := matchTerm(s, cacheResults); ok && !haveResult {
			ev.result, s, haveResult = t, rest, true
		} else {
			return cacheEvent{}, false
		}
	}
	if cacheOpsAllowed[ev.level.value]&(1<<ev.op.value) == 0 {
		return cacheEvent{}, false
	}
	return ev, true
}

func (c cacheEvent) config() uint64 {
	return c.level.value | c.op.value<<8 | c.result.value<<16
}

func (c cacheEvent) describe() string {
	return c.level.aliases[0] + " " + c.op.aliases[0] + " " + c.result.aliases[0]
}

// resolveSymbol resolves a symbolic or legacy cache event name. Hardware and
// cache events may be under the "cpu" PMU or none; software events only
// under none.
func resolveSymbol(pmu, name string) (*attrEvent, bool) {
	if pmu != "" && pmu != "cpu" {
		return nil, false
	}
	if s, ok := symbols()[name]; ok {
		if s.typ == unix.PERF_TYPE_SOFTWARE && pmu != "" {
			return nil, false
		}
		return &attrEvent{typ: s.typ, config: [3]uint64{s.config}}, true
	}
	if c, ok := parseCacheEvent(name); ok {
		return &attrEvent{typ: unix.PERF_TYPE_HW_CACHE, config: [3]uint64{c.config()}}, true
	}
	return nil, false
}

// describeSymbol returns a description of a symbolic or legacy cache event.
func describeSymbol(name string) string {
	if s, ok := symbols()[name]; ok {
		return s.desc
	}
	if c, ok := parseCacheEvent(name); ok {
		return c.describe()
	}
	return ""
}
