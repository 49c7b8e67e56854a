// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sys/unix"
)

//go:embed testdata/pmufs
var testSysfs embed.FS

//go:embed testdata/perf-list-j
var testPerfListJ []byte

// hostPerfList runs the host's perf command. Package variables are
// initialized before init replaces runPerfList.
var hostPerfList = runPerfList

func init() {
	// Use a baked-in fake PMU tree and perf list output so we don't depend on
	// the system.
	sysfsDir = "testdata/pmufs"
	sysfs, _ = fs.Sub(testSysfs, sysfsDir)
	runPerfList = func() ([]byte, []byte, error) {
		return testPerfListJ, nil, nil
	}
}

func (e *attrEvent) detail() string {
	if e == nil {
		return "<invalid>"
	}
	var s strings.Builder
	fmt.Fprintf(&s, "pmu%d/config=%#x", e.typ, e.config[0])
	for i, c := range e.config[1:] {
		if c != 0 {
			fmt.Fprintf(&s, ",config%d=%#x", i+1, c)
		}
	}
	if e.period != 0 {
		fmt.Fprintf(&s, ",period=%#x", e.period)
	}
	s.WriteByte('/')
	return s.String()
}

func TestSymbols(t *testing.T) {
	hw := func(config uint64) *attrEvent {
		return &attrEvent{typ: unix.PERF_TYPE_HARDWARE, config: [3]uint64{config}}
	}
	sw := func(config uint64) *attrEvent {
		return &attrEvent{typ: unix.PERF_TYPE_SOFTWARE, config: [3]uint64{config}}
	}
	cache := func(level, op, result uint64) *attrEvent {
		return &attrEvent{typ: unix.PERF_TYPE_HW_CACHE, config: [3]uint64{level | op<<8 | result<<16}}
	}
	l1dLoads := cache(unix.PERF_COUNT_HW_CACHE_L1D, unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS)
	bpuLoads := cache(unix.PERF_COUNT_HW_CACHE_BPU, unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS)

	for _, tc := range []struct {
		name      string
		want      *attrEvent // nil if the name must not resolve
		cpuPMU    bool       // Also resolves as cpu/name/
		badSuffix bool       // Check name+"x" and similar don't resolve
	}{
		{"cpu-cycles", hw(unix.PERF_COUNT_HW_CPU_CYCLES), true, false},
		{"cycles", hw(unix.PERF_COUNT_HW_CPU_CYCLES), true, false},
		// "branches" is also a cache level, but perf prefers the hardware
		// event.
		{"branches", hw(unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS), true, false},
		{"ref-cycles", hw(unix.PERF_COUNT_HW_REF_CPU_CYCLES), true, false},

		{"cpu-clock", sw(unix.PERF_COUNT_SW_CPU_CLOCK), false, false},
		{"context-switches", sw(unix.PERF_COUNT_SW_CONTEXT_SWITCHES), false, false},
		{"cs", sw(unix.PERF_COUNT_SW_CONTEXT_SWITCHES), false, false},

		{"L1-dcache", l1dLoads, true, true},
		{"l1d", l1dLoads, true, true},
		{"L1-dcache-read", l1dLoads, true, true},
		{"l1d-loads", l1dLoads, true, true},
		{"l1d-load-refs", l1dLoads, true, true},
		{"l1d-refs", l1dLoads, true, true},
		{"l1d-read-access", l1dLoads, true, true},
		{"L1-dcache-prefetch-miss", cache(unix.PERF_COUNT_HW_CACHE_L1D, unix.PERF_COUNT_HW_CACHE_OP_PREFETCH, unix.PERF_COUNT_HW_CACHE_RESULT_MISS), true, true},
		{"L1-dcache-speculative-load-misses", cache(unix.PERF_COUNT_HW_CACHE_L1D, unix.PERF_COUNT_HW_CACHE_OP_PREFETCH, unix.PERF_COUNT_HW_CACHE_RESULT_MISS), true, true},
		{"branch", bpuLoads, true, true},
		{"branches-loads", bpuLoads, true, true},
		{"bpu-read", bpuLoads, true, true},
		{"bpu-loads-refs", bpuLoads, true, true},
		{"bpu-Reference", bpuLoads, true, true},

		// Perf accepts this, but only because its parser stops early.
		{"l1d-loads-stores", nil, false, false},
		// Disallowed combination.
		{"bpu-stores", nil, false, false},
	} {
		got, ok := resolveSymbol("", tc.name)
		if tc.want == nil {
			if ok {
				t.Errorf("%s: got %s, want no event", tc.name, got.detail())
			}
			continue
		}
		if !ok || got.typ != tc.want.typ || got.config != tc.want.config {
			t.Errorf("%s: got %s, want %s", tc.name, got.detail(), tc.want.detail())
			continue
		}
		if _, ok := resolveSymbol("xxx", tc.name); ok {
			t.Errorf("xxx/%s/ resolved", tc.name)
		}
		if _, ok := resolveSymbol("cpu", tc.name); ok != tc.cpuPMU {
			t.Errorf("cpu/%s/: resolved %v, want %v", tc.name, ok, tc.cpuPMU)
		}
		if tc.badSuffix {
			for _, bad := range []string{tc.name + "x", tc.name + "-x", "x-" + tc.name} {
				if _, ok := resolveSymbol("", bad); ok {
					t.Errorf("%s resolved", bad)
				}
			}
		}

		// And via ParseEvent.
		ev, err := ParseEvent(tc.name)
		if err != nil {
			t.Errorf("ParseEvent(%q): %v", tc.name, err)
			continue
		}
		if ae := ev.(*attrEvent); ae.name != tc.name || ae.config != tc.want.config {
			t.Errorf("ParseEvent(%q) = %q %s", tc.name, ae.name, ae.detail())
		}
	}
}

func TestConvenienceEvents(t *testing.T) {
	var attr unix.PerfEventAttr
	if err := EventInstructions.SetAttrs(&attr); err != nil {
		t.Fatal(err)
	}
	if attr.Type != unix.PERF_TYPE_HARDWARE || attr.Config != unix.PERF_COUNT_HW_INSTRUCTIONS {
		t.Errorf("instructions attrs = %d/%#x", attr.Type, attr.Config)
	}
	if got := EventTaskClock.String(); got != "task-clock" {
		t.Errorf("EventTaskClock.String() = %q", got)
	}
}

func TestParse(t *testing.T) {
	raw := func(config uint64) *attrEvent {
		return &attrEvent{typ: unix.PERF_TYPE_RAW, config: [3]uint64{config}}
	}
	with := func(ev *attrEvent, f func(*attrEvent)) *attrEvent {
		f(ev)
		return ev
	}

	for _, tc := range []struct {
		name string
		want *attrEvent
	}{
		// Perf prefers the built-in event even if there's one in /sys.
		{"cpu/cpu-cycles/", &attrEvent{typ: unix.PERF_TYPE_HARDWARE, config: [3]uint64{unix.PERF_COUNT_HW_CPU_CYCLES}}},
		{"cpu-cycles", &attrEvent{typ: unix.PERF_TYPE_HARDWARE, config: [3]uint64{unix.PERF_COUNT_HW_CPU_CYCLES}}},
		// Events from /sys, with or without the CPU PMU.
		{"cpu/mem-stores/", raw(0xd0 | 0x82<<8)},
		{"mem-stores", raw(0xd0 | 0x82<<8)},
		// Fields.
		{"cpu/event=0xd0/", raw(0xd0)},
		{"cpu/event=42/", raw(42)},
		{"cpu/event=042/", raw(0o42)},
		{"cpu/event=0xd0,config1=0xd1,config2=0xd2/", with(raw(0xd0), func(e *attrEvent) { e.config[1], e.config[2] = 0xd1, 0xd2 })},
		{"cpu/config=0xd0,config1=0xd1,config2=0xd2/", with(raw(0xd0), func(e *attrEvent) { e.config[1], e.config[2] = 0xd1, 0xd2 })},
		{"cpu/period=1000/", with(raw(0), func(e *attrEvent) { e.period = 1000 })},
		// Fields override the event's, in any order.
		{"cpu/mem-stores,umask=42/", raw(0xd0 | 42<<8)},
		{"cpu/umask=42,mem-stores/", raw(0xd0 | 42<<8)},
		// Single bit fields, bare or with a value.
		{"cpu/edge=1/", raw(1 << 18)},
		{"cpu/edge/", raw(1 << 18)},
		{"cpu/mem-stores,edge/", raw(0xd0 | 0x82<<8 | 1<<18)},
		{"cpu/edge,mem-stores/", raw(0xd0 | 0x82<<8 | 1<<18)},
		// A built-in event combined with a field comes from /sys.
		{"cpu/cpu-cycles,edge/", raw(0x3c | 1<<18)},
		// A field split across bit ranges.
		{"cpu/split=0xab/", with(raw(0), func(e *attrEvent) { e.config[1] = 0xa0b })},
		// Events from perf list -j.
		{"l1d.replacement", with(raw(0x51|0x1<<8), func(e *attrEvent) { e.period = 0x186a3 })},
		{"cpu/l1d.replacement/", with(raw(0x51|0x1<<8), func(e *attrEvent) { e.period = 0x186a3 })},
	} {
		ev, err := ParseEvent(tc.name)
		if err != nil {
			t.Errorf("%s: want %s, got error %s", tc.name, tc.want.detail(), err)
			continue
		}
		got := ev.(*attrEvent)
		tc.want.name = tc.name
		if *got != *tc.want {
			t.Errorf("%s: want %s, got %s", tc.name, tc.want.detail(), got.detail())
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name, want string
	}{
		{"topdown.slots_nonencoded", `unsupported event "topdown.slots_nonencoded": no encoding from perf list -j`},
		{"bad", `unknown event "bad"`},
		{"cpu/bad/", `event "cpu/bad/": unknown event or parameter "bad"`},
		{"bad/cpu-cycles/", `unknown PMU "bad"`},
		{"cpu/event=0x1ff/", `event "cpu/event=0x1ff/": parameter event=511 not in range 0-255`},
		{"cpu/edge=2/", `event "cpu/edge=2/": parameter edge=2 not in range 0-1`},
		{"cpu/split=0x100/", `event "cpu/split=0x100/": parameter split=256 not in range 0-255`},
		{"cpu/bad=25/", `event "cpu/bad=25/": unknown event or parameter "bad"`},
		{"cpu/cpu-cycles,mem-stores/", `event "cpu/cpu-cycles,mem-stores/": multiple events "cpu-cycles" and "mem-stores"`},
		// Legacy cache events have no encoding in /sys, so they can't be
		// combined with its fields.
		{"cpu/l1d,edge/", `event "cpu/l1d,edge/": unknown event or parameter "l1d"`},
		{"cpu/edge,l1d/", `event "cpu/edge,l1d/": unknown event or parameter "l1d"`},
		{"cpu/event=abc/", `event "cpu/event=abc/": error parsing event param list "event=abc": parameter "event=abc" not a number`},
		{"cpu/one,two/", `event "cpu/one,two/": unknown event or parameter "one"`},
		{"cpu/=1/", `event "cpu/=1/": error parsing event param list "=1": missing parameter name in "=1"`},
	} {
		ev, err := ParseEvent(tc.name)
		if err == nil {
			t.Errorf("%s: want error %s, got %s", tc.name, tc.want, ev.(*attrEvent).detail())
		} else if err.Error() != tc.want {
			t.Errorf("%s: want error %s, got error %s", tc.name, tc.want, err)
		}
	}
}

func TestParseField(t *testing.T) {
	f, err := parseField("split", "config1:0-3,8-11")
	if err != nil {
		t.Fatal(err)
	}
	if f.reg != 1 || !slices.Equal(f.spans, []span{{0, 4}, {8, 4}}) {
		t.Errorf("got %+v", f)
	}
	for _, bad := range []string{"config", "config3:0-7", "period:0-7", "config:x", "config:7-0", "config:60-64"} {
		if _, err := parseField("bad", bad); err == nil {
			t.Errorf("parseField(%q) succeeded", bad)
		}
	}
}

func TestParseScale(t *testing.T) {
	ev, err := ParseEvent("power/energy-pkg/")
	if err != nil {
		t.Fatal(err)
	}
	got := ev.(*attrEvent)
	want := attrEvent{name: "power/energy-pkg/", typ: 23, config: [3]uint64{2}, scale: 0x1p-32, unit: "Joules"}
	if *got != want {
		t.Errorf("got %+v, want %+v", *got, want)
	}

	for _, tc := range []struct {
		name  string
		scale float64
		unit  string
	}{
		{"power/energy-pkg/", 0x1p-32, "Joules"},
		{"mem-stores", 1, ""},
		{"uncore_scaled", 64, "Bytes"},
	} {
		ev, err := ParseEvent(tc.name)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if s, u := ev.(EventScale).ScaleUnit(); s != tc.scale || u != tc.unit {
			t.Errorf("%s: ScaleUnit() = %g, %q, want %g, %q", tc.name, s, u, tc.scale, tc.unit)
		}
	}
}

func TestParseScaleUnit(t *testing.T) {
	for _, tc := range []struct {
		in    string
		scale float64
		unit  string
	}{
		{"64Bytes", 64, "Bytes"},
		{"2.5e-3Joules", 2.5e-3, "Joules"},
		{"1", 1, ""},
		{"6.1e-5 MiB", 6.1e-5, "MiB"},
	} {
		s, u, err := parseScaleUnit(tc.in)
		if err != nil || s != tc.scale || u != tc.unit {
			t.Errorf("parseScaleUnit(%q) = %g, %q, %v", tc.in, s, u, err)
		}
	}
	if _, _, err := parseScaleUnit("Bytes"); err == nil {
		t.Errorf("parseScaleUnit(Bytes) succeeded")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	idx := func(name string) int { return slices.Index(names, name) }
	for _, name := range []string{"cpu-cycles", "instructions", "task-clock", "mem-stores", "br-inst-ret-near-taken"} {
		if idx(name) < 0 {
			t.Errorf("Names() missing %q", name)
		}
	}
	// Only canonical names are listed, once each.
	if idx("cycles") >= 0 {
		t.Errorf("Names() lists alias %q", "cycles")
	}
	n := 0
	for _, name := range names {
		if name == "cpu-cycles" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("cpu-cycles listed %d times", n)
	}
	if idx("task-clock") > idx("mem-stores") {
		t.Errorf("built-in events not listed first")
	}
	for _, name := range names {
		if _, err := ParseEvent(name); err != nil {
			t.Errorf("listed event %q doesn't parse: %v", name, err)
		}
	}
}

func TestPMUs(t *testing.T) {
	if got, want := PMUs(), []string{"cpu", "power"}; !slices.Equal(got, want) {
		t.Errorf("PMUs() = %v, want %v", got, want)
	}
}

func TestDescription(t *testing.T) {
	for _, tc := range []struct {
		name, want string
	}{
		{"cycles", "Total cycles"},
		{"task-clock", "Task clock nanoseconds"},
		{"L1-dcache-load-misses", "L1-dcache load misses"},
		{"l1i-prefetch", "L1-icache prefetch refs"},
		{"bad", ""},
	} {
		if got := Description(tc.name); got != tc.want {
			t.Errorf("Description(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
	if got := Description("l1d.replacement"); !strings.HasPrefix(got, "Counts the number") {
		t.Errorf("Description(l1d.replacement) = %q", got)
	}
}

func TestMemo(t *testing.T) {
	var mu sync.Mutex
	calls := map[int]int{}
	m := newMemo(func(k int) (string, error) {
		mu.Lock()
		calls[k]++
		mu.Unlock()
		if k < 0 {
			return "", fmt.Errorf("negative %d", k)
		}
		return fmt.Sprint(k), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := -2; k < 4; k++ {
				v, err := m.get(k)
				if k < 0 && err == nil {
					t.Errorf("get(%d) succeeded", k)
				}
				if k >= 0 && v != fmt.Sprint(k) {
					t.Errorf("get(%d) = %q, %v", k, v, err)
				}
			}
		}()
	}
	wg.Wait()
	for k, n := range calls {
		if n != 1 {
			t.Errorf("key %d loaded %d times", k, n)
		}
	}
}

func TestParsePerfList(t *testing.T) {
	testParsePerfList(t, testPerfListJ, nil, nil)
}

func TestParsePerfListHost(t *testing.T) {
	// Test the output of perf list -j from the host perf command.
	out, errOut, err := hostPerfList()
	if err != nil {
		t.Skipf("perf list -j: %v", err)
	}
	testParsePerfList(t, out, errOut, nil)
}

func TestParsePerfListErrors(t *testing.T) {
	for _, tc := range []struct {
		errOut string
		want   string
	}{
		{"Error: unknown switch `j'\n", "perf version must be >= 6.2; cannot enumerate extended events"},
		{"something broke\n", "perf list -j failed:\nsomething broke"},
		{"", "perf list -j failed: exit status 1"},
	} {
		_, err := parsePerfList(nil, []byte(tc.errOut), fmt.Errorf("exit status 1"))
		if err == nil || err.Error() != tc.want {
			t.Errorf("stderr %q: got %v, want %s", tc.errOut, err, tc.want)
		}
	}
	if _, err := parsePerfList([]byte("{"), nil, nil); err == nil {
		t.Errorf("malformed JSON parsed")
	}
}

// testParsePerfList checks that every CPU event with an encoding in a perf
// list -j output resolves.
func testParsePerfList(t *testing.T, data, errOut []byte, err error) {
	m, err := parsePerfList(data, errOut, err)
	if err != nil {
		if strings.Contains(err.Error(), "cannot enumerate extended events") {
			t.Skip(err)
		}
		t.Fatalf("failed to parse perf list -j JSON: %s", err)
	}
	p, err := pmus.get("cpu")
	if err != nil {
		t.Fatal(err)
	}
	for name, e := range m {
		if e.Encoding == "" || e.Unit != "cpu" {
			// Events without an encoding are mostly built-in, and we only
			// resolve perf list events under the CPU PMU.
			continue
		}
		a, err := e.alias()
		if err == nil {
			var ev attrEvent
			err = a.apply(p, name, &ev)
		}
		if err != nil {
			t.Errorf("failed to resolve perf list -j event %#v:\n%s", e, err)
		}
	}
}
