// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
)

// The event source devices. These are variables so tests can substitute a
// fake tree.
var (
	sysfsDir       = "/sys/bus/event_source/devices"
	sysfs    fs.FS = os.DirFS(sysfsDir)
)

// A pmu is an event source device described in /sys. See
// https://www.kernel.org/doc/Documentation/ABI/testing/sysfs-bus-event_source-devices-format
// and sysfs-bus-event_source-devices-events.
type pmu struct {
	name    string
	typ     uint32
	fields  map[string]field // From format/
	aliases map[string]alias // From events/
}

// A field is a named bit field of the perf_event_attr config words.
type field struct {
	name  string
	reg   int // Config word, or regPeriod
	spans []span
}

// A span is a run of bits, least significant first.
type span struct {
	lo, width int
}

// An alias is a named event, given as terms of its PMU's fields.
type alias struct {
	terms []term
	scale float64 // 0 means 1
	unit  string
}

// wholeFields are the fields every PMU has, which cover a whole register.
var wholeFields = map[string]field{
	"config":  {"config", 0, []span{{0, 64}}},
	"config1": {"config1", 1, []span{{0, 64}}},
	"config2": {"config2", 2, []span{{0, 64}}},
	"period":  {"period", regPeriod, []span{{0, 64}}},
}

// field returns the field named name. E.g., in "cpu/config=42,edge/",
// "config" and "edge" are fields of the "cpu" PMU.
func (p *pmu) field(name string) (field, bool) {
	// TODO: Perf also supports config3, name, percore and metric-id.
	if f, ok := wholeFields[name]; ok {
		return f, true
	}
	f, ok := p.fields[name]
	return f, ok
}

// set stores val into f of ev.
func (f field) set(ev *attrEvent, val uint64) error {
	reg := ev.reg(f.reg)
	x, total := val, 0
	for _, s := range f.spans {
		// Shifts by 64 yield 0, so a whole-register mask is all ones.
		mask := uint64(1)<<s.width - 1
		*reg = *reg&^(mask<<s.lo) | (x&mask)<<s.lo
		x >>= s.width
		total += s.width
	}
	if x != 0 {
		return fmt.Errorf("parameter %s=%d not in range 0-%d", f.name, val, uint64(1)<<total-1)
	}
	return nil
}

// apply sets the fields of ev that a describes.
func (a alias) apply(p *pmu, name string, ev *attrEvent) error {
	for _, t := range a.terms {
		f, ok := p.field(t.key)
		if !ok {
			return fmt.Errorf("unknown parameter %q in %s description", t.key, name)
		}
		if err := f.set(ev, t.value); err != nil {
			return err
		}
	}
	if a.scale != 0 {
		ev.scale = a.scale
	}
	ev.unit = a.unit
	return nil
}

// PMUs returns the names of the event source devices the kernel exports,
// sorted. It returns nil if /sys doesn't describe any.
func PMUs() []string {
	ents, err := fs.ReadDir(sysfs, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, ent := range ents {
		names = append(names, ent.Name())
	}
	return names
}

var pmus = newMemo(readPMU)

func readPMU(name string) (*pmu, error) {
	p := &pmu{name: name}
	typ, err := fs.ReadFile(sysfs, path.Join(name, "type"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unknown PMU %q", name)
	} else if err != nil {
		return nil, fmt.Errorf("unknown PMU %q: %w", name, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(typ)), 0, 32)
	if err != nil {
		return nil, fmt.Errorf("error parsing PMU %q type %q: %w", name, typ, err)
	}
	p.typ = uint32(n)

	formats, err := readDir(path.Join(name, "format"))
	if err != nil {
		return nil, err
	}
	p.fields = make(map[string]field, len(formats))
	for fname, data := range formats {
		f, err := parseField(fname, data)
		if err != nil {
			return nil, fmt.Errorf("%w (from %s)", err, path.Join(sysfsDir, name, "format", fname))
		}
		p.fields[fname] = f
	}

	evs, err := readDir(path.Join(name, "events"))
	if err != nil {
		return nil, err
	}
	p.aliases = make(map[string]alias)
	for ename, data := range evs {
		if strings.Contains(ename, ".") {
			// .scale, .unit, .snapshot and .per-pkg qualify another file.
			continue
		}
		terms, err := parseTerms(data)
		if err != nil {
			return nil, fmt.Errorf("%w (from %s)", err, path.Join(sysfsDir, name, "events", ename))
		}
		a := alias{terms: terms, unit: evs[ename+".unit"]}
		if s, ok := evs[ename+".scale"]; ok {
			if a.scale, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%w (from %s.scale)", err, path.Join(sysfsDir, name, "events", ename))
			}
		}
		p.aliases[ename] = a
	}
	return p, nil
}

// readDir returns the trimmed contents of each file in dir of sysfs. A
// missing directory is empty.
func readDir(dir string) (map[string]string, error) {
	ents, err := fs.ReadDir(sysfs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path.Join(sysfsDir, dir), err)
	}
	files := make(map[string]string, len(ents))
	for _, ent := range ents {
		data, err := fs.ReadFile(sysfs, path.Join(dir, ent.Name()))
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", path.Join(sysfsDir, dir, ent.Name()), err)
		}
		files[ent.Name()] = strings.TrimRight(string(data), "\n")
	}
	return files, nil
}

// parseField parses a format description such as "config:0-7,32-35".
func parseField(name, s string) (field, error) {
	reg, ranges, ok := strings.Cut(s, ":")
	if !ok {
		return field{}, fmt.Errorf("error parsing format %q", s)
	}
	whole, ok := wholeFields[reg]
	if !ok || whole.reg == regPeriod {
		return field{}, fmt.Errorf("error parsing format %q: unknown field %s", s, reg)
	}
	f := field{name: name, reg: whole.reg}
	for _, r := range strings.Split(ranges, ",") {
		loStr, hiStr, isRange := strings.Cut(r, "-")
		lo, err := strconv.Atoi(loStr)
		hi := lo
		if err == nil && isRange {
			hi, err = strconv.Atoi(hiStr)
		}
		if err == nil && (lo < 0 || hi < lo || hi > 63) {
			err = fmt.Errorf("bad bit range %s", r)
		}
		if err != nil {
			return field{}, fmt.Errorf("error parsing format %q: %w", s, err)
		}
		f.spans = append(f.spans, span{lo, hi - lo + 1})
	}
	return f, nil
}
