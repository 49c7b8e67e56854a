// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// A term is one element of a PMU event's parameter list: k=v, or a bare k,
// which is either an event name or a field set to 1.
type term struct {
	key   string
	value uint64
	bare  bool
}

// ParseEvent resolves an event name in any of the forms accepted by
// "perf stat -e": a built-in symbolic event such as "cycles", a legacy cache
// event such as "L1-dcache-load-misses", an event described in /sys or by
// "perf list" such as "mem-stores", or a PMU event such as
// "cpu/event=0xd0,umask=0x82/".
func ParseEvent(name string) (Event, error) {
	// TODO: Support raw events, modifiers and hardware breakpoint events.
	pmuName, terms, err := splitEvent(name)
	if err != nil {
		return nil, err
	}
	if len(terms) == 1 && terms[0].bare {
		// Perf prefers the built-in encoding over one in /sys, but only for
		// a lone name. Combining a built-in type with fields of a dynamic PMU
		// makes no sense, so pmu/cycles,edge/ is resolved from /sys.
		if ev, ok := resolveSymbol(pmuName, terms[0].key); ok {
			ev.name = name
			return ev, nil
		}
	}
	return resolvePMU(name, pmuName, terms)
}

// splitEvent splits name into a PMU and its terms. Names that aren't in the
// form pmu/terms/ are a single bare term with no PMU.
func splitEvent(name string) (pmu string, terms []term, err error) {
	body, ok := strings.CutSuffix(name, "/")
	if ok {
		pmu, body, ok = strings.Cut(body, "/")
	}
	if !ok || pmu == "" || strings.Contains(body, "/") {
		return "", []term{{key: name, value: 1, bare: true}}, nil
	}
	terms, err = parseTerms(body)
	if err != nil {
		return "", nil, fmt.Errorf("event %q: %w", name, err)
	}
	return pmu, terms, nil
}

// parseTerms parses a comma-separated list of k=v and bare k terms. Values
// may be decimal, hex or octal. A bare k has value 1.
func parseTerms(list string) ([]term, error) {
	var terms []term
	for _, s := range strings.Split(list, ",") {
		k, v, hasValue := strings.Cut(s, "=")
		if k == "" {
			return nil, fmt.Errorf("error parsing event param list %q: missing parameter name in %q", list, s)
		}
		t := term{key: k, value: 1, bare: !hasValue}
		if hasValue {
			n, err := strconv.ParseUint(v, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("error parsing event param list %q: parameter %q not a number", list, s)
			}
			t.value = n
		}
		terms = append(terms, t)
	}
	return terms, nil
}

// resolvePMU resolves terms against the named PMU, or the CPU PMU if pmuName
// is "". At most one term may name an event; the remaining terms set fields
// and override the fields the event sets, regardless of order.
func resolvePMU(name, pmuName string, terms []term) (*attrEvent, error) {
	symbolic := pmuName == ""
	if symbolic {
		pmuName = "cpu"
	}
	p, err := pmus.get(pmuName)
	if err != nil {
		return nil, err
	}
	ev := &attrEvent{name: name, typ: p.typ}

	var eventName string
	var sets []term
	for _, t := range terms {
		if _, ok := p.field(t.key); ok {
			sets = append(sets, t)
			continue
		}
		if t.bare {
			found, err := p.resolveAlias(t.key, ev)
			if err != nil {
				return nil, err
			}
			if found {
				if eventName != "" {
					return nil, fmt.Errorf("event %q: multiple events %q and %q", name, eventName, t.key)
				}
				eventName = t.key
				continue
			}
		}
		if symbolic {
			return nil, fmt.Errorf("unknown event %q", name)
		}
		return nil, fmt.Errorf("event %q: unknown event or parameter %q", name, t.key)
	}

	for _, t := range sets {
		f, _ := p.field(t.key)
		if err := f.set(ev, t.value); err != nil {
			return nil, fmt.Errorf("event %q: %w", name, err)
		}
	}
	return ev, nil
}

// resolveAlias looks up an event name in /sys, then in "perf list" for the
// raw CPU PMU, and sets the fields of ev it describes. It returns false if
// neither knows the name.
func (p *pmu) resolveAlias(eventName string, ev *attrEvent) (bool, error) {
	if a, ok := p.aliases[eventName]; ok {
		return true, a.apply(p, eventName, ev)
	}
	if p.typ != unix.PERF_TYPE_RAW {
		return false, nil
	}
	list, err := perfList()
	if err != nil {
		return false, err
	}
	entry, ok := list[eventName]
	if !ok {
		return false, nil
	}
	a, err := entry.alias()
	if err != nil {
		return false, err
	}
	return true, a.apply(p, eventName, ev)
}
