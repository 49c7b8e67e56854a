// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// TODO: It might just be better to use the perfmon database. See
// event_download.py in github.com/andikleen/pmu-tools for downloading it all as
// JSON and
// https://github.com/torvalds/linux/blob/master/tools/perf/pmu-events/jevents.py
// for the tool that converts the JSON into perf C definitions.

// A perfListEntry is one event from "perf list -j".
type perfListEntry struct {
	Unit              string
	Topic             string
	EventName         string
	ScaleUnit         string
	EventAlias        string
	EventType         string
	BriefDescription  string
	PublicDescription string
	Encoding          string

	// TODO: Support metrics. They have an empty EventName.
}

// runPerfList runs "perf list -j" and returns its stdout and stderr. Tests
// replace it.
var runPerfList = func() (stdout, stderr []byte, err error) {
	var outBuf, errBuf bytes.Buffer
	cmd := exec.Command("perf", "list", "-j")
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// perfList returns the events "perf list" knows, by name and alias.
var perfList = sync.OnceValues(func() (map[string]perfListEntry, error) {
	return parsePerfList(runPerfList())
})

// perfStdoutErr matches the errors perf (as of 6.5.13) may interleave with
// its JSON output.
var perfStdoutErr = regexp.MustCompile(`\}Error: .*`)

func parsePerfList(out, errOut []byte, err error) (map[string]perfListEntry, error) {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return nil, fmt.Errorf("perf command not found; cannot enumerate extended events")
	case err != nil && bytes.Contains(errOut, []byte("Error: unknown switch `j'")):
		// JSON output was added in linux commit 6ed249441a7d.
		return nil, fmt.Errorf("perf version must be >= 6.2; cannot enumerate extended events")
	case err != nil && len(errOut) > 0:
		return nil, fmt.Errorf("perf list -j failed:\n%s", bytes.TrimSpace(errOut))
	case err != nil:
		return nil, fmt.Errorf("perf list -j failed: %w", err)
	}

	out = perfStdoutErr.ReplaceAllLiteral(out, []byte(`}`))
	var entries []perfListEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, fmt.Errorf("error decoding perf list -j output: %w", err)
	}
	m := make(map[string]perfListEntry, len(entries))
	for _, e := range entries {
		for _, name := range []string{e.EventName, e.EventAlias} {
			if name != "" {
				m[name] = e
			}
		}
	}
	return m, nil
}

// alias converts e to an alias of the CPU PMU.
func (e perfListEntry) alias() (alias, error) {
	if e.Encoding == "" {
		return alias{}, fmt.Errorf("unsupported event %q: no encoding from perf list -j", e.EventName)
	}
	pmuName, terms, err := splitEvent(e.Encoding)
	if err == nil && pmuName != "cpu" {
		err = fmt.Errorf("expected PMU %q", "cpu")
	}
	if err != nil {
		return alias{}, fmt.Errorf("unexpected encoding %q from perf list -j: %w", e.Encoding, err)
	}
	a := alias{terms: terms}
	if e.ScaleUnit != "" {
		if a.scale, a.unit, err = parseScaleUnit(e.ScaleUnit); err != nil {
			return alias{}, fmt.Errorf("unexpected ScaleUnit %q from perf list -j: %w", e.ScaleUnit, err)
		}
	}
	return a, nil
}

// parseScaleUnit splits a perf scale such as "64Bytes" or "2.5e-3Joules"
// into its factor and unit.
func parseScaleUnit(s string) (float64, string, error) {
	for i := len(s); i > 0; i-- {
		if f, err := strconv.ParseFloat(s[:i], 64); err == nil {
			return f, strings.TrimSpace(s[i:]), nil
		}
	}
	return 0, "", fmt.Errorf("no scale factor")
}
