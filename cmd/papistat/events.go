// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/aclements/go-papi/papi"
)

// listEvents prints a table of the preset events, followed by the native
// events if requested.
func (c *command) listEvents(lib *papi.Library) error {
	tw := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tCODE\tAVAIL\tDESCRIPTION\n")

	next := papi.EnumEvents
	if c.avail {
		next = papi.PresetEnumAvail
	}
	if err := c.enumerate(lib, tw, papi.PresetMask, next); err != nil {
		return err
	}
	if c.native {
		if err := c.enumerate(lib, tw, papi.NativeMask, papi.EnumEvents); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func (c *command) enumerate(lib *papi.Library, tw *tabwriter.Writer, first papi.EventCode, next papi.EnumModifier) error {
	code, err := lib.EnumEvent(first, papi.EnumFirst)
	for err == nil {
		info, ierr := lib.GetEventInfo(code)
		if ierr != nil {
			return ierr
		}
		avail := info.Count > 0
		// EnumFirst returns the first preset whether or not it's available.
		if avail || !c.avail {
			fmt.Fprintf(tw, "%s\t%#x\t%s\t%s\n", info.Symbol, uint32(code), yesNo(avail), info.ShortDescr)
		}
		code, err = lib.EnumEvent(code, next)
	}
	if papi.IsKind(err, papi.NoSuchEvent) {
		return nil
	}
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
