// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/aclements/go-papi/papi"
)

func (c *command) rate(lib *papi.Library) error {
	var code papi.EventCode
	if c.event != "" {
		var err error
		if code, err = lib.EventNameToCode(c.event); err != nil {
			return fmt.Errorf("%s: %w", c.event, err)
		}
	}

	switch c.metric {
	case "ipc":
		m, err := lib.IPC()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "real %.6fs proc %.6fs instructions %d IPC %.3f\n",
			m.RealTime, m.ProcTime, m.Instructions, m.IPC)
	case "flips":
		m, err := lib.Flips(code)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "real %.6fs proc %.6fs %s %d MFLIPS %.3f\n",
			m.RealTime, m.ProcTime, m.EventName, m.Instructions, m.MFlips)
	case "flops":
		m, err := lib.Flops(code)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "real %.6fs proc %.6fs %s %d MFLOPS %.3f\n",
			m.RealTime, m.ProcTime, m.EventName, m.Operations, m.MFlops)
	case "epc":
		m, err := lib.EPC(code)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "real %.6fs proc %.6fs events %d cycles %d ref %d EPC %.3f\n",
			m.RealTime, m.ProcTime, m.Events, m.Core, m.Reference, m.EPC)
	default:
		return fmt.Errorf("unknown metric %q", c.metric)
	}
	return nil
}
