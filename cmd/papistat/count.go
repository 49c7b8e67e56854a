// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/aclements/go-moremath/stats"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aclements/go-papi/papi"
)

// count measures cfg.Events over a busy loop c.repeat times and prints the
// mean and standard deviation of each event.
func (c *command) count(lib *papi.Library) error {
	if c.repeat < 1 || c.iters < 0 {
		return fmt.Errorf("invalid --repeat %d or --iters %d", c.repeat, c.iters)
	}
	codes := make([]papi.EventCode, len(c.cfg.Events))
	for i, name := range c.cfg.Events {
		code, err := lib.EventNameToCode(name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		codes[i] = code
	}

	samples := make([][]float64, len(codes))
	for r := 0; r < c.repeat; r++ {
		counts, err := measure(lib, codes, c.iters)
		if err != nil {
			return err
		}
		c.log.Debug("measured", zap.Int("run", r), zap.Int64s("counts", counts))
		for i, v := range counts {
			samples[i] = append(samples[i], float64(v))
		}
	}

	tw := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "EVENT\tMEAN\tSTDDEV\t\n")
	means := make(map[papi.EventCode]float64)
	for i, code := range codes {
		s := stats.Sample{Xs: samples[i]}
		mean, sd := s.Mean(), 0.0
		if len(s.Xs) > 1 {
			sd = s.StdDev()
		}
		means[code] = mean
		fmt.Fprintf(tw, "%s\t%.0f\t%.1f\t\n", c.cfg.Events[i], mean, sd)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if ins, cyc := means[papi.TOTINS], means[papi.TOTCYC]; ins > 0 && cyc > 0 {
		fmt.Fprintf(c.out, "IPC %.3f\n", ins/cyc)
	}
	return nil
}

// measure counts codes over iters iterations of a floating point loop. The
// event set lives only for the measurement.
func measure(lib *papi.Library, codes []papi.EventCode, iters int) (counts []int64, err error) {
	es, err := lib.CreateEventSet()
	if err != nil {
		return nil, err
	}
	defer func() {
		// A failed Stop can leave es counting, which Cleanup and Destroy
		// refuse.
		if st, serr := lib.State(es); serr == nil && st == papi.Running {
			_, serr = lib.Stop(es)
			err = multierr.Append(err, serr)
		}
		err = multierr.Append(err, lib.Cleanup(es))
		err = multierr.Append(err, lib.Destroy(es))
	}()
	if err := lib.AddEvents(es, codes); err != nil {
		return nil, err
	}
	if err := lib.Start(es); err != nil {
		return nil, err
	}
	work(iters)
	return lib.Stop(es)
}

var sink float64

func work(iters int) {
	x := 1.0
	for i := 0; i < iters; i++ {
		x = x*1.0000001 + 1e-9
	}
	sink = x
}
