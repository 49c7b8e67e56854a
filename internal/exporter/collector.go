// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exporter

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "papi"

// Collector exports the latest Snapshot of a Sampler.
type Collector struct {
	s *Sampler

	count   *prom.Desc
	rate    *prom.Desc
	samples *prom.Desc
	errors  *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector returns a Collector for s.
func NewCollector(s *Sampler) *Collector {
	return &Collector{
		s: s,
		count: prom.NewDesc(
			prom.BuildFQName(namespace, "event", "count_total"),
			"Events counted since sampling started",
			[]string{"event"}, nil,
		),
		rate: prom.NewDesc(
			prom.BuildFQName(namespace, "event", "rate"),
			"Events per second over the last sample interval",
			[]string{"event"}, nil,
		),
		samples: prom.NewDesc(
			prom.BuildFQName(namespace, "", "samples_total"),
			"Successful event set reads",
			nil, nil,
		),
		errors: prom.NewDesc(
			prom.BuildFQName(namespace, "", "sample_errors_total"),
			"Failed event set reads",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	ch <- c.count
	ch <- c.rate
	ch <- c.samples
	ch <- c.errors
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	snap := c.s.Snapshot()
	ch <- prom.MustNewConstMetric(c.samples, prom.CounterValue, float64(snap.Samples))
	ch <- prom.MustNewConstMetric(c.errors, prom.CounterValue, float64(snap.Errors))
	for i, name := range snap.Events {
		ch <- prom.MustNewConstMetric(c.count, prom.CounterValue, float64(snap.Counts[i]), name)
		ch <- prom.MustNewConstMetric(c.rate, prom.GaugeValue, snap.Rates[i], name)
	}
}
