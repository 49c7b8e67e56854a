// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package exporter periodically samples an event set and exports the counts
// to Prometheus.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aclements/go-papi/papi"
)

// A Snapshot is the state of the sampled event set after a read.
type Snapshot struct {
	Time   time.Time
	Events []string
	Counts []int64   // Since the event set started
	Rates  []float64 // Events per second since the previous read

	Samples int // Successful reads
	Errors  int // Failed reads
}

// A Sampler counts a set of events and periodically reads them.
//
// Counting is tied to the goroutine that runs the Sampler, so the Sampler
// measures itself, plus anything else that goroutine's OS thread runs. It is
// meant to demonstrate and monitor the counter subsystem, not a workload.
type Sampler struct {
	lib      *papi.Library
	log      *zap.Logger
	events   []string
	interval time.Duration
	now      func() time.Time

	es papi.EventSet

	mu   sync.Mutex
	last Snapshot
}

// An Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger. The default discards all output.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sampler) { s.log = log }
}

// WithClock sets the function used to timestamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// NewSampler returns a Sampler that reads the named events every interval.
// lib must be initialized.
func NewSampler(lib *papi.Library, events []string, interval time.Duration, opts ...Option) *Sampler {
	s := &Sampler{
		lib:      lib,
		log:      zap.NewNop(),
		events:   events,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run counts the events and reads them every interval until ctx is done.
// It returns an error only if the event set can't be set up.
func (s *Sampler) Run(ctx context.Context) (err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.open(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.close())
	}()

	s.log.Info("sampling events", zap.Strings("events", s.events), zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sample(); err != nil {
				s.log.Warn("sample failed", zap.Error(err))
			}
		}
	}
}

// open creates and starts the event set.
func (s *Sampler) open() error {
	if len(s.events) == 0 {
		return errors.New("no events to sample")
	}
	es, err := s.lib.CreateEventSet()
	if err != nil {
		return err
	}
	for _, name := range s.events {
		if err := s.lib.AddNamedEvent(es, name); err != nil {
			return multierr.Append(fmt.Errorf("adding %s: %w", name, err), s.lib.Destroy(es))
		}
	}
	if err := s.lib.Start(es); err != nil {
		return multierr.Append(err, s.lib.Destroy(es))
	}
	s.es = es

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = Snapshot{
		Time:   s.now(),
		Events: s.events,
		Counts: make([]int64, len(s.events)),
		Rates:  make([]float64, len(s.events)),
	}
	return nil
}

// sample reads the event set and records a new Snapshot.
func (s *Sampler) sample() error {
	counts, err := s.lib.Read(s.es)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.last.Errors++
		return err
	}
	next := Snapshot{
		Time:    now,
		Events:  s.events,
		Counts:  counts,
		Rates:   make([]float64, len(counts)),
		Samples: s.last.Samples + 1,
		Errors:  s.last.Errors,
	}
	if secs := now.Sub(s.last.Time).Seconds(); secs > 0 {
		for i := range counts {
			next.Rates[i] = float64(counts[i]-s.last.Counts[i]) / secs
		}
	}
	s.last = next
	return nil
}

// close stops and destroys the event set.
func (s *Sampler) close() error {
	_, err := s.lib.Stop(s.es)
	if papi.IsKind(err, papi.NotRunning) {
		err = nil
	}
	err = multierr.Append(err, s.lib.Destroy(s.es))
	s.es = papi.NullEventSet
	return err
}

// Snapshot returns the most recent Snapshot. Its slices must not be
// modified.
func (s *Sampler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
