// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	oklogrun "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aclements/go-papi/internal/exporter"
	"github.com/aclements/go-papi/internal/logger"
	"github.com/aclements/go-papi/papi"
)

// serve samples cfg.Events and serves them on cfg.Web.ListenAddress until ctx
// is done.
func (c *command) serve(ctx context.Context, lib *papi.Library) error {
	s := exporter.NewSampler(lib, c.cfg.Events, c.cfg.Web.Interval, exporter.WithLogger(c.log))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		exporter.NewCollector(s),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv := &http.Server{
		Addr:              c.cfg.Web.ListenAddress,
		Handler:           newRouter(s, reg, c.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	var g oklogrun.Group
	g.Add(func() error {
		return s.Run(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(func() error {
		c.log.Info("serving metrics", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.log.Warn("server shutdown failed", zap.Error(err))
		}
	})
	g.Add(func() error {
		<-ctx.Done()
		c.log.Info("shutting down")
		return nil
	}, func(error) {
		cancel()
	})
	return g.Run()
}

func newRouter(s *exporter.Sampler, reg *prometheus.Registry, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.Middleware(log))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		if snap.Events == nil {
			http.Error(w, "not sampling", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "ok: %d samples, %d errors\n", snap.Samples, snap.Errors)
	})
	return r
}
