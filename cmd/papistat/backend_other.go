// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aclements/go-papi/papi"
	"github.com/aclements/go-papi/sim"
)

func newBackend(name string, log *zap.Logger) (papi.Backend, error) {
	switch name {
	case "sim":
		return sim.New(sim.WithLogger(log)), nil
	case "perf":
		return nil, fmt.Errorf("the perf backend requires linux")
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
