// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perfbench

import (
	"github.com/aclements/go-papi/papi"
	"github.com/aclements/go-papi/perf"
)

func newBackend() papi.Backend {
	return perf.New()
}
