// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/aclements/go-papi/papi"
)

func (b *Backend) NumComponents() int { return 1 }

func (b *Backend) ComponentInfo(idx int) *papi.ComponentInfo {
	if idx != 0 {
		return nil
	}
	return &papi.ComponentInfo{
		Name:            "sim",
		ShortName:       "sim",
		Description:     "Simulated CPU counters",
		Version:         "1.0",
		SupportVersion:  "1.0",
		CmpIdx:          0,
		NumCntrs:        b.counters,
		NumPresetEvents: len(b.rates),
		NumNativeEvents: len(natives),

		DefaultDomain:          papi.DomUser,
		AvailableDomains:       papi.DomUser | papi.DomKernel,
		DefaultGranularity:     papi.GrnThr,
		AvailableGranularities: papi.GrnThr | papi.GrnProc,
		PMUNames:               []string{"sim"},

		FastCounterRead:  true,
		FastRealTimer:    true,
		FastVirtualTimer: true,
	}
}

func (b *Backend) HardwareInfo() *papi.HardwareInfo {
	return &papi.HardwareInfo{
		NCPU:         4,
		Threads:      1,
		Cores:        4,
		Sockets:      1,
		NNodes:       1,
		TotalCPUs:    4,
		VendorString: "Simulated",
		ModelString:  "Simulated CPU @ 3.00GHz",
		Revision:     1,
		CPUMaxMHz:    ClockMHz,
		CPUMinMHz:    ClockMHz,
	}
}

// DmemInfo reports the Go runtime's view of process memory.
func (b *Backend) DmemInfo() (*papi.DmemInfo, papi.Errno) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	const kb = 1024
	return &papi.DmemInfo{
		Peak:          int64(ms.Sys / kb),
		Size:          int64(ms.Sys / kb),
		Resident:      int64((ms.HeapInuse + ms.StackInuse) / kb),
		HighWaterMark: int64(ms.Sys / kb),
		Heap:          int64(ms.HeapAlloc / kb),
		Stack:         int64(ms.StackInuse / kb),
		Pagesize:      int64(os.Getpagesize()),
	}, papi.OK
}

func (b *Backend) ExecutableInfo() *papi.ExecutableInfo {
	path, err := os.Executable()
	if err != nil {
		path = os.Args[0]
	}
	return &papi.ExecutableInfo{
		FullName:    path,
		AddressInfo: papi.AddressMap{Name: filepath.Base(path)},
	}
}
