// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-papi/events"
	"github.com/aclements/go-papi/papi"
)

func (b *Backend) NumComponents() int { return 1 }

func (b *Backend) ComponentInfo(idx int) *papi.ComponentInfo {
	if idx != 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	info := &papi.ComponentInfo{
		Name:                   "perf_event",
		ShortName:              "perf",
		Description:            "Linux perf_event CPU counters",
		NumCntrs:               b.maxEvents,
		NumMpxCntrs:            b.maxEvents,
		NumPresetEvents:        len(b.presets),
		NumNativeEvents:        len(b.natives),
		DefaultDomain:          papi.DomUser,
		AvailableDomains:       papi.DomUser,
		DefaultGranularity:     papi.GrnThr,
		AvailableGranularities: papi.GrnThr,
		PMUNames:               events.PMUs(),
		KernelMultiplex:        true,
		EdgeDetect:             true,
		Invert:                 true,
		CntrUmasks:             true,
	}
	if !b.opts.ExcludeKernel {
		info.DefaultDomain |= papi.DomKernel
		info.AvailableDomains |= papi.DomKernel
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.KernelVersion = unix.ByteSliceToString(uts.Release[:])
	}
	if level, err := Paranoid(); err != nil {
		info.Disabled = papi.ENOSUPP
		info.DisabledReason = "perf_event_open not supported: " + err.Error()
	} else if level > 2 {
		info.Disabled = papi.EPERM
		info.DisabledReason = fmt.Sprintf("%s is %d, must be 2 or less", paranoidPath, level)
	}
	return info
}

// cpuVendors are the hardware vendor IDs of the vendor strings in
// /proc/cpuinfo.
var cpuVendors = map[string]int{
	"GenuineIntel": 1,
	"AuthenticAMD": 2,
	"IBM":          3,
	"Cray":         4,
	"SUN":          5,
	"ARM":          7,
}

func (b *Backend) HardwareInfo() *papi.HardwareInfo {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		b.log.Debug("reading cpu info", zap.Error(err))
		return nil
	}
	first := infos[0]
	hw := &papi.HardwareInfo{
		VendorString:  first.VendorID,
		Vendor:        cpuVendors[first.VendorID],
		ModelString:   first.ModelName,
		CPUIDStepping: int(first.Stepping),
		CPUMaxMHz:     int(first.Mhz),
		CPUMinMHz:     int(first.Mhz),
		NNodes:        1,
	}
	hw.CPUIDFamily, _ = strconv.Atoi(first.Family)
	hw.CPUIDModel, _ = strconv.Atoi(first.Model)
	hw.Model = hw.CPUIDModel

	sockets := make(map[string]bool)
	for _, info := range infos {
		sockets[info.PhysicalID] = true
	}
	hw.Sockets = len(sockets)
	logical, err1 := cpu.Counts(true)
	physical, err2 := cpu.Counts(false)
	if err1 == nil && err2 == nil && physical > 0 && hw.Sockets > 0 {
		hw.TotalCPUs = logical
		hw.Threads = logical / physical
		hw.Cores = physical / hw.Sockets
		hw.NCPU = logical
	}
	if nodes, err := filepath.Glob("/sys/devices/system/node/node[0-9]*"); err == nil && len(nodes) > 0 {
		hw.NNodes = len(nodes)
		hw.NCPU = hw.TotalCPUs / len(nodes)
	}

	if lo, hi, ok := cpufreqMHz(); ok {
		hw.CPUMinMHz, hw.CPUMaxMHz = lo, hi
	}
	return hw
}

// cpufreqMHz returns the frequency range of the CPUs from
// /sys/devices/system/cpu/cpu*/cpufreq.
func cpufreqMHz() (lo, hi int, ok bool) {
	fs, err := sysfs.NewDefaultFS()
	if err != nil {
		return 0, 0, false
	}
	stats, err := fs.SystemCpufreq()
	if err != nil {
		return 0, 0, false
	}
	for _, s := range stats {
		if s.CpuinfoMinimumFrequency == nil || s.CpuinfoMaximumFrequency == nil {
			continue
		}
		// cpufreq reports kHz.
		cpuLo, cpuHi := int(*s.CpuinfoMinimumFrequency/1000), int(*s.CpuinfoMaximumFrequency/1000)
		if !ok || cpuLo < lo {
			lo = cpuLo
		}
		if !ok || cpuHi > hi {
			hi = cpuHi
		}
		ok = true
	}
	return lo, hi, ok
}

// cpuMHz returns the clock rate used to convert time to cycles.
func cpuMHz() int {
	if _, hi, ok := cpufreqMHz(); ok && hi > 0 {
		return hi
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 && infos[0].Mhz > 0 {
		return int(infos[0].Mhz)
	}
	// Report cycles as nanoseconds.
	return 1000
}

func (b *Backend) DmemInfo() (*papi.DmemInfo, papi.Errno) {
	self, err := procfs.Self()
	if err != nil {
		b.log.Debug("opening /proc/self", zap.Error(err))
		return nil, papi.ESYS
	}
	st, err := self.NewStatus()
	if err != nil {
		b.log.Debug("reading /proc/self/status", zap.Error(err))
		return nil, papi.ESYS
	}
	kb := func(bytes uint64) int64 { return int64(bytes / 1024) }
	return &papi.DmemInfo{
		Peak:          kb(st.VmPeak),
		Size:          kb(st.VmSize),
		Resident:      kb(st.VmRSS),
		HighWaterMark: kb(st.VmHWM),
		Shared:        kb(st.RssFile + st.RssShmem),
		Text:          kb(st.VmExe),
		Library:       kb(st.VmLib),
		Heap:          kb(st.VmData),
		Locked:        kb(st.VmLck),
		Stack:         kb(st.VmStk),
		Pagesize:      int64(os.Getpagesize()),
		PTE:           kb(st.VmPTE),
	}, papi.OK
}

// ExecutableInfo describes the running executable and the text, data and
// bss mappings of its image.
func (b *Backend) ExecutableInfo() *papi.ExecutableInfo {
	self, err := procfs.Self()
	if err != nil {
		return nil
	}
	exe, err := self.Executable()
	if err != nil {
		b.log.Debug("reading /proc/self/exe", zap.Error(err))
		return nil
	}
	info := &papi.ExecutableInfo{FullName: exe}
	info.AddressInfo.Name = filepath.Base(exe)
	maps, err := self.ProcMaps()
	if err != nil {
		b.log.Debug("reading /proc/self/maps", zap.Error(err))
		return info
	}
	a := &info.AddressInfo
	for i, m := range maps {
		switch {
		case m.Pathname == exe && m.Perms.Execute && a.TextStart == 0:
			a.TextStart, a.TextEnd = uint64(m.StartAddr), uint64(m.EndAddr)
		case m.Pathname == exe && m.Perms.Write:
			if a.DataStart == 0 {
				a.DataStart = uint64(m.StartAddr)
			}
			a.DataEnd = uint64(m.EndAddr)
			// The bss is the anonymous mapping directly after the data.
			if i+1 < len(maps) && maps[i+1].Pathname == "" && maps[i+1].StartAddr == m.EndAddr {
				a.BssStart, a.BssEnd = uint64(maps[i+1].StartAddr), uint64(maps[i+1].EndAddr)
			}
		}
	}
	return info
}

func clockNsec(clock int32) int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(clock, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}

func (b *Backend) RealNsec() int64 { return clockNsec(unix.CLOCK_MONOTONIC) }
func (b *Backend) VirtNsec() int64 { return clockNsec(unix.CLOCK_PROCESS_CPUTIME_ID) }

func (b *Backend) RealCycles() int64 { return b.RealNsec() * int64(b.cycleMHz()) / 1000 }
func (b *Backend) VirtCycles() int64 { return b.VirtNsec() * int64(b.cycleMHz()) / 1000 }

func (b *Backend) cycleMHz() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mhz == 0 {
		b.mhz = cpuMHz()
	}
	return b.mhz
}
