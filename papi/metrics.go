// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// IPC is an instructions-per-cycle measurement.
type IPC struct {
	RealTime     float64 // Wall clock seconds
	ProcTime     float64 // Process CPU seconds
	Instructions int64
	IPC          float64
}

// Flips is a floating point instruction rate measurement.
type Flips struct {
	EventName    string
	RealTime     float64
	ProcTime     float64
	Instructions int64
	MFlips       float64 // Millions of instructions per CPU second
}

// Flops is a floating point operation rate measurement.
type Flops struct {
	EventName  string
	RealTime   float64
	ProcTime   float64
	Operations int64
	MFlops     float64 // Millions of operations per CPU second
}

// EPC is an events-per-cycle measurement.
type EPC struct {
	RealTime  float64
	ProcTime  float64
	Reference int64 // Reference cycles, or 0 if not countable
	Core      int64 // Core cycles
	Events    int64
	EPC       float64
}

// IPC measures instructions per cycle over the sample window. If no cycles
// elapse, the rate is 0.
func (l *Library) IPC() (IPC, error) {
	s, err := l.sample("ipc", []counterReq{{code: TOTINS}, {code: TOTCYC}})
	if err != nil {
		return IPC{}, err
	}
	return IPC{
		RealTime:     s.real,
		ProcTime:     s.proc,
		Instructions: s.counts[0],
		IPC:          ratio(s.counts[0], s.counts[1]),
	}, nil
}

// Flips measures the floating point instruction rate over the sample window.
// code selects the instruction event; 0 means [FPINS].
func (l *Library) Flips(code EventCode) (Flips, error) {
	const op = "flips"
	if code == 0 {
		code = FPINS
	}
	name, s, err := l.namedSample(op, code)
	if err != nil {
		return Flips{}, err
	}
	return Flips{
		EventName:    name,
		RealTime:     s.real,
		ProcTime:     s.proc,
		Instructions: s.counts[0],
		MFlips:       perMicro(s.counts[0], s.proc),
	}, nil
}

// Flops measures the floating point operation rate over the sample window.
// code selects the operation event; 0 means [FPOPS].
func (l *Library) Flops(code EventCode) (Flops, error) {
	const op = "flops"
	if code == 0 {
		code = FPOPS
	}
	name, s, err := l.namedSample(op, code)
	if err != nil {
		return Flops{}, err
	}
	return Flops{
		EventName:  name,
		RealTime:   s.real,
		ProcTime:   s.proc,
		Operations: s.counts[0],
		MFlops:     perMicro(s.counts[0], s.proc),
	}, nil
}

// EPC measures event code per core cycle over the sample window. code 0
// means [TOTINS]. Reference cycles are reported when the subsystem can count
// them alongside.
func (l *Library) EPC(code EventCode) (EPC, error) {
	if code == 0 {
		code = TOTINS
	}
	s, err := l.sample("epc", []counterReq{{code: code}, {code: TOTCYC}, {code: REFCYC, optional: true}})
	if err != nil {
		return EPC{}, err
	}
	return EPC{
		RealTime:  s.real,
		ProcTime:  s.proc,
		Events:    s.counts[0],
		Core:      s.counts[1],
		Reference: s.counts[2],
		EPC:       ratio(s.counts[0], s.counts[1]),
	}, nil
}

func (l *Library) namedSample(op string, code EventCode) (string, sample, error) {
	if err := l.requireInit(op); err != nil {
		return "", sample{}, err
	}
	name, st := l.b.EventCodeToName(code)
	if err := l.check(op, st); err != nil {
		return "", sample{}, err
	}
	s, err := l.sample(op, []counterReq{{code: code}})
	return bound(name, MaxStrLen), s, err
}

type counterReq struct {
	code     EventCode
	optional bool // Count as 0 if the event can't be added
}

type sample struct {
	real, proc float64 // Seconds
	counts     []int64 // Parallel to the request
}

// sample counts reqs over the sample window in an anonymous event set that
// is destroyed before returning. Requests for the same code share a counter.
func (l *Library) sample(op string, reqs []counterReq) (s sample, err error) {
	if err := l.requireInit(op); err != nil {
		return sample{}, err
	}
	h, st := l.b.CreateEventSet()
	if err := l.check(op, st); err != nil {
		return sample{}, err
	}
	running := false
	defer func() {
		if running {
			discard := make([]int64, l.b.NumEvents(h))
			l.b.Stop(h, discard)
		}
		if st := l.b.Destroy(&h); st < 0 {
			err = multierr.Append(err, l.fail(op, st))
		}
	}()

	// slot[i] is the index of reqs[i] in the event set, or -1.
	slot := make([]int, len(reqs))
	index := make(map[EventCode]int)
	for i, req := range reqs {
		if j, ok := index[req.code]; ok {
			slot[i] = j
			continue
		}
		if st := l.b.AddEvent(h, req.code); st < 0 {
			if !req.optional {
				return sample{}, l.fail(op, st)
			}
			l.log.Debug("optional counter unavailable",
				zap.String("op", op), zap.Stringer("event", req.code), zap.String("code", st.Name()))
			slot[i] = -1
			continue
		}
		slot[i] = len(index)
		index[req.code] = slot[i]
	}

	r0, v0 := l.b.RealNsec(), l.b.VirtNsec()
	if err := l.check(op, l.b.Start(h)); err != nil {
		return sample{}, err
	}
	running = true
	l.sleep(l.window)
	vals := make([]int64, len(index))
	if err := l.check(op, l.b.Stop(h, vals)); err != nil {
		return sample{}, err
	}
	running = false
	r1, v1 := l.b.RealNsec(), l.b.VirtNsec()

	s.real = float64(r1-r0) / 1e9
	s.proc = float64(v1-v0) / 1e9
	s.counts = make([]int64, len(reqs))
	for i, j := range slot {
		if j >= 0 {
			s.counts[i] = vals[j]
		}
	}
	return s, nil
}

// ratio returns num/den, or 0 if den isn't positive.
func ratio(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// perMicro returns count per microsecond of secs, or 0 if secs isn't
// positive.
func perMicro(count int64, secs float64) float64 {
	if secs <= 0 {
		return 0
	}
	return float64(count) / (secs * 1e6)
}
