// Copyright 2026 The Armored RoT authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hw

import (
	"fmt"
	"time"

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/mmio"
)

// Decision represents a decision latch outcome.
type Decision uint8

const (
	Allow Decision = 1
	Deny  Decision = 2
	Purge Decision = 3
)

// Valid returns whether d is a latchable outcome.
func (d Decision) Valid() bool {
	return d >= Allow && d <= Purge
}

func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case Deny:
		return "DENY"
	case Purge:
		return "PURGE"
	default:
		return fmt.Sprintf("INVALID(%d)", uint8(d))
	}
}

// LatencyBuckets are the upper bounds of the commit latency histogram, a
// final bucket counts everything above the last bound.
var LatencyBuckets = []time.Duration{
	1 * time.Nanosecond,
	2 * time.Nanosecond,
	5 * time.Nanosecond,
	10 * time.Nanosecond,
	20 * time.Nanosecond,
	50 * time.Nanosecond,
	100 * time.Nanosecond,
	1 * time.Microsecond,
}

// TimingStats summarizes commit latencies.
type TimingStats struct {
	Count      uint32
	Violations uint32
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	// Histogram counts commits per LatencyBuckets entry, plus overflow.
	Histogram []uint32

	total time.Duration
}

func (s *TimingStats) observe(latency time.Duration, violation bool) {
	if s.Histogram == nil {
		s.Histogram = make([]uint32, len(LatencyBuckets)+1)
	}

	s.Count++

	if violation {
		s.Violations++
	}

	if s.Count == 1 || latency < s.Min {
		s.Min = latency
	}

	if latency > s.Max {
		s.Max = latency
	}

	s.total += latency
	s.Mean = s.total / time.Duration(s.Count)

	i := 0

	for i < len(LatencyBuckets) && latency > LatencyBuckets[i] {
		i++
	}

	s.Histogram[i]++
}

// DecisionLatch represents the timing-bounded decision latch.
type DecisionLatch struct {
	dev mmio.Device
	clk Clock
	cfg Config

	last  Decision
	stats TimingStats

	// OnCommit is called after every committed decision.
	OnCommit func(d Decision, latency time.Duration, violation bool)
}

// OpenDecisionLatch verifies the device signature.
func OpenDecisionLatch(dev mmio.Device, clk Clock, cfg Config) (*DecisionLatch, error) {
	if err := probe(dev, mmio.SIG_LATCH, "decision latch"); err != nil {
		return nil, err
	}

	return &DecisionLatch{
		dev: dev,
		clk: clk,
		cfg: cfg,
	}, nil
}

// WriteDecision commits a decision and measures its round-trip latency.
//
// A latency above Config.LatchBound is reported with fault.ErrTimingViolation
// after the decision has been committed: the error means "committed but
// late", not "not committed".
func (l *DecisionLatch) WriteDecision(d Decision) error {
	if !d.Valid() {
		return fmt.Errorf("decision %s: %w", d, fault.ErrIntegrityFailed)
	}

	start := l.clk.Nanotime()

	l.dev.Write(mmio.LATCH_VALUE, uint32(d))
	mmio.Start(l.dev)
	err := mmio.Poll(l.dev, l.cfg.PollLimit)

	latency := time.Duration(l.clk.Nanotime() - start)

	if err != nil {
		return err
	}

	if v := l.dev.Read(mmio.LATCH_COMMITTED); v != uint32(d) {
		return fmt.Errorf("latched %#x after writing %s: %w", v, d, fault.ErrIntegrityFailed)
	}

	violation := latency > l.cfg.LatchBound

	l.last = d
	l.stats.observe(latency, violation)

	if l.OnCommit != nil {
		l.OnCommit(d, latency, violation)
	}

	if violation {
		return fmt.Errorf("%s committed after %v (bound %v): %w", d, latency, l.cfg.LatchBound, fault.ErrTimingViolation)
	}

	return nil
}

// Last returns the last committed decision, ok is false if none was
// committed yet.
func (l *DecisionLatch) Last() (d Decision, ok bool) {
	return l.last, l.last != 0
}

// Stats returns a copy of the commit latency statistics.
func (l *DecisionLatch) Stats() TimingStats {
	s := l.stats
	s.Histogram = append([]uint32(nil), l.stats.Histogram...)
	return s
}

// TimingTest cycles ALLOW, DENY and PURGE for Config.LatchCycles writes and
// fails if any commit exceeds Config.LatchBound.
func (l *DecisionLatch) TimingTest() error {
	for i := 0; i < l.cfg.LatchCycles; i++ {
		d := Decision(i%3 + 1)

		if err := l.WriteDecision(d); err != nil {
			return fault.New(fault.HardwareTestFailed, fmt.Errorf("timing test write %d: %w", i, err))
		}
	}

	return nil
}
