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

// Package hw implements drivers for the ARK trust anchor devices: the
// entropy/identity source, the decision latch, the hybrid compute core and
// the anti-tamper fuse mesh.
//
// Drivers are not safe for concurrent use, each one is opened once by the
// boot orchestrator which remains its only owner. All hardware waits are
// bounded by Config.PollLimit and no operation is ever retried.
package hw

import (
	"errors"
	"fmt"
	"time"

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/mmio"
)

// ErrPayloadTooLarge is returned when a compute request does not fit the
// device input window.
var ErrPayloadTooLarge = errors.New("payload exceeds compute window")

// Config holds the driver timing and quality thresholds.
type Config struct {
	// PollLimit is the number of status reads before a wait times out.
	PollLimit int

	// EntropyFloor is the minimum sustained entropy throughput in bits per
	// second.
	EntropyFloor uint64
	// EntropyDraws is the number of 64 byte draws measured by EntropyTest.
	EntropyDraws int

	// LatchBound is the maximum decision commit round-trip.
	LatchBound time.Duration
	// LatchCycles is the number of writes performed by TimingTest.
	LatchCycles int
}

// DefaultConfig returns the designed device thresholds.
func DefaultConfig() Config {
	return Config{
		PollLimit:    mmio.DefaultPollLimit,
		EntropyFloor: 512000,
		EntropyDraws: 1000,
		LatchBound:   10 * time.Nanosecond,
		LatchCycles:  1000,
	}
}

// Clock provides monotonic time for latency and throughput measurements.
type Clock interface {
	Nanotime() int64
}

// SystemClock measures time with the runtime monotonic clock, on TamaGo this
// is backed by the SoC timer.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a clock starting at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Nanotime returns the nanoseconds elapsed since the clock was created.
func (c *SystemClock) Nanotime() int64 {
	return int64(time.Since(c.epoch))
}

func probe(dev mmio.Device, signature uint32, name string) error {
	if dev == nil {
		return fault.Newf(fault.HardwareTestFailed, "%s: no device", name)
	}

	if err := mmio.Probe(dev, signature); err != nil {
		return fault.New(fault.HardwareTestFailed, fmt.Errorf("%s: %w", name, err))
	}

	return nil
}

// Probe verifies the presence of every trust anchor device, in driver
// initialization order.
func Probe(entropy, latch, compute, fuse mmio.Device) error {
	for _, d := range []struct {
		name string
		dev  mmio.Device
		sig  uint32
	}{
		{"entropy source", entropy, mmio.SIG_ENTROPY},
		{"decision latch", latch, mmio.SIG_LATCH},
		{"compute core", compute, mmio.SIG_COMPUTE},
		{"fuse mesh", fuse, mmio.SIG_FUSE},
	} {
		if err := probe(d.dev, d.sig, d.name); err != nil {
			return err
		}
	}

	return nil
}
