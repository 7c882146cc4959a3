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

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"
	"gopkg.in/yaml.v3"
	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/internal/boot"
	"github.com/transparency-dev/armored-rot/internal/digest"
	"github.com/transparency-dev/armored-rot/internal/guard"
	"github.com/transparency-dev/armored-rot/internal/hw"
	"github.com/transparency-dev/armored-rot/internal/hw/simhw"
	"github.com/transparency-dev/armored-rot/internal/manifest"
	"github.com/transparency-dev/armored-rot/internal/metrics"
	"github.com/transparency-dev/armored-rot/internal/policy"
	"github.com/transparency-dev/armored-rot/internal/verify"
	"github.com/transparency-dev/armored-rot/mmio"
)

// Faults describes board conditions injected by a scenario, zero values
// leave the healthy defaults in place.
type Faults struct {
	ReseedDelay   time.Duration `yaml:"reseed_delay"`
	EntropyStuck  bool          `yaml:"entropy_stuck"`
	LatchLatency  time.Duration `yaml:"latch_latency"`
	DivergentLane int           `yaml:"divergent_lane"`
	BlownFuses    []int         `yaml:"blown_fuses"`
	RemoteDisable bool          `yaml:"remote_disable"`

	// sensor readings applied to every sensor of a kind, in °C and V
	Temperature *float32 `yaml:"temperature"`
	Voltage     *float32 `yaml:"voltage"`
	Light       *int32   `yaml:"light"`
	Vibration   *int32   `yaml:"vibration"`

	Connections int `yaml:"connections"`
	// ROMFlips lists ROM offsets whose low bit is inverted.
	ROMFlips []int `yaml:"rom_flips"`
	// Plant is written at the middle of the secure RAM key page.
	Plant string `yaml:"plant"`
	// Stall advances the board clock without running any check.
	Stall time.Duration `yaml:"stall"`
}

// Expect holds the scenario outcome, Fault is matched as a substring of the
// orchestrator error.
type Expect struct {
	State string `yaml:"state"`
	Fault string `yaml:"fault"`
}

// Scenario describes a simulated boot followed by runtime ticks.
type Scenario struct {
	Name string `yaml:"name"`

	// Image holds the firmware image text, ImageFile takes precedence.
	Image     string `yaml:"image"`
	ImageFile string `yaml:"image_file"`
	Version   string `yaml:"version"`

	CorruptPolicy bool `yaml:"corrupt_policy"`

	// Boot faults are applied after the reference digests are computed.
	Boot  Faults   `yaml:"boot"`
	Ticks []Faults `yaml:"ticks"`

	Expect Expect `yaml:"expect"`
}

// Load parses a YAML scenario file.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s := &Scenario{}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %v", path, err)
	}

	return s, nil
}

func (f *Faults) apply(b *simhw.Board) error {
	if f.ReseedDelay != 0 {
		b.Entropy.ReseedDelay = f.ReseedDelay
	}

	if f.LatchLatency != 0 {
		b.Latch.Latency = f.LatchLatency
	}

	if f.EntropyStuck {
		b.Entropy.Stuck = true
	}

	if f.DivergentLane != 0 {
		b.Compute.DivergentLane = f.DivergentLane
	}

	b.Fuse.Blown = append(b.Fuse.Blown, f.BlownFuses...)

	if f.RemoteDisable {
		b.Fuse.SetRemoteDisable(true)
	}

	env := &b.Fuse.Env

	if f.Temperature != nil {
		for i := range env.Temperature {
			env.Temperature[i] = int32(*f.Temperature * 1000)
		}
	}

	if f.Voltage != nil {
		for i := range env.Voltage {
			env.Voltage[i] = int32(*f.Voltage * 1000)
		}
	}

	if f.Light != nil {
		for i := range env.Light {
			env.Light[i] = *f.Light
		}
	}

	if f.Vibration != nil {
		for i := range env.Vibration {
			env.Vibration[i] = *f.Vibration
		}
	}

	if f.Connections != 0 {
		b.Connections.Unauthorized = f.Connections
	}

	for _, off := range f.ROMFlips {
		if off < 0 || off >= len(b.ROM) {
			return fmt.Errorf("ROM offset %d out of range", off)
		}

		b.ROM[off] ^= 0x01
	}

	if f.Plant != "" {
		copy(b.SecureRAM[len(b.SecureRAM)/2:], f.Plant)
	}

	b.Clock.Advance(f.Stall)

	return nil
}

// Run boots a simulated board and runs the scenario ticks until the
// orchestrator leaves Running.
func (s *Scenario) Run(m *metrics.Collector) (*boot.Orchestrator, *simhw.Board, error) {
	image := []byte(s.Image)

	if s.ImageFile != "" {
		var err error

		if image, err = os.ReadFile(s.ImageFile); err != nil {
			return nil, nil, err
		}
	}

	if len(image) > mmio.ROM_SIZE {
		return nil, nil, fmt.Errorf("image size %d exceeds ROM size", len(image))
	}

	b := simhw.NewBoard(image)
	b.WriteCanary(verify.StackCanary)
	b.WriteMarkers(verify.HeapMarkers)

	ref := &manifest.Reference{
		Firmware: digest.Sum(b.ROM),
		Policy:   policy.Sum(),
	}

	if s.Version != "" {
		v, err := semver.NewVersion(s.Version)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid version: %v", err)
		}

		ref.Version = *v
	}

	p := boot.Platform{
		Memory: b.Memory,
		Devices: verify.Devices{
			Entropy: b.Entropy,
			Latch:   b.Latch,
			Compute: b.Compute,
			Fuse:    b.Fuse,
		},
		Clock:       b.Clock,
		Processor:   b.CPU,
		Connections: b.Connections,
		Reference:   ref,
		HW:          hw.DefaultConfig(),
		Guard:       guard.DefaultConfig(),
		Bands:       guard.DefaultBands(),
		Metrics:     m,
		Revision:    "simulated",
		Version:     s.Version,
	}

	// bound the busy waits on stuck devices
	p.HW.PollLimit = 10000

	if s.CorruptPolicy {
		corpus := append([]byte{}, policy.Corpus...)
		corpus[0] ^= 0x01
		p.Policy = corpus
	}

	if err := s.Boot.apply(b); err != nil {
		return nil, nil, err
	}

	o := boot.New(p)
	klog.Infof("%s: boot ended in %s", s.Name, o.Boot())

	for i := range s.Ticks {
		if o.State() != boot.Running {
			break
		}

		if err := s.Ticks[i].apply(b); err != nil {
			return nil, nil, err
		}

		if err := o.Tick(); err != nil {
			klog.Warningf("%s: tick %d: %v", s.Name, i+1, err)
		}
	}

	return o, b, nil
}

// Check compares the orchestrator outcome with the scenario expectation.
func (s *Scenario) Check(o *boot.Orchestrator) error {
	if s.Expect.State != "" && o.State().String() != s.Expect.State {
		return fmt.Errorf("ended in %s (%v), want %s", o.State(), o.Err(), s.Expect.State)
	}

	if s.Expect.Fault == "" {
		return nil
	}

	if o.Err() == nil {
		return errors.New("no fault recorded")
	}

	if !strings.Contains(o.Err().Error(), s.Expect.Fault) {
		return fmt.Errorf("fault %q does not contain %q", o.Err(), s.Expect.Fault)
	}

	return nil
}
