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

	"github.com/usbarmory/tamago/bits"

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/mmio"
)

// FuseState represents the continuity of a single mesh fuse.
type FuseState uint8

const (
	Intact FuseState = iota
	Blown
)

func (s FuseState) String() string {
	if s == Intact {
		return "intact"
	}

	return "blown"
}

// Snapshot holds one environmental sensor measurement.
type Snapshot struct {
	// Temperature in degrees Celsius.
	Temperature [mmio.FUSE_TEMPERATURE_SENSORS]float32
	// Voltage in volts.
	Voltage [mmio.FUSE_VOLTAGE_SENSORS]float32
	// Light is the raw ambient light level.
	Light [mmio.FUSE_LIGHT_SENSORS]int32
	// Vibration is the raw accelerometer magnitude.
	Vibration [mmio.FUSE_VIBRATION_SENSORS]int32
}

// FuseMesh represents the anti-tamper fuse mesh and its environmental
// sensors.
type FuseMesh struct {
	dev mmio.Device
	cfg Config

	continuity uint32
	snapshot   Snapshot
}

// OpenFuseMesh verifies the device signature and takes a first measurement.
func OpenFuseMesh(dev mmio.Device, cfg Config) (f *FuseMesh, err error) {
	if err = probe(dev, mmio.SIG_FUSE, "fuse mesh"); err != nil {
		return
	}

	f = &FuseMesh{
		dev: dev,
		cfg: cfg,
	}

	if err = f.Measure(); err != nil {
		return nil, fault.New(fault.HardwareTestFailed, fmt.Errorf("fuse mesh measurement: %w", err))
	}

	return
}

// Measure latches fuse continuity and sensor readings.
func (f *FuseMesh) Measure() (err error) {
	mmio.Start(f.dev)

	if err = mmio.Poll(f.dev, f.cfg.PollLimit); err != nil {
		return
	}

	f.continuity = f.dev.Read(mmio.FUSE_CONTINUITY)

	var s Snapshot

	for i := range s.Temperature {
		s.Temperature[i] = float32(f.signed(mmio.FUSE_TEMPERATURE, i)) / 1000
	}

	for i := range s.Voltage {
		s.Voltage[i] = float32(f.signed(mmio.FUSE_VOLTAGE, i)) / 1000
	}

	for i := range s.Light {
		s.Light[i] = f.signed(mmio.FUSE_LIGHT, i)
	}

	for i := range s.Vibration {
		s.Vibration[i] = f.signed(mmio.FUSE_VIBRATION, i)
	}

	f.snapshot = s

	return
}

func (f *FuseMesh) signed(off uint32, i int) int32 {
	return int32(f.dev.Read(off + uint32(i*4)))
}

// States returns the per fuse continuity of the last measurement.
func (f *FuseMesh) States() (states [mmio.FUSE_COUNT]FuseState) {
	c := f.continuity

	for i := range states {
		if bits.Get(&c, i, 1) == 0 {
			states[i] = Blown
		}
	}

	return
}

// ContinuityTest measures the mesh and fails if any fuse is open.
func (f *FuseMesh) ContinuityTest() error {
	if err := f.Measure(); err != nil {
		return fault.New(fault.HardwareTestFailed, fmt.Errorf("fuse mesh measurement: %w", err))
	}

	var open []int

	for i, s := range f.States() {
		if s == Blown {
			open = append(open, i)
		}
	}

	if len(open) > 0 {
		return fault.Newf(fault.HardwareTestFailed, "fuses %v open: %w", open, fault.ErrIntegrityFailed)
	}

	return nil
}

// Sensors measures the mesh and returns the environmental readings.
func (f *FuseMesh) Sensors() (Snapshot, error) {
	if err := f.Measure(); err != nil {
		return Snapshot{}, err
	}

	return f.snapshot, nil
}
