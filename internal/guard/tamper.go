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

package guard

import (
	"fmt"
	"strings"

	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/internal/hw"
)

// Bands holds the safe environmental operating ranges.
type Bands struct {
	// TemperatureMin and TemperatureMax are in degrees Celsius.
	TemperatureMin float32
	TemperatureMax float32
	// VoltageMin and VoltageMax are in volts.
	VoltageMin float32
	VoltageMax float32

	LightMax     int32
	VibrationMax int32
}

// DefaultBands returns the designed operating ranges.
func DefaultBands() Bands {
	return Bands{
		TemperatureMin: -10,
		TemperatureMax: 85,
		VoltageMin:     2.5,
		VoltageMax:     5.5,
		LightMax:       1000,
		VibrationMax:   500,
	}
}

// Sensors provides environmental measurements.
type Sensors interface {
	Sensors() (hw.Snapshot, error)
}

// TamperDetection represents sensor based physical tamper detection.
type TamperDetection struct {
	src   Sensors
	bands Bands

	last       hw.Snapshot
	violations uint32
}

// NewTamperDetection returns a detector checking src against bands.
func NewTamperDetection(src Sensors, bands Bands) *TamperDetection {
	return &TamperDetection{
		src:   src,
		bands: bands,
	}
}

// Poll reads all sensors and fails on any out of band reading.
func (t *TamperDetection) Poll() error {
	s, err := t.src.Sensors()

	if err != nil {
		return fault.New(fault.HardwareTestFailed, fmt.Errorf("sensor read: %w", err))
	}

	t.last = s

	if v := t.bands.check(&s); len(v) > 0 {
		t.violations++
		klog.Errorf("TD tamper violation %d: %s", t.violations, strings.Join(v, ", "))
		return fault.Newf(fault.HardwareTestFailed, "tamper detected: %s", strings.Join(v, ", "))
	}

	return nil
}

// Last returns the most recent snapshot.
func (t *TamperDetection) Last() hw.Snapshot {
	return t.last
}

// Violations returns the number of polls with out of band readings.
func (t *TamperDetection) Violations() uint32 {
	return t.violations
}

func (b *Bands) check(s *hw.Snapshot) (v []string) {
	for i, c := range s.Temperature {
		if c < b.TemperatureMin || c > b.TemperatureMax {
			v = append(v, fmt.Sprintf("temperature[%d] %.1fC", i, c))
		}
	}

	for i, u := range s.Voltage {
		if u < b.VoltageMin || u > b.VoltageMax {
			v = append(v, fmt.Sprintf("voltage[%d] %.3fV", i, u))
		}
	}

	for i, l := range s.Light {
		if l > b.LightMax {
			v = append(v, fmt.Sprintf("light[%d] %d", i, l))
		}
	}

	for i, a := range s.Vibration {
		if a > b.VibrationMax {
			v = append(v, fmt.Sprintf("vibration[%d] %d", i, a))
		}
	}

	return
}
