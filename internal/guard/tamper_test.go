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
	"errors"
	"testing"

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/internal/hw"
)

type fakeSensors struct {
	s   hw.Snapshot
	err error
}

func (f *fakeSensors) Sensors() (hw.Snapshot, error) {
	return f.s, f.err
}

func nominal() hw.Snapshot {
	var s hw.Snapshot

	for i := range s.Temperature {
		s.Temperature[i] = 25
	}

	for i := range s.Voltage {
		s.Voltage[i] = 3.3
	}

	return s
}

func TestTamperPoll(t *testing.T) {
	for _, test := range []struct {
		name   string
		mutate func(s *hw.Snapshot)
		fail   bool
	}{
		{name: "nominal", mutate: func(*hw.Snapshot) {}},
		{name: "temperature at minimum", mutate: func(s *hw.Snapshot) { s.Temperature[0] = -10 }},
		{name: "temperature at maximum", mutate: func(s *hw.Snapshot) { s.Temperature[3] = 85 }},
		{name: "temperature low", mutate: func(s *hw.Snapshot) { s.Temperature[1] = -10.5 }, fail: true},
		{name: "temperature high", mutate: func(s *hw.Snapshot) { s.Temperature[2] = 85.1 }, fail: true},
		{name: "voltage at minimum", mutate: func(s *hw.Snapshot) { s.Voltage[0] = 2.5 }},
		{name: "voltage at maximum", mutate: func(s *hw.Snapshot) { s.Voltage[7] = 5.5 }},
		{name: "voltage glitch", mutate: func(s *hw.Snapshot) { s.Voltage[4] = 1.2 }, fail: true},
		{name: "overvoltage", mutate: func(s *hw.Snapshot) { s.Voltage[5] = 6 }, fail: true},
		{name: "light at maximum", mutate: func(s *hw.Snapshot) { s.Light[1] = 1000 }},
		{name: "enclosure opened", mutate: func(s *hw.Snapshot) { s.Light[0] = 1001 }, fail: true},
		{name: "vibration at maximum", mutate: func(s *hw.Snapshot) { s.Vibration[2] = 500 }},
		{name: "drilling", mutate: func(s *hw.Snapshot) { s.Vibration[2] = 501 }, fail: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			src := &fakeSensors{s: nominal()}
			test.mutate(&src.s)

			td := NewTamperDetection(src, DefaultBands())
			err := td.Poll()

			if !test.fail {
				if err != nil {
					t.Fatalf("Poll: %v", err)
				}
				if td.Violations() != 0 {
					t.Fatalf("violations = %d, want 0", td.Violations())
				}
				return
			}

			if !errors.Is(err, fault.ErrHardwareTestFailed) {
				t.Fatalf("Poll: got %v, want ErrHardwareTestFailed", err)
			}
			if td.Violations() != 1 {
				t.Fatalf("violations = %d, want 1", td.Violations())
			}
			if td.Last() != src.s {
				t.Error("snapshot not retained")
			}
		})
	}
}

func TestTamperSensorError(t *testing.T) {
	src := &fakeSensors{err: fault.ErrTimeout}
	td := NewTamperDetection(src, DefaultBands())

	err := td.Poll()

	if !errors.Is(err, fault.ErrHardwareTestFailed) || !errors.Is(err, fault.ErrTimeout) {
		t.Fatalf("got %v, want ErrHardwareTestFailed wrapping ErrTimeout", err)
	}
}

type fakeMasking struct {
	calls int
	err   error
}

func (f *fakeMasking) EnableMasking(noise bool, power bool, timing bool) error {
	f.calls++

	if !noise || !power || !timing {
		return errors.New("partial masking")
	}

	return f.err
}

func TestSideChannelOneShot(t *testing.T) {
	m := &fakeMasking{err: errors.New("control register stuck")}
	s := NewSideChannel(m)

	if err := s.EnableAll(); err == nil {
		t.Fatal("EnableAll succeeded on failing hardware")
	}
	if s.Enabled() {
		t.Fatal("protections reported enabled after failure")
	}

	m.err = nil

	for i := 0; i < 3; i++ {
		if err := s.EnableAll(); err != nil {
			t.Fatalf("EnableAll: %v", err)
		}
	}

	if !s.Enabled() {
		t.Fatal("protections not enabled")
	}
	if m.calls != 2 {
		t.Fatalf("hardware toggled %d times, want 2", m.calls)
	}
}
