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

// laneVector is the known input used to cross-check compute lanes.
var laneVector = []byte("ARK hybrid compute lane cross-check vector, CMOS FinFET photonic.")

// ComputeCore represents the hybrid compute core.
type ComputeCore struct {
	dev mmio.Device
	cfg Config
}

// OpenComputeCore verifies the device signature.
func OpenComputeCore(dev mmio.Device, cfg Config) (*ComputeCore, error) {
	if err := probe(dev, mmio.SIG_COMPUTE, "compute core"); err != nil {
		return nil, err
	}

	return &ComputeCore{
		dev: dev,
		cfg: cfg,
	}, nil
}

func (c *ComputeCore) run(mode uint32, data []byte) error {
	mmio.WriteWords(c.dev, mmio.COMPUTE_INPUT, data)
	c.dev.Write(mmio.COMPUTE_LENGTH, uint32(len(data)))
	c.dev.Write(mmio.COMPUTE_MODE, mode)

	mmio.Start(c.dev)

	return mmio.Poll(c.dev, c.cfg.PollLimit)
}

// Execute delegates a buffer to the hybrid compute hardware and returns its
// result.
func (c *ComputeCore) Execute(data []byte) (res []byte, err error) {
	if len(data) > mmio.COMPUTE_WINDOW_SIZE {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrPayloadTooLarge)
	}

	if err = c.run(mmio.COMPUTE_MODE_EXECUTE, data); err != nil {
		return
	}

	n := c.dev.Read(mmio.COMPUTE_RESULT_LENGTH)

	if n > mmio.COMPUTE_WINDOW_SIZE {
		return nil, fmt.Errorf("result length %d: %w", n, fault.ErrHardwareFault)
	}

	res = make([]byte, n)
	mmio.ReadWords(c.dev, mmio.COMPUTE_OUTPUT, res)

	return
}

// IntegrityTest runs a known vector in lane check mode and verifies that all
// compute lanes agree.
func (c *ComputeCore) IntegrityTest() error {
	if err := c.run(mmio.COMPUTE_MODE_LANE_CHECK, laneVector); err != nil {
		return fault.New(fault.HardwareTestFailed, fmt.Errorf("lane check: %w", err))
	}

	lanes := [mmio.COMPUTE_LANES]uint32{
		c.dev.Read(mmio.COMPUTE_LANE0),
		c.dev.Read(mmio.COMPUTE_LANE1),
		c.dev.Read(mmio.COMPUTE_LANE2),
	}

	if lanes[0] != lanes[1] || lanes[1] != lanes[2] {
		return fault.Newf(fault.HardwareTestFailed, "compute lanes disagree (%#08x %#08x %#08x): %w",
			lanes[0], lanes[1], lanes[2], fault.ErrIntegrityFailed)
	}

	return nil
}

// EnableMasking sets the side-channel masking controls: power trace noise,
// power consumption randomization and timing normalization.
func (c *ComputeCore) EnableMasking(noise bool, power bool, timing bool) error {
	ctrl := c.dev.Read(mmio.REG_CONTROL)

	for pos, on := range map[int]bool{
		mmio.COMPUTE_CTRL_NOISE:  noise,
		mmio.COMPUTE_CTRL_POWER:  power,
		mmio.COMPUTE_CTRL_TIMING: timing,
	} {
		if on {
			bits.Set(&ctrl, pos)
		} else {
			bits.Clear(&ctrl, pos)
		}
	}

	c.dev.Write(mmio.REG_CONTROL, ctrl)

	if c.dev.Read(mmio.REG_CONTROL) != ctrl {
		return fmt.Errorf("masking controls not applied: %w", fault.ErrHardwareFault)
	}

	return nil
}

// Zeroize clears the working registers and data windows.
func (c *ComputeCore) Zeroize() {
	mmio.Clear(c.dev, mmio.REG_REQUEST, mmio.COMPUTE_SCRATCH_WORDS)
	mmio.Clear(c.dev, mmio.COMPUTE_INPUT, mmio.COMPUTE_WINDOW_SIZE/4)
	mmio.Clear(c.dev, mmio.COMPUTE_OUTPUT, mmio.COMPUTE_WINDOW_SIZE/4)
}
