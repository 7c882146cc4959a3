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

//go:build tamago
// +build tamago

package main

import (
	"io"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/transparency-dev/armored-rot/mmio"
)

// processor parks the Cortex-A7 core.
type processor struct{}

func (p *processor) DisableInterrupts() {
	imx6ul.GIC.FIQEn(false)
	imx6ul.ARM.DisableInterrupts()
}

// Halt never returns, with interrupts masked only a power cycle recovers
// the device.
func (p *processor) Halt() {
	usbarmory.LED("blue", false)
	usbarmory.LED("white", true)

	for {
	}
}

// physicalMemory serves reads from several physical ranges.
type physicalMemory []mmio.Memory

func (m physicalMemory) ReadAt(p []byte, off int64) (int, error) {
	for i := range m {
		r := &m[i]

		if off >= int64(r.Start) && off < int64(r.Start)+int64(r.Size) {
			return r.ReadAt(p, off)
		}
	}

	return 0, io.EOF
}
