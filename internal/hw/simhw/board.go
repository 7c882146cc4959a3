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

package simhw

import (
	"encoding/binary"

	"github.com/transparency-dev/armored-rot/mmio"
)

// Board wires simulated devices and memory at the ARK memory map.
type Board struct {
	Clock *Clock

	Entropy *Entropy
	Latch   *Latch
	Compute *Compute
	Fuse    *FuseMesh

	Memory    *Memory
	ROM       []byte
	SecureRAM []byte

	CPU         *CPU
	Connections *Connections
}

// NewBoard returns a healthy board with image loaded at the start of ROM,
// the remainder of ROM is zero filled.
func NewBoard(image []byte) *Board {
	clk := &Clock{}

	b := &Board{
		Clock:       clk,
		Entropy:     NewEntropy(clk),
		Latch:       NewLatch(clk),
		Compute:     NewCompute(),
		Fuse:        NewFuseMesh(),
		Memory:      &Memory{},
		ROM:         make([]byte, mmio.ROM_SIZE),
		SecureRAM:   make([]byte, mmio.SECURE_RAM_KEY_SIZE),
		CPU:         &CPU{},
		Connections: &Connections{},
	}

	copy(b.ROM, image)

	b.Memory.Map(mmio.ROM_BASE, b.ROM)
	b.Memory.Map(mmio.SECURE_RAM_BASE, b.SecureRAM)

	return b
}

// WriteCanary places the stack canary in secure RAM.
func (b *Board) WriteCanary(v uint64) {
	binary.LittleEndian.PutUint64(b.SecureRAM[mmio.SECURE_RAM_CANARY-mmio.SECURE_RAM_BASE:], v)
}

// WriteMarkers places heap integrity markers in secure RAM.
func (b *Board) WriteMarkers(markers []uint32) {
	off := mmio.SECURE_RAM_MARKERS - mmio.SECURE_RAM_BASE

	for i, m := range markers {
		binary.LittleEndian.PutUint32(b.SecureRAM[off+i*4:], m)
	}
}

// Devices returns the register blocks in driver initialization order.
func (b *Board) Devices() []mmio.Device {
	return []mmio.Device{b.Entropy, b.Latch, b.Compute, b.Fuse}
}
