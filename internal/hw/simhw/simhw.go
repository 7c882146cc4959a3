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

// Package simhw provides simulated trust anchor devices, memory and CPU for
// host builds of the boot chain: tests and the arksim tool.
package simhw

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/usbarmory/tamago/bits"

	"github.com/transparency-dev/armored-rot/mmio"
)

// Registers is a simulated 32-bit register block.
type Registers struct {
	regs map[uint32]uint32

	// OnWrite is called just after a register has been written.
	OnWrite func(off uint32, val uint32)

	// Reads and Writes count register accesses.
	Reads  int
	Writes int
}

// NewRegisters creates a register block carrying the given class signature.
func NewRegisters(signature uint32) *Registers {
	return &Registers{
		regs: map[uint32]uint32{
			mmio.REG_SIGNATURE: signature,
		},
	}
}

// Read returns the register at the given byte offset.
func (r *Registers) Read(off uint32) uint32 {
	r.Reads++
	return r.regs[off]
}

// Write sets the register at the given byte offset, the signature register
// is read-only.
func (r *Registers) Write(off uint32, val uint32) {
	r.Writes++

	if off == mmio.REG_SIGNATURE {
		return
	}

	r.regs[off] = val

	if r.OnWrite != nil {
		r.OnWrite(off, val)
	}
}

// Peek returns a register without counting the access.
func (r *Registers) Peek(off uint32) uint32 {
	return r.regs[off]
}

// Poke sets a register without counting the access or invoking OnWrite.
func (r *Registers) Poke(off uint32, val uint32) {
	r.regs[off] = val
}

// Done sets or clears the status completion bit.
func (r *Registers) Done(done bool) {
	status := r.regs[mmio.REG_STATUS]

	if done {
		bits.Set(&status, mmio.STATUS_DONE)
	} else {
		bits.Clear(&status, mmio.STATUS_DONE)
	}

	r.regs[mmio.REG_STATUS] = status
}

// SetRemoteDisable sets or clears the remote-disable capability bit.
func (r *Registers) SetRemoteDisable(on bool) {
	status := r.regs[mmio.REG_STATUS]

	if on {
		bits.Set(&status, mmio.STATUS_REMOTE_DISABLE)
	} else {
		bits.Clear(&status, mmio.STATUS_REMOTE_DISABLE)
	}

	r.regs[mmio.REG_STATUS] = status
}

// NonZero returns the offsets of all non-zero registers other than the
// signature and status, in ascending order.
func (r *Registers) NonZero() (offs []uint32) {
	for off, val := range r.regs {
		if off == mmio.REG_SIGNATURE || off == mmio.REG_STATUS || val == 0 {
			continue
		}

		offs = append(offs, off)
	}

	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })

	return
}

// Clock is a simulated monotonic timer, each reading advances it by Step.
type Clock struct {
	now  int64
	Step time.Duration
}

// Nanotime returns the current simulated time in nanoseconds.
func (c *Clock) Nanotime() int64 {
	c.now += int64(c.Step)
	return c.now
}

// Advance moves the clock forward, devices use it to model latency.
func (c *Clock) Advance(d time.Duration) {
	c.now += int64(d)
}

// Memory is a simulated physical address space made of mapped buffers.
type Memory struct {
	regions []mapping
}

type mapping struct {
	base uint32
	buf  []byte
}

// Map makes buf readable at physical address base, the buffer is not copied.
func (m *Memory) Map(base uint32, buf []byte) {
	m.regions = append(m.regions, mapping{base: base, buf: buf})
}

func (m *Memory) find(addr int64) (*mapping, int64) {
	for i := range m.regions {
		r := &m.regions[i]

		if addr >= int64(r.base) && addr < int64(r.base)+int64(len(r.buf)) {
			return r, addr - int64(r.base)
		}
	}

	return nil, 0
}

// ReadAt implements io.ReaderAt over simulated physical addresses.
func (m *Memory) ReadAt(p []byte, off int64) (n int, err error) {
	r, i := m.find(off)

	if r == nil {
		return 0, fmt.Errorf("unmapped address %#x", off)
	}

	n = copy(p, r.buf[i:])

	if n < len(p) {
		err = io.EOF
	}

	return
}

// Poke overwrites memory at a physical address.
func (m *Memory) Poke(addr uint32, b []byte) error {
	r, i := m.find(int64(addr))

	if r == nil || int(i)+len(b) > len(r.buf) {
		return fmt.Errorf("unmapped address %#x", addr)
	}

	copy(r.buf[i:], b)

	return nil
}

// CPU is a simulated processor recording interrupt masking and halts.
type CPU struct {
	// Events records "disable_interrupts" and "halt" in call order.
	Events []string

	// OnHalt is called when the processor is parked.
	OnHalt func()
}

// DisableInterrupts masks all interrupts.
func (c *CPU) DisableInterrupts() {
	c.Events = append(c.Events, "disable_interrupts")
}

// Halt parks the processor, the simulation returns immediately.
func (c *CPU) Halt() {
	c.Events = append(c.Events, "halt")

	if c.OnHalt != nil {
		c.OnHalt()
	}
}

// Halted returns whether the processor has been parked.
func (c *CPU) Halted() bool {
	for _, e := range c.Events {
		if e == "halt" {
			return true
		}
	}

	return false
}

// Connections simulates the external link monitor.
type Connections struct {
	Unauthorized int
	Err          error
}

// UnauthorizedConnections returns the number of unauthorized links.
func (c *Connections) UnauthorizedConnections() (int, error) {
	return c.Unauthorized, c.Err
}
