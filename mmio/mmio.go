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

// Package mmio implements typed access to the memory mapped register blocks
// of the ARK trust anchor devices (entropy source, decision latch, compute
// core and fuse mesh).
//
// Every device exposes the same register shape:
//
//	0x00  class signature (read-only)
//	0x04  status, bit 0 completion, bit 31 remote-disable capability
//	0x08  control
//	0x10  request words
//	0x20  start strobe
//	0x30  result words
//
// Native register access is only available with `GOOS=tamago` as supported by
// the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago. On any other target register blocks
// are provided by simulated devices.
package mmio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/usbarmory/tamago/bits"
)

// Register offsets shared by all trust anchor devices.
const (
	REG_SIGNATURE = 0x00
	REG_STATUS    = 0x04
	REG_CONTROL   = 0x08
	REG_REQUEST   = 0x10
	REG_STROBE    = 0x20
	REG_RESULT    = 0x30
)

// Status register bits.
const (
	STATUS_DONE           = 0
	STATUS_REMOTE_DISABLE = 31
)

// DefaultPollLimit is the number of status reads performed before a
// completion wait is abandoned.
const DefaultPollLimit = 1000000

// ErrTimeout is returned when a device does not signal completion within the
// poll limit.
var ErrTimeout = errors.New("hardware timeout")

// Device represents a 32-bit register block.
type Device interface {
	// Read returns the register at the given byte offset.
	Read(off uint32) uint32
	// Write sets the register at the given byte offset.
	Write(off uint32, val uint32)
}

// SignatureError is returned when a device class signature does not match.
type SignatureError struct {
	Want uint32
	Got  uint32
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid device signature %#08x (expected %#08x)", e.Got, e.Want)
}

// Probe verifies the class signature found at offset 0 of a device.
func Probe(dev Device, signature uint32) error {
	if sig := dev.Read(REG_SIGNATURE); sig != signature {
		return &SignatureError{Want: signature, Got: sig}
	}

	return nil
}

// RemoteDisable returns whether a device advertises a remote-disable
// capability in its status register.
func RemoteDisable(dev Device) bool {
	status := dev.Read(REG_STATUS)
	return bits.Get(&status, STATUS_REMOTE_DISABLE, 1) == 1
}

// Start triggers a device operation through the start strobe register.
func Start(dev Device) {
	dev.Write(REG_STROBE, 1)
}

// Poll busy-waits for the device completion bit, reading the status register
// at most limit times.
func Poll(dev Device, limit int) error {
	for i := 0; i < limit; i++ {
		status := dev.Read(REG_STATUS)

		if bits.Get(&status, STATUS_DONE, 1) == 1 {
			return nil
		}
	}

	return ErrTimeout
}

// WriteWords copies buf to consecutive little-endian registers starting at
// off, the last word is zero padded.
func WriteWords(dev Device, off uint32, buf []byte) {
	for i := 0; i < len(buf); i += 4 {
		var word [4]byte
		copy(word[:], buf[i:])
		dev.Write(off+uint32(i), binary.LittleEndian.Uint32(word[:]))
	}
}

// ReadWords fills buf from consecutive little-endian registers starting at
// off.
func ReadWords(dev Device, off uint32, buf []byte) {
	var word [4]byte

	for i := 0; i < len(buf); i += 4 {
		binary.LittleEndian.PutUint32(word[:], dev.Read(off+uint32(i)))
		copy(buf[i:], word[:])
	}
}

// Clear zeroes n consecutive registers starting at off.
func Clear(dev Device, off uint32, n int) {
	for i := 0; i < n; i++ {
		dev.Write(off+uint32(i*4), 0)
	}
}
