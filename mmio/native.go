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

package mmio

import (
	"io"
	"sync/atomic"
	"unsafe"
)

// Block represents a register block mapped at a fixed physical address.
type Block struct {
	Base uint32
}

func (b *Block) addr(off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(b.Base + off)))
}

// Read returns the register at the given byte offset.
func (b *Block) Read(off uint32) uint32 {
	return atomic.LoadUint32(b.addr(off))
}

// Write sets the register at the given byte offset.
func (b *Block) Write(off uint32, val uint32) {
	atomic.StoreUint32(b.addr(off), val)
}

// Memory provides read access to a physical memory range
// [Start, Start+Size).
type Memory struct {
	Start uint32
	Size  uint32
}

// ReadAt implements io.ReaderAt over physical addresses.
func (m *Memory) ReadAt(p []byte, off int64) (n int, err error) {
	if off < int64(m.Start) || off >= int64(m.Start)+int64(m.Size) {
		return 0, io.EOF
	}

	end := int64(m.Start) + int64(m.Size)
	l := int64(len(p))

	if off+l > end {
		l = end - off
		err = io.EOF
	}

	mem := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(off))), l)
	n = copy(p, mem)

	return
}
