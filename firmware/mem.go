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
	_ "unsafe"

	"github.com/usbarmory/tamago/dma"
)

// The runtime owns the start of external RAM, DMA buffers follow it.
const (
	runtimeStart = 0x80000000
	runtimeSize  = 224 << 20

	dmaStart = runtimeStart + runtimeSize
	dmaSize  = 32 << 20
)

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = runtimeStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = runtimeSize

func init() {
	dma.Init(dmaStart, dmaSize)
}
