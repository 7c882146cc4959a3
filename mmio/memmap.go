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

package mmio

import (
	"fmt"
)

// ARK physical memory map
const (
	ENTROPY_BASE = 0x10000000
	LATCH_BASE   = 0x10010000
	COMPUTE_BASE = 0x10020000
	FUSE_BASE    = 0x10030000
	// TRNG_BASE is reserved, reseeding is served by the entropy source.
	TRNG_BASE = 0x10040000

	ROM_BASE = 0x20000000
	ROM_SIZE = 0x00100000 // 1MB

	SECURE_RAM_BASE = 0x30000000
	// key storage page at the start of secure RAM
	SECURE_RAM_KEY_SIZE = 0x1000

	// 64-bit stack canary placed by the boot ROM
	SECURE_RAM_CANARY = SECURE_RAM_BASE
	// heap integrity marker words
	SECURE_RAM_MARKERS = SECURE_RAM_BASE + 0x10

	// PageSize is the required alignment of every base address.
	PageSize = 0x1000
)

// Bases lists every fixed base address by name.
var Bases = map[string]uint32{
	"entropy":    ENTROPY_BASE,
	"latch":      LATCH_BASE,
	"compute":    COMPUTE_BASE,
	"fuse":       FUSE_BASE,
	"trng":       TRNG_BASE,
	"rom":        ROM_BASE,
	"secure_ram": SECURE_RAM_BASE,
}

// CheckAlignment verifies that every entry of a memory map is page aligned.
func CheckAlignment(bases map[string]uint32) error {
	for name, base := range bases {
		if base%PageSize != 0 {
			return fmt.Errorf("%s base %#08x is not %#x aligned", name, base, PageSize)
		}
	}

	return nil
}
