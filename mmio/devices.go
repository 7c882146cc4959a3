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

// Device class signatures
const (
	SIG_ENTROPY = 0x50554600 // "PUF\0"
	SIG_LATCH   = 0x4f475400 // "OGT\0"
	SIG_COMPUTE = 0x54434300 // "TCC\0"
	SIG_FUSE    = 0x46555300 // "FUS\0"
)

// Entropy/identity source registers
const (
	// challenge salt, 4 words
	ENTROPY_SALT = REG_REQUEST
	// challenge response, 16 words
	ENTROPY_RESPONSE = REG_RESULT
	// pool reseed strobe
	ENTROPY_RESEED = 0x24
	// reseeded pool, 64 words
	ENTROPY_POOL = 0x100

	ENTROPY_SALT_SIZE     = 16
	ENTROPY_RESPONSE_SIZE = 64
	ENTROPY_POOL_SIZE     = 256
)

// Decision latch registers
const (
	LATCH_VALUE = REG_REQUEST
	// committed value read back
	LATCH_COMMITTED = REG_RESULT
)

// Compute core registers
const (
	COMPUTE_LENGTH = REG_REQUEST
	COMPUTE_MODE   = REG_REQUEST + 0x04

	// result length in execute mode, lane checksums in lane check mode
	COMPUTE_RESULT_LENGTH = REG_RESULT
	COMPUTE_LANE0         = REG_RESULT
	COMPUTE_LANE1         = REG_RESULT + 0x04
	COMPUTE_LANE2         = REG_RESULT + 0x08

	COMPUTE_INPUT  = 0x100
	COMPUTE_OUTPUT = 0x500
	// input and output window size
	COMPUTE_WINDOW_SIZE = 0x400

	COMPUTE_MODE_EXECUTE    = 0
	COMPUTE_MODE_LANE_CHECK = 1

	// control register bits
	COMPUTE_CTRL_NOISE  = 0
	COMPUTE_CTRL_POWER  = 1
	COMPUTE_CTRL_TIMING = 2

	// COMPUTE_LANES is the number of hybrid compute lanes.
	COMPUTE_LANES = 3
	// COMPUTE_SCRATCH_WORDS is the number of working registers starting at
	// REG_REQUEST.
	COMPUTE_SCRATCH_WORDS = 64
)

// Fuse mesh registers
const (
	// continuity word, bit n set when fuse n is closed
	FUSE_CONTINUITY = REG_RESULT
	FUSE_COUNT      = 32

	// environmental sensors, signed fixed point
	FUSE_TEMPERATURE = 0x40 // 4 words, milli degrees Celsius
	FUSE_VOLTAGE     = 0x50 // 8 words, millivolts
	FUSE_LIGHT       = 0x70 // 2 words, raw ambient light
	FUSE_VIBRATION   = 0x78 // 4 words, raw accelerometer magnitude

	FUSE_TEMPERATURE_SENSORS = 4
	FUSE_VOLTAGE_SENSORS     = 8
	FUSE_LIGHT_SENSORS       = 2
	FUSE_VIBRATION_SENSORS   = 4
)
