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
	"crypto/rand"
	"encoding/binary"
	"hash/crc32"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/transparency-dev/armored-rot/mmio"
)

// peekWords reads consecutive registers without counting accesses.
func (r *Registers) peekWords(off uint32, buf []byte) {
	var word [4]byte

	for i := 0; i < len(buf); i += 4 {
		binary.LittleEndian.PutUint32(word[:], r.regs[off+uint32(i)])
		copy(buf[i:], word[:])
	}
}

// pokeWords writes consecutive registers without counting accesses.
func (r *Registers) pokeWords(off uint32, buf []byte) {
	for i := 0; i < len(buf); i += 4 {
		var word [4]byte
		copy(word[:], buf[i:])
		r.regs[off+uint32(i)] = binary.LittleEndian.Uint32(word[:])
	}
}

// Entropy simulates the PUF-style entropy/identity source.
type Entropy struct {
	*Registers

	Clock *Clock

	// ReseedDelay is the simulated duration of a pool reseed.
	ReseedDelay time.Duration
	// Stuck prevents completion from ever being signalled.
	Stuck bool

	// Challenges and Reseeds count hardware round-trips.
	Challenges int
	Reseeds    int

	secret  []byte
	noise   [32]byte
	counter uint64
}

// NewEntropy returns an entropy source whose responses are derived from a
// fixed device secret, the pool is mixed with per-instance noise.
func NewEntropy(clk *Clock) *Entropy {
	e := &Entropy{
		Registers:   NewRegisters(mmio.SIG_ENTROPY),
		Clock:       clk,
		ReseedDelay: time.Microsecond,
		secret:      []byte("simulated physically unclonable"),
	}

	if _, err := rand.Read(e.noise[:]); err != nil {
		panic(err)
	}

	e.OnWrite = e.write

	return e
}

func (e *Entropy) write(off uint32, val uint32) {
	if val == 0 {
		return
	}

	switch off {
	case mmio.REG_STROBE:
		e.Challenges++
		e.Done(false)

		if e.Stuck {
			return
		}

		salt := make([]byte, mmio.ENTROPY_SALT_SIZE)
		e.peekWords(mmio.ENTROPY_SALT, salt)

		res := sha3.Sum512(append(append([]byte{}, e.secret...), salt...))
		e.pokeWords(mmio.ENTROPY_RESPONSE, res[:])

		e.Done(true)
	case mmio.ENTROPY_RESEED:
		e.Reseeds++
		e.Done(false)

		if e.Stuck {
			return
		}

		pool := make([]byte, 0, mmio.ENTROPY_POOL_SIZE)

		for len(pool) < mmio.ENTROPY_POOL_SIZE {
			var ctr [8]byte
			e.counter++
			binary.BigEndian.PutUint64(ctr[:], e.counter)
			block := sha3.Sum256(append(append(append([]byte{}, e.noise[:]...), e.secret...), ctr[:]...))
			pool = append(pool, block[:]...)
		}

		e.pokeWords(mmio.ENTROPY_POOL, pool)

		if e.Clock != nil {
			e.Clock.Advance(e.ReseedDelay)
		}

		e.Done(true)
	}
}

// Latch simulates the timing-bounded decision latch.
type Latch struct {
	*Registers

	Clock *Clock

	// Latency is the simulated commit round-trip.
	Latency time.Duration
	// LatencyFn, when set, overrides Latency for the n-th commit.
	LatencyFn func(n int) time.Duration
	// Stuck prevents completion from ever being signalled.
	Stuck bool

	// Committed records every latched value.
	Committed []uint32
}

// NewLatch returns a decision latch committing within 5ns.
func NewLatch(clk *Clock) *Latch {
	l := &Latch{
		Registers: NewRegisters(mmio.SIG_LATCH),
		Clock:     clk,
		Latency:   5 * time.Nanosecond,
	}

	l.OnWrite = l.write

	return l
}

func (l *Latch) write(off uint32, val uint32) {
	if off != mmio.REG_STROBE || val == 0 {
		return
	}

	l.Done(false)

	if l.Stuck {
		return
	}

	v := l.Peek(mmio.LATCH_VALUE)
	n := len(l.Committed)
	l.Committed = append(l.Committed, v)
	l.Poke(mmio.LATCH_COMMITTED, v)

	latency := l.Latency

	if l.LatencyFn != nil {
		latency = l.LatencyFn(n)
	}

	if l.Clock != nil {
		l.Clock.Advance(latency)
	}

	l.Done(true)
}

// Compute simulates the hybrid compute core, execution echoes its input
// unless Transform is set.
type Compute struct {
	*Registers

	// Transform, when set, computes execution results.
	Transform func([]byte) []byte
	// DivergentLane, when non-zero, makes the given 1-based lane disagree
	// during lane checks.
	DivergentLane int
	// Stuck prevents completion from ever being signalled.
	Stuck bool

	Executions int
	LaneChecks int
}

// NewCompute returns a healthy compute core.
func NewCompute() *Compute {
	c := &Compute{
		Registers: NewRegisters(mmio.SIG_COMPUTE),
	}

	c.OnWrite = c.write

	return c
}

func (c *Compute) write(off uint32, val uint32) {
	if off != mmio.REG_STROBE || val == 0 {
		return
	}

	c.Done(false)

	if c.Stuck {
		return
	}

	n := c.Peek(mmio.COMPUTE_LENGTH)

	if n > mmio.COMPUTE_WINDOW_SIZE {
		n = mmio.COMPUTE_WINDOW_SIZE
	}

	in := make([]byte, n)
	c.peekWords(mmio.COMPUTE_INPUT, in)

	switch c.Peek(mmio.COMPUTE_MODE) {
	case mmio.COMPUTE_MODE_LANE_CHECK:
		c.LaneChecks++
		sum := crc32.ChecksumIEEE(in)
		lanes := [mmio.COMPUTE_LANES]uint32{sum, sum, sum}

		if c.DivergentLane > 0 && c.DivergentLane <= mmio.COMPUTE_LANES {
			lanes[c.DivergentLane-1] ^= 1
		}

		c.Poke(mmio.COMPUTE_LANE0, lanes[0])
		c.Poke(mmio.COMPUTE_LANE1, lanes[1])
		c.Poke(mmio.COMPUTE_LANE2, lanes[2])
	default:
		c.Executions++
		out := in

		if c.Transform != nil {
			out = c.Transform(in)
		}

		if len(out) > mmio.COMPUTE_WINDOW_SIZE {
			out = out[:mmio.COMPUTE_WINDOW_SIZE]
		}

		c.pokeWords(mmio.COMPUTE_OUTPUT, out)
		c.Poke(mmio.COMPUTE_RESULT_LENGTH, uint32(len(out)))
	}

	c.Done(true)
}

// Environment holds raw tamper sensor values in device units.
type Environment struct {
	Temperature [mmio.FUSE_TEMPERATURE_SENSORS]int32 // milli degrees Celsius
	Voltage     [mmio.FUSE_VOLTAGE_SENSORS]int32     // millivolts
	Light       [mmio.FUSE_LIGHT_SENSORS]int32
	Vibration   [mmio.FUSE_VIBRATION_SENSORS]int32
}

// NominalEnvironment returns readings of a closed unit at room temperature on
// a 3.3V rail.
func NominalEnvironment() (env Environment) {
	for i := range env.Temperature {
		env.Temperature[i] = 25000
	}

	for i := range env.Voltage {
		env.Voltage[i] = 3300
	}

	for i := range env.Light {
		env.Light[i] = 50
	}

	for i := range env.Vibration {
		env.Vibration[i] = 10
	}

	return
}

// FuseMesh simulates the anti-tamper fuse mesh and its sensors.
type FuseMesh struct {
	*Registers

	// Blown lists open fuses.
	Blown []int
	// Env holds the sensor readings latched by the next measurement.
	Env Environment
	// Stuck prevents completion from ever being signalled.
	Stuck bool

	Measurements int
}

// NewFuseMesh returns an intact fuse mesh in a nominal environment.
func NewFuseMesh() *FuseMesh {
	f := &FuseMesh{
		Registers: NewRegisters(mmio.SIG_FUSE),
		Env:       NominalEnvironment(),
	}

	f.OnWrite = f.write

	return f
}

func (f *FuseMesh) write(off uint32, val uint32) {
	if off != mmio.REG_STROBE || val == 0 {
		return
	}

	f.Measurements++
	f.Done(false)

	if f.Stuck {
		return
	}

	continuity := ^uint32(0)

	for _, n := range f.Blown {
		continuity &^= 1 << uint(n)
	}

	f.Poke(mmio.FUSE_CONTINUITY, continuity)

	pokeSigned := func(off uint32, vals []int32) {
		for i, v := range vals {
			f.Poke(off+uint32(i*4), uint32(v))
		}
	}

	pokeSigned(mmio.FUSE_TEMPERATURE, f.Env.Temperature[:])
	pokeSigned(mmio.FUSE_VOLTAGE, f.Env.Voltage[:])
	pokeSigned(mmio.FUSE_LIGHT, f.Env.Light[:])
	pokeSigned(mmio.FUSE_VIBRATION, f.Env.Vibration[:])

	f.Done(true)
}
