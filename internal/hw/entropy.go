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
	"crypto/subtle"
	"fmt"

	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/mmio"
)

const (
	// SaltSize is the length of a challenge salt.
	SaltSize = mmio.ENTROPY_SALT_SIZE
	// ResponseSize is the length of a challenge response.
	ResponseSize = mmio.ENTROPY_RESPONSE_SIZE
	// PoolSize is the length of the rotating entropy pool.
	PoolSize = mmio.ENTROPY_POOL_SIZE

	entropyDrawSize = 64
)

type challenge struct {
	salt [SaltSize]byte
	res  [ResponseSize]byte
}

// EntropySource represents the PUF-style entropy and identity source.
type EntropySource struct {
	dev mmio.Device
	clk Clock
	cfg Config

	pool [PoolSize]byte
	// number of unserved bytes at the start of pool
	avail int

	last *challenge
}

// OpenEntropySource verifies the device signature and seeds the entropy pool.
func OpenEntropySource(dev mmio.Device, clk Clock, cfg Config) (e *EntropySource, err error) {
	if err = probe(dev, mmio.SIG_ENTROPY, "entropy source"); err != nil {
		return
	}

	e = &EntropySource{
		dev: dev,
		clk: clk,
		cfg: cfg,
	}

	if err = e.reseed(); err != nil {
		return nil, fault.New(fault.HardwareTestFailed, fmt.Errorf("entropy pool seeding: %w", err))
	}

	return
}

// Challenge returns the device response for a salt. The last salt/response
// pair is cached, a repeated salt is served without hardware access.
func (e *EntropySource) Challenge(salt [SaltSize]byte) (res [ResponseSize]byte, err error) {
	if e.last != nil && subtle.ConstantTimeCompare(e.last.salt[:], salt[:]) == 1 {
		return e.last.res, nil
	}

	mmio.WriteWords(e.dev, mmio.ENTROPY_SALT, salt[:])
	mmio.Start(e.dev)

	if err = mmio.Poll(e.dev, e.cfg.PollLimit); err != nil {
		return
	}

	mmio.ReadWords(e.dev, mmio.ENTROPY_RESPONSE, res[:])

	e.last = &challenge{
		salt: salt,
		res:  res,
	}

	return
}

// Entropy fills buf from the pool, reseeding it from hardware when not
// enough unserved bytes are left. Served bytes are wiped and the pool is
// rotated after every call.
func (e *EntropySource) Entropy(buf []byte) (err error) {
	n := len(buf)

	if n > PoolSize {
		return fmt.Errorf("%d bytes requested from %d byte pool: %w", n, PoolSize, fault.ErrInsufficientEntropy)
	}

	if n > e.avail {
		if err = e.reseed(); err != nil {
			return
		}
	}

	copy(buf, e.pool[:n])
	clear(e.pool[:n])
	e.rotate(n)
	e.avail -= n

	return
}

// EntropyTest measures sustained throughput over Config.EntropyDraws draws,
// failing when it falls below Config.EntropyFloor.
func (e *EntropySource) EntropyTest() error {
	var buf [entropyDrawSize]byte
	defer clear(buf[:])

	start := e.clk.Nanotime()

	for i := 0; i < e.cfg.EntropyDraws; i++ {
		if err := e.Entropy(buf[:]); err != nil {
			return fault.New(fault.HardwareTestFailed, fmt.Errorf("entropy draw %d: %w", i, err))
		}
	}

	elapsed := e.clk.Nanotime() - start

	if elapsed <= 0 {
		return fault.Newf(fault.HardwareTestFailed, "entropy timer did not advance")
	}

	bits := uint64(e.cfg.EntropyDraws) * entropyDrawSize * 8
	rate := Throughput(bits, elapsed)

	klog.V(1).Infof("entropy throughput %d bit/s (floor %d bit/s)", rate, e.cfg.EntropyFloor)

	if rate < e.cfg.EntropyFloor {
		return fault.Newf(fault.HardwareTestFailed, "entropy throughput %d bit/s below %d bit/s floor: %w", rate, e.cfg.EntropyFloor, fault.ErrInsufficientEntropy)
	}

	return nil
}

// Throughput converts a number of bits produced in elapsed nanoseconds to
// bits per second, rounding down.
func Throughput(bits uint64, elapsed int64) uint64 {
	if elapsed <= 0 {
		return 0
	}

	return bits * 1e9 / uint64(elapsed)
}

// Zeroize wipes the pool, the cached challenge and the device scratch
// registers.
func (e *EntropySource) Zeroize() {
	clear(e.pool[:])
	e.avail = 0

	if e.last != nil {
		clear(e.last.salt[:])
		clear(e.last.res[:])
		e.last = nil
	}

	mmio.Clear(e.dev, mmio.ENTROPY_SALT, SaltSize/4)
	mmio.Clear(e.dev, mmio.ENTROPY_RESPONSE, ResponseSize/4)
	mmio.Clear(e.dev, mmio.ENTROPY_POOL, PoolSize/4)
}

func (e *EntropySource) reseed() (err error) {
	e.dev.Write(mmio.ENTROPY_RESEED, 1)

	if err = mmio.Poll(e.dev, e.cfg.PollLimit); err != nil {
		return
	}

	mmio.ReadWords(e.dev, mmio.ENTROPY_POOL, e.pool[:])
	e.avail = PoolSize

	klog.V(2).Info("entropy pool reseeded")

	return
}

// rotate moves the pool left by n bytes.
func (e *EntropySource) rotate(n int) {
	var tmp [PoolSize]byte

	copy(tmp[:], e.pool[n:])
	copy(tmp[PoolSize-n:], e.pool[:n])
	e.pool = tmp
	clear(tmp[:])
}
