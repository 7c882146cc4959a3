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

package boot

import (
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/transparency-dev/armored-rot/internal/hw"
)

const (
	seedInfo = "ARK boot entropy seed"
	seedSize = 32
)

// SecureBootContext holds the boot window milestones and secrets, it is
// wiped when the boot window ends.
type SecureBootContext struct {
	CryptoVerified     bool
	HardwareAvailable  bool
	FoundationVerified bool
	BootTimestamp      int64

	entropySeed [seedSize]byte
	seeded      bool
}

// MarkCryptoVerified records firmware integrity.
func (c *SecureBootContext) MarkCryptoVerified() {
	c.CryptoVerified = true
}

// MarkHardwareAvailable records trust anchor driver initialization.
func (c *SecureBootContext) MarkHardwareAvailable() {
	c.HardwareAvailable = true
}

// MarkFoundationVerified records policy corpus integrity.
func (c *SecureBootContext) MarkFoundationVerified() {
	c.FoundationVerified = true
}

// Complete returns whether every boot milestone has been reached.
func (c *SecureBootContext) Complete() bool {
	return c.CryptoVerified && c.HardwareAvailable && c.FoundationVerified
}

// Seeded returns whether the boot entropy seed has been derived.
func (c *SecureBootContext) Seeded() bool {
	return c.seeded
}

// Seed derives the boot entropy seed from the entropy pool, salted with the
// boot timestamp.
func (c *SecureBootContext) Seed(e *hw.EntropySource) (err error) {
	var ikm [seedSize]byte
	defer clear(ikm[:])

	if err = e.Entropy(ikm[:]); err != nil {
		return
	}

	var salt [8]byte
	binary.LittleEndian.PutUint64(salt[:], uint64(c.BootTimestamp))

	r := hkdf.New(sha3.New256, ikm[:], salt[:], []byte(seedInfo))

	if _, err = io.ReadFull(r, c.entropySeed[:]); err != nil {
		return
	}

	c.seeded = true

	return
}

// Zeroize wipes every field.
func (c *SecureBootContext) Zeroize() {
	clear(c.entropySeed[:])
	*c = SecureBootContext{}
}
