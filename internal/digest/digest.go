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

// Package digest provides the measurement primitive shared by the firmware
// and policy checks: SHA3-256 with constant-time comparison.
package digest

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

// Size is the length of a digest in bytes.
const Size = 32

// Digest represents a measurement.
type Digest [Size]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero returns whether no measurement has been recorded.
func (d Digest) IsZero() bool {
	var zero Digest
	return subtle.ConstantTimeCompare(d[:], zero[:]) == 1
}

// Parse decodes a hex encoded digest.
func Parse(s string) (d Digest, err error) {
	b, err := hex.DecodeString(s)

	if err != nil {
		return
	}

	if len(b) != Size {
		return d, fmt.Errorf("invalid digest length %d", len(b))
	}

	copy(d[:], b)

	return
}

// Sum measures buf.
func Sum(buf []byte) Digest {
	return sha3.Sum256(buf)
}

// SumReader measures everything read from r.
func SumReader(r io.Reader) (d Digest, err error) {
	h := sha3.New256()

	if _, err = io.Copy(h, r); err != nil {
		return
	}

	copy(d[:], h.Sum(nil))

	return
}

// Equal compares two digests in constant time.
func Equal(a, b Digest) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
