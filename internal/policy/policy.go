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

// Package policy embeds the foundational-policy corpus measured at boot.
package policy

import (
	_ "embed"

	"github.com/transparency-dev/armored-rot/internal/digest"
)

// Corpus is the foundational-policy corpus as built into the firmware image.
//
//go:embed foundation.txt
var Corpus []byte

// Sum returns the measurement of the embedded corpus.
func Sum() digest.Digest {
	return digest.Sum(Corpus)
}
