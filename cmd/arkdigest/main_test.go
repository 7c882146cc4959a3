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

package main

import (
	"bytes"
	"testing"
	"testing/iotest"

	"github.com/transparency-dev/armored-rot/internal/digest"
	"github.com/transparency-dev/armored-rot/internal/hw/simhw"
	"github.com/transparency-dev/armored-rot/mmio"
)

func TestMeasureImage(t *testing.T) {
	for _, test := range []struct {
		name    string
		image   []byte
		size    int64
		wantErr bool
	}{
		{
			name:  "empty",
			image: []byte{},
		}, {
			name:  "small",
			image: []byte("release image"),
		}, {
			name:  "full ROM",
			image: bytes.Repeat([]byte{0x5a}, mmio.ROM_SIZE),
		}, {
			name:    "too large",
			image:   make([]byte, mmio.ROM_SIZE+1),
			wantErr: true,
		}, {
			name:    "short read",
			image:   []byte("truncated"),
			size:    64,
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			size := test.size
			if size == 0 {
				size = int64(len(test.image))
			}

			got, err := measureImage(iotest.HalfReader(bytes.NewReader(test.image)), size)

			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("measureImage: %v, wantErr %t", err, test.wantErr)
			}

			if test.wantErr {
				return
			}

			// the boot verifier measures the whole ROM region of a board
			// loaded with the image
			b := simhw.NewBoard(test.image)

			if want := digest.Sum(b.ROM); got != want {
				t.Fatalf("got %s, want %s", got, want)
			}
		})
	}
}
