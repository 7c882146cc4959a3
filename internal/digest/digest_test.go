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

package digest

import (
	"bytes"
	"strings"
	"testing"
)

func TestSumReaderMatchesSum(t *testing.T) {
	buf := bytes.Repeat([]byte("ark firmware "), 1000)

	got, err := SumReader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("SumReader: %v", err)
	}
	if want := Sum(buf); !Equal(got, want) {
		t.Fatalf("Got %s, want %s", got, want)
	}
}

func TestEqual(t *testing.T) {
	a := Sum([]byte("a"))
	b := a
	b[Size-1] ^= 1

	if !Equal(a, a) {
		t.Error("digest not equal to itself")
	}
	if Equal(a, b) {
		t.Error("single bit difference not detected")
	}
}

func TestParse(t *testing.T) {
	d := Sum([]byte("policy"))

	got, err := Parse(d.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !Equal(got, d) {
		t.Fatalf("Got %s, want %s", got, d)
	}

	for _, s := range []string{"", "zz", strings.Repeat("00", Size-1)} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestIsZero(t *testing.T) {
	var d Digest
	if !d.IsZero() {
		t.Error("zero digest not reported as zero")
	}
	if Sum(nil).IsZero() {
		t.Error("measurement reported as zero")
	}
}
