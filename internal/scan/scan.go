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

// Package scan implements streaming byte pattern search over memory regions.
//
// Fixed pattern scanning is trivially defeated by obfuscation, it only
// catches unobfuscated markers and is one check among several.
package scan

import (
	"bytes"
	"errors"
	"io"
)

// ChunkSize is the number of bytes read per step.
const ChunkSize = 4096

// Match represents the first pattern occurrence found in a stream.
type Match struct {
	Pattern string
	// Offset is relative to the start of the stream.
	Offset int64
}

// Find reads r to the end, or to the first match, looking for any of the
// given patterns. Occurrences spanning chunk boundaries are found.
func Find(r io.Reader, patterns []string) (m *Match, err error) {
	var pats [][]byte
	keep := 0

	for _, p := range patterns {
		if len(p) == 0 {
			continue
		}

		pats = append(pats, []byte(p))

		if len(p)-1 > keep {
			keep = len(p) - 1
		}
	}

	if len(pats) == 0 {
		return nil, errors.New("no patterns")
	}

	buf := make([]byte, keep+ChunkSize)
	n := 0
	// stream offset of buf[0]
	var base int64

	for {
		read, rerr := io.ReadFull(r, buf[n:])
		n += read

		if m = first(buf[:n], pats); m != nil {
			m.Offset += base
			return
		}

		switch {
		case rerr == io.EOF || rerr == io.ErrUnexpectedEOF:
			return nil, nil
		case rerr != nil:
			return nil, rerr
		}

		// retain a tail shorter than the longest pattern
		copy(buf, buf[n-keep:n])
		base += int64(n - keep)
		n = keep
	}
}

func first(buf []byte, pats [][]byte) (m *Match) {
	for _, p := range pats {
		i := bytes.Index(buf, p)

		if i < 0 {
			continue
		}

		if m == nil || int64(i) < m.Offset {
			m = &Match{Pattern: string(p), Offset: int64(i)}
		}
	}

	return
}
