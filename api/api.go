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

// Package api defines the messages reported by the root of trust to the
// layers above it: the heartbeat frame, the only message available in safe
// mode, and the full status report.
//
// Messages are encoded in the protocol buffer wire format so that host
// tooling can decode them with any protobuf implementation.
package api

import (
	"bytes"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Heartbeat represents the coarse liveness frame.
type Heartbeat struct {
	// State is the numeric orchestrator state.
	State uint32
	// Sequence increases by one on every frame.
	Sequence uint64
	// Timestamp is the monotonic time of the frame in nanoseconds.
	Timestamp int64
}

// Bytes serializes a heartbeat frame.
func (h *Heartbeat) Bytes() (buf []byte) {
	buf = appendVarint(buf, 1, uint64(h.State))
	buf = appendVarint(buf, 2, h.Sequence)
	buf = appendVarint(buf, 3, uint64(h.Timestamp))
	return
}

// Unmarshal decodes a heartbeat frame, unknown fields are skipped.
func (h *Heartbeat) Unmarshal(buf []byte) error {
	*h = Heartbeat{}

	return walk(buf, func(num protowire.Number, v uint64, _ []byte) {
		switch num {
		case 1:
			h.State = uint32(v)
		case 2:
			h.Sequence = v
		case 3:
			h.Timestamp = int64(v)
		}
	})
}

// Status represents the root of trust status report.
type Status struct {
	Revision string
	Build    string
	Version  string

	// State is the orchestrator state name.
	State string
	// BootTimestamp is the monotonic time at which boot started.
	BootTimestamp int64
	// Fault describes the error behind a degraded or terminal state.
	Fault string

	// Decision is the last committed latch decision, zero if none.
	Decision        uint32
	LatchCommits    uint32
	LatchViolations uint32
	LatchMaxLatency time.Duration

	KillSwitchViolations uint32
	TamperViolations     uint32

	// SoCProtection describes the SoC level tamper monitors, empty if
	// disabled.
	SoCProtection string
}

// Bytes serializes a status report.
func (s *Status) Bytes() (buf []byte) {
	buf = appendString(buf, 1, s.Revision)
	buf = appendString(buf, 2, s.Build)
	buf = appendString(buf, 3, s.Version)
	buf = appendString(buf, 4, s.State)
	buf = appendVarint(buf, 5, uint64(s.BootTimestamp))
	buf = appendString(buf, 6, s.Fault)
	buf = appendVarint(buf, 7, uint64(s.Decision))
	buf = appendVarint(buf, 8, uint64(s.LatchCommits))
	buf = appendVarint(buf, 9, uint64(s.LatchViolations))
	buf = appendVarint(buf, 10, uint64(s.LatchMaxLatency))
	buf = appendVarint(buf, 11, uint64(s.KillSwitchViolations))
	buf = appendVarint(buf, 12, uint64(s.TamperViolations))
	buf = appendString(buf, 13, s.SoCProtection)
	return
}

// Unmarshal decodes a status report, unknown fields are skipped.
func (s *Status) Unmarshal(buf []byte) error {
	*s = Status{}

	return walk(buf, func(num protowire.Number, v uint64, b []byte) {
		switch num {
		case 1:
			s.Revision = string(b)
		case 2:
			s.Build = string(b)
		case 3:
			s.Version = string(b)
		case 4:
			s.State = string(b)
		case 5:
			s.BootTimestamp = int64(v)
		case 6:
			s.Fault = string(b)
		case 7:
			s.Decision = uint32(v)
		case 8:
			s.LatchCommits = uint32(v)
		case 9:
			s.LatchViolations = uint32(v)
		case 10:
			s.LatchMaxLatency = time.Duration(v)
		case 11:
			s.KillSwitchViolations = uint32(v)
		case 12:
			s.TamperViolations = uint32(v)
		case 13:
			s.SoCProtection = string(b)
		}
	})
}

// Print returns the status in textual format.
func (s *Status) Print() string {
	var status bytes.Buffer

	fault := s.Fault

	if fault == "" {
		fault = "none"
	}

	soc := s.SoCProtection

	if soc == "" {
		soc = "disabled"
	}

	status.WriteString("------------------------------------------------------ Armored RoT ----\n")
	status.WriteString(fmt.Sprintf("Revision ...............: %s\n", s.Revision))
	status.WriteString(fmt.Sprintf("Build ..................: %s\n", s.Build))
	status.WriteString(fmt.Sprintf("Version ................: %s\n", s.Version))
	status.WriteString(fmt.Sprintf("State ..................: %s\n", s.State))
	status.WriteString(fmt.Sprintf("Fault ..................: %s\n", fault))
	status.WriteString(fmt.Sprintf("SoC protection .........: %s\n", soc))
	status.WriteString(fmt.Sprintf("Decision latch .........: %s (%d commits, %d late, max %v)\n",
		decisionName(s.Decision), s.LatchCommits, s.LatchViolations, s.LatchMaxLatency))
	status.WriteString(fmt.Sprintf("Violations .............: %d kill-switch, %d tamper", s.KillSwitchViolations, s.TamperViolations))

	return status.String()
}

func decisionName(d uint32) string {
	switch d {
	case 0:
		return "none"
	case 1:
		return "ALLOW"
	case 2:
		return "DENY"
	case 3:
		return "PURGE"
	default:
		return fmt.Sprintf("invalid (%d)", d)
	}
}

func appendVarint(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}

	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendString(buf []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return buf
	}

	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendString(buf, s)
}

// walk calls fn for every varint and length-delimited field of buf, other
// wire types are skipped.
func walk(buf []byte, fn func(num protowire.Number, v uint64, b []byte)) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)

		if n < 0 {
			return fmt.Errorf("invalid tag, %v", protowire.ParseError(n))
		}

		buf = buf[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(buf)

			if m < 0 {
				return fmt.Errorf("invalid field %d, %v", num, protowire.ParseError(m))
			}

			fn(num, v, nil)
			n = m
		case protowire.BytesType:
			b, m := protowire.ConsumeBytes(buf)

			if m < 0 {
				return fmt.Errorf("invalid field %d, %v", num, protowire.ParseError(m))
			}

			fn(num, 0, b)
			n = m
		default:
			if n = protowire.ConsumeFieldValue(num, typ, buf); n < 0 {
				return fmt.Errorf("invalid field %d, %v", num, protowire.ParseError(n))
			}
		}

		buf = buf[n:]
	}

	return nil
}
