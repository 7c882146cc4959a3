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

// Package verify implements the boot verifier, the first code establishing
// trust in the firmware image, the policy corpus and the trust anchor
// hardware.
//
// Phases run in a fixed order, each exactly once, and verification stops at
// the first failure. Any error returned by Execute is a *fault.BootError
// whose Kind identifies the failed phase.
package verify

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/internal/digest"
	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/internal/hw"
	"github.com/transparency-dev/armored-rot/internal/manifest"
	"github.com/transparency-dev/armored-rot/internal/policy"
	"github.com/transparency-dev/armored-rot/internal/scan"
	"github.com/transparency-dev/armored-rot/mmio"
)

// StackCanary is the value placed by the boot ROM at the start of secure
// RAM.
const StackCanary uint64 = 0xdeadbeefcafebabe

// HeapMarkers are the integrity words placed by the boot ROM at
// mmio.SECURE_RAM_MARKERS.
var HeapMarkers = []uint32{
	0xa5a5a5a5,
	0x5a5a5a5a,
	0xc3c3c3c3,
	0x3c3c3c3c,
}

// KillPatterns lists byte patterns indicating a remote-disable mechanism in
// the firmware image.
var KillPatterns = []string{
	"kill",
	"shutdown",
	"disable",
	"remote_stop",
	"emergency_halt",
	"backdoor",
}

// Phase identifies a verification step.
type Phase int

const (
	MemoryIntegrity Phase = iota + 1
	CryptoIntegrity
	KillSwitchAbsence
	PolicyIntegrity
	HardwarePresence
)

var phaseNames = map[Phase]string{
	MemoryIntegrity:   "memory integrity",
	CryptoIntegrity:   "cryptographic integrity",
	KillSwitchAbsence: "kill-switch absence",
	PolicyIntegrity:   "policy foundation integrity",
	HardwarePresence:  "hardware presence",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}

	return fmt.Sprintf("phase %d", int(p))
}

// Region represents a physical memory range.
type Region struct {
	Base uint32
	Size int64
}

// Devices holds the trust anchor register blocks.
type Devices struct {
	Entropy mmio.Device
	Latch   mmio.Device
	Compute mmio.Device
	Fuse    mmio.Device
}

func (d Devices) all() []mmio.Device {
	return []mmio.Device{d.Entropy, d.Latch, d.Compute, d.Fuse}
}

// Verifier represents the boot verifier.
type Verifier struct {
	// Memory is the physical address space.
	Memory io.ReaderAt
	// Code is the immutable code region, measured and scanned.
	Code Region
	// Devices are probed for kill-switch capability and presence.
	Devices Devices
	// Reference holds the build time reference digests.
	Reference *manifest.Reference
	// Policy is the foundational-policy corpus.
	Policy []byte

	// last phase started
	phase    Phase
	executed bool
}

// New returns a verifier measuring the boot ROM and the embedded policy
// corpus.
func New(mem io.ReaderAt, devices Devices, ref *manifest.Reference) *Verifier {
	return &Verifier{
		Memory: mem,
		Code: Region{
			Base: mmio.ROM_BASE,
			Size: mmio.ROM_SIZE,
		},
		Devices:   devices,
		Reference: ref,
		Policy:    policy.Corpus,
	}
}

// Phase returns the last phase started by Execute, zero if none.
func (v *Verifier) Phase() Phase {
	return v.phase
}

// Execute runs all verification phases in order.
func (v *Verifier) Execute() (err error) {
	if v.executed {
		return errors.New("verification already executed")
	}

	v.executed = true

	if v.Reference == nil {
		return fault.Newf(fault.CryptoVerificationFailed, "no reference digests")
	}

	for _, p := range []struct {
		phase Phase
		run   func() error
	}{
		{MemoryIntegrity, v.checkMemory},
		{CryptoIntegrity, v.checkFirmware},
		{KillSwitchAbsence, v.checkKillSwitch},
		{PolicyIntegrity, v.checkPolicy},
		{HardwarePresence, v.checkHardware},
	} {
		v.phase = p.phase

		klog.Infof("BV %d/5 %s", p.phase, p.phase)

		if err = p.run(); err != nil {
			klog.Errorf("BV %s failed, %v", p.phase, err)
			return
		}
	}

	klog.Info("BV verification complete")

	return
}

func (v *Verifier) code() *io.SectionReader {
	return io.NewSectionReader(v.Memory, int64(v.Code.Base), v.Code.Size)
}

func (v *Verifier) checkMemory() error {
	var canary, want [8]byte

	binary.LittleEndian.PutUint64(want[:], StackCanary)

	if _, err := v.Memory.ReadAt(canary[:], mmio.SECURE_RAM_CANARY); err != nil {
		return fault.Newf(fault.MemoryCorruption, "stack canary unreadable, %v", err)
	}

	if subtle.ConstantTimeCompare(canary[:], want[:]) != 1 {
		return fault.Newf(fault.MemoryCorruption, "stack canary %#016x", binary.LittleEndian.Uint64(canary[:]))
	}

	var marker [4]byte

	for i, m := range HeapMarkers {
		addr := int64(mmio.SECURE_RAM_MARKERS + i*4)

		if _, err := v.Memory.ReadAt(marker[:], addr); err != nil {
			return fault.Newf(fault.MemoryCorruption, "heap marker %d unreadable, %v", i, err)
		}

		if binary.LittleEndian.Uint32(marker[:]) != m {
			return fault.Newf(fault.MemoryCorruption, "heap marker %d at %#08x", i, addr)
		}
	}

	return nil
}

func (v *Verifier) checkFirmware() error {
	d, err := digest.SumReader(v.code())

	if err != nil {
		return fault.Newf(fault.CryptoVerificationFailed, "code region unreadable, %v", err)
	}

	klog.V(1).Infof("BV firmware digest %s", d)

	if !digest.Equal(d, v.Reference.Firmware) {
		return fault.Newf(fault.CryptoVerificationFailed, "firmware digest %s does not match reference", d)
	}

	return nil
}

func (v *Verifier) checkKillSwitch() error {
	m, err := scan.Find(v.code(), KillPatterns)

	if err != nil {
		return fault.Newf(fault.KillSwitchDetected, "code region unreadable, %v", err)
	}

	if m != nil {
		return fault.Newf(fault.KillSwitchDetected, "pattern %q at %#08x", m.Pattern, int64(v.Code.Base)+m.Offset)
	}

	// absent devices are reported by the presence check
	for i, dev := range v.Devices.all() {
		if dev != nil && mmio.RemoteDisable(dev) {
			return fault.Newf(fault.KillSwitchDetected, "device %d advertises remote disable", i)
		}
	}

	return nil
}

func (v *Verifier) checkPolicy() error {
	d := digest.Sum(v.Policy)

	klog.V(1).Infof("BV policy digest %s", d)

	if !digest.Equal(d, v.Reference.Policy) {
		return fault.Newf(fault.PolicyCorrupted, "policy digest %s does not match reference", d)
	}

	return nil
}

func (v *Verifier) checkHardware() error {
	d := v.Devices
	return hw.Probe(d.Entropy, d.Latch, d.Compute, d.Fuse)
}
