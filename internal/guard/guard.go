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

// Package guard implements the runtime integrity guard: protected memory
// region measurement, kill-switch monitoring, environmental tamper detection
// and side-channel masking.
package guard

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/rfc6962"
	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/internal/digest"
	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/internal/hw"
	"github.com/transparency-dev/armored-rot/internal/scan"
	"github.com/transparency-dev/armored-rot/mmio"
)

const (
	// MaxRegions is the size of the protected region table.
	MaxRegions = 8
	// LeafSize is the region measurement granularity.
	LeafSize = 4096
)

// Flags describe the protection applied to a region.
type Flags uint8

const (
	// NoKillSwitch regions are scanned for kill-switch patterns.
	NoKillSwitch Flags = 1 << iota
	// Immutable regions must never change after enable.
	Immutable
	// Critical regions hold boot critical code or keys.
	Critical
	// TamperDetect regions are covered by the environmental sensors.
	TamperDetect
)

func (f Flags) String() string {
	var s []byte

	for i, name := range []string{"K", "I", "C", "T"} {
		if f&(1<<i) != 0 {
			s = append(s, name...)
		} else {
			s = append(s, '-')
		}
	}

	return string(s)
}

// Region represents a protected memory range [Start, End).
type Region struct {
	Start uint32
	End   uint32
	Flags Flags
	// Hash is the RFC 6962 Merkle root of the region, computed over
	// LeafSize leaves at enable time.
	Hash digest.Digest
}

// DefaultRegions returns the boot ROM and the secure RAM key page.
func DefaultRegions() []Region {
	return []Region{
		{
			Start: mmio.ROM_BASE,
			End:   mmio.ROM_BASE + mmio.ROM_SIZE,
			Flags: NoKillSwitch | Immutable | Critical,
		},
		{
			Start: mmio.SECURE_RAM_BASE,
			End:   mmio.SECURE_RAM_BASE + mmio.SECURE_RAM_KEY_SIZE,
			Flags: NoKillSwitch | Critical | TamperDetect,
		},
	}
}

// Config holds the guard thresholds.
type Config struct {
	// MaxCheckInterval is the longest tolerated gap between protection
	// checks.
	MaxCheckInterval time.Duration
	// Patterns are searched in NoKillSwitch regions.
	Patterns []string
}

// DefaultConfig returns the designed guard settings.
func DefaultConfig() Config {
	return Config{
		MaxCheckInterval: 10 * time.Second,
		Patterns: []string{
			"remote_shutdown",
			"emergency_halt",
			"kill_switch",
			"backdoor_access",
			"external_stop",
		},
	}
}

// ConnectionProbe reports external connections not established by the
// firmware itself.
type ConnectionProbe interface {
	UnauthorizedConnections() (int, error)
}

// Guard represents the integrity guard.
type Guard struct {
	// Connections is probed on every check when set.
	Connections ConnectionProbe
	// Tamper is polled once at enable when set.
	Tamper *TamperDetection
	// SideChannel masking is enabled once at enable when set.
	SideChannel *SideChannel

	mem io.ReaderAt
	clk hw.Clock
	cfg Config

	regions [MaxRegions]Region
	n       int

	enabled    bool
	lastCheck  int64
	violations uint32
}

// New returns a guard over the given physical address space.
func New(mem io.ReaderAt, clk hw.Clock, cfg Config) *Guard {
	return &Guard{
		mem: mem,
		clk: clk,
		cfg: cfg,
	}
}

// AddRegion appends a region to the protected region table, it must be
// called before Enable.
func (g *Guard) AddRegion(start uint32, end uint32, flags Flags) error {
	if g.enabled {
		return fault.Newf(fault.UnauthorizedModification, "region table is sealed")
	}

	if end <= start {
		return fmt.Errorf("invalid region %#08x-%#08x", start, end)
	}

	if g.n == MaxRegions {
		return fmt.Errorf("region table full (%d entries)", MaxRegions)
	}

	g.regions[g.n] = Region{Start: start, End: end, Flags: flags}
	g.n++

	return nil
}

// Enable measures every protected region, starts kill-switch monitoring and
// tamper detection and enables side-channel masking. The default regions are
// used when none were added.
func (g *Guard) Enable() (err error) {
	if g.enabled {
		return errors.New("guard already enabled")
	}

	if g.n == 0 {
		for _, r := range DefaultRegions() {
			if err = g.AddRegion(r.Start, r.End, r.Flags); err != nil {
				return
			}
		}
	}

	for i := range g.regions[:g.n] {
		r := &g.regions[i]

		if r.Hash, err = g.measure(r); err != nil {
			return
		}

		if r.Hash.IsZero() {
			return fmt.Errorf("region %#08x-%#08x has no measurement", r.Start, r.End)
		}

		klog.V(1).Infof("IG region %#08x-%#08x %s %s", r.Start, r.End, r.Flags, r.Hash)
	}

	if g.Tamper != nil {
		if err = g.Tamper.Poll(); err != nil {
			return
		}
	}

	if g.SideChannel != nil {
		if err = g.SideChannel.EnableAll(); err != nil {
			return
		}
	}

	g.lastCheck = g.clk.Nanotime()
	g.enabled = true

	klog.Infof("IG enabled, %d protected regions", g.n)

	return
}

// Enabled returns whether the guard has been enabled.
func (g *Guard) Enabled() bool {
	return g.enabled
}

// Regions returns a copy of the populated region table.
func (g *Guard) Regions() []Region {
	return append([]Region(nil), g.regions[:g.n]...)
}

// Violations returns the number of kill-switch detections.
func (g *Guard) Violations() uint32 {
	return g.violations
}

// VerifyProtection runs kill-switch detection and re-measures every
// protected region.
func (g *Guard) VerifyProtection() error {
	if !g.enabled {
		return fmt.Errorf("integrity guard: %w", fault.ErrHardwareNotInitialized)
	}

	now := g.clk.Nanotime()

	if err := g.detectKillSwitch(now); err != nil {
		g.violations++
		klog.Errorf("IG kill-switch violation %d, %v", g.violations, err)
		return fault.New(fault.KillSwitchDetected, err)
	}

	for i := range g.regions[:g.n] {
		r := &g.regions[i]

		h, err := g.measure(r)

		if err != nil {
			return fault.New(fault.MemoryCorruption, err)
		}

		if !digest.Equal(h, r.Hash) {
			return fault.Newf(fault.MemoryCorruption, "region %#08x-%#08x measurement %s, want %s", r.Start, r.End, h, r.Hash)
		}
	}

	g.lastCheck = now

	return nil
}

func (g *Guard) detectKillSwitch(now int64) error {
	for _, r := range g.regions[:g.n] {
		if r.Flags&NoKillSwitch == 0 {
			continue
		}

		m, err := scan.Find(io.NewSectionReader(g.mem, int64(r.Start), int64(r.End-r.Start)), g.cfg.Patterns)

		if err != nil {
			return fmt.Errorf("region %#08x-%#08x unreadable, %v", r.Start, r.End, err)
		}

		if m != nil {
			return fmt.Errorf("pattern %q at %#08x", m.Pattern, int64(r.Start)+m.Offset)
		}
	}

	if g.Connections != nil {
		n, err := g.Connections.UnauthorizedConnections()

		if err != nil {
			return fmt.Errorf("connection probe failed, %v", err)
		}

		if n > 0 {
			return fmt.Errorf("%d unauthorized connections", n)
		}
	}

	switch elapsed := time.Duration(now - g.lastCheck); {
	case elapsed < 0:
		return fmt.Errorf("clock moved backwards by %v", -elapsed)
	case elapsed > g.cfg.MaxCheckInterval:
		return fmt.Errorf("%v since last check exceeds %v", elapsed, g.cfg.MaxCheckInterval)
	}

	return nil
}

// measure returns the Merkle root over the region leaves.
func (g *Guard) measure(r *Region) (d digest.Digest, err error) {
	rf := &compact.RangeFactory{Hash: rfc6962.DefaultHasher.HashChildren}
	tree := rf.NewEmptyRange(0)
	leaf := make([]byte, LeafSize)

	for off := uint64(r.Start); off < uint64(r.End); off += LeafSize {
		n := min(uint64(LeafSize), uint64(r.End)-off)

		if _, err = g.mem.ReadAt(leaf[:n], int64(off)); err != nil {
			return d, fmt.Errorf("region %#08x-%#08x unreadable at %#08x, %v", r.Start, r.End, off, err)
		}

		if err = tree.Append(rfc6962.DefaultHasher.HashLeaf(leaf[:n]), nil); err != nil {
			return
		}
	}

	root, err := tree.GetRootHash(nil)

	if err != nil {
		return
	}

	copy(d[:], root)

	return
}
