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

//go:build tamago
// +build tamago

package main

import (
	_ "embed"
	"runtime"
	"strings"
	"time"

	"k8s.io/klog"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/transparency-dev/armored-rot/internal/boot"
	"github.com/transparency-dev/armored-rot/internal/guard"
	"github.com/transparency-dev/armored-rot/internal/hw"
	"github.com/transparency-dev/armored-rot/internal/manifest"
	"github.com/transparency-dev/armored-rot/internal/verify"
	"github.com/transparency-dev/armored-rot/mmio"
)

// initialized at compile time (see cmd/arkdigest)
var (
	Build    string
	Revision string
	Version  string
)

// socMonitors lists the SoC tamper monitors enabled at init.
var socMonitors []string

const (
	// tickInterval is the period of the runtime checks, it must stay below
	// guard.Config.MaxCheckInterval.
	tickInterval = 2 * time.Second
)

// The reference manifest is generated by cmd/arkdigest over the release
// image and signed with the release key. The checked-in assets are empty
// placeholders, a build without release assets ends in EmergencyShutdown.
var (
	//go:embed assets/reference.note
	referenceNote []byte

	//go:embed assets/reference.pub
	referenceKey []byte
)

func init() {
	if err := mmio.CheckAlignment(mmio.Bases); err != nil {
		klog.Exitf("SM invalid memory map, %v", err)
	}

	if imx6ul.Native {
		imx6ul.SetARMFreq(imx6ul.Freq792)
	}

	klog.Infof("%s/%s (%s) • ARK root of trust • %s %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(),
		Revision, Build)
}

// reference returns the verified reference digests, on any failure it
// returns nil which the verifier treats as a cryptographic failure.
func reference() *manifest.Reference {
	if len(referenceNote) == 0 || len(referenceKey) == 0 {
		klog.Errorf("SM reference manifest is missing")
		return nil
	}

	ref, err := manifest.Open(referenceNote, string(referenceKey))

	if err != nil {
		klog.Errorf("SM %v", err)
		return nil
	}

	if err = ref.CheckVersion(Version); err != nil {
		klog.Errorf("SM %v", err)
		return nil
	}

	return ref
}

func main() {
	usbarmory.LED("blue", false)
	usbarmory.LED("white", false)

	o := boot.New(boot.Platform{
		Memory: physicalMemory{
			{Start: mmio.ROM_BASE, Size: mmio.ROM_SIZE},
			{Start: mmio.SECURE_RAM_BASE, Size: mmio.SECURE_RAM_KEY_SIZE},
		},
		Devices: verify.Devices{
			Entropy: &mmio.Block{Base: mmio.ENTROPY_BASE},
			Latch:   &mmio.Block{Base: mmio.LATCH_BASE},
			Compute: &mmio.Block{Base: mmio.COMPUTE_BASE},
			Fuse:    &mmio.Block{Base: mmio.FUSE_BASE},
		},
		Clock:     hw.NewSystemClock(),
		Processor: &processor{},
		Reference: reference(),
		HW:        hw.DefaultConfig(),
		Guard:     guard.DefaultConfig(),
		Bands:     guard.DefaultBands(),
		Revision:  Revision,
		Build:     Build,
		Version:   Version,

		SoCProtection: strings.Join(socMonitors, ", "),
	})

	switch o.Boot() {
	case boot.Running:
		usbarmory.LED("blue", true)
	case boot.SafeMode:
		usbarmory.LED("white", true)
	}

	klog.Info(o.Status().Print())

	// never returns, terminal states park the processor
	for {
		switch o.State() {
		case boot.Running:
			if err := o.Tick(); err != nil {
				klog.Errorf("SM %v", err)
				klog.Info(o.Status().Print())
			}
		case boot.SafeMode:
			if h, err := o.Heartbeat(); err == nil {
				klog.V(1).Infof("SM heartbeat %d", h.Sequence)
			}
		}

		time.Sleep(tickInterval)
	}
}
