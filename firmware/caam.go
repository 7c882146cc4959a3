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

//go:build tamago && tamper
// +build tamago,tamper

package main

import (
	"runtime"

	"k8s.io/klog"

	"github.com/usbarmory/tamago/soc/nxp/caam"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
	"github.com/usbarmory/tamago/soc/nxp/snvs"
)

// The SNVS clock, temperature and voltage monitors back the fuse mesh
// sensors, any violation resets the SoC. The CAAM run-time integrity checker
// hashes the firmware text in the background.
func init() {
	if imx6ul.Native && imx6ul.SNVS.Available() {
		imx6ul.SNVS.SetPolicy(snvs.SecurityPolicy{
			Clock:             true,
			Temperature:       true,
			Voltage:           true,
			SecurityViolation: true,
			HardFail:          true,
		})

		socMonitors = append(socMonitors, "SNVS hard fail")
	}

	if imx6ul.CAAM == nil {
		return
	}

	start, end := runtime.TextRegion()
	text := []caam.MemoryBlock{{Address: start, Length: end - start}}

	if err := imx6ul.CAAM.EnableRTIC(text); err != nil {
		klog.Warningf("SM text integrity monitor unavailable, %v", err)
		socMonitors = append(socMonitors, "RTIC failed: "+err.Error())
		return
	}

	socMonitors = append(socMonitors, "RTIC text")
}
