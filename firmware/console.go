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

//go:build tamago && !debug
// +build tamago,!debug

package main

import (
	"flag"
	"io"
	_ "unsafe"

	"k8s.io/klog"

	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

// Boot chain failures, digests and decisions must not leak through the
// serial console, which the board support enables before init(). The
// runtime printk is replaced with a NOP and UART2 is disabled.
func init() {
	imx6ul.UART2.Disable()

	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	for _, name := range []string{"logtostderr", "alsologtostderr"} {
		if err := fs.Set(name, "false"); err != nil {
			panic(err)
		}
	}

	klog.SetOutput(io.Discard)
}

//go:linkname printk runtime.printk
func printk(c byte) {
	// output suppressed until UART2 is disabled
}
