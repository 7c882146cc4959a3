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

package boot

import (
	"fmt"
)

// State represents the orchestrator state.
type State int

const (
	VerifyingBoot State = iota
	HardwareInit
	SelfTest
	Running
	SafeMode
	EmergencyShutdown
	Halted
)

var stateNames = []string{
	VerifyingBoot:     "VerifyingBoot",
	HardwareInit:      "HardwareInit",
	SelfTest:          "SelfTest",
	Running:           "Running",
	SafeMode:          "SafeMode",
	EmergencyShutdown: "EmergencyShutdown",
	Halted:            "Halted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal returns whether the processor is parked in this state.
func (s State) Terminal() bool {
	return s == EmergencyShutdown || s == Halted
}
