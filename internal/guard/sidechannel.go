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

package guard

import (
	"k8s.io/klog"
)

// Masking controls hardware side-channel countermeasures.
type Masking interface {
	EnableMasking(noise bool, power bool, timing bool) error
}

// SideChannel represents the side-channel protection toggles, enabled once
// at boot and never revisited.
type SideChannel struct {
	m       Masking
	enabled bool
}

// NewSideChannel returns disabled protections backed by m.
func NewSideChannel(m Masking) *SideChannel {
	return &SideChannel{m: m}
}

// EnableAll turns on power trace noise, power randomization and timing
// normalization. Calls after the first successful one do nothing.
func (s *SideChannel) EnableAll() error {
	if s.enabled {
		return nil
	}

	if err := s.m.EnableMasking(true, true, true); err != nil {
		return err
	}

	s.enabled = true

	klog.V(1).Info("IG side-channel masking enabled")

	return nil
}

// Enabled returns whether the protections are active.
func (s *SideChannel) Enabled() bool {
	return s.enabled
}
