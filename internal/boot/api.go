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

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/internal/hw"
)

// API represents the trust anchor services exposed to the layers above the
// root of trust. Every call fails with fault.ErrHardwareNotInitialized
// unless the orchestrator is Running.
type API struct {
	o *Orchestrator
}

// API returns the upward interface of the orchestrator.
func (o *Orchestrator) API() *API {
	return &API{o: o}
}

func (a *API) ready() error {
	if s := a.o.state; s != Running {
		return fmt.Errorf("%s: %w", s, fault.ErrHardwareNotInitialized)
	}

	return nil
}

// PUFChallenge returns the device identity response for a salt.
func (a *API) PUFChallenge(salt [hw.SaltSize]byte) (res [hw.ResponseSize]byte, err error) {
	if err = a.ready(); err != nil {
		return
	}

	return a.o.entropy.Challenge(salt)
}

// WriteGateDecision commits a decision to the decision latch.
func (a *API) WriteGateDecision(d hw.Decision) error {
	if err := a.ready(); err != nil {
		return err
	}

	return a.o.latch.WriteDecision(d)
}

// SubmitCompute delegates a buffer to the hybrid compute core.
func (a *API) SubmitCompute(data []byte) ([]byte, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}

	return a.o.compute.Execute(data)
}

// Entropy fills buf from the entropy pool.
func (a *API) Entropy(buf []byte) error {
	if err := a.ready(); err != nil {
		return err
	}

	return a.o.entropy.Entropy(buf)
}
