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

// Package fault defines the errors raised by boot verification, the trust
// anchor drivers and the integrity guard.
//
// Verification errors (*BootError) mean that trust in the boot chain cannot
// be established, driver errors mean that a component is unavailable while
// trust up to boot is intact. Callers decide the resulting system state by
// phase, this package only classifies.
package fault

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-rot/mmio"
)

// Kind identifies a boot verification failure.
type Kind int

const (
	PolicyCorrupted Kind = iota + 1
	HardwareTestFailed
	CryptoVerificationFailed
	MemoryCorruption
	KillSwitchDetected
	UnauthorizedModification
)

var kindNames = map[Kind]string{
	PolicyCorrupted:          "policy foundation corrupted",
	HardwareTestFailed:       "hardware test failed",
	CryptoVerificationFailed: "cryptographic verification failed",
	MemoryCorruption:         "memory corruption",
	KillSwitchDetected:       "kill-switch detected",
	UnauthorizedModification: "unauthorized modification",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("unknown boot error (%d)", int(k))
}

// BootError represents a verification failure, Err optionally carries the
// underlying cause.
type BootError struct {
	Kind Kind
	Err  error
}

func (e *BootError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *BootError) Unwrap() error {
	return e.Err
}

// Is matches any *BootError of the same Kind, so that errors.Is(err,
// ErrMemoryCorruption) holds regardless of the wrapped cause.
func (e *BootError) Is(target error) bool {
	t, ok := target.(*BootError)
	return ok && t.Kind == e.Kind
}

// New returns a *BootError of the given kind wrapping cause.
func New(kind Kind, cause error) error {
	return &BootError{Kind: kind, Err: cause}
}

// Newf returns a *BootError of the given kind with a formatted cause.
func Newf(kind Kind, format string, a ...any) error {
	return &BootError{Kind: kind, Err: fmt.Errorf(format, a...)}
}

// Verification errors, for use with errors.Is.
var (
	ErrPolicyCorrupted          = &BootError{Kind: PolicyCorrupted}
	ErrHardwareTestFailed       = &BootError{Kind: HardwareTestFailed}
	ErrCryptoVerificationFailed = &BootError{Kind: CryptoVerificationFailed}
	ErrMemoryCorruption         = &BootError{Kind: MemoryCorruption}
	ErrKillSwitchDetected       = &BootError{Kind: KillSwitchDetected}
	ErrUnauthorizedModification = &BootError{Kind: UnauthorizedModification}
)

// Driver errors.
var (
	ErrHardwareNotInitialized = errors.New("hardware not initialized")
	ErrTimeout                = mmio.ErrTimeout
	ErrIntegrityFailed        = errors.New("integrity check failed")
	ErrInsufficientEntropy    = errors.New("insufficient entropy")
	ErrTimingViolation        = errors.New("timing violation")
	ErrHardwareFault          = errors.New("hardware fault")
)

// IsBootError returns whether err carries a verification failure.
func IsBootError(err error) bool {
	var e *BootError
	return errors.As(err, &e)
}
