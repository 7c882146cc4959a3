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

// Package manifest parses the reference digest pair embedded in the firmware
// at build time.
//
// The pair is distributed as a signed note:
//
//	ARK reference digests
//	version 1.4.0
//	firmware 5d0f...
//	policy 91ab...
//
// The note is part of the immutable image, the signature binds it to the
// provisioning key so that a swapped asset cannot pass as a reference.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
	"golang.org/x/mod/sumdb/note"

	"github.com/transparency-dev/armored-rot/internal/digest"
)

// Header is the first line of every reference manifest.
const Header = "ARK reference digests"

// Reference represents the build time reference digest pair.
type Reference struct {
	// Version is the firmware release the digests were computed for.
	Version semver.Version
	// Firmware is the digest of the immutable code region.
	Firmware digest.Digest
	// Policy is the digest of the foundational-policy corpus.
	Policy digest.Digest
}

// Text returns the manifest body to be signed.
func (r *Reference) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", Header)
	fmt.Fprintf(&b, "version %s\n", r.Version.String())
	fmt.Fprintf(&b, "firmware %s\n", r.Firmware)
	fmt.Fprintf(&b, "policy %s\n", r.Policy)

	return b.String()
}

// Sign returns the signed note encoding of the reference.
func Sign(r *Reference, signers ...note.Signer) ([]byte, error) {
	return note.Sign(&note.Note{Text: r.Text()}, signers...)
}

// Open verifies a signed reference manifest against the given note verifier
// key and parses it.
func Open(msg []byte, verifierKey string) (*Reference, error) {
	// key files usually end with a newline
	v, err := note.NewVerifier(strings.TrimSpace(verifierKey))

	if err != nil {
		return nil, fmt.Errorf("invalid manifest verifier key, %v", err)
	}

	n, err := note.Open(msg, note.VerifierList(v))

	if err != nil {
		return nil, fmt.Errorf("manifest signature verification failed, %v", err)
	}

	return Parse(n.Text)
}

// Parse decodes an unsigned manifest body.
func Parse(text string) (r *Reference, err error) {
	var seen = map[string]bool{}

	s := bufio.NewScanner(strings.NewReader(text))

	if !s.Scan() || s.Text() != Header {
		return nil, errors.New("missing manifest header")
	}

	r = &Reference{}

	for s.Scan() {
		key, val, ok := strings.Cut(s.Text(), " ")

		if !ok {
			return nil, fmt.Errorf("malformed manifest line %q", s.Text())
		}

		if seen[key] {
			return nil, fmt.Errorf("duplicate manifest field %q", key)
		}

		seen[key] = true

		switch key {
		case "version":
			v, err := semver.NewVersion(val)

			if err != nil {
				return nil, fmt.Errorf("invalid manifest version, %v", err)
			}

			r.Version = *v
		case "firmware":
			if r.Firmware, err = digest.Parse(val); err != nil {
				return nil, fmt.Errorf("invalid firmware digest, %v", err)
			}
		case "policy":
			if r.Policy, err = digest.Parse(val); err != nil {
				return nil, fmt.Errorf("invalid policy digest, %v", err)
			}
		default:
			return nil, fmt.Errorf("unknown manifest field %q", key)
		}
	}

	for _, key := range []string{"version", "firmware", "policy"} {
		if !seen[key] {
			return nil, fmt.Errorf("missing manifest field %q", key)
		}
	}

	return
}

// CheckVersion verifies that the running firmware version matches the
// manifest.
func (r *Reference) CheckVersion(s string) error {
	v, err := semver.NewVersion(strings.TrimPrefix(s, "v"))

	if err != nil {
		return err
	}

	if !v.Equal(r.Version) {
		return fmt.Errorf("firmware version %s does not match reference %s", v, &r.Version)
	}

	return nil
}
