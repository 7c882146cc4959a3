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

// The arkdigest tool measures a firmware image and the foundational-policy
// corpus and writes the signed reference manifest embedded in the firmware
// build (firmware/assets/reference.note).
package main

import (
	"bytes"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/coreos/go-semver/semver"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/internal/digest"
	"github.com/transparency-dev/armored-rot/internal/manifest"
	"github.com/transparency-dev/armored-rot/internal/policy"
	"github.com/transparency-dev/armored-rot/mmio"
)

var (
	imageFile   = flag.String("image_file", "", "Firmware image to measure.")
	version     = flag.String("version", "", "Semantic version of the firmware release.")
	keyFile     = flag.String("key_file", "", "File containing the Note signer key.")
	outputFile  = flag.String("output_file", "reference.note", "File to write the signed manifest to.")
	generateKey = flag.String("generate_key", "", "Generate a signer key pair with this name, written to key_file and pub_file.")
	pubFile     = flag.String("pub_file", "reference.pub", "File to write the generated verifier key to.")
	progress    = flag.Bool("progress", true, "Show progress while measuring the image.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *generateKey != "" {
		generateKeyOrDie(*generateKey, *keyFile, *pubFile)
		return
	}

	v, err := semver.NewVersion(strings.TrimPrefix(*version, "v"))
	if err != nil {
		klog.Exitf("Invalid version %q: %v", *version, err)
	}

	signer := signerOrDie(*keyFile)

	f, err := os.Open(*imageFile)
	if err != nil {
		klog.Exitf("Failed to open image: %v", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		klog.Exitf("Failed to stat image: %v", err)
	}

	var r io.Reader = f

	if *progress {
		bar := pb.Full.Start64(fi.Size())
		r = bar.NewProxyReader(f)
		defer bar.Finish()
	}

	fw, err := measureImage(r, fi.Size())
	if err != nil {
		klog.Exitf("Failed to measure %q: %v", *imageFile, err)
	}

	ref := &manifest.Reference{
		Version:  *v,
		Firmware: fw,
		Policy:   policy.Sum(),
	}

	klog.Infof("Reference:\n%s", ref.Text())

	msg, err := manifest.Sign(ref, signer)
	if err != nil {
		klog.Exitf("Failed to sign manifest: %v", err)
	}

	if err := os.WriteFile(*outputFile, msg, 0o644); err != nil {
		klog.Exitf("WriteFile: %v", err)
	}

	klog.Infof("Wrote %d bytes of signed manifest to %q", len(msg), *outputFile)
}

// measureImage returns the digest of the code region the firmware measures
// at boot: the image zero padded to the ROM size.
func measureImage(r io.Reader, size int64) (digest.Digest, error) {
	if size > mmio.ROM_SIZE {
		return digest.Digest{}, fmt.Errorf("image size %d exceeds ROM size %d", size, mmio.ROM_SIZE)
	}

	lr := &io.LimitedReader{R: r, N: size}
	pad := bytes.NewReader(make([]byte, mmio.ROM_SIZE-size))

	d, err := digest.SumReader(io.MultiReader(lr, pad))
	if err != nil {
		return d, err
	}

	if lr.N != 0 {
		return d, errors.New("short image read")
	}

	return d, nil
}

func signerOrDie(p string) note.Signer {
	k, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read signer key file %q: %v", p, err)
	}
	s, err := note.NewSigner(strings.TrimSpace(string(k)))
	if err != nil {
		klog.Exitf("Invalid note signer key: %v", err)
	}
	return s
}

func generateKeyOrDie(name, keyPath, pubPath string) {
	if keyPath == "" {
		klog.Exitf("key_file is required to generate a key pair")
	}

	skey, vkey, err := note.GenerateKey(rand.Reader, name)
	if err != nil {
		klog.Exitf("GenerateKey: %v", err)
	}

	if err := os.WriteFile(keyPath, []byte(skey), 0o600); err != nil {
		klog.Exitf("WriteFile: %v", err)
	}

	if err := os.WriteFile(pubPath, []byte(vkey), 0o644); err != nil {
		klog.Exitf("WriteFile: %v", err)
	}

	klog.Infof("Wrote signer key to %q and verifier key to %q", keyPath, pubPath)
}
