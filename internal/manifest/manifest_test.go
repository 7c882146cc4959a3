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

package manifest

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/coreos/go-semver/semver"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/mod/sumdb/note"

	"github.com/transparency-dev/armored-rot/internal/digest"
)

func testReference() *Reference {
	return &Reference{
		Version:  *semver.New("1.4.0"),
		Firmware: digest.Sum([]byte("firmware")),
		Policy:   digest.Sum([]byte("policy")),
	}
}

func newKeys(t *testing.T, name string) (note.Signer, string) {
	t.Helper()
	skey, vkey, err := note.GenerateKey(rand.Reader, name)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := note.NewSigner(skey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s, vkey
}

func TestSignOpen(t *testing.T) {
	signer, vkey := newKeys(t, "ark-provisioning")
	want := testReference()

	msg, err := Sign(want, signer)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := Open(msg, vkey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diff := cmp.Diff(want.Text(), got.Text()); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestOpenKeyFile(t *testing.T) {
	signer, vkey := newKeys(t, "ark-provisioning")

	msg, err := Sign(testReference(), signer)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	for _, key := range []string{vkey + "\n", vkey + "\r\n", " " + vkey} {
		if _, err := Open(msg, key); err != nil {
			t.Errorf("Open(%q): %v", key, err)
		}
	}
}

func TestOpenRejectsOtherKey(t *testing.T) {
	signer, _ := newKeys(t, "ark-provisioning")
	_, otherKey := newKeys(t, "ark-provisioning")

	msg, err := Sign(testReference(), signer)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := Open(msg, otherKey); err == nil {
		t.Fatal("Open succeeded with the wrong verifier key")
	}
}

func TestOpenRejectsTamperedBody(t *testing.T) {
	signer, vkey := newKeys(t, "ark-provisioning")
	ref := testReference()

	msg, err := Sign(ref, signer)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	other := *ref
	other.Firmware = digest.Sum([]byte("other firmware"))
	tampered := strings.Replace(string(msg), ref.Firmware.String(), other.Firmware.String(), 1)

	if _, err := Open([]byte(tampered), vkey); err == nil {
		t.Fatal("Open succeeded on a tampered manifest")
	}
}

func TestParse(t *testing.T) {
	good := testReference().Text()

	for _, test := range []struct {
		name    string
		text    string
		wantErr bool
	}{
		{
			name: "valid",
			text: good,
		}, {
			name:    "missing header",
			text:    strings.TrimPrefix(good, Header+"\n"),
			wantErr: true,
		}, {
			name:    "missing policy",
			text:    good[:strings.Index(good, "policy")],
			wantErr: true,
		}, {
			name:    "duplicate field",
			text:    good + "version 1.4.0\n",
			wantErr: true,
		}, {
			name:    "unknown field",
			text:    good + "rollback 1\n",
			wantErr: true,
		}, {
			name:    "short digest",
			text:    Header + "\nversion 1.0.0\nfirmware 00\npolicy 00\n",
			wantErr: true,
		}, {
			name:    "bad version",
			text:    strings.Replace(good, "1.4.0", "one", 1),
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.text)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Got %v, wantErr %t", err, test.wantErr)
			}
		})
	}
}

func TestCheckVersion(t *testing.T) {
	ref := testReference()

	if err := ref.CheckVersion("v1.4.0"); err != nil {
		t.Errorf("CheckVersion(v1.4.0): %v", err)
	}
	if err := ref.CheckVersion("1.3.9"); err == nil {
		t.Error("CheckVersion(1.3.9) succeeded, want error")
	}
	if err := ref.CheckVersion("garbage"); err == nil {
		t.Error("CheckVersion(garbage) succeeded, want error")
	}
}
