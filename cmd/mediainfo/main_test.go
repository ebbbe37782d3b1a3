// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-mediaimage.
//
// go-mediaimage is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-mediaimage is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-mediaimage.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/fixture"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestCLIVersion(t *testing.T) {
	t.Parallel()

	code, out, _ := runCLI("-version")
	if code != 0 || !strings.Contains(out, "mediainfo version "+appVersion) {
		t.Errorf("version = %d, %q", code, out)
	}
}

func TestCLIHelp(t *testing.T) {
	t.Parallel()

	code, _, errOut := runCLI("-h")
	if code != 0 {
		t.Errorf("help exit code = %d", code)
	}
	for _, flag := range []string{"-i", "-json", "-verify", "-dump", "-list-formats", "-v"} {
		if !strings.Contains(errOut, flag) {
			t.Errorf("Help output missing flag %s: %s", flag, errOut)
		}
	}
}

func TestCLIListFormats(t *testing.T) {
	t.Parallel()

	code, out, _ := runCLI("-list-formats")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for _, name := range []string{"diskcopy42", "clonecd", "alcohol", "apridisk", "partclone", "chd"} {
		if !strings.Contains(out, name) {
			t.Errorf("format list missing %s: %s", name, out)
		}
	}
}

func TestCLIErrors(t *testing.T) {
	t.Parallel()

	junk := writeFile(t, "junk.bin", bytes.Repeat([]byte{0x5A}, 4096))
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing input", []string{}, 1},
		{"file not found", []string{"-i", filepath.Join(t.TempDir(), "missing.chd")}, 1},
		{"unknown format", []string{"-i", junk}, 1},
		{"bad flag", []string{"-nope"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if code, _, _ := runCLI(tt.args...); code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
		})
	}
}

func TestCLIText(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "disc.chd", fixture.CHDDisc(t, []fixture.CHDTrack{
		{Type: image.TrackMode1, Frames: 12},
		{Type: image.TrackAudio, Frames: 8, Pregap: 2},
	}, fixture.CHDDiscOptions{}))
	code, out, errOut := runCLI("-i", path, "-verify")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, errOut)
	}
	for _, want := range []string{"Format: chd", "Sectors: 22 x 2048 bytes", "Tracks:", "pregap 2", "Verify: OK"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLIJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "disk.chd", fixture.CHDDisk(t, 4, 2, 8, 512, fixture.CHDOptions{}))
	code, out, errOut := runCLI("-i", path, "-json", "-verify")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, errOut)
	}
	var rep report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if rep.Format != "chd" || rep.Info.Sectors != 64 || rep.Info.Cylinders != 4 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Verified == nil || !*rep.Verified {
		t.Errorf("Verified = %v", rep.Verified)
	}
}

func TestCLIVerifyUnsupported(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "disk.chd", fixture.CHDDisk(t, 2, 1, 8, 512, fixture.CHDOptions{NoDigest: true}))
	code, _, errOut := runCLI("-i", path, "-verify")
	if code != 1 || !strings.Contains(errOut, "Error verifying image") {
		t.Errorf("exit code = %d: %s", code, errOut)
	}
}

func TestCLIDump(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "disk.chd", fixture.CHDDisk(t, 10, 2, 8, 512, fixture.CHDOptions{}))
	target := filepath.Join(t.TempDir(), "disk.bin")
	if code, _, errOut := runCLI("-i", path, "-dump", target); code != 0 {
		t.Fatalf("exit code = %d: %s", code, errOut)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var want []byte
	for lba := range 160 {
		want = append(want, fixture.Payload(lba, 512)...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("dump = %d bytes, want %d", len(got), len(want))
	}
}
