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

// Package fixture builds small synthetic images for tests.
package fixture

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/source"
	"github.com/spf13/afero"
)

// Files holds the files of a multi-file image by name.
type Files map[string][]byte

// Source returns an in-memory source for name whose siblings are the other
// files of the set.
func (f Files) Source(name string) *source.Memory {
	return source.WithSiblings(name, f[name], func(sib string) (image.Source, error) {
		if _, ok := f[sib]; !ok {
			return nil, fmt.Errorf("open %s: %w", sib, fs.ErrNotExist)
		}
		return f.Source(sib), nil
	})
}

// Without returns a copy of the set lacking name.
func (f Files) Without(name string) Files {
	out := Files{}
	for k, v := range f {
		if k != name {
			out[k] = v
		}
	}
	return out
}

// Write stores every file under dir.
func (f Files) Write(tb testing.TB, fsys afero.Fs, dir string) {
	tb.Helper()
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", dir, err)
	}
	for name, data := range f {
		if err := afero.WriteFile(fsys, filepath.Join(dir, name), data, 0o644); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}
}

// Payload returns n bytes of recognizable user data for lba: the address
// big-endian in the first four bytes, then its low byte repeated.
func Payload(lba, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(lba)
	}
	if n >= 4 {
		binary.BigEndian.PutUint32(out, uint32(lba)) //nolint:gosec // test addresses are small
	}
	return out
}

// Sub returns the deinterleaved subchannel planes stored for lba.
func Sub(lba int) []byte {
	out := make([]byte, 96)
	for i := range out {
		out[i] = byte(lba*7 + i)
	}
	return out
}
