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

package source_test

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/fixture"
	"github.com/ZaparooProject/go-mediaimage/source"
	"github.com/spf13/afero"
)

func readAll(t *testing.T, src image.Source) string {
	t.Helper()
	buf := make([]byte, src.Size())
	if _, err := src.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	return string(buf)
}

func TestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "disc.ccd"), []byte("[CloneCD]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "DISC.IMG"), []byte("frames"), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := source.Open(filepath.Join(dir, "disc.ccd"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Size() != 9 || readAll(t, f) != "[CloneCD]" {
		t.Errorf("unexpected content")
	}

	sib, err := image.OpenSibling(f, image.SiblingName(f, ".img"))
	if err != nil {
		t.Fatalf("OpenSibling() error = %v", err)
	}
	defer func() { _ = image.CloseSource(sib) }()
	if readAll(t, sib) != "frames" {
		t.Error("sibling content mismatch")
	}

	if _, err := f.OpenSibling("disc.sub"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing sibling error = %v, want fs.ErrNotExist", err)
	}
}

func TestFsFile(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/images/disk.mds", []byte("MEDIA DESCRIPTOR"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/images/disk.mdf", []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := source.OpenFs(fsys, "/images/disk.mds")
	if err != nil {
		t.Fatalf("OpenFs() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Size() != 16 {
		t.Errorf("Size() = %d, want 16", f.Size())
	}
	sib, err := image.OpenSibling(f, "DISK.MDF")
	if err != nil {
		t.Fatalf("OpenSibling() error = %v", err)
	}
	defer func() { _ = image.CloseSource(sib) }()
	if readAll(t, sib) != "data" {
		t.Error("sibling content mismatch")
	}

	if _, err := source.OpenFs(fsys, "/images"); err == nil {
		t.Error("opening a directory should fail")
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()

	sub := source.Bytes("a.sub", []byte("sub"))
	m := source.WithSiblings("a.ccd", []byte("ccd"), func(name string) (image.Source, error) {
		if name == "a.sub" {
			return sub, nil
		}
		return nil, fs.ErrNotExist
	})
	if m.Name() != "a.ccd" || m.Size() != 3 {
		t.Errorf("Name() = %q, Size() = %d", m.Name(), m.Size())
	}
	got, err := image.OpenSibling(m, "a.sub")
	if err != nil || got != sub {
		t.Errorf("OpenSibling() = %v, %v", got, err)
	}
	if _, err := source.Bytes("x", nil).OpenSibling("y"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("OpenSibling() without resolver error = %v", err)
	}
}

func TestResourceFork(t *testing.T) {
	t.Parallel()

	fork := fixture.ResourceFork(fixture.Resource{Type: "vers", ID: 1, Data: fixture.Version(4, 0x20, 0x80, 0, "4.2", "")})
	double := fixture.AppleDouble(fork)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "disk.image"), []byte("dc42"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "._disk.image"), double, 0o600); err != nil {
		t.Fatal(err)
	}
	file, err := source.Open(filepath.Join(dir, "disk.image"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = file.Close() }()

	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/images/disk.image", []byte("dc42"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/images/._disk.image", double, 0o644); err != nil {
		t.Fatal(err)
	}
	fsFile, err := source.OpenFs(fsys, "/images/disk.image")
	if err != nil {
		t.Fatalf("OpenFs() error = %v", err)
	}
	defer func() { _ = fsFile.Close() }()

	mem := fixture.Files{"disk.image": []byte("dc42"), "._disk.image": double}.Source("disk.image")

	for name, src := range map[string]image.ResourceForker{"file": file, "afero": fsFile, "memory": mem} {
		rf, err := src.ResourceFork()
		if err != nil {
			t.Errorf("%s: ResourceFork() error = %v", name, err)
			continue
		}
		if readAll(t, rf) != string(fork) {
			t.Errorf("%s: resource fork content mismatch", name)
		}
	}

	if _, err := source.Bytes("disk.image", []byte("dc42")).ResourceFork(); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ResourceFork() without companion error = %v, want fs.ErrNotExist", err)
	}
	junk := fixture.Files{"disk.image": nil, "._disk.image": bytes.Repeat([]byte("junk"), 16)}.Source("disk.image")
	if _, err := junk.ResourceFork(); !errors.Is(err, image.ErrNotThisFormat) {
		t.Errorf("ResourceFork() of a junk companion error = %v, want ErrNotThisFormat", err)
	}
}
