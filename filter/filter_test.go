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

package filter_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/filter"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/source"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// createTestZIP builds a ZIP archive holding files in the given order.
func createTestZIP(t *testing.T, files ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.Create(f[0])
		if err != nil {
			t.Fatalf("create %s: %v", f[0], err)
		}
		if _, err := fw.Write([]byte(f[1])); err != nil {
			t.Fatalf("write %s: %v", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

func content(t *testing.T, src image.Source) string {
	t.Helper()
	data, err := io.ReadAll(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		t.Fatalf("read %s: %v", src.Name(), err)
	}
	return string(data)
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want filter.Kind
	}{
		{"gzip", []byte{0x1f, 0x8b, 8, 0}, filter.KindGzip},
		{"xz", []byte("\xfd7zXZ\x00\x00"), filter.KindXz},
		{"zip", []byte("PK\x03\x04...."), filter.KindZip},
		{"7z", []byte("7z\xbc\xaf\x27\x1c\x00\x04"), filter.KindSevenZip},
		{"rar", []byte("Rar!\x1a\x07\x01\x00"), filter.KindRar},
		{"plain", []byte("MEDIA DESCRIPTOR"), filter.KindNone},
		{"empty", nil, filter.KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := filter.Detect(source.Bytes(tt.name, tt.data)); got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPassThrough(t *testing.T) {
	t.Parallel()

	src := source.Bytes("disk.img", []byte("plain"))
	got, err := filter.Open(src, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != image.Source(src) {
		t.Error("plain source should be returned unchanged")
	}
}

func TestGzip(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/d/disc.ccd.gz", gzipBytes(t, []byte("[CloneCD]")), 0o644)
	_ = afero.WriteFile(fsys, "/d/disc.img.gz", gzipBytes(t, []byte("frames")), 0o644)
	_ = afero.WriteFile(fsys, "/d/disc.sub", []byte("planes"), 0o644)

	f, err := source.OpenFs(fsys, "/d/disc.ccd.gz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	src, err := filter.Open(f, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src.Name() != "/d/disc.ccd" || content(t, src) != "[CloneCD]" {
		t.Errorf("got %s = %q", src.Name(), content(t, src))
	}

	img, err := image.OpenSibling(src, image.SiblingName(src, ".img"))
	if err != nil {
		t.Fatalf("OpenSibling(.img) error = %v", err)
	}
	if content(t, img) != "frames" {
		t.Errorf("compressed sibling = %q", content(t, img))
	}

	sub, err := image.OpenSibling(src, "disc.sub")
	if err != nil {
		t.Fatalf("OpenSibling(.sub) error = %v", err)
	}
	defer func() { _ = image.CloseSource(sub) }()
	if content(t, sub) != "planes" {
		t.Errorf("plain sibling = %q", content(t, sub))
	}
}

func TestXz(t *testing.T) {
	t.Parallel()

	src, err := filter.Open(source.Bytes("disk.pcl.xz", xzBytes(t, []byte("partclone-image"))), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src.Name() != "disk.pcl" || content(t, src) != "partclone-image" {
		t.Errorf("got %s = %q", src.Name(), content(t, src))
	}
}

func TestCorruptGzip(t *testing.T) {
	t.Parallel()

	data := gzipBytes(t, bytes.Repeat([]byte("x"), 4096))
	data = data[:len(data)/2]
	_, err := filter.Open(source.Bytes("bad.gz", data), nil)
	if !errors.Is(err, image.ErrCorruptStructure) {
		t.Errorf("Open() error = %v, want ErrCorruptStructure", err)
	}
}

func TestStreamSignatureWithoutStream(t *testing.T) {
	t.Parallel()

	// A DiskCopy header whose 31-byte name starts with Mac Roman 0x8b.
	dc42 := make([]byte, 84+512)
	dc42[0], dc42[1] = 31, 0x8b
	copy(dc42[2:32], bytes.Repeat([]byte("A"), 30))

	tests := []struct {
		name string
		data []byte
	}{
		{"gzip magic", dc42},
		{"xz magic", []byte("\xfd7zXZ\x00\xff\xff plain data")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := source.Bytes("disk.image", tt.data)
			got, err := filter.Open(src, nil)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got != image.Source(src) {
				t.Error("source with a bad stream header should be returned unchanged")
			}
		})
	}
}

func TestSevenZipAndRAR(t *testing.T) {
	t.Parallel()

	accept := func(src image.Source) bool {
		buf := make([]byte, 9)
		n, _ := src.ReadAt(buf, 0)
		return string(buf[:n]) == "[CloneCD]"
	}
	for _, name := range []string{"game.7z", "game.rar"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			arc, err := os.ReadFile(filepath.Join("testdata", name))
			if err != nil {
				t.Fatalf("read testdata: %v", err)
			}

			members, err := filter.Members(source.Bytes(name, arc))
			if err != nil {
				t.Fatalf("Members() error = %v", err)
			}
			want := []filter.Member{
				{Name: "readme.txt", Size: 5},
				{Name: "game/disc.img", Size: 6},
				{Name: "game/disc.ccd", Size: 9},
			}
			if len(members) != len(want) {
				t.Fatalf("Members() = %v, want %v", members, want)
			}
			for i := range want {
				if members[i] != want[i] {
					t.Errorf("member %d = %v, want %v", i, members[i], want[i])
				}
			}

			first, err := filter.Open(source.Bytes(name, arc), nil)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if first.Name() != "readme.txt" || content(t, first) != "hello" {
				t.Errorf("first member = %s %q", first.Name(), content(t, first))
			}

			src, err := filter.Open(source.Bytes(name, arc), accept)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if src.Name() != "game/disc.ccd" {
				t.Errorf("picked %s, want game/disc.ccd", src.Name())
			}
			img, err := image.OpenSibling(src, "disc.img")
			if err != nil {
				t.Fatalf("OpenSibling() error = %v", err)
			}
			if content(t, img) != "frames" {
				t.Errorf("sibling = %q", content(t, img))
			}
			if _, err := image.OpenSibling(src, "disc.sub"); err == nil {
				t.Error("OpenSibling() found a member that is not there")
			}

			_, err = filter.Open(source.Bytes(name, arc), func(image.Source) bool { return false })
			if !errors.Is(err, image.ErrNoMatchingFormat) {
				t.Errorf("Open() with nothing accepted error = %v, want ErrNoMatchingFormat", err)
			}
		})
	}
}

func TestZip(t *testing.T) {
	t.Parallel()

	arc := createTestZIP(t,
		[2]string{"readme.txt", "hello"},
		[2]string{"game/disc.img", "frames"},
		[2]string{"game/disc.ccd", "[CloneCD]"},
	)
	accept := func(src image.Source) bool {
		buf := make([]byte, 9)
		n, _ := src.ReadAt(buf, 0)
		return string(buf[:n]) == "[CloneCD]"
	}

	src, err := filter.Open(source.Bytes("game.zip", arc), accept)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src.Name() != "game/disc.ccd" {
		t.Errorf("picked %s, want game/disc.ccd", src.Name())
	}
	img, err := image.OpenSibling(src, "DISC.IMG")
	if err != nil {
		t.Fatalf("OpenSibling() error = %v", err)
	}
	if content(t, img) != "frames" {
		t.Errorf("sibling = %q", content(t, img))
	}

	members, err := filter.Members(source.Bytes("game.zip", arc))
	if err != nil || len(members) != 3 {
		t.Errorf("Members() = %v, %v", members, err)
	}

	_, err = filter.Open(source.Bytes("game.zip", arc), func(image.Source) bool { return false })
	if !errors.Is(err, image.ErrNoMatchingFormat) {
		t.Errorf("Open() with nothing accepted error = %v, want ErrNoMatchingFormat", err)
	}
}

func TestAcceptSeesFullSize(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte{7}, 200<<10)
	arc := createTestZIP(t, [2]string{"big.bin", string(big)})
	var seen int64
	_, err := filter.Open(source.Bytes("big.zip", arc), func(src image.Source) bool {
		seen = src.Size()
		return true
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if seen != int64(len(big)) {
		t.Errorf("accepted Size() = %d, want %d", seen, len(big))
	}
}
