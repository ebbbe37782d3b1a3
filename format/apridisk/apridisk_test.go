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

package apridisk_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/format/apridisk"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/fixture"
	"github.com/ZaparooProject/go-mediaimage/source"
)

func open(t *testing.T, data []byte, opts ...image.OpenOption) image.Image {
	t.Helper()
	img, err := apridisk.New().Open(source.Bytes("disk.dsk", data), opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = img.Close() })
	return img
}

func TestIdentify(t *testing.T) {
	t.Parallel()

	data := fixture.Apridisk(t, 2, 1, 9, fixture.ApridiskOptions{})
	p := apridisk.New()
	if !p.Identify(source.Bytes("a", data)) {
		t.Error("Identify() rejected an Apridisk image")
	}
	if p.Identify(source.Bytes("a", data[:100])) {
		t.Error("Identify() accepted a truncated signature block")
	}
	bad := bytes.Clone(data)
	bad[0] = 'X'
	if p.Identify(source.Bytes("a", bad)) {
		t.Error("Identify() accepted a wrong signature")
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts fixture.ApridiskOptions
	}{
		{"uncompressed", fixture.ApridiskOptions{}},
		{"rle", fixture.ApridiskOptions{RLE: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			img := open(t, fixture.Apridisk(t, 70, 1, 9, tt.opts), image.WithCacheSize(2))
			info := img.Info()
			if info.Sectors != 630 || info.SectorSize != 512 || info.MediaType != image.MediaApricot35 {
				t.Errorf("Info() = %+v", info)
			}
			if info.Cylinders != 70 || info.Heads != 1 || info.SectorsPerTrack != 9 {
				t.Errorf("geometry = %d/%d/%d", info.Cylinders, info.Heads, info.SectorsPerTrack)
			}
			for _, lba := range []uint64{0, 1, 8, 9, 100, 629, 100} {
				got, err := img.ReadSector(lba)
				if err != nil {
					t.Fatalf("ReadSector(%d) error = %v", lba, err)
				}
				if !bytes.Equal(got, fixture.Fill(int(lba), 512)) {
					t.Errorf("ReadSector(%d) returned the wrong data", lba)
				}
			}
			many, err := img.ReadSectors(7, 4)
			if err != nil || len(many) != 4*512 || many[3*512] != 10 {
				t.Errorf("ReadSectors(7, 4) = %d bytes, %v", len(many), err)
			}
			if _, err := img.ReadSector(630); !errors.Is(err, image.ErrSectorAddressOutOfRange) {
				t.Errorf("ReadSector(630) error = %v", err)
			}
		})
	}
}

func TestMissingSectorsAndStrings(t *testing.T) {
	t.Parallel()

	data := fixture.Apridisk(t, 80, 2, 9, fixture.ApridiskOptions{
		Missing: func(lba int) bool { return lba == 20 },
		Comment: "backup disk",
		Creator: "APRIDISK 1.0",
	})
	img := open(t, data)
	info := img.Info()
	if info.MediaType != image.MediaDOS35DSDD9 || info.Comments != "backup disk" || info.Creator != "APRIDISK 1.0" {
		t.Errorf("Info() = %+v", info)
	}
	got, err := img.ReadSector(20)
	if err != nil || !bytes.Equal(got, make([]byte, 512)) {
		t.Errorf("missing sector = %d bytes, %v", len(got), err)
	}
	if _, err := img.ReadSectorTag(0, image.TagAppleSony); !errors.Is(err, image.ErrTagNotSupported) {
		t.Errorf("ReadSectorTag() error = %v", err)
	}
}

func TestBadRLE(t *testing.T) {
	t.Parallel()

	data := fixture.Apridisk(t, 1, 1, 2, fixture.ApridiskOptions{RLE: true})
	// The first sector record follows the signature block and the
	// deleted record; shrink its second run.
	off := apridisk.SignatureSize + apridisk.RecordHeaderSize + 512 + apridisk.RecordHeaderSize + 3
	binary.LittleEndian.PutUint16(data[off:], 100)
	img := open(t, data)
	_, err := img.ReadSector(0)
	if !errors.Is(err, image.ErrDecompressionFailure) || !errors.Is(err, image.ErrCorruptStructure) {
		t.Errorf("ReadSector() error = %v, want a decompression failure", err)
	}
	if _, err := img.ReadSector(1); err != nil {
		t.Errorf("ReadSector(1) error = %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	data := fixture.Apridisk(t, 1, 1, 2, fixture.ApridiskOptions{})
	rec := apridisk.SignatureSize + apridisk.RecordHeaderSize + 512

	unknownType := bytes.Clone(data)
	binary.LittleEndian.PutUint32(unknownType[rec:], 0x12345678)
	unknownCompression := bytes.Clone(data)
	binary.LittleEndian.PutUint16(unknownCompression[rec+4:], 0x1111)
	sectorZero := bytes.Clone(data)
	sectorZero[rec+13] = 0

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated signature block", data[:100], image.ErrTruncatedInput},
		{"no signature", make([]byte, 200), image.ErrNotThisFormat},
		{"truncated record header", data[:rec+8], image.ErrTruncatedInput},
		{"truncated record data", data[:rec+20], image.ErrTruncatedInput},
		{"unknown record type", unknownType, image.ErrCorruptStructure},
		{"unknown compression", unknownCompression, image.ErrUnsupportedVariant},
		{"sector zero", sectorZero, image.ErrCorruptStructure},
		{"no sectors", data[:apridisk.SignatureSize], image.ErrCorruptStructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := apridisk.New().Open(source.Bytes("disk", tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func FuzzOpen(f *testing.F) {
	f.Add(fixture.Apridisk(f, 1, 1, 2, fixture.ApridiskOptions{RLE: true, Comment: "x"}))
	f.Fuzz(func(t *testing.T, data []byte) {
		img, err := apridisk.New().Open(source.Bytes("fuzz", data))
		if err != nil {
			return
		}
		defer func() { _ = img.Close() }()
		for lba := range min(img.Info().Sectors, 4) {
			_, _ = img.ReadSector(lba)
		}
	})
}
