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

package codec_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

type mixedRecord struct {
	Magic  [4]byte
	Count  uint32
	Offset uint32 `struct:"big"`
	Flags  uint16
}

func TestDecodeMixedEndianness(t *testing.T) {
	t.Parallel()

	data := []byte{
		'T', 'E', 'S', 'T',
		0x01, 0x02, 0x03, 0x04, // little endian
		0x01, 0x02, 0x03, 0x04, // big endian
		0xFE, 0xCA,
		0xFF, // trailing byte is ignored
	}
	var rec mixedRecord
	if err := codec.Decode(data, binary.LittleEndian, &rec); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(rec.Magic[:]) != "TEST" {
		t.Errorf("Magic = %q, want TEST", rec.Magic)
	}
	if rec.Count != 0x04030201 {
		t.Errorf("Count = 0x%08X, want 0x04030201", rec.Count)
	}
	if rec.Offset != 0x01020304 {
		t.Errorf("Offset = 0x%08X, want 0x01020304", rec.Offset)
	}
	if rec.Flags != 0xCAFE {
		t.Errorf("Flags = 0x%04X, want 0xCAFE", rec.Flags)
	}
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()

	var rec mixedRecord
	for n := range 14 {
		err := codec.Decode(make([]byte, n), binary.LittleEndian, &rec)
		if !errors.Is(err, image.ErrTruncatedInput) {
			t.Fatalf("Decode(%d bytes) error = %v, want ErrTruncatedInput", n, err)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	in := mixedRecord{Magic: [4]byte{'A', 'B', 'C', 'D'}, Count: 7, Offset: 0x1234, Flags: 3}
	data, err := codec.Encode(binary.LittleEndian, &in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if size, _ := codec.SizeOf(&in); len(data) != size || size != 14 {
		t.Fatalf("encoded %d bytes, SizeOf = %d, want 14", len(data), size)
	}
	if !bytes.Equal(data[8:12], []byte{0, 0, 0x12, 0x34}) {
		t.Errorf("big-endian field encoded as % X", data[8:12])
	}
	var out mixedRecord
	if err := codec.Decode(data, binary.LittleEndian, &out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestReadFull(t *testing.T) {
	t.Parallel()

	r := bytes.NewReader([]byte{1, 2, 3, 4})
	buf := make([]byte, 3)
	if err := codec.ReadFull(r, 1, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if !bytes.Equal(buf, []byte{2, 3, 4}) {
		t.Errorf("ReadFull() = %v", buf)
	}
	if err := codec.ReadFull(r, 2, buf); !errors.Is(err, image.ErrTruncatedInput) {
		t.Errorf("short ReadFull() error = %v, want ErrTruncatedInput", err)
	}
	if got := codec.Prefix(r, 16); len(got) != 4 {
		t.Errorf("Prefix() length = %d, want 4", len(got))
	}
}

func TestSignature(t *testing.T) {
	t.Parallel()

	sig := codec.NewSignature(2, "AB", "XYZ")
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"first value", []byte("..AB"), true},
		{"second value", []byte("..XYZ..."), true},
		{"wrong offset", []byte("AB.."), false},
		{"too short", []byte("..X"), false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sig.Match(tt.data); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
	if sig.Len() != 5 {
		t.Errorf("Len() = %d, want 5", sig.Len())
	}
}

func TestDiskCopyChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0},
		{"zeros", make([]byte, 512), 0},
		{"one word", []byte{0x00, 0x02}, 0x00000001},
		{"rotation wraps", []byte{0x00, 0x01}, 0x80000000},
		{"two words", []byte{0x00, 0x02, 0x00, 0x02}, 0x80000001},
		{"odd trailing byte ignored", []byte{0x00, 0x02, 0xFF}, 0x00000001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := codec.DiskCopyChecksum(tt.data); got != tt.want {
				t.Errorf("DiskCopyChecksum() = 0x%08X, want 0x%08X", got, tt.want)
			}
		})
	}
}

func TestValidateChecksum(t *testing.T) {
	t.Parallel()

	data := []byte("123456789")
	if !codec.ValidateChecksum(codec.CRC32, data, 0xCBF43926) {
		t.Error("CRC32 check value rejected")
	}
	if codec.ValidateChecksum(codec.CRC32, data, 0) {
		t.Error("wrong CRC32 accepted")
	}
	if got := codec.CRC16(data); got != 0x29B1 {
		t.Errorf("CRC16() = 0x%04X, want 0x29B1", got)
	}
}

func TestStrings(t *testing.T) {
	t.Parallel()

	if got := codec.CString([]byte("  name \x00garbage")); got != "name" {
		t.Errorf("CString() = %q", got)
	}
	if got := codec.Printable([]byte("a\x01b\xffc")); got != "abc" {
		t.Errorf("Printable() = %q", got)
	}
	if got := codec.MacRoman([]byte{'c', 'a', 'f', 0x8E}); got != "café" {
		t.Errorf("MacRoman() = %q", got)
	}
	if got := codec.UTF16LE([]byte{'i', 0, 'm', 0, 'g', 0, 0, 0, 'x', 0}); got != "img" {
		t.Errorf("UTF16LE() = %q", got)
	}
}

func TestPascalString(t *testing.T) {
	t.Parallel()

	field := make([]byte, 64)
	codec.EncodePascalString("Système 7", field)
	if field[0] != 9 {
		t.Fatalf("length byte = %d, want 9", field[0])
	}
	if got := codec.PascalString(field); got != "Système 7" {
		t.Errorf("PascalString() = %q", got)
	}

	// A length byte past the field is clamped.
	if got := codec.PascalString([]byte{200, 'a', 'b'}); got != "ab" {
		t.Errorf("PascalString(overlong) = %q", got)
	}
}
