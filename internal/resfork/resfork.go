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

// Package resfork reads classic Mac OS resource forks and the AppleSingle
// and AppleDouble files that carry them off HFS volumes.
package resfork

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

// AppleSingle and AppleDouble magic numbers.
const (
	AppleSingleMagic = 0x00051600
	AppleDoubleMagic = 0x00051607
)

// EntryResourceFork is the AppleDouble entry holding the resource fork.
const EntryResourceFork = 2

// MaxForkSize bounds the resource fork read into memory.
const MaxForkSize = 16 << 20

const (
	appleHeaderSize = 26
	appleEntrySize  = 12
	typeEntrySize   = 8
	refEntrySize    = 12
)

var order = binary.BigEndian

// AppleHeader starts an AppleSingle or AppleDouble file.
type AppleHeader struct {
	Magic   uint32
	Version uint32
	Filler  [16]byte
	Entries uint16
}

// AppleEntry locates one entry of an AppleSingle or AppleDouble file.
type AppleEntry struct {
	ID     uint32
	Offset uint32
	Length uint32
}

// FromAppleDouble returns the resource fork stored in an AppleSingle or
// AppleDouble file of the given size.
func FromAppleDouble(r io.ReaderAt, size int64) ([]byte, error) {
	var h AppleHeader
	if err := codec.ReadStruct(r, 0, order, &h); err != nil {
		return nil, err
	}
	if h.Magic != AppleDoubleMagic && h.Magic != AppleSingleMagic {
		return nil, fmt.Errorf("%w: AppleDouble magic 0x%08x", image.ErrNotThisFormat, h.Magic)
	}
	for i := range int64(h.Entries) {
		var e AppleEntry
		if err := codec.ReadStruct(r, appleHeaderSize+i*appleEntrySize, order, &e); err != nil {
			return nil, err
		}
		if e.ID != EntryResourceFork {
			continue
		}
		switch {
		case e.Length > MaxForkSize:
			return nil, fmt.Errorf("%w: resource fork of %d bytes", image.ErrCorruptStructure, e.Length)
		case int64(e.Offset)+int64(e.Length) > size:
			return nil, fmt.Errorf("%w: resource fork of %d bytes at 0x%x", image.ErrTruncatedInput, e.Length, e.Offset)
		}
		return codec.ReadAt(r, int64(e.Offset), int(e.Length))
	}
	return nil, fmt.Errorf("no resource fork entry: %w", fs.ErrNotExist)
}

// Header starts a resource fork.
type Header struct {
	DataOffset uint32
	MapOffset  uint32
	DataLength uint32
	MapLength  uint32
}

// MapHeader starts the resource map. The first 16 bytes repeat the fork
// header.
type MapHeader struct {
	Reserved       [16]byte
	Handle         uint32
	FileRef        uint16
	Attributes     uint16
	TypeListOffset uint16
	NameListOffset uint16
}

// TypeEntry lists the references of one resource type. Count is one less
// than the number of references.
type TypeEntry struct {
	Type          [4]byte
	Count         uint16
	RefListOffset uint16
}

// RefEntry locates one resource. The top byte of AttrOffset holds the
// attributes, the rest the offset of the resource in the data area.
type RefEntry struct {
	ID         int16
	NameOffset uint16
	AttrOffset uint32
	Handle     uint32
}

type key struct {
	typ string
	id  int16
}

// Fork is a parsed resource fork.
type Fork struct {
	data    []byte
	dataOff uint32
	refs    map[key]uint32
	types   []string
}

// Parse reads the resource map of a resource fork.
func Parse(data []byte) (*Fork, error) {
	var h Header
	if err := decodeAt(data, 0, &h); err != nil {
		return nil, err
	}
	if uint64(h.DataOffset)+uint64(h.DataLength) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: resource data of %d bytes at 0x%x", image.ErrTruncatedInput, h.DataLength, h.DataOffset)
	}
	var m MapHeader
	if err := decodeAt(data, int64(h.MapOffset), &m); err != nil {
		return nil, err
	}

	typeList := int64(h.MapOffset) + int64(m.TypeListOffset)
	b, err := bytesAt(data, typeList, 2)
	if err != nil {
		return nil, err
	}
	count := order.Uint16(b)
	f := &Fork{data: data, dataOff: h.DataOffset, refs: map[key]uint32{}}
	if count == 0xFFFF {
		return f, nil
	}
	// Every reference takes refEntrySize bytes of the map.
	budget := int64(len(data)) / refEntrySize
	for i := range int64(count) + 1 {
		var te TypeEntry
		if err := decodeAt(data, typeList+2+i*typeEntrySize, &te); err != nil {
			return nil, err
		}
		typ := string(te.Type[:])
		f.types = append(f.types, typ)
		budget -= int64(te.Count) + 1
		if budget < 0 {
			return nil, fmt.Errorf("%w: more references than the fork can hold", image.ErrCorruptStructure)
		}
		for j := range int64(te.Count) + 1 {
			var re RefEntry
			if err := decodeAt(data, typeList+int64(te.RefListOffset)+j*refEntrySize, &re); err != nil {
				return nil, err
			}
			f.refs[key{typ, re.ID}] = re.AttrOffset & 0x00FFFFFF
		}
	}
	return f, nil
}

func decodeAt(data []byte, off int64, v any) error {
	if off < 0 || off > int64(len(data)) {
		return fmt.Errorf("%w: structure at 0x%x past the end of %d bytes", image.ErrCorruptStructure, off, len(data))
	}
	return codec.Decode(data[off:], order, v)
}

func bytesAt(data []byte, off, n int64) ([]byte, error) {
	if off < 0 || off+n > int64(len(data)) {
		return nil, fmt.Errorf("%w: %d bytes at 0x%x, have %d", image.ErrTruncatedInput, n, off, len(data))
	}
	return data[off : off+n], nil
}

// Types returns the resource types present, in map order.
func (f *Fork) Types() []string {
	return append([]string(nil), f.types...)
}

// Resource returns the data of the resource typ with the given id.
func (f *Fork) Resource(typ string, id int16) ([]byte, error) {
	off, ok := f.refs[key{typ, id}]
	if !ok {
		return nil, fmt.Errorf("resource %q %d: %w", typ, id, fs.ErrNotExist)
	}
	start := int64(f.dataOff) + int64(off)
	b, err := bytesAt(f.data, start, 4)
	if err != nil {
		return nil, err
	}
	return bytesAt(f.data, start+4, int64(order.Uint32(b)))
}
