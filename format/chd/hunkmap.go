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

package chd

import (
	"errors"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Map entry types. Types 0-3 select a compressor slot; the pseudo types
// only appear in the compressed v5 map and resolve to self or parent.
const (
	HunkCompressed0  = 0
	HunkUncompressed = 4
	HunkSelf         = 5
	HunkParent       = 6

	hunkRLESmall   = 7
	hunkRLELarge   = 8
	hunkSelf0      = 9
	hunkSelf1      = 10
	hunkParentSelf = 11
	hunkParent0    = 12
	hunkParent1    = 13

	// Types with no v5 code of their own.
	HunkMini = 0x20
	HunkZero = 0x21
)

// Legacy map entry types and flags.
const (
	legacyCompressed   = 1
	legacyUncompressed = 2
	legacyMini         = 3
	legacySelf         = 4
	legacyParent       = 5

	legacyTypeMask = 0x0F
	legacyNoCRC    = 0x10

	legacyEntrySize = 16
)

// maxSelfDepth bounds chains of hunks that refer to other hunks.
const maxSelfDepth = 16

type checksum uint8

const (
	checkNone checksum = iota
	checkCRC16
	checkCRC32
)

// hunkEntry locates one hunk. For self references offset is a hunk index,
// for mini hunks it is the 8-byte fill pattern.
type hunkEntry struct {
	offset uint64
	length uint32
	crc    uint32
	kind   uint8
	check  checksum
}

// MapHeaderV5 precedes a compressed v5 map.
type MapHeaderV5 struct {
	Length      uint32
	FirstOffset [6]byte
	CRC         uint16
	LengthBits  uint8
	SelfBits    uint8
	ParentBits  uint8
	Reserved    uint8
}

const mapHeaderSize = 16

// hunkReader serves the logical bytes of an image hunk by hunk.
type hunkReader struct {
	src     image.Source
	header  *Header
	entries []hunkEntry
	codecs  [4]Codec
	cache   *lru.Cache[uint32, []byte]
}

func newHunkReader(src image.Source, h *Header, cacheSize int) (*hunkReader, error) {
	cache, err := lru.New[uint32, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	r := &hunkReader{src: src, header: h, cache: cache}
	for i, tag := range h.Compressors {
		if tag == CodecNone {
			continue
		}
		c, err := NewCodec(tag, h.HunkBytes)
		if err != nil {
			return nil, fmt.Errorf("compressor %d: %w", i, err)
		}
		r.codecs[i] = c
	}

	switch {
	case h.Version < 5:
		err = r.readLegacyMap()
	case h.Compressors[0] == CodecNone:
		err = r.readUncompressedMap()
	default:
		err = r.readCompressedMap()
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *hunkReader) readLegacyMap() error {
	h := r.header
	raw, err := codec.ReadAt(r.src, int64(h.MapOffset), int(h.TotalHunks)*legacyEntrySize) //nolint:gosec // header offsets are bounded by the file
	if err != nil {
		return err
	}
	r.entries = make([]hunkEntry, h.TotalHunks)
	for i := range r.entries {
		b := raw[i*legacyEntrySize:]
		flags := b[15]
		e := hunkEntry{
			offset: order.Uint64(b),
			crc:    order.Uint32(b[8:]),
			length: uint32(order.Uint16(b[12:])) | uint32(b[14])<<16,
			check:  checkCRC32,
		}
		if flags&legacyNoCRC != 0 {
			e.check = checkNone
		}
		switch flags & legacyTypeMask {
		case legacyCompressed:
			e.kind = HunkCompressed0
		case legacyUncompressed:
			e.kind = HunkUncompressed
		case legacyMini:
			e.kind, e.check = HunkMini, checkNone
		case legacySelf:
			e.kind, e.check = HunkSelf, checkNone
		case legacyParent:
			e.kind, e.check = HunkParent, checkNone
		default:
			return fmt.Errorf("%w: hunk %d has map type %d", image.ErrCorruptStructure, i, flags&legacyTypeMask)
		}
		r.entries[i] = e
	}
	return nil
}

// readUncompressedMap reads the map of an uncompressed v5 image: one
// 32-bit hunk index per hunk, zero for a hunk of zeros.
func (r *hunkReader) readUncompressedMap() error {
	h := r.header
	raw, err := codec.ReadAt(r.src, int64(h.MapOffset), int(h.TotalHunks)*4) //nolint:gosec // header offsets are bounded by the file
	if err != nil {
		return err
	}
	r.entries = make([]hunkEntry, h.TotalHunks)
	for i := range r.entries {
		block := uint64(order.Uint32(raw[i*4:]))
		if block == 0 {
			r.entries[i] = hunkEntry{kind: HunkZero}
			continue
		}
		r.entries[i] = hunkEntry{kind: HunkUncompressed, offset: block * uint64(h.HunkBytes), length: h.HunkBytes}
	}
	return nil
}

func (r *hunkReader) readCompressedMap() error {
	h := r.header
	var mh MapHeaderV5
	if err := codec.ReadStruct(r.src, int64(h.MapOffset), order, &mh); err != nil { //nolint:gosec // header offsets are bounded by the file
		return err
	}
	if mh.Length > MaxCompressedMap {
		return fmt.Errorf("%w: compressed map of %d bytes", image.ErrCorruptStructure, mh.Length)
	}
	if mh.LengthBits > 32 || mh.SelfBits > 32 || mh.ParentBits > 48 {
		return fmt.Errorf("%w: map field widths %d/%d/%d", image.ErrCorruptStructure, mh.LengthBits, mh.SelfBits, mh.ParentBits)
	}
	data, err := codec.ReadAt(r.src, int64(h.MapOffset)+mapHeaderSize, int(mh.Length)) //nolint:gosec // bounded above
	if err != nil {
		return err
	}

	br := newBitReader(data)
	hd := newHuffmanDecoder(16, 8)
	if err := hd.importTreeRLE(br); err != nil {
		return err
	}

	n := int(h.TotalHunks)
	types := make([]uint8, n)
	var last uint8
	repeat := 0
	for i := range types {
		if repeat > 0 {
			types[i] = last
			repeat--
			continue
		}
		switch v := hd.decode(br); v {
		case hunkRLESmall:
			types[i] = last
			repeat = 2 + int(hd.decode(br))
		case hunkRLELarge:
			types[i] = last
			repeat = 2 + 16 + int(hd.decode(br))<<4
			repeat += int(hd.decode(br))
		default:
			types[i], last = v, v
		}
	}

	r.entries = make([]hunkEntry, n)
	raw := make([]byte, n*12)
	cur := uint48(mh.FirstOffset)
	unitsPerHunk := uint64(h.HunkBytes / h.UnitBytes)
	var lastSelf, lastParent uint64
	for i, typ := range types {
		e := hunkEntry{offset: cur}
		switch typ {
		case 0, 1, 2, 3:
			e.kind, e.check = typ, checkCRC16
			e.length = br.read(int(mh.LengthBits))
			e.crc = br.read(16)
			cur += uint64(e.length)
		case HunkUncompressed:
			e.kind, e.check = typ, checkCRC16
			e.length = h.HunkBytes
			e.crc = br.read(16)
			cur += uint64(e.length)
		case HunkSelf:
			e.kind = HunkSelf
			e.offset = uint64(br.read(int(mh.SelfBits)))
			lastSelf = e.offset
		case HunkParent:
			e.kind = HunkParent
			e.offset = readWide(br, int(mh.ParentBits))
			lastParent = e.offset
		case hunkSelf1, hunkSelf0:
			if typ == hunkSelf1 {
				lastSelf++
			}
			e.kind, e.offset = HunkSelf, lastSelf
		case hunkParentSelf:
			e.kind = HunkParent
			e.offset = uint64(i) * unitsPerHunk
			lastParent = e.offset
		case hunkParent1, hunkParent0:
			if typ == hunkParent1 {
				lastParent += unitsPerHunk
			}
			e.kind, e.offset = HunkParent, lastParent
		default:
			return fmt.Errorf("%w: hunk %d has map type %d", image.ErrCorruptStructure, i, typ)
		}
		r.entries[i] = e

		rec := raw[i*12:]
		rec[0] = e.kind
		rec[1], rec[2], rec[3] = byte(e.length>>16), byte(e.length>>8), byte(e.length)
		for j := range 6 {
			rec[4+j] = byte(e.offset >> (40 - 8*j))
		}
		order.PutUint16(rec[10:], uint16(e.crc)) //nolint:gosec // read as 16 bits
	}
	if br.overflow() {
		return fmt.Errorf("%w: compressed map ends early", image.ErrCorruptStructure)
	}
	if got := codec.CRC16(raw); got != mh.CRC {
		return fmt.Errorf("%w: map CRC 0x%04x, stored 0x%04x", image.ErrCorruptStructure, got, mh.CRC)
	}
	return nil
}

func uint48(b [6]byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func readWide(br *bitReader, bits int) uint64 {
	if bits <= 32 {
		return uint64(br.read(bits))
	}
	hi := uint64(br.read(bits - 32))
	return hi<<32 | uint64(br.read(32))
}

// hunk returns the decompressed hunk n. The result is shared with the
// cache and must not be modified.
func (r *hunkReader) hunk(n uint32) ([]byte, error) {
	if data, ok := r.cache.Get(n); ok {
		return data, nil
	}
	data, err := r.decode(n, 0)
	if err != nil {
		return nil, err
	}
	r.cache.Add(n, data)
	return data, nil
}

func (r *hunkReader) decode(n uint32, depth int) ([]byte, error) {
	if int(n) >= len(r.entries) {
		return nil, fmt.Errorf("%w: hunk %d of %d", image.ErrCorruptStructure, n, len(r.entries))
	}
	e := r.entries[n]
	size := r.header.HunkBytes
	var out []byte
	switch e.kind {
	case 0, 1, 2, 3:
		c := r.codecs[e.kind]
		if c == nil {
			return nil, fmt.Errorf("%w: hunk %d uses empty compressor slot %d", image.ErrCorruptStructure, n, e.kind)
		}
		src, err := codec.ReadAt(r.src, int64(e.offset), int(e.length)) //nolint:gosec // checked against the file by ReadAt
		if err != nil {
			return nil, fmt.Errorf("hunk %d: %w", n, err)
		}
		out = make([]byte, size)
		if err := c.Decompress(out, src); err != nil {
			return nil, fmt.Errorf("hunk %d: %w", n, image.Decompression(err))
		}
	case HunkUncompressed:
		var err error
		if out, err = codec.ReadAt(r.src, int64(e.offset), int(size)); err != nil { //nolint:gosec // checked against the file by ReadAt
			return nil, fmt.Errorf("hunk %d: %w", n, err)
		}
	case HunkMini:
		out = make([]byte, size)
		for i := range out {
			out[i] = byte(e.offset >> (56 - 8*(i%8)))
		}
	case HunkZero:
		return make([]byte, size), nil
	case HunkSelf:
		if depth >= maxSelfDepth || e.offset >= uint64(len(r.entries)) || e.offset == uint64(n) {
			return nil, fmt.Errorf("%w: hunk %d refers to hunk %d", image.ErrCorruptStructure, n, e.offset)
		}
		return r.decode(uint32(e.offset), depth+1)
	case HunkParent:
		return nil, fmt.Errorf("%w: hunk %d is stored in a parent image", image.ErrUnsupportedVariant, n)
	}

	switch e.check {
	case checkCRC16:
		if got := codec.CRC16(out); uint32(got) != e.crc {
			return nil, fmt.Errorf("%w: hunk %d CRC 0x%04x, stored 0x%04x", image.ErrCorruptStructure, n, got, e.crc)
		}
	case checkCRC32:
		if got := codec.CRC32(out); got != e.crc {
			return nil, fmt.Errorf("%w: hunk %d CRC 0x%08x, stored 0x%08x", image.ErrCorruptStructure, n, got, e.crc)
		}
	}
	return out, nil
}

// ReadAt reads logical bytes.
func (r *hunkReader) ReadAt(p []byte, off int64) (int, error) {
	total := r.header.LogicalBytes
	if off < 0 {
		return 0, errors.New("chd: negative offset")
	}
	if uint64(off) >= total {
		return 0, io.EOF
	}
	size := uint64(r.header.HunkBytes)
	n := 0
	for n < len(p) && uint64(off) < total {
		pos := uint64(off)
		data, err := r.hunk(uint32(pos / size)) //nolint:gosec // bounded by TotalHunks
		if err != nil {
			return n, err
		}
		start := pos % size
		avail := min(size-start, total-pos)
		c := copy(p[n:], data[start:start+avail])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
