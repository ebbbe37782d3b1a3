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

package fixture

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // CHD stores SHA-1 digests
	"encoding/binary"
	"fmt"
	"slices"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/format/chd"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
)

// CHDOptions tune the CHD builders.
type CHDOptions struct {
	// Version is 3, 4 or 5; zero means 5.
	Version int
	// Compressors are the v5 codec slots; all zero stores the uncompressed
	// map. Versions 3 and 4 deflate hunks when slot 0 is set.
	Compressors [4]uint32
	HunkBytes   uint32
	// Force stores every hunk with slot 0 even when that does not shrink it.
	Force bool
	// ParentHunks are stored as references to a parent image.
	ParentHunks []int
	// NoDigest leaves the data digest zero.
	NoDigest bool
}

type hunkPlan struct {
	kind   uint8
	data   []byte // stored bytes
	crc    uint32
	target uint64 // self reference or mini pattern
}

// CHD builds an image of data with the given unit size and metadata.
func CHD(tb testing.TB, data []byte, unitBytes uint32, meta []chd.Metadata, o CHDOptions) []byte {
	tb.Helper()
	if o.Version == 0 {
		o.Version = 5
	}
	if o.HunkBytes == 0 {
		o.HunkBytes = 4 * unitBytes
	}
	hb := int(o.HunkBytes)
	count := (len(data) + hb - 1) / hb
	hunks := make([][]byte, count)
	for i := range hunks {
		h := make([]byte, hb)
		copy(h, data[i*hb:])
		hunks[i] = h
	}
	var digest [20]byte
	if !o.NoDigest {
		digest = sha1.Sum(data) //nolint:gosec // CHD stores SHA-1 digests
	}
	if o.Version == 5 {
		return chdV5(tb, hunks, uint64(len(data)), unitBytes, meta, digest, o)
	}
	return chdLegacy(tb, hunks, uint64(len(data)), meta, digest, o)
}

func encodeBE(tb testing.TB, v any) []byte {
	tb.Helper()
	b, err := codec.Encode(binary.BigEndian, v)
	if err != nil {
		tb.Fatalf("encode %T: %v", v, err)
	}
	return b
}

// metadataBlock lays entries out from base.
func metadataBlock(tb testing.TB, meta []chd.Metadata, base uint64) []byte {
	tb.Helper()
	var out []byte
	for i, m := range meta {
		var next uint64
		if i < len(meta)-1 {
			next = base + uint64(len(out)) + 16 + uint64(len(m.Data))
		}
		n := len(m.Data)
		out = append(out, encodeBE(tb, &chd.MetadataHeader{
			Tag:    m.Tag,
			Flags:  m.Flags,
			Length: [3]byte{byte(n >> 16), byte(n >> 8), byte(n)},
			Next:   next,
		})...)
		out = append(out, m.Data...)
	}
	return out
}

func isMini(h []byte) (uint64, bool) {
	for i := 8; i < len(h); i++ {
		if h[i] != h[i%8] {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(h), true
}

func chdLegacy(tb testing.TB, hunks [][]byte, logical uint64, meta []chd.Metadata, digest [20]byte, o CHDOptions) []byte {
	tb.Helper()
	headerSize := chd.HeaderSizeV4
	if o.Version == 3 {
		headerSize = chd.HeaderSizeV3
	}
	var compression uint32
	if o.Compressors[0] != chd.CodecNone {
		compression = 1
	}

	seen := map[string]int{}
	plans := make([]hunkPlan, len(hunks))
	for i, h := range hunks {
		switch {
		case slices.Contains(o.ParentHunks, i):
			plans[i] = hunkPlan{kind: 5}
			continue
		case !o.Force:
			if v, ok := isMini(h); ok {
				plans[i] = hunkPlan{kind: 3, target: v}
				continue
			}
			if j, ok := seen[string(h)]; ok {
				plans[i] = hunkPlan{kind: 4, target: uint64(j)}
				continue
			}
		}
		seen[string(h)] = i
		plans[i] = hunkPlan{kind: 2, data: h, crc: codec.CRC32(h)}
		if compression != 0 {
			if c := deflate(tb, h); o.Force || len(c) < len(h) {
				plans[i] = hunkPlan{kind: 1, data: c, crc: codec.CRC32(h)}
			}
		}
	}

	mapEnd := uint64(headerSize + len(hunks)*16)
	metaBlock := metadataBlock(tb, meta, mapEnd)
	cur := mapEnd + uint64(len(metaBlock))
	metaOffset := mapEnd
	if len(meta) == 0 {
		metaOffset = 0
	}

	var mapData, body []byte
	for _, p := range plans {
		e := make([]byte, 16)
		switch p.kind {
		case 1, 2:
			binary.BigEndian.PutUint64(e, cur)
			binary.BigEndian.PutUint32(e[8:], p.crc)
			binary.BigEndian.PutUint16(e[12:], uint16(len(p.data))) //nolint:gosec // hunks are small
			e[14] = byte(len(p.data) >> 16)
			cur += uint64(len(p.data))
			body = append(body, p.data...)
		case 3, 4:
			binary.BigEndian.PutUint64(e, p.target)
		}
		e[15] = p.kind
		mapData = append(mapData, e...)
	}

	var flags uint32
	if len(o.ParentHunks) > 0 {
		flags = chd.FlagHasParent
	}
	var out []byte
	if o.Version == 3 {
		h := chd.HeaderV3{Length: chd.HeaderSizeV3, Version: 3, Flags: flags, Compression: compression,
			TotalHunks: uint32(len(hunks)), LogicalBytes: logical, MetaOffset: metaOffset, //nolint:gosec // small
			HunkBytes: o.HunkBytes, SHA1: digest}
		copy(h.Magic[:], chd.Magic)
		out = encodeBE(tb, &h)
	} else {
		h := chd.HeaderV4{Length: chd.HeaderSizeV4, Version: 4, Flags: flags, Compression: compression,
			TotalHunks: uint32(len(hunks)), LogicalBytes: logical, MetaOffset: metaOffset, //nolint:gosec // small
			HunkBytes: o.HunkBytes, SHA1: digest, RawSHA1: digest}
		copy(h.Magic[:], chd.Magic)
		out = encodeBE(tb, &h)
	}
	out = append(out, mapData...)
	out = append(out, metaBlock...)
	return append(out, body...)
}

func chdV5(tb testing.TB, hunks [][]byte, logical uint64, unitBytes uint32, meta []chd.Metadata, digest [20]byte, o CHDOptions) []byte {
	tb.Helper()
	h := chd.HeaderV5{
		Length:       chd.HeaderSizeV5,
		Version:      5,
		Compressors:  o.Compressors,
		LogicalBytes: logical,
		MapOffset:    chd.HeaderSizeV5,
		HunkBytes:    o.HunkBytes,
		UnitBytes:    unitBytes,
		RawSHA1:      digest,
		SHA1:         digest,
	}
	copy(h.Magic[:], chd.Magic)
	if len(o.ParentHunks) > 0 {
		h.ParentSHA1[0] = 1
	}

	if o.Compressors == [4]uint32{} {
		return chdV5Uncompressed(tb, h, hunks, meta)
	}

	// Plan every hunk, then code the map. Offsets only enter the map CRC,
	// so the data position can be settled after the map size is known.
	seen := map[string]int{}
	plans := make([]hunkPlan, len(hunks))
	var codes []uint8
	var lastSelf uint64
	maxLen, maxSelf := 0, uint64(0)
	for i, hunk := range hunks {
		var p hunkPlan
		code := uint8(0)
		switch j, dup := seen[string(hunk)]; {
		case slices.Contains(o.ParentHunks, i):
			p.kind, code = chd.HunkParent, 11
		case dup && !o.Force:
			p.kind, p.target = chd.HunkSelf, uint64(j)
			switch uint64(j) {
			case lastSelf:
				code = 9
			case lastSelf + 1:
				code = 10
			default:
				code = chd.HunkSelf
				maxSelf = max(maxSelf, uint64(j))
			}
			lastSelf = uint64(j)
		default:
			seen[string(hunk)] = i
			p = hunkPlan{kind: chd.HunkUncompressed, data: hunk, crc: uint32(codec.CRC16(hunk))}
			best := len(hunk)
			if o.Force {
				best = 1 << 30
			}
			for slot, tag := range o.Compressors {
				if tag == chd.CodecNone {
					continue
				}
				if c := Compress(tb, tag, hunk); len(c) < best {
					best = len(c)
					p.kind, p.data = uint8(slot), c //nolint:gosec // four slots
				}
				if o.Force {
					break
				}
			}
			code = p.kind
			if p.kind != chd.HunkUncompressed {
				maxLen = max(maxLen, len(p.data))
			}
		}
		plans[i] = p
		codes = append(codes, code)
	}

	lengthBits, selfBits := bitsFor(uint64(maxLen)), max(bitsFor(maxSelf), 1)
	var w bitWriter
	// Sixteen four-bit codes: symbol i is coded as i.
	w.write(1, 4)
	w.write(4, 4)
	w.write(16-3, 4)
	for i := 0; i < len(codes); {
		w.write(uint64(codes[i]), 4)
		run := 0
		for i+1+run < len(codes) && codes[i+1+run] == codes[i] {
			run++
		}
		i++
		for run >= 3 {
			k := min(run, 3+15)
			w.write(7, 4) // small run
			w.write(uint64(k-3), 4)
			run -= k
			i += k
		}
		for ; run > 0; run-- {
			w.write(uint64(codes[i]), 4)
			i++
		}
	}
	for i, p := range plans {
		switch codes[i] {
		case 0, 1, 2, 3:
			w.write(uint64(len(p.data)), lengthBits)
			w.write(uint64(codec.CRC16(hunks[i])), 16)
		case chd.HunkUncompressed:
			w.write(uint64(p.crc), 16)
		case chd.HunkSelf:
			w.write(p.target, selfBits)
		}
	}
	mapData := w.buf

	metaBase := uint64(chd.HeaderSizeV5 + 16 + len(mapData))
	metaBlock := metadataBlock(tb, meta, metaBase)
	first := metaBase + uint64(len(metaBlock))
	if len(meta) > 0 {
		h.MetaOffset = metaBase
	}

	raw := make([]byte, 0, len(plans)*12)
	var body []byte
	cur := first
	for i, p := range plans {
		var length uint32
		var offset uint64
		var crc uint16
		switch p.kind {
		case chd.HunkSelf:
			offset = p.target
		case chd.HunkParent:
			offset = uint64(i) * uint64(h.HunkBytes/h.UnitBytes)
		default:
			length, offset, crc = uint32(len(p.data)), cur, codec.CRC16(hunks[i]) //nolint:gosec // hunks are small
			if p.kind == chd.HunkUncompressed {
				length = h.HunkBytes
			}
			cur += uint64(len(p.data))
			body = append(body, p.data...)
		}
		raw = append(raw, p.kind, byte(length>>16), byte(length>>8), byte(length))
		for j := range 6 {
			raw = append(raw, byte(offset>>(40-8*j)))
		}
		raw = binary.BigEndian.AppendUint16(raw, crc)
	}

	mh := chd.MapHeaderV5{
		Length:     uint32(len(mapData)), //nolint:gosec // small
		CRC:        codec.CRC16(raw),
		LengthBits: uint8(lengthBits),    //nolint:gosec // at most 32
		SelfBits:   uint8(selfBits),      //nolint:gosec // at most 32
	}
	for j := range 6 {
		mh.FirstOffset[j] = byte(first >> (40 - 8*j))
	}

	out := encodeBE(tb, &h)
	out = append(out, encodeBE(tb, &mh)...)
	out = append(out, mapData...)
	out = append(out, metaBlock...)
	return append(out, body...)
}

func chdV5Uncompressed(tb testing.TB, h chd.HeaderV5, hunks [][]byte, meta []chd.Metadata) []byte {
	tb.Helper()
	hb := uint64(h.HunkBytes)
	metaBase := uint64(chd.HeaderSizeV5 + 4*len(hunks))
	metaBlock := metadataBlock(tb, meta, metaBase)
	if len(meta) > 0 {
		h.MetaOffset = metaBase
	}
	out := encodeBE(tb, &h)
	mapAt := len(out)
	out = append(out, make([]byte, 4*len(hunks))...)
	out = append(out, metaBlock...)
	for len(out)%int(hb) != 0 {
		out = append(out, 0)
	}
	for i, hunk := range hunks {
		if bytes.Count(hunk, []byte{0}) == len(hunk) {
			continue
		}
		binary.BigEndian.PutUint32(out[mapAt+4*i:], uint32(uint64(len(out))/hb)) //nolint:gosec // small
		out = append(out, hunk...)
	}
	return out
}

// CHDTrack describes one track of a synthetic CHD CD.
type CHDTrack struct {
	Type image.TrackType
	// Frames counts the data frames, not the pregap.
	Frames int
	// Cooked stores 2048-byte Mode 1 sectors instead of whole frames.
	Cooked bool
	// Sub is NONE, RW or RW_RAW; empty means NONE.
	Sub          string
	Pregap       int
	PregapStored bool
	Postgap      int
}

// CHDDiscOptions select the metadata flavour of a CHD CD.
type CHDDiscOptions struct {
	CHDOptions
	GDROM bool
	// Old writes the binary CHCD table instead of text tracks.
	Old bool
}

func (t CHDTrack) typeName() string {
	switch t.Type {
	case image.TrackMode1:
		if t.Cooked {
			return "MODE1"
		}
		return "MODE1_RAW"
	case image.TrackMode2Formless:
		return "MODE2_RAW"
	case image.TrackMode2Form1:
		return "MODE2_FORM1"
	}
	return "AUDIO"
}

// CHDFrame returns the 2448 stored bytes of a track's sector at lba.
// Audio is stored big-endian.
func CHDFrame(t CHDTrack, lba int) []byte {
	out := make([]byte, cdsector.RawWithSubSize)
	switch {
	case t.Type == image.TrackMode1 && t.Cooked, t.Type == image.TrackMode2Form1:
		copy(out, Payload(lba, 2048))
	case t.Type == image.TrackMode2Formless:
		copy(out, Frame(image.TrackMode2Form1, lba))
	case t.Type == image.TrackAudio:
		pcm := Payload(lba, cdsector.RawSize)
		for i := 0; i < len(pcm); i += 2 {
			out[i], out[i+1] = pcm[i+1], pcm[i]
		}
	default:
		copy(out, Frame(t.Type, lba))
	}
	switch t.Sub {
	case "RW":
		copy(out[cdsector.RawSize:], cdsector.Interleave(Sub(lba)))
	case "RW_RAW":
		copy(out[cdsector.RawSize:], Sub(lba))
	}
	return out
}

// CHDDisc builds a CD (or GD-ROM) image. Sectors are addressed from zero
// with unstored gaps counted, and hold CHDFrame data.
func CHDDisc(tb testing.TB, tracks []CHDTrack, o CHDDiscOptions) []byte {
	tb.Helper()
	if o.HunkBytes == 0 {
		o.HunkBytes = 8 * cdsector.RawWithSubSize
	}
	var (
		data []byte
		meta []chd.Metadata
		old  = binary.BigEndian.AppendUint32(nil, uint32(len(tracks))) //nolint:gosec // small
		lba  int
	)
	for i, t := range tracks {
		if t.Sub == "" {
			t.Sub = "NONE"
		}
		frames := t.Frames
		pgType := t.typeName()
		if t.PregapStored {
			frames += t.Pregap
			pgType = "V" + pgType
		}
		if !t.PregapStored {
			lba += t.Pregap
		}
		for range frames {
			data = append(data, CHDFrame(t, lba)...)
			lba++
		}
		lba += t.Postgap
		pad := (4 - frames%4) % 4
		data = append(data, make([]byte, pad*cdsector.RawWithSubSize)...)

		switch {
		case o.Old:
			old = binary.BigEndian.AppendUint32(old, uint32(slices.Index(oldTypes, t.typeName()))) //nolint:gosec // small
			old = binary.BigEndian.AppendUint32(old, uint32(slices.Index([]string{"RW", "RW_RAW", "NONE"}, t.Sub))) //nolint:gosec // small
			old = binary.BigEndian.AppendUint32(old, 0)
			old = binary.BigEndian.AppendUint32(old, 0)
			old = binary.BigEndian.AppendUint32(old, uint32(frames)) //nolint:gosec // small
			old = binary.BigEndian.AppendUint32(old, uint32(pad))    //nolint:gosec // small
		case o.GDROM:
			meta = append(meta, chd.Metadata{Tag: chd.MetaGDROM, Flags: 1, Data: fmt.Appendf(nil,
				"TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d PAD:%d PREGAP:%d PGTYPE:%s PGSUB:%s POSTGAP:%d\x00",
				i+1, t.typeName(), t.Sub, frames, pad, t.Pregap, pgType, t.Sub, t.Postgap)})
		default:
			meta = append(meta, chd.Metadata{Tag: chd.MetaCDTrack2, Flags: 1, Data: fmt.Appendf(nil,
				"TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d PREGAP:%d PGTYPE:%s PGSUB:%s POSTGAP:%d\x00",
				i+1, t.typeName(), t.Sub, frames, t.Pregap, pgType, t.Sub, t.Postgap)})
		}
	}
	if o.Old {
		meta = []chd.Metadata{{Tag: chd.MetaCDROMOld, Data: old}}
	}
	return CHD(tb, data, cdsector.RawWithSubSize, meta, o.CHDOptions)
}

var oldTypes = []string{"MODE1", "MODE1_RAW", "MODE2", "MODE2_FORM1", "MODE2_FORM2", "MODE2_FORM_MIX", "MODE2_RAW", "AUDIO"}

// CHDDisk builds a hard disk image whose sector lba holds Payload(lba, bps).
func CHDDisk(tb testing.TB, cyls, heads, secs, bps int, o CHDOptions) []byte {
	tb.Helper()
	n := cyls * heads * secs
	data := make([]byte, 0, n*bps)
	for lba := range n {
		data = append(data, Payload(lba, bps)...)
	}
	meta := []chd.Metadata{{Tag: chd.MetaHardDisk, Flags: 1,
		Data: fmt.Appendf(nil, "CYLS:%d,HEADS:%d,SECS:%d,BPS:%d\x00", cyls, heads, secs, bps)}}
	return CHD(tb, data, uint32(bps), meta, o) //nolint:gosec // small
}

// CHDDVD builds a DVD image whose sector lba holds Payload(lba, 2048).
func CHDDVD(tb testing.TB, sectors int, o CHDOptions) []byte {
	tb.Helper()
	data := make([]byte, 0, sectors*2048)
	for lba := range sectors {
		data = append(data, Payload(lba, 2048)...)
	}
	return CHD(tb, data, 2048, []chd.Metadata{{Tag: chd.MetaDVD, Data: []byte{0}}}, o)
}
