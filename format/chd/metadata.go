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
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

// Metadata tags.
const (
	MetaHardDisk  uint32 = 0x47444444 // GDDD
	MetaCDROMOld  uint32 = 0x43484344 // CHCD
	MetaCDTrack   uint32 = 0x43485452 // CHTR
	MetaCDTrack2  uint32 = 0x43485432 // CHT2
	MetaGDROM     uint32 = 0x43484744 // CHGD
	MetaDVD       uint32 = 0x44564420 // "DVD "
	metaEntrySize        = 16
)

// MetadataHeader precedes every entry of the metadata chain.
type MetadataHeader struct {
	Tag    uint32
	Flags  uint8
	Length [3]byte
	Next   uint64
}

// Metadata is one entry of the chain.
type Metadata struct {
	Tag   uint32
	Flags uint8
	Data  []byte
}

// ReadMetadata walks the metadata chain starting at offset.
func ReadMetadata(r io.ReaderAt, offset uint64) ([]Metadata, error) {
	var entries []Metadata
	seen := map[uint64]bool{}
	for offset != 0 {
		if seen[offset] {
			return nil, fmt.Errorf("%w: metadata chain loops at 0x%x", image.ErrCorruptStructure, offset)
		}
		seen[offset] = true
		if len(entries) >= MaxMetadataEntries {
			return nil, fmt.Errorf("%w: more than %d metadata entries", image.ErrCorruptStructure, MaxMetadataEntries)
		}

		var h MetadataHeader
		if err := codec.ReadStruct(r, int64(offset), order, &h); err != nil { //nolint:gosec // bounded by the file
			return nil, fmt.Errorf("metadata at 0x%x: %w", offset, err)
		}
		length := int(h.Length[0])<<16 | int(h.Length[1])<<8 | int(h.Length[2])
		if length > MaxMetadataLen {
			return nil, fmt.Errorf("%w: metadata entry of %d bytes", image.ErrCorruptStructure, length)
		}
		data, err := codec.ReadAt(r, int64(offset)+metaEntrySize, length) //nolint:gosec // bounded by the file
		if err != nil {
			return nil, fmt.Errorf("metadata at 0x%x: %w", offset, err)
		}
		entries = append(entries, Metadata{Tag: h.Tag, Flags: h.Flags, Data: data})
		offset = h.Next
	}
	return entries, nil
}

// Track is a CD or GD-ROM track as the metadata describes it. Frames
// includes the pregap when PregapType starts with V.
type Track struct {
	Number     int
	Type       string
	SubType    string
	Frames     int
	Pad        int
	HasPad     bool
	Pregap     int
	PregapType string
	PregapSub  string
	Postgap    int
}

// PregapStored reports whether the pregap frames are in the hunk data.
func (t Track) PregapStored() bool {
	return strings.HasPrefix(t.PregapType, "V")
}

// fields splits "KEY:value" pairs separated by sep.
func fields(data []byte, sep func(rune) bool) map[string]string {
	out := map[string]string{}
	for _, f := range strings.FieldsFunc(codec.CString(data), sep) {
		k, v, ok := strings.Cut(f, ":")
		if ok {
			out[strings.ToUpper(k)] = v
		}
	}
	return out
}

func intField(f map[string]string, key string, required bool) (int, error) {
	v, ok := f[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("%w: no %s field", image.ErrCorruptStructure, key)
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s:%q", image.ErrCorruptStructure, key, v)
	}
	return n, nil
}

// ParseTrack parses CHTR, CHT2 and CHGD text.
func ParseTrack(data []byte) (Track, error) {
	f := fields(data, func(r rune) bool { return r == ' ' })
	var (
		t   Track
		err error
	)
	if t.Number, err = intField(f, "TRACK", true); err != nil {
		return t, err
	}
	if t.Frames, err = intField(f, "FRAMES", true); err != nil {
		return t, err
	}
	if t.Pregap, err = intField(f, "PREGAP", false); err != nil {
		return t, err
	}
	if t.Postgap, err = intField(f, "POSTGAP", false); err != nil {
		return t, err
	}
	if _, t.HasPad = f["PAD"]; t.HasPad {
		if t.Pad, err = intField(f, "PAD", true); err != nil {
			return t, err
		}
	}
	t.Type, t.SubType = f["TYPE"], f["SUBTYPE"]
	t.PregapType, t.PregapSub = f["PGTYPE"], f["PGSUB"]
	if t.Type == "" {
		return t, fmt.Errorf("%w: track %d has no type", image.ErrCorruptStructure, t.Number)
	}
	if t.SubType == "" {
		t.SubType = "NONE"
	}
	return t, nil
}

var (
	oldTrackTypes = []string{"MODE1", "MODE1_RAW", "MODE2", "MODE2_FORM1", "MODE2_FORM2", "MODE2_FORM_MIX", "MODE2_RAW", "AUDIO"}
	oldSubTypes   = []string{"RW", "RW_RAW", "NONE"}
)

const (
	oldTrackSize = 24
	maxOldTracks = 99
)

// ParseOldCD parses the binary CHCD table: a track count, then per track
// type, subtype, data size, subcode size, frames and padding frames.
// The table was written in host order, so a count that only makes sense
// little-endian selects that order.
func ParseOldCD(data []byte) ([]Track, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: CD table of %d bytes", image.ErrTruncatedInput, len(data))
	}
	get := order.Uint32
	count := get(data)
	if count > maxOldTracks {
		get = binary.LittleEndian.Uint32
		count = get(data)
	}
	if count == 0 || count > maxOldTracks {
		return nil, fmt.Errorf("%w: %d tracks", image.ErrCorruptStructure, count)
	}
	if len(data) < 4+int(count)*oldTrackSize {
		return nil, fmt.Errorf("%w: CD table of %d bytes for %d tracks", image.ErrTruncatedInput, len(data), count)
	}
	tracks := make([]Track, count)
	for i := range tracks {
		b := data[4+i*oldTrackSize:]
		typ, sub := get(b), get(b[4:])
		if int(typ) >= len(oldTrackTypes) || int(sub) >= len(oldSubTypes) {
			return nil, fmt.Errorf("%w: track %d type %d subtype %d", image.ErrCorruptStructure, i+1, typ, sub)
		}
		tracks[i] = Track{
			Number:  i + 1,
			Type:    oldTrackTypes[typ],
			SubType: oldSubTypes[sub],
			Frames:  int(get(b[16:])),
			Pad:     int(get(b[20:])),
			HasPad:  true,
		}
	}
	return tracks, nil
}

// trackFormat maps a metadata type name to the track type, its sector
// size and whether frames are stored whole.
func trackFormat(name string) (image.TrackType, uint32, bool, error) {
	switch name {
	case "MODE1", "MODE1/2048":
		return image.TrackMode1, 2048, false, nil
	case "MODE1_RAW", "MODE1/2352":
		return image.TrackMode1, 2352, true, nil
	case "MODE2", "MODE2_FORM_MIX", "MODE2/2336":
		return image.TrackMode2Formless, 2336, false, nil
	case "MODE2_FORM1", "MODE2/2048":
		return image.TrackMode2Form1, 2048, false, nil
	case "MODE2_FORM2", "MODE2/2324":
		return image.TrackMode2Form2, 2324, false, nil
	case "MODE2_RAW", "MODE2/2352", "CDI/2352":
		return image.TrackMode2Formless, 2352, true, nil
	case "AUDIO":
		return image.TrackAudio, 2352, true, nil
	}
	return "", 0, false, fmt.Errorf("%w: track type %q", image.ErrUnsupportedVariant, name)
}

// Geometry is the hard disk layout of a GDDD entry.
type Geometry struct {
	Cylinders, Heads, Sectors, BytesPerSector uint32
}

// ParseGeometry parses "CYLS:%d,HEADS:%d,SECS:%d,BPS:%d".
func ParseGeometry(data []byte) (Geometry, error) {
	f := fields(data, func(r rune) bool { return r == ',' || r == ' ' })
	var g Geometry
	for _, p := range []struct {
		key string
		dst *uint32
	}{{"CYLS", &g.Cylinders}, {"HEADS", &g.Heads}, {"SECS", &g.Sectors}, {"BPS", &g.BytesPerSector}} {
		n, err := intField(f, p.key, true)
		if err != nil {
			return g, err
		}
		if n > 1<<31 {
			return g, fmt.Errorf("%w: %s:%d", image.ErrCorruptStructure, p.key, n)
		}
		*p.dst = uint32(n) //nolint:gosec // checked above
	}
	if g.BytesPerSector == 0 {
		return g, fmt.Errorf("%w: zero bytes per sector", image.ErrCorruptStructure)
	}
	return g, nil
}
