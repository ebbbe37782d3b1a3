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

package alcohol

import (
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

// Sizes of the fixed descriptor blocks.
const (
	HeaderSize  = 0x58
	SessionSize = 0x18
	TrackSize   = 0x50
	ExtraSize   = 0x08
	FooterSize  = 0x10
)

// Signature opens every descriptor.
const Signature = "MEDIA DESCRIPTOR"

// Medium types.
const (
	MediumCDROM  = 0x00
	MediumCDR    = 0x01
	MediumCDRW   = 0x02
	MediumDVDROM = 0x10
	MediumDVDR   = 0x12
)

// Track modes after clearing the 0x40 flag bit.
const (
	ModeNone   = 0x00
	ModeDVD    = 0x02
	ModeAudio  = 0xA9
	ModeMode1  = 0xAA
	ModeMode2  = 0xAB
	ModeForm1  = 0xAC
	ModeForm2  = 0xAD
	modeFlag   = 0x40
	subModeSub = 0x08
)

// firstLeadIn is the lowest TOC point that does not name a track.
const firstLeadIn = 0xA0

var order = binary.LittleEndian

// Header is the descriptor file header.
type Header struct {
	Signature            [16]byte
	VersionMajor         uint8
	VersionMinor         uint8
	MediumType           uint16
	Sessions             uint16
	Unknown1             [2]uint16
	BCALength            uint16
	Unknown2             [2]uint32
	BCAOffset            uint32
	Unknown3             [6]uint32
	DiscStructuresOffset uint32
	Unknown4             [3]uint32
	SessionsOffset       uint32
	DPMOffset            uint32
}

// Session is one session block.
type Session struct {
	Start          int32
	End            int32
	Sequence       uint16
	AllBlocks      uint8
	NonTrackBlocks uint8
	FirstTrack     uint16
	LastTrack      uint16
	Unknown        uint32
	TrackOffset    uint32
}

// Track is one track block. Blocks with Point >= 0xA0 describe the lead-in.
type Track struct {
	Mode         uint8
	SubMode      uint8
	ADRCtl       uint8
	TNO          uint8
	Point        uint8
	Min          uint8
	Sec          uint8
	Frame        uint8
	Zero         uint8
	PMin         uint8
	PSec         uint8
	PFrame       uint8
	ExtraOffset  uint32
	SectorSize   uint16
	Unknown1     [18]byte
	StartLBA     uint32
	StartOffset  uint64
	Files        uint32
	FooterOffset uint32
	Unknown2     [24]byte
}

// Extra holds the pregap and length of a track.
type Extra struct {
	Pregap  uint32
	Sectors uint32
}

// Footer names the data file of a track.
type Footer struct {
	FilenameOffset uint32
	WideChar       uint32
	Unknown        [2]uint32
}

// Descriptor is a fully decoded .mds file.
type Descriptor struct {
	Header   Header
	Sessions []Session
	// Tracks holds the data track blocks of each session, lead-in skipped.
	Tracks   [][]Track
	Extras   map[uint32]Extra
	Filename string
}

// DecodeHeader decodes and checks the header at the start of data.
func DecodeHeader(data []byte) (*Header, error) {
	h := &Header{}
	if err := codec.Decode(data, order, h); err != nil {
		return nil, err
	}
	if string(h.Signature[:]) != Signature {
		return nil, fmt.Errorf("%w: bad signature", image.ErrNotThisFormat)
	}
	return h, nil
}

// EncodeHeader is the inverse of DecodeHeader.
func EncodeHeader(h *Header) ([]byte, error) {
	return codec.Encode(order, h)
}

// parse decodes the whole descriptor held in data.
func parse(data []byte) (*Descriptor, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.VersionMajor != 1 {
		return nil, fmt.Errorf("%w: version %d.%d", image.ErrUnsupportedVariant, h.VersionMajor, h.VersionMinor)
	}
	if h.Sessions == 0 {
		return nil, fmt.Errorf("%w: no sessions", image.ErrCorruptStructure)
	}
	d := &Descriptor{Header: *h, Extras: map[uint32]Extra{}}

	at := func(off uint32, n int) ([]byte, error) {
		if uint64(off)+uint64(n) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: block of %d bytes at 0x%x past the end of the descriptor",
				image.ErrCorruptStructure, n, off)
		}
		return data[off : int(off)+n], nil
	}

	if int(h.Sessions)*SessionSize > len(data) {
		return nil, fmt.Errorf("%w: %d sessions", image.ErrCorruptStructure, h.Sessions)
	}
	for i := range int(h.Sessions) {
		b, err := at(h.SessionsOffset+uint32(i*SessionSize), SessionSize) //nolint:gosec // bounded above
		if err != nil {
			return nil, err
		}
		var s Session
		if err := codec.Decode(b, order, &s); err != nil {
			return nil, err
		}
		d.Sessions = append(d.Sessions, s)

		var tracks []Track
		for j := range int(s.AllBlocks) {
			b, err := at(s.TrackOffset+uint32(j*TrackSize), TrackSize) //nolint:gosec // at most 255 blocks
			if err != nil {
				return nil, err
			}
			var t Track
			if err := codec.Decode(b, order, &t); err != nil {
				return nil, err
			}
			if t.Point >= firstLeadIn {
				continue
			}
			tracks = append(tracks, t)
			if t.ExtraOffset != 0 {
				b, err := at(t.ExtraOffset, ExtraSize)
				if err != nil {
					return nil, err
				}
				var e Extra
				if err := codec.Decode(b, order, &e); err != nil {
					return nil, err
				}
				d.Extras[t.ExtraOffset] = e
			}
			if d.Filename == "" && t.Files > 0 && t.FooterOffset != 0 {
				if d.Filename, err = filename(data, t.FooterOffset); err != nil {
					return nil, err
				}
			}
		}
		d.Tracks = append(d.Tracks, tracks)
	}
	return d, nil
}

func filename(data []byte, footerOffset uint32) (string, error) {
	if uint64(footerOffset)+FooterSize > uint64(len(data)) {
		return "", fmt.Errorf("%w: footer at 0x%x", image.ErrCorruptStructure, footerOffset)
	}
	var f Footer
	if err := codec.Decode(data[footerOffset:], order, &f); err != nil {
		return "", err
	}
	if uint64(f.FilenameOffset) >= uint64(len(data)) {
		return "", fmt.Errorf("%w: file name at 0x%x", image.ErrCorruptStructure, f.FilenameOffset)
	}
	raw := data[f.FilenameOffset:]
	if f.WideChar&0xFF != 0 {
		return codec.UTF16LE(raw), nil
	}
	return codec.CString(raw), nil
}
