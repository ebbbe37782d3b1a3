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

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

// Magic opens every CHD file.
const Magic = "MComprHD"

// Header sizes per version.
const (
	HeaderSizeV1 = 76
	HeaderSizeV2 = 80
	HeaderSizeV3 = 120
	HeaderSizeV4 = 108
	HeaderSizeV5 = 124
)

// FlagHasParent marks a v3/v4 image that depends on a parent image.
const FlagHasParent = 0x00000001

// Allocation limits for hostile input.
const (
	MaxHunks           = 10_000_000
	MaxHunkBytes       = 1 << 24
	MaxCompressedMap   = 100 << 20
	MaxMetadataLen     = 1 << 24
	MaxMetadataEntries = 1000
	MaxTracks          = 200
)

var order = binary.BigEndian

var headerSizes = map[uint32]uint32{
	1: HeaderSizeV1,
	2: HeaderSizeV2,
	3: HeaderSizeV3,
	4: HeaderSizeV4,
	5: HeaderSizeV5,
}

// Preamble is the part shared by every header version.
type Preamble struct {
	Magic   [8]byte
	Length  uint32
	Version uint32
}

// HeaderV3 is the version 3 header.
type HeaderV3 struct {
	Magic        [8]byte
	Length       uint32
	Version      uint32
	Flags        uint32
	Compression  uint32
	TotalHunks   uint32
	LogicalBytes uint64
	MetaOffset   uint64
	MD5          [16]byte
	ParentMD5    [16]byte
	HunkBytes    uint32
	SHA1         [20]byte
	ParentSHA1   [20]byte
}

// HeaderV4 is the version 4 header.
type HeaderV4 struct {
	Magic        [8]byte
	Length       uint32
	Version      uint32
	Flags        uint32
	Compression  uint32
	TotalHunks   uint32
	LogicalBytes uint64
	MetaOffset   uint64
	HunkBytes    uint32
	SHA1         [20]byte
	ParentSHA1   [20]byte
	RawSHA1      [20]byte
}

// HeaderV5 is the version 5 header.
type HeaderV5 struct {
	Magic        [8]byte
	Length       uint32
	Version      uint32
	Compressors  [4]uint32
	LogicalBytes uint64
	MapOffset    uint64
	MetaOffset   uint64
	HunkBytes    uint32
	UnitBytes    uint32
	RawSHA1      [20]byte
	SHA1         [20]byte
	ParentSHA1   [20]byte
}

// Header is the version-independent view of a CHD header. Version 3 and 4
// compression types are translated to codec tags in Compressors[0].
type Header struct {
	Version      uint32
	Length       uint32
	Flags        uint32
	Compressors  [4]uint32
	LogicalBytes uint64
	MapOffset    uint64
	MetaOffset   uint64
	HunkBytes    uint32
	// UnitBytes is zero for v3/v4 headers until the metadata is read.
	UnitBytes  uint32
	TotalHunks uint32
	RawSHA1    [20]byte
	SHA1       [20]byte
	ParentSHA1 [20]byte
}

// HasParent reports whether hunks may refer to a parent image.
func (h *Header) HasParent() bool {
	if h.Version >= 5 {
		return h.ParentSHA1 != [20]byte{}
	}
	return h.Flags&FlagHasParent != 0
}

// DataSHA1 returns the stored digest of the logical bytes: the raw SHA-1
// from version 4 on, the plain SHA-1 before.
func (h *Header) DataSHA1() [20]byte {
	if h.Version == 3 {
		return h.SHA1
	}
	return h.RawSHA1
}

// v34Codec maps the legacy compression field to a codec tag.
func v34Codec(compression uint32) (uint32, error) {
	switch compression {
	case 0:
		return CodecNone, nil
	case 1, 2: // zlib, zlib+
		return CodecZlib, nil
	default:
		return 0, fmt.Errorf("%w: legacy compression %d", image.ErrUnsupportedVariant, compression)
	}
}

// DecodeHeader decodes a header of any supported version from the start
// of data.
func DecodeHeader(data []byte) (*Header, error) {
	var pre Preamble
	if err := codec.Decode(data, order, &pre); err != nil {
		return nil, err
	}
	if string(pre.Magic[:]) != Magic {
		return nil, image.ErrNotThisFormat
	}

	want := headerSizes[pre.Version]
	if want == 0 || pre.Version < 3 {
		return nil, fmt.Errorf("%w: version %d", image.ErrUnsupportedVariant, pre.Version)
	}
	if pre.Length != want {
		return nil, fmt.Errorf("%w: version %d header of %d bytes", image.ErrCorruptStructure, pre.Version, pre.Length)
	}

	h := &Header{Version: pre.Version, Length: pre.Length}
	switch pre.Version {
	case 3:
		var v HeaderV3
		if err := codec.Decode(data, order, &v); err != nil {
			return nil, err
		}
		h.Flags, h.TotalHunks, h.LogicalBytes = v.Flags, v.TotalHunks, v.LogicalBytes
		h.MetaOffset, h.HunkBytes = v.MetaOffset, v.HunkBytes
		h.SHA1, h.ParentSHA1 = v.SHA1, v.ParentSHA1
		tag, err := v34Codec(v.Compression)
		if err != nil {
			return nil, err
		}
		h.Compressors[0] = tag
	case 4:
		var v HeaderV4
		if err := codec.Decode(data, order, &v); err != nil {
			return nil, err
		}
		h.Flags, h.TotalHunks, h.LogicalBytes = v.Flags, v.TotalHunks, v.LogicalBytes
		h.MetaOffset, h.HunkBytes = v.MetaOffset, v.HunkBytes
		h.SHA1, h.ParentSHA1, h.RawSHA1 = v.SHA1, v.ParentSHA1, v.RawSHA1
		tag, err := v34Codec(v.Compression)
		if err != nil {
			return nil, err
		}
		h.Compressors[0] = tag
	case 5:
		var v HeaderV5
		if err := codec.Decode(data, order, &v); err != nil {
			return nil, err
		}
		h.Compressors, h.LogicalBytes, h.MapOffset = v.Compressors, v.LogicalBytes, v.MapOffset
		h.MetaOffset, h.HunkBytes, h.UnitBytes = v.MetaOffset, v.HunkBytes, v.UnitBytes
		h.RawSHA1, h.SHA1, h.ParentSHA1 = v.RawSHA1, v.SHA1, v.ParentSHA1
	}
	if pre.Version < 5 {
		// The v3/v4 map follows the header.
		h.MapOffset = uint64(pre.Length)
	}

	if h.HunkBytes == 0 || h.HunkBytes > MaxHunkBytes {
		return nil, fmt.Errorf("%w: hunk size %d", image.ErrCorruptStructure, h.HunkBytes)
	}
	hunks := (h.LogicalBytes + uint64(h.HunkBytes) - 1) / uint64(h.HunkBytes)
	if pre.Version == 5 {
		if h.UnitBytes == 0 || h.HunkBytes%h.UnitBytes != 0 {
			return nil, fmt.Errorf("%w: hunk size %d is not a multiple of unit size %d",
				image.ErrCorruptStructure, h.HunkBytes, h.UnitBytes)
		}
		if hunks > MaxHunks {
			return nil, fmt.Errorf("%w: %d hunks", image.ErrCorruptStructure, hunks)
		}
		h.TotalHunks = uint32(hunks) //nolint:gosec // bounded by MaxHunks
	} else if uint64(h.TotalHunks) < hunks || h.TotalHunks > MaxHunks {
		return nil, fmt.Errorf("%w: %d hunks hold %d logical bytes", image.ErrCorruptStructure, h.TotalHunks, h.LogicalBytes)
	}
	return h, nil
}
