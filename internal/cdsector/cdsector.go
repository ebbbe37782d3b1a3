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

// Package cdsector knows the layout of 2352-byte CD frames: where user data
// and tags live for each track mode, how the P-W subchannel is interleaved,
// and how the EDC and ECC fields are computed.
package cdsector

import (
	"fmt"

	"github.com/ZaparooProject/go-mediaimage/image"
)

// Frame sizes.
const (
	RawSize        = 2352
	SubchannelSize = 96
	RawWithSubSize = RawSize + SubchannelSize
	SyncSize       = 12
	HeaderSize     = 4
	SubHeaderSize  = 8
)

// Sync is the sync pattern that opens every data frame.
var Sync = [SyncSize]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// UserData returns the offset and length of the user data in a raw frame.
func UserData(t image.TrackType) (offset, length int) {
	switch t {
	case image.TrackMode1:
		return 16, 2048
	case image.TrackMode2Formless:
		return 16, 2336
	case image.TrackMode2Form1:
		return 24, 2048
	case image.TrackMode2Form2:
		return 24, 2324
	default:
		return 0, RawSize
	}
}

// CookedSize returns the user data size of a track type.
func CookedSize(t image.TrackType) uint32 {
	_, n := UserData(t)
	return uint32(n) //nolint:gosec // at most 2352
}

// Cook extracts the user data from a raw frame.
func Cook(t image.TrackType, frame []byte) []byte {
	off, n := UserData(t)
	return frame[off : off+n]
}

type region struct{ off, n int }

var tagRegions = map[image.TrackType]map[image.SectorTag]region{
	image.TrackMode1: {
		image.TagCDSync:   {0, 12},
		image.TagCDHeader: {12, 4},
		image.TagCDEDC:    {2064, 4},
		image.TagCDECC:    {2076, 276},
		image.TagCDECCP:   {2076, 172},
		image.TagCDECCQ:   {2248, 104},
	},
	image.TrackMode2Formless: {
		image.TagCDSync:   {0, 12},
		image.TagCDHeader: {12, 4},
	},
	image.TrackMode2Form1: {
		image.TagCDSync:      {0, 12},
		image.TagCDHeader:    {12, 4},
		image.TagCDSubHeader: {16, 8},
		image.TagCDEDC:       {2072, 4},
		image.TagCDECC:       {2076, 276},
		image.TagCDECCP:      {2076, 172},
		image.TagCDECCQ:      {2248, 104},
	},
	image.TrackMode2Form2: {
		image.TagCDSync:      {0, 12},
		image.TagCDHeader:    {12, 4},
		image.TagCDSubHeader: {16, 8},
		image.TagCDEDC:       {2348, 4},
	},
}

// Tag extracts a tag region from a raw frame of the given track type.
func Tag(t image.TrackType, frame []byte, tag image.SectorTag) ([]byte, error) {
	r, ok := tagRegions[t][tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s track", image.ErrTagNotSupported, tag, t)
	}
	return frame[r.off : r.off+r.n], nil
}

// Tags lists the frame tags a track type carries.
func Tags(t image.TrackType) []image.SectorTag {
	var tags []image.SectorTag
	for _, tag := range image.CDTags {
		if _, ok := tagRegions[t][tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Interleave packs the eight 12-byte subchannel planes P..W into 96 bytes
// of interleaved subchannel, one bit of each plane per byte.
func Interleave(planes []byte) []byte {
	out := make([]byte, SubchannelSize)
	for i := range SubchannelSize {
		var b byte
		for c := range 8 {
			bit := planes[c*12+i/8] >> (7 - uint(i%8)) & 1
			b |= bit << (7 - uint(c))
		}
		out[i] = b
	}
	return out
}

// Deinterleave is the inverse of Interleave.
func Deinterleave(packed []byte) []byte {
	out := make([]byte, SubchannelSize)
	for i := range SubchannelSize {
		for c := range 8 {
			bit := packed[i] >> (7 - uint(c)) & 1
			out[c*12+i/8] |= bit << (7 - uint(i%8))
		}
	}
	return out
}

// SubchannelQ returns the 12-byte Q plane of an interleaved subchannel.
func SubchannelQ(packed []byte) []byte {
	return Deinterleave(packed)[12:24]
}
