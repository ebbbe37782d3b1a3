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

// Package diskcopy42 reads and writes Apple Disk Copy 4.2 floppy images:
// an 84-byte big-endian header followed by the sector data and, for GCR
// disks, 12 bytes of tag data per sector.
package diskcopy42

import (
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

// Header layout constants.
const (
	HeaderSize    = 84
	SectorSize    = 512
	TagSize       = 12
	privateMagic  = 0x0100
	maxNameLength = 63
)

// Disk formats.
const (
	Format400K  uint8 = 0
	Format800K  uint8 = 1
	Format720K  uint8 = 2
	Format1440K uint8 = 3
	Format1680K uint8 = 4
)

// Header is the on-disk header.
type Header struct {
	// Name is a Pascal string: a length byte then up to 63 Mac OS Roman bytes.
	Name         [64]byte
	DataSize     uint32
	TagSize      uint32
	DataChecksum uint32
	TagChecksum  uint32
	Format       uint8
	FormatByte   uint8
	Private      uint16
}

// DiskName returns the decoded volume name.
func (h *Header) DiskName() string {
	return codec.PascalString(h.Name[:])
}

// DecodeHeader parses the first HeaderSize bytes of data.
func DecodeHeader(data []byte) (*Header, error) {
	h := &Header{}
	if err := codec.Decode(data, binary.BigEndian, h); err != nil {
		return nil, err
	}
	return h, nil
}

// EncodeHeader serialises h.
func EncodeHeader(h *Header) ([]byte, error) {
	return codec.Encode(binary.BigEndian, h)
}

// check validates the header against the total size of the image file.
func (h *Header) check(fileSize int64) error {
	switch {
	case h.Private != privateMagic:
		return fmt.Errorf("%w: private word 0x%04x", image.ErrNotThisFormat, h.Private)
	case h.Name[0] > maxNameLength:
		return fmt.Errorf("%w: name length %d", image.ErrNotThisFormat, h.Name[0])
	case h.DataSize == 0 || h.DataSize%SectorSize != 0:
		return fmt.Errorf("%w: data size %d", image.ErrNotThisFormat, h.DataSize)
	case h.TagSize != 0 && h.TagSize != h.DataSize/SectorSize*TagSize:
		return fmt.Errorf("%w: tag size %d for %d sectors", image.ErrNotThisFormat, h.TagSize, h.DataSize/SectorSize)
	}
	want := int64(HeaderSize) + int64(h.DataSize) + int64(h.TagSize)
	switch {
	case fileSize < want:
		return fmt.Errorf("%w: header describes %d bytes, file has %d", image.ErrTruncatedInput, want, fileSize)
	case fileSize > want:
		return fmt.Errorf("%w: header describes %d bytes, file has %d", image.ErrNotThisFormat, want, fileSize)
	}
	return nil
}

type geometry struct {
	media     image.MediaType
	sectors   uint32
	cylinders uint32
	heads     uint32
	spt       uint32
	fmtByte   uint8
}

// Apple GCR disks have a variable number of sectors per track; spt is the
// average reported for them.
var geometries = map[uint8]geometry{
	Format400K:  {image.MediaAppleSonySS, 800, 80, 1, 10, 0x12},
	Format800K:  {image.MediaAppleSonyDS, 1600, 80, 2, 10, 0x22},
	Format720K:  {image.MediaDOS35DSDD9, 1440, 80, 2, 9, 0x22},
	Format1440K: {image.MediaDOS35HD, 2880, 80, 2, 18, 0x22},
	Format1680K: {image.MediaDMF, 3360, 80, 2, 21, 0x22},
}

// TagChecksum computes the tag checksum, which skips the first sector's tag.
func TagChecksum(tags []byte) uint32 {
	if len(tags) <= TagSize {
		return 0
	}
	return codec.DiskCopyChecksum(tags[TagSize:])
}
