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

// Package iso9660 reads the volume descriptors of an ISO9660 file system
// stored in an opened media image.
package iso9660

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

// ErrNoVolume is returned when the image holds no primary volume descriptor.
var ErrNoVolume = errors.New("no ISO9660 primary volume descriptor")

const (
	// BlockSize is the size of a volume descriptor sector.
	BlockSize = 2048
	// FirstDescriptor is the block of the first volume descriptor.
	FirstDescriptor = 16

	maxDescriptors = 32
	mode2SubHeader = 8
)

// Descriptor types.
const (
	TypeBoot          = 0
	TypePrimary       = 1
	TypeSupplementary = 2
	TypePartition     = 3
	TypeTerminator    = 255
)

// Magic identifies a volume descriptor.
const Magic = "CD001"

// PrimaryDescriptor is the layout of a primary volume descriptor. Both-endian
// fields keep their big-endian copy.
type PrimaryDescriptor struct {
	Type              uint8
	Magic             [5]byte
	Version           uint8
	Unused1           uint8
	System            [32]byte
	Volume            [32]byte
	Unused2           [8]byte
	SpaceSize         uint32
	SpaceSizeBE       uint32 `struct:"big"`
	Escapes           [32]byte
	SetSize           uint16
	SetSizeBE         uint16 `struct:"big"`
	SequenceNumber    uint16
	SequenceNumberBE  uint16 `struct:"big"`
	LogicalBlockSize  uint16
	LogicalBlockBE    uint16 `struct:"big"`
	PathTableSize     uint32
	PathTableSizeBE   uint32 `struct:"big"`
	PathTableL        uint32
	PathTableLOpt     uint32
	PathTableM        uint32 `struct:"big"`
	PathTableMOpt     uint32 `struct:"big"`
	RootRecord        [34]byte
	VolumeSet         [128]byte
	Publisher         [128]byte
	Preparer          [128]byte
	Application       [128]byte
	CopyrightFile     [37]byte
	AbstractFile      [37]byte
	BibliographicFile [37]byte
	Created           [17]byte
	Modified          [17]byte
	Expires           [17]byte
	Effective         [17]byte
	FileStructure     uint8
}

// Volume holds the identifiers of a primary volume descriptor.
type Volume struct {
	SystemID      string `json:"systemId"`
	VolumeID      string `json:"volumeId"`
	VolumeSetID   string `json:"volumeSetId,omitempty"`
	PublisherID   string `json:"publisherId,omitempty"`
	PreparerID    string `json:"preparerId,omitempty"`
	ApplicationID string `json:"applicationId,omitempty"`
	// Created is the creation date as stored, YYYYMMDDHHMMSScc.
	Created   string `json:"created,omitempty"`
	SpaceSize uint32 `json:"spaceSize"`
	BlockSize uint16 `json:"blockSize"`
	// Joliet is set when a supplementary descriptor declares UCS-2 names.
	Joliet bool `json:"joliet,omitempty"`
	// Block is the address of the descriptor relative to the first sector
	// of the track it was found in.
	Block uint64 `json:"block"`
}

// UUID formats the creation date as XXXX-XX-XX-XX-XX-XX-XX, the form disc
// databases use to tell pressings apart.
func (v *Volume) UUID() string {
	id := v.Created
	if len(id) < 4 {
		return id
	}
	var sb strings.Builder
	sb.WriteString(id[:4])
	for i := 4; i < len(id); i += 2 {
		sb.WriteByte('-')
		sb.WriteString(id[i:min(i+2, len(id))])
	}
	return sb.String()
}

type blockReader func(block uint64) ([]byte, error)

// Probe finds the primary volume descriptor of img. Optical images are
// searched in their first data track, from the track start and then after
// its pregap. Other images are read in 2048-byte blocks from sector zero.
func Probe(img image.Image) (*Volume, error) {
	if o, ok := img.(image.OpticalImage); ok {
		return probeOptical(img, o.Tracks())
	}
	info := img.Info()
	size := info.SectorSize
	switch {
	case size >= BlockSize:
		return scan(func(block uint64) ([]byte, error) {
			return readBlock(img, block, 1, info.Sectors)
		})
	case size > 0 && BlockSize%size == 0:
		per := BlockSize / size
		return scan(func(block uint64) ([]byte, error) {
			return readBlock(img, block*uint64(per), per, info.Sectors)
		})
	}
	return nil, fmt.Errorf("%w: %d-byte sectors", ErrNoVolume, size)
}

func probeOptical(img image.Image, tracks []image.Track) (*Volume, error) {
	for _, tr := range tracks {
		if tr.Type == image.TrackAudio {
			continue
		}
		bases := []uint64{tr.Start}
		if tr.Pregap > 0 {
			bases = append(bases, tr.Start+tr.Pregap)
		}
		var err error
		for _, base := range bases {
			var v *Volume
			v, err = scan(func(block uint64) ([]byte, error) {
				addr := base + block
				if addr > tr.End {
					return nil, fmt.Errorf("%w: block %d is past track %d", ErrNoVolume, block, tr.Sequence)
				}
				data, err := img.ReadSector(addr)
				if err != nil {
					return nil, err
				}
				if len(data) == 2336 {
					data = data[mode2SubHeader:]
				}
				if len(data) < BlockSize {
					return nil, fmt.Errorf("%w: %d-byte sectors", ErrNoVolume, len(data))
				}
				return data[:BlockSize], nil
			})
			if !errors.Is(err, ErrNoVolume) {
				if v != nil {
					v.Block += base - tr.Start
				}
				return v, err
			}
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: no data track", ErrNoVolume)
}

func readBlock(img image.Image, addr uint64, count uint32, total uint64) ([]byte, error) {
	if addr+uint64(count) > total {
		return nil, fmt.Errorf("%w: image ends at sector %d", ErrNoVolume, total)
	}
	data, err := img.ReadSectors(addr, count)
	if err != nil {
		return nil, err
	}
	if len(data) < BlockSize {
		return nil, fmt.Errorf("%w: short block at sector %d", ErrNoVolume, addr)
	}
	return data[:BlockSize], nil
}

func scan(read blockReader) (*Volume, error) {
	var vol *Volume
	for i := range uint64(maxDescriptors) {
		block := FirstDescriptor + i
		data, err := read(block)
		if err != nil {
			if vol != nil {
				return vol, nil
			}
			return nil, err
		}
		if !bytes.Equal(data[1:6], []byte(Magic)) {
			break
		}
		switch data[0] {
		case TypePrimary:
			if vol != nil {
				continue
			}
			vol, err = parsePrimary(data)
			if err != nil {
				return nil, err
			}
			vol.Block = block
		case TypeSupplementary:
			if vol != nil && joliet(data) {
				vol.Joliet = true
			}
		case TypeTerminator:
			if vol != nil {
				return vol, nil
			}
			return nil, fmt.Errorf("%w: terminator at block %d", ErrNoVolume, block)
		}
	}
	if vol != nil {
		return vol, nil
	}
	return nil, ErrNoVolume
}

// ParsePrimary decodes a primary volume descriptor block.
func ParsePrimary(data []byte) (*PrimaryDescriptor, error) {
	var d PrimaryDescriptor
	if err := codec.Decode(data, binary.LittleEndian, &d); err != nil {
		return nil, err
	}
	if d.Type != TypePrimary || string(d.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: descriptor type %d", ErrNoVolume, d.Type)
	}
	return &d, nil
}

func parsePrimary(data []byte) (*Volume, error) {
	d, err := ParsePrimary(data)
	if err != nil {
		return nil, err
	}
	bs := d.LogicalBlockSize
	if bs < 512 || bs > BlockSize || bs&(bs-1) != 0 {
		return nil, fmt.Errorf("%w: logical block size %d", image.ErrCorruptStructure, bs)
	}
	return &Volume{
		SystemID:      codec.Printable(d.System[:]),
		VolumeID:      codec.Printable(d.Volume[:]),
		VolumeSetID:   codec.Printable(d.VolumeSet[:]),
		PublisherID:   codec.Printable(d.Publisher[:]),
		PreparerID:    codec.Printable(d.Preparer[:]),
		ApplicationID: codec.Printable(d.Application[:]),
		Created:       created(d.Created[:16]),
		SpaceSize:     d.SpaceSize,
		BlockSize:     bs,
	}, nil
}

// created returns the digits of a date field, or nothing when it is unset.
func created(b []byte) string {
	s := codec.Printable(b)
	if strings.Trim(s, "0") == "" {
		return ""
	}
	return s
}

// joliet reports whether a supplementary descriptor carries one of the
// UCS-2 escape sequences.
func joliet(data []byte) bool {
	esc := data[88:120]
	for _, level := range []string{"%/@", "%/C", "%/E"} {
		if bytes.Contains(esc, []byte(level)) {
			return true
		}
	}
	return false
}
