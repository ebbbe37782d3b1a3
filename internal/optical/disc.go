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

// Package optical serves sector reads for track-structured CD and DVD images
// on top of an offset map. Format plugins embed a Disc and supply the layout.
package optical

import (
	"fmt"
	"slices"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
)

// SubchannelFunc returns the 96 deinterleaved subchannel bytes of a sector
// that a format stores outside its frames.
type SubchannelFunc func(addr uint64) ([]byte, error)

// Disc implements the sector access of image.OpticalImage.
type Disc struct {
	Layout *offsetmap.Layout
	// Subchannel is consulted for tracks that store none in their frames.
	Subchannel SubchannelFunc
}

// Tracks returns a copy of the track table.
func (d *Disc) Tracks() []image.Track {
	return slices.Clone(d.Layout.Tracks)
}

// Sessions returns a copy of the session table.
func (d *Disc) Sessions() []image.Session {
	return slices.Clone(d.Layout.Sessions)
}

// Total returns the number of addressable sectors.
func (d *Disc) Total() uint64 {
	return d.Layout.Map.Total()
}

// ReadSector returns the user data of one sector.
func (d *Disc) ReadSector(addr uint64) ([]byte, error) {
	return d.ReadSectors(addr, 1)
}

// ReadSectors returns user data, each sector sized by its own track.
func (d *Disc) ReadSectors(addr uint64, count uint32) ([]byte, error) {
	return d.read(addr, count, func(tr image.Track, unit []byte) ([]byte, error) {
		return cooked(tr, unit), nil
	})
}

// ReadSectorsLong returns full 2352-byte frames. Tracks stored without
// their frame headers cannot be read long.
func (d *Disc) ReadSectorsLong(addr uint64, count uint32) ([]byte, error) {
	return d.read(addr, count, func(tr image.Track, unit []byte) ([]byte, error) {
		if !tr.Raw {
			return nil, fmt.Errorf("%w: track %d stores %d-byte sectors", image.ErrUnsupportedVariant, tr.Sequence, tr.SectorSize)
		}
		return unit[:cdsector.RawSize], nil
	})
}

// ReadSectorTag returns one tag of one sector.
func (d *Disc) ReadSectorTag(addr uint64, tag image.SectorTag) ([]byte, error) {
	if err := image.CheckRange(addr, 1, d.Total()); err != nil {
		return nil, err
	}
	tr, _ := d.Layout.TrackAt(addr)
	switch tag {
	case image.TagCDSubchannel, image.TagCDSubchannelQ:
		sub, err := d.subchannel(tr, addr)
		if err != nil {
			return nil, err
		}
		if tag == image.TagCDSubchannelQ {
			return cdsector.SubchannelQ(sub), nil
		}
		return sub, nil
	}
	if !tr.Raw {
		return nil, fmt.Errorf("%w: %s on track %d without frame headers", image.ErrTagNotSupported, tag, tr.Sequence)
	}
	frame, err := d.Layout.Map.ReadRaw(addr, 1)
	if err != nil {
		return nil, err
	}
	out, err := cdsector.Tag(tr.Type, frame, tag)
	if err != nil {
		return nil, err
	}
	return slices.Clone(out), nil
}

func (d *Disc) subchannel(tr image.Track, addr uint64) ([]byte, error) {
	if tr.SubchannelSize == cdsector.SubchannelSize {
		unit, err := d.Layout.Map.ReadRaw(addr, 1)
		if err != nil {
			return nil, err
		}
		return slices.Clone(unit[cdsector.RawSize:cdsector.RawWithSubSize]), nil
	}
	if d.Subchannel == nil {
		return nil, fmt.Errorf("%w: no subchannel stored", image.ErrTagNotSupported)
	}
	planes, err := d.Subchannel(addr)
	if err != nil {
		return nil, err
	}
	return cdsector.Interleave(planes), nil
}

// Tags lists the tags readable from at least one track of the layout.
func (d *Disc) Tags() []image.SectorTag {
	var tags []image.SectorTag
	sub := len(d.Layout.Tracks) > 0
	for _, tr := range d.Layout.Tracks {
		if tr.Raw {
			for _, t := range cdsector.Tags(tr.Type) {
				if !slices.Contains(tags, t) {
					tags = append(tags, t)
				}
			}
		}
		if tr.SubchannelSize != cdsector.SubchannelSize && d.Subchannel == nil {
			sub = false
		}
	}
	if sub {
		tags = append(tags, image.TagCDSubchannel, image.TagCDSubchannelQ)
	}
	return tags
}

func (d *Disc) read(addr uint64, count uint32, conv func(image.Track, []byte) ([]byte, error)) ([]byte, error) {
	spans, err := d.Layout.Map.Spans(addr, count)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, s := range spans {
		tr := d.Layout.Tracks[s.Entry.Track]
		raw, err := s.Read()
		if err != nil {
			return nil, err
		}
		size := int(s.Entry.Size)
		for i := range int(s.Count) { //nolint:gosec // bounded by count
			data, err := conv(tr, raw[i*size:(i+1)*size])
			if err != nil {
				return nil, err
			}
			out = append(out, data...)
		}
	}
	return out, nil
}

func cooked(tr image.Track, unit []byte) []byte {
	if tr.Raw {
		return cdsector.Cook(tr.Type, unit[:cdsector.RawSize])
	}
	return unit[:tr.SectorSize]
}

// TrackRawSize returns the stored size of a track type in a format that
// keeps either full frames or user data only.
func TrackRawSize(t image.TrackType, raw bool) uint32 {
	if raw {
		return cdsector.RawSize
	}
	return cdsector.CookedSize(t)
}

// MediaType guesses the medium from the track types.
func MediaType(tracks []image.Track) image.MediaType {
	for _, tr := range tracks {
		if tr.Type != image.TrackAudio {
			return image.MediaCDROM
		}
	}
	return image.MediaCDDA
}
