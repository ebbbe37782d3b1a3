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

// Package clonecd reads CloneCD images: a .ccd text descriptor holding the
// raw TOC, a .img file of 2352-byte frames and an optional .sub file of
// deinterleaved subchannel data, 96 bytes per frame.
package clonecd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/ZaparooProject/go-mediaimage/internal/optical"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
	"github.com/go-logr/logr"
)

// Name is the plugin name.
const Name = "clonecd"

const (
	maxDescriptorSize = 1 << 20
	maxVersion        = 3
)

const magic = "[CloneCD]"

// Plugin handles CloneCD images.
type Plugin struct{}

// New returns the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements image.Plugin.
func (*Plugin) Name() string { return Name }

// Extensions implements image.Plugin.
func (*Plugin) Extensions() []string {
	return []string{".ccd"}
}

// Identify implements image.Plugin.
func (*Plugin) Identify(src image.Source) bool {
	prefix := codec.Prefix(src, 64)
	text := strings.TrimLeft(strings.TrimPrefix(string(prefix), "\ufeff"), " \t\r\n")
	return len(text) >= len(magic) && strings.EqualFold(text[:len(magic)], magic)
}

// Open implements image.Plugin.
func (*Plugin) Open(src image.Source, opts ...image.OpenOption) (image.Image, error) {
	o := image.NewOpenOptions(opts...)
	log := o.Logger.WithName(Name)

	if src.Size() > maxDescriptorSize {
		return nil, image.NewFormatError(Name, "read descriptor", -1,
			fmt.Errorf("%w: descriptor of %d bytes", image.ErrCorruptStructure, src.Size()))
	}
	text, err := codec.ReadAt(src, 0, int(src.Size()))
	if err != nil {
		return nil, image.NewFormatError(Name, "read descriptor", 0, err)
	}
	desc, err := ParseDescriptor(text)
	if err != nil {
		return nil, image.NewFormatError(Name, "parse descriptor", -1, err)
	}
	if desc.Version > maxVersion {
		return nil, image.NewFormatError(Name, "parse descriptor", -1,
			fmt.Errorf("%w: descriptor version %d", image.ErrUnsupportedVariant, desc.Version))
	}
	if desc.DataTracksScrambled {
		return nil, image.NewFormatError(Name, "parse descriptor", -1,
			fmt.Errorf("%w: scrambled data tracks", image.ErrUnsupportedVariant))
	}

	data, err := image.OpenSibling(src, image.SiblingName(src, ".img"))
	if err != nil {
		return nil, image.NewFormatError(Name, "open data file", -1,
			fmt.Errorf("%w: %w", image.ErrCorruptStructure, err))
	}
	img := &Image{data: data, owned: o.Owned, desc: desc}
	if err := img.load(src, log); err != nil {
		_ = image.CloseAll(img.files()...)
		return nil, err
	}
	return img, nil
}

// Image is an opened CloneCD image.
type Image struct {
	optical.Disc
	data  image.Source
	sub   image.Source
	desc  *Descriptor
	owned []io.Closer
	info  image.Info
}

func (img *Image) load(src image.Source, log logr.Logger) error {
	desc := img.desc
	var tracks, leadOuts []Entry
	for _, e := range desc.Entries {
		switch {
		case e.Point >= 1 && e.Point < pointFirstTrack:
			tracks = append(tracks, e)
		case e.Point == pointLeadOut:
			leadOuts = append(leadOuts, e)
		}
	}
	if len(tracks) == 0 {
		return image.NewFormatError(Name, "read TOC", -1,
			fmt.Errorf("%w: no track entries", image.ErrCorruptStructure))
	}
	sort.SliceStable(tracks, func(i, j int) bool {
		if tracks[i].Session != tracks[j].Session {
			return tracks[i].Session < tracks[j].Session
		}
		return tracks[i].Point < tracks[j].Point
	})

	frames := img.data.Size() / cdsector.RawSize
	if img.data.Size()%cdsector.RawSize != 0 {
		log.Info("data file is not a whole number of frames", "size", img.data.Size())
	}

	descs := make([]offsetmap.Descriptor, 0, len(tracks))
	var stored int64
	for k, e := range tracks {
		if e.PLBA < 0 {
			return image.NewFormatError(Name, "read TOC", -1,
				fmt.Errorf("%w: track %d starts at %d", image.ErrCorruptStructure, e.Point, e.PLBA))
		}
		end := int64(-1)
		if k+1 < len(tracks) && tracks[k+1].Session == e.Session {
			end = tracks[k+1].PLBA
		} else {
			for _, lo := range leadOuts {
				if lo.Session == e.Session {
					end = lo.PLBA
				}
			}
		}
		if end < 0 {
			end = e.PLBA + frames - stored
			log.Info("session has no lead-out entry, using the data file length", "session", e.Session)
		}
		if end < e.PLBA {
			return image.NewFormatError(Name, "read TOC", -1,
				fmt.Errorf("%w: track %d ends at %d before it starts at %d",
					image.ErrCorruptStructure, e.Point, end, e.PLBA))
		}

		typ := trackType(e, desc.Tracks[e.Point])
		var pregap uint64
		if idx := desc.Tracks[e.Point].Indexes; idx != nil {
			if i0, ok := idx[0]; ok {
				if i1, ok := idx[1]; ok && i1 > i0 {
					pregap = uint64(i1 - i0)
				}
			}
		}
		length := end - e.PLBA
		descs = append(descs, offsetmap.Descriptor{
			File:         img.data,
			Type:         typ,
			Sequence:     uint32(e.Point),   //nolint:gosec // 1..99
			Session:      uint16(e.Session), //nolint:gosec // session numbers are small
			Sectors:      uint64(length),
			Pregap:       pregap,
			PregapStored: true,
			Offset:       stored * cdsector.RawSize,
			SectorSize:   cdsector.CookedSize(typ),
			RawSize:      cdsector.RawSize,
			Raw:          true,
			Start:        uint64(e.PLBA),
			HasStart:     true,
		})
		stored += length
	}

	layout, err := offsetmap.Builder{Logger: log, DeclaredTotal: uint64(frames)}.Build(descs)
	if err != nil {
		return image.NewFormatError(Name, "build layout", -1, err)
	}
	img.Layout = layout

	if sub, err := image.OpenSibling(src, image.SiblingName(src, ".sub")); err == nil {
		if sub.Size() < int64(layout.Map.Total())*cdsector.SubchannelSize { //nolint:gosec // bounded by file size
			log.Info("subchannel file too short, ignoring it", "size", sub.Size())
			_ = image.CloseSource(sub)
		} else {
			img.sub = sub
			img.Subchannel = img.readSubchannel
		}
	} else {
		log.V(1).Info("no subchannel file", "err", err.Error())
	}

	img.info = image.Info{
		MediaType:          optical.MediaType(layout.Tracks),
		Sectors:            layout.Map.Total(),
		SectorSize:         layout.Tracks[0].SectorSize,
		ImageSize:          uint64(img.data.Size()), //nolint:gosec // file sizes are positive
		Application:        "CloneCD",
		ApplicationVersion: fmt.Sprint(desc.Version),
		MediaTitle:         desc.Catalog,
		HasSessions:        true,
		ReadableSectorTags: img.Tags(),
	}
	log.V(1).Info("opened", "tracks", len(layout.Tracks), "sessions", len(layout.Sessions),
		"sectors", img.info.Sectors, "subchannel", img.sub != nil)
	return nil
}

func trackType(e Entry, ts TrackSection) image.TrackType {
	if ts.HasMode {
		switch ts.Mode {
		case 0:
			return image.TrackAudio
		case 1:
			return image.TrackMode1
		default:
			return image.TrackMode2Formless
		}
	}
	if e.Control&controlData != 0 {
		return image.TrackMode1
	}
	return image.TrackAudio
}

func (img *Image) readSubchannel(addr uint64) ([]byte, error) {
	//nolint:gosec // addr is inside the layout
	return codec.ReadAt(img.sub, int64(addr)*cdsector.SubchannelSize, cdsector.SubchannelSize)
}

// Format implements image.Image.
func (*Image) Format() string { return Name }

// Info implements image.Image.
func (img *Image) Info() image.Info { return img.info.Clone() }

// Header returns the parsed descriptor.
func (img *Image) Header() any { return img.desc }

func (img *Image) files() []io.Closer {
	var cs []io.Closer
	for _, s := range []image.Source{img.data, img.sub} {
		if c, ok := s.(io.Closer); ok {
			cs = append(cs, c)
		}
	}
	return cs
}

// Close implements image.Image.
func (img *Image) Close() error {
	return image.CloseAll(append(img.files(), img.owned...)...)
}
