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

// Package alcohol reads Alcohol 120% images: a binary .mds descriptor that
// holds the session and track tables, and a .mdf data file.
package alcohol

import (
	"fmt"
	"io"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/ZaparooProject/go-mediaimage/internal/optical"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
	"github.com/go-logr/logr"
)

// Name is the plugin name.
const Name = "alcohol"

const maxDescriptorSize = 1 << 20

// Plugin handles Alcohol 120% images.
type Plugin struct{}

// New returns the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements image.Plugin.
func (*Plugin) Name() string { return Name }

// Extensions implements image.Plugin.
func (*Plugin) Extensions() []string {
	return []string{".mds"}
}

// Identify implements image.Plugin.
func (*Plugin) Identify(src image.Source) bool {
	h, err := DecodeHeader(codec.Prefix(src, HeaderSize))
	return err == nil && h.VersionMajor == 1
}

// Open implements image.Plugin.
func (*Plugin) Open(src image.Source, opts ...image.OpenOption) (image.Image, error) {
	o := image.NewOpenOptions(opts...)
	log := o.Logger.WithName(Name)

	if src.Size() > maxDescriptorSize {
		return nil, image.NewFormatError(Name, "read descriptor", -1,
			fmt.Errorf("%w: descriptor of %d bytes", image.ErrCorruptStructure, src.Size()))
	}
	data, err := codec.ReadAt(src, 0, int(src.Size()))
	if err != nil {
		return nil, image.NewFormatError(Name, "read descriptor", 0, err)
	}
	desc, err := parse(data)
	if err != nil {
		return nil, image.NewFormatError(Name, "parse descriptor", -1, err)
	}

	name := desc.Filename
	if name == "" || strings.HasPrefix(name, "*.") {
		name = image.SiblingName(src, ".mdf")
	}
	mdf, err := image.OpenSibling(src, name)
	if err != nil {
		return nil, image.NewFormatError(Name, "open data file", -1,
			fmt.Errorf("%w: %w", image.ErrCorruptStructure, err))
	}

	img := &Image{data: mdf, desc: desc, owned: o.Owned}
	if err := img.load(log); err != nil {
		_ = image.CloseSource(mdf)
		return nil, err
	}
	return img, nil
}

// Image is an opened Alcohol 120% image.
type Image struct {
	optical.Disc
	data  image.Source
	desc  *Descriptor
	owned []io.Closer
	info  image.Info
}

func (img *Image) load(log logr.Logger) error {
	desc := img.desc
	dvd := desc.Header.MediumType == MediumDVDROM || desc.Header.MediumType == MediumDVDR

	var descs []offsetmap.Descriptor
	for si, tracks := range desc.Tracks {
		sess := desc.Sessions[si]
		for _, t := range tracks {
			d, err := img.descriptor(t, sess.Sequence, dvd)
			if err != nil {
				return image.NewFormatError(Name, "read track", int64(sess.TrackOffset), err)
			}
			end := d.Offset + int64(d.Sectors)*int64(d.RawSize) //nolint:gosec // bounded by the data file below
			if d.Sectors > uint64(img.data.Size()) || end > img.data.Size() {
				return image.NewFormatError(Name, "read track", -1,
					fmt.Errorf("%w: track %d needs %d bytes of %s, file has %d",
						image.ErrCorruptStructure, t.Point, end, img.data.Name(), img.data.Size()))
			}
			descs = append(descs, d)
		}
	}
	if dvd && len(descs) != 1 {
		return image.NewFormatError(Name, "read track", -1,
			fmt.Errorf("%w: DVD image with %d tracks", image.ErrUnsupportedVariant, len(descs)))
	}

	layout, err := offsetmap.Builder{Logger: log}.Build(descs)
	if err != nil {
		return image.NewFormatError(Name, "build layout", -1, err)
	}
	img.Layout = layout

	img.info = image.Info{
		MediaType:          mediaType(desc.Header.MediumType, layout.Tracks),
		Sectors:            layout.Map.Total(),
		SectorSize:         layout.Tracks[0].SectorSize,
		ImageSize:          uint64(img.data.Size()), //nolint:gosec // file sizes are positive
		Application:        "Alcohol 120%",
		ApplicationVersion: fmt.Sprintf("%d.%d", desc.Header.VersionMajor, desc.Header.VersionMinor),
		HasSessions:        !dvd,
		ReadableSectorTags: img.Tags(),
	}
	log.V(1).Info("opened", "file", img.data.Name(), "tracks", len(layout.Tracks),
		"sessions", len(layout.Sessions), "sectors", img.info.Sectors)
	return nil
}

func (img *Image) descriptor(t Track, session uint16, dvd bool) (offsetmap.Descriptor, error) {
	extra, ok := img.desc.Extras[t.ExtraOffset]
	if !ok && !dvd {
		return offsetmap.Descriptor{}, fmt.Errorf("%w: track %d has no extra block", image.ErrCorruptStructure, t.Point)
	}
	if t.Files > 1 {
		return offsetmap.Descriptor{}, fmt.Errorf("%w: track %d spans %d files", image.ErrUnsupportedVariant, t.Point, t.Files)
	}

	typ, err := trackType(t.Mode &^ modeFlag)
	if err != nil {
		return offsetmap.Descriptor{}, err
	}
	size := uint32(t.SectorSize)
	d := offsetmap.Descriptor{
		File:         img.data,
		Type:         typ,
		Sequence:     uint32(t.Point),
		Session:      session,
		Sectors:      uint64(extra.Sectors),
		Pregap:       uint64(extra.Pregap),
		PregapStored: true,
		Offset:       int64(t.StartOffset), //nolint:gosec // checked against the data file
		RawSize:      size,
		Start:        uint64(t.StartLBA),
		HasStart:     true,
	}
	switch {
	case dvd:
		if size != 2048 {
			return d, fmt.Errorf("%w: DVD sectors of %d bytes", image.ErrUnsupportedVariant, size)
		}
		if d.Sectors == 0 {
			d.Sectors = uint64(img.data.Size()-d.Offset) / 2048 //nolint:gosec // offset checked by the caller
		}
		d.SectorSize = 2048
		d.HasStart = false
	case size == cdsector.RawWithSubSize:
		d.Raw, d.SectorSize, d.SubchannelSize = true, cdsector.CookedSize(typ), cdsector.SubchannelSize
	case size == cdsector.RawSize:
		if t.SubMode&subModeSub != 0 {
			return d, fmt.Errorf("%w: track %d flags subchannel in %d-byte sectors", image.ErrCorruptStructure, t.Point, size)
		}
		d.Raw, d.SectorSize = true, cdsector.CookedSize(typ)
	case size == 2048 || size == 2324 || size == 2336:
		d.SectorSize = size
	default:
		return d, fmt.Errorf("%w: track %d has %d-byte sectors", image.ErrUnsupportedVariant, t.Point, size)
	}
	return d, nil
}

func trackType(mode uint8) (image.TrackType, error) {
	switch mode {
	case ModeAudio:
		return image.TrackAudio, nil
	case ModeMode1:
		return image.TrackMode1, nil
	case ModeMode2:
		return image.TrackMode2Formless, nil
	case ModeForm1:
		return image.TrackMode2Form1, nil
	case ModeForm2:
		return image.TrackMode2Form2, nil
	case ModeDVD:
		return image.TrackData, nil
	}
	return "", fmt.Errorf("%w: track mode 0x%02x", image.ErrUnsupportedVariant, mode)
}

func mediaType(medium uint16, tracks []image.Track) image.MediaType {
	switch medium {
	case MediumCDR:
		return image.MediaCDR
	case MediumCDRW:
		return image.MediaCDRW
	case MediumDVDROM:
		return image.MediaDVDROM
	case MediumDVDR:
		return image.MediaDVDR
	}
	return optical.MediaType(tracks)
}

// Format implements image.Image.
func (*Image) Format() string { return Name }

// Info implements image.Image.
func (img *Image) Info() image.Info { return img.info.Clone() }

// Header returns the decoded descriptor.
func (img *Image) Header() any { return img.desc }

// Close implements image.Image.
func (img *Image) Close() error {
	return image.CloseAll(append([]io.Closer{asCloser(img.data)}, img.owned...)...)
}

func asCloser(src image.Source) io.Closer {
	if c, ok := src.(io.Closer); ok {
		return c
	}
	return nil
}
