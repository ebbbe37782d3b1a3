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

package diskcopy42

import (
	"fmt"
	"io"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
)

// Name is the plugin name.
const Name = "diskcopy42"

// Plugin handles Disk Copy 4.2 images.
type Plugin struct{}

// New returns the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements image.Plugin.
func (*Plugin) Name() string { return Name }

// Extensions implements image.Plugin.
func (*Plugin) Extensions() []string {
	return []string{".dc42", ".image", ".img", ".dsk", ".dc"}
}

// Identify implements image.Plugin.
func (*Plugin) Identify(src image.Source) bool {
	if src.Size() < HeaderSize {
		return false
	}
	h, err := DecodeHeader(codec.Prefix(src, HeaderSize))
	if err != nil {
		return false
	}
	if _, ok := geometries[h.Format]; !ok {
		return false
	}
	return h.check(src.Size()) == nil
}

// Open implements image.Plugin.
func (*Plugin) Open(src image.Source, opts ...image.OpenOption) (image.Image, error) {
	o := image.NewOpenOptions(opts...)
	log := o.Logger.WithName(Name)

	buf := make([]byte, HeaderSize)
	if err := codec.ReadFull(src, 0, buf); err != nil {
		return nil, image.NewFormatError(Name, "read header", 0, err)
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, image.NewFormatError(Name, "decode header", 0, err)
	}
	if err := h.check(src.Size()); err != nil {
		return nil, image.NewFormatError(Name, "check header", 0, err)
	}
	geo, ok := geometries[h.Format]
	if !ok {
		return nil, image.NewFormatError(Name, "disk format", 0x50,
			fmt.Errorf("%w: disk format 0x%02x", image.ErrUnsupportedVariant, h.Format))
	}

	sectors := h.DataSize / SectorSize
	if sectors != geo.sectors {
		log.Info("sector count does not match the disk format", "format", h.Format,
			"sectors", sectors, "expected", geo.sectors)
		geo = geometry{media: image.MediaUnknown, sectors: sectors, cylinders: 1, heads: 1, spt: sectors}
	}

	layout, err := offsetmap.Builder{Logger: log, DeclaredTotal: uint64(sectors)}.Build([]offsetmap.Descriptor{{
		File:       src,
		Type:       image.TrackData,
		Sequence:   1,
		Sectors:    uint64(sectors),
		Offset:     HeaderSize,
		SectorSize: SectorSize,
	}})
	if err != nil {
		return nil, image.NewFormatError(Name, "build layout", -1, err)
	}

	img := &Image{
		src:    src,
		header: h,
		layout: layout,
		owned:  o.Owned,
		info: image.Info{
			MediaType:          geo.media,
			Sectors:            uint64(sectors),
			SectorSize:         SectorSize,
			ImageSize:          uint64(h.DataSize),
			Cylinders:          geo.cylinders,
			Heads:              geo.heads,
			SectorsPerTrack:    geo.spt,
			Application:        "Apple DiskCopy",
			ApplicationVersion: "4.2",
			MediaTitle:         h.DiskName(),
		},
	}
	if h.TagSize > 0 {
		img.info.ReadableSectorTags = []image.SectorTag{image.TagAppleSony}
	}
	if rf, ok := src.(image.ResourceForker); ok {
		readVersion(rf, &img.info, log)
	}
	log.V(1).Info("opened", "name", img.info.MediaTitle, "format", h.Format, "sectors", sectors, "tags", h.TagSize > 0)
	return img, nil
}

// Image is an opened Disk Copy 4.2 image.
type Image struct {
	src    image.Source
	header *Header
	layout *offsetmap.Layout
	owned  []io.Closer
	info   image.Info
}

// Format implements image.Image.
func (*Image) Format() string { return Name }

// Info implements image.Image.
func (i *Image) Info() image.Info { return i.info.Clone() }

// Header returns a copy of the decoded header.
func (i *Image) Header() any {
	h := *i.header
	return &h
}

// ReadSector implements image.Image.
func (i *Image) ReadSector(addr uint64) ([]byte, error) {
	return i.ReadSectors(addr, 1)
}

// ReadSectors implements image.Image.
func (i *Image) ReadSectors(addr uint64, count uint32) ([]byte, error) {
	return i.layout.Map.ReadRaw(addr, count)
}

// ReadSectorTag implements image.Image.
func (i *Image) ReadSectorTag(addr uint64, tag image.SectorTag) ([]byte, error) {
	if err := image.CheckRange(addr, 1, i.info.Sectors); err != nil {
		return nil, err
	}
	if tag != image.TagAppleSony || i.header.TagSize == 0 {
		return nil, fmt.Errorf("%w: %s", image.ErrTagNotSupported, tag)
	}
	//nolint:gosec // addr is below the sector count
	off := int64(HeaderSize) + int64(i.header.DataSize) + int64(addr)*TagSize
	return codec.ReadAt(i.src, off, TagSize)
}

// Verify recomputes both checksums.
func (i *Image) Verify() (bool, error) {
	data, err := codec.ReadAt(i.src, HeaderSize, int(i.header.DataSize))
	if err != nil {
		return false, err
	}
	if !codec.ValidateChecksum(codec.DiskCopyChecksum, data, i.header.DataChecksum) {
		return false, nil
	}
	if i.header.TagSize == 0 {
		return true, nil
	}
	tags, err := codec.ReadAt(i.src, HeaderSize+int64(i.header.DataSize), int(i.header.TagSize))
	if err != nil {
		return false, err
	}
	return codec.ValidateChecksum(TagChecksum, tags, i.header.TagChecksum), nil
}

// Close implements image.Image.
func (i *Image) Close() error {
	return image.CloseAll(i.owned...)
}
