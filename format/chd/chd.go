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

// Package chd reads MAME "Compressed Hunks of Data" images, versions 3 to 5.
// CD-ROM, GD-ROM and DVD images open as optical images, hard disk images
// as plain sector images. Hunks are decompressed on demand.
package chd

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // CHD stores SHA-1 digests
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/ZaparooProject/go-mediaimage/internal/optical"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
	"github.com/go-logr/logr"
)

// Name is the plugin name.
const Name = "chd"

const dvdSectorSize = 2048

// Plugin handles CHD images.
type Plugin struct{}

// New returns the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements image.Plugin.
func (*Plugin) Name() string { return Name }

// Extensions implements image.Plugin.
func (*Plugin) Extensions() []string {
	return []string{".chd"}
}

// Identify implements image.Plugin. Versions 1 and 2 are recognised so
// that Open can report them as unsupported. The header must be whole.
func (*Plugin) Identify(src image.Source) bool {
	var pre Preamble
	if err := codec.Decode(codec.Prefix(src, 16), order, &pre); err != nil {
		return false
	}
	if string(pre.Magic[:]) != Magic {
		return false
	}
	size, ok := headerSizes[pre.Version]
	return ok && pre.Length == size && src.Size() >= int64(size)
}

// Open implements image.Plugin.
func (*Plugin) Open(src image.Source, opts ...image.OpenOption) (image.Image, error) {
	o := image.NewOpenOptions(opts...)
	log := o.Logger.WithName(Name)

	h, err := DecodeHeader(codec.Prefix(src, HeaderSizeV5))
	if err != nil {
		return nil, image.NewFormatError(Name, "read header", 0, err)
	}
	if h.HasParent() {
		log.Info("image depends on a parent image, hunks stored there cannot be read")
	}
	hunks, err := newHunkReader(src, h, o.CacheSize)
	if err != nil {
		return nil, image.NewFormatError(Name, "read hunk map", int64(h.MapOffset), err) //nolint:gosec // bounded by the file
	}
	meta, err := ReadMetadata(src, h.MetaOffset)
	if err != nil {
		return nil, image.NewFormatError(Name, "read metadata", int64(h.MetaOffset), err) //nolint:gosec // bounded by the file
	}

	f := &file{src: src, header: h, hunks: hunks, meta: meta, owned: o.Owned}
	var img image.Image
	switch {
	case hasTag(meta, MetaCDTrack2, MetaCDTrack, MetaCDROMOld, MetaGDROM):
		img, err = openDisc(f, log)
	case hasTag(meta, MetaHardDisk):
		img, err = openDisk(f, log)
	case hasTag(meta, MetaDVD):
		img, err = openDVD(f, log)
	default:
		err = image.NewFormatError(Name, "read metadata", -1,
			fmt.Errorf("%w: no CD, GD-ROM, DVD or hard disk metadata", image.ErrUnsupportedVariant))
	}
	if err != nil {
		return nil, err
	}
	log.V(1).Info("opened", "version", h.Version, "hunks", h.TotalHunks, "hunkBytes", h.HunkBytes,
		"compressors", compressorNames(h), "sectors", img.Info().Sectors)
	return img, nil
}

func hasTag(meta []Metadata, tags ...uint32) bool {
	return slices.ContainsFunc(meta, func(m Metadata) bool { return slices.Contains(tags, m.Tag) })
}

func compressorNames(h *Header) []string {
	var names []string
	for _, tag := range h.Compressors {
		if tag != CodecNone {
			names = append(names, CodecName(tag))
		}
	}
	return names
}

// file holds what every CHD image shares.
type file struct {
	src    image.Source
	header *Header
	hunks  *hunkReader
	meta   []Metadata
	owned  []io.Closer
	info   image.Info
}

// Format implements image.Image.
func (*file) Format() string { return Name }

// Info implements image.Image.
func (f *file) Info() image.Info { return f.info.Clone() }

// Header returns a copy of the decoded header.
func (f *file) Header() any {
	h := *f.header
	return &h
}

// Metadata returns the metadata chain.
func (f *file) Metadata() []Metadata {
	return slices.Clone(f.meta)
}

// Verify hashes the logical bytes and compares them to the stored digest.
// Images that depend on a parent cannot be verified alone.
func (f *file) Verify() (bool, error) {
	h := f.header
	want := h.DataSHA1()
	if want == ([20]byte{}) {
		return false, image.NewFormatError(Name, "verify", -1,
			fmt.Errorf("%w: no data digest stored", image.ErrUnsupportedVariant))
	}
	sum := sha1.New() //nolint:gosec // CHD stores SHA-1 digests
	size := uint64(h.HunkBytes)
	for pos, n := uint64(0), uint32(0); pos < h.LogicalBytes; pos, n = pos+size, n+1 {
		data, err := f.hunks.decode(n, 0)
		if err != nil {
			return false, image.NewFormatError(Name, "verify", -1, err)
		}
		_, _ = sum.Write(data[:min(size, h.LogicalBytes-pos)])
	}
	return bytes.Equal(sum.Sum(nil), want[:]), nil
}

// Close implements image.Image.
func (f *file) Close() error {
	f.hunks.cache.Purge()
	return image.CloseAll(f.owned...)
}

// Disc is an opened CD-ROM, GD-ROM or DVD image.
type Disc struct {
	optical.Disc
	*file
}

func openDisc(f *file, log logr.Logger) (*Disc, error) {
	h := f.header
	if h.HunkBytes%frameSize != 0 {
		return nil, image.NewFormatError(Name, "read header", -1,
			fmt.Errorf("%w: hunk of %d bytes does not hold whole frames", image.ErrCorruptStructure, h.HunkBytes))
	}
	if h.Version < 5 {
		h.UnitBytes = frameSize
	} else if h.UnitBytes != frameSize {
		log.Info("unexpected unit size for a CD image", "unitBytes", h.UnitBytes)
	}

	tracks, gdrom, err := cdTracks(f.meta)
	if err != nil {
		return nil, image.NewFormatError(Name, "parse track metadata", -1, err)
	}
	descs, rawSub, err := cdDescriptors(tracks, f.hunks, h.LogicalBytes)
	if err != nil {
		return nil, image.NewFormatError(Name, "place tracks", -1, err)
	}
	layout, err := offsetmap.Builder{Logger: log}.Build(descs)
	if err != nil {
		return nil, image.NewFormatError(Name, "build layout", -1, err)
	}

	d := &Disc{file: f}
	d.Layout = layout
	if rawSub {
		d.Subchannel = d.planes
	}
	mt := optical.MediaType(layout.Tracks)
	if gdrom {
		mt = image.MediaGDROM
	}
	f.info = image.Info{
		MediaType:          mt,
		Sectors:            layout.Map.Total(),
		SectorSize:         layout.Tracks[0].SectorSize,
		ImageSize:          h.LogicalBytes,
		Application:        "MAME",
		ApplicationVersion: strconv.Itoa(int(h.Version)),
		HasSessions:        true,
		ReadableSectorTags: d.Tags(),
	}
	return d, nil
}

// planes returns the subcode of a track stored deinterleaved.
func (d *Disc) planes(addr uint64) ([]byte, error) {
	tr, ok := d.Layout.TrackAt(addr)
	if !ok || tr.RawSize != frameSize {
		return nil, fmt.Errorf("%w: no subchannel stored for sector %d", image.ErrTagNotSupported, addr)
	}
	unit, err := d.Layout.Map.ReadRaw(addr, 1)
	if err != nil {
		return nil, err
	}
	return slices.Clone(unit[cdsector.RawSize:frameSize]), nil
}

func cdTracks(meta []Metadata) (tracks []Track, gdrom bool, err error) {
	for _, m := range meta {
		switch m.Tag {
		case MetaCDTrack, MetaCDTrack2, MetaGDROM:
			t, err := ParseTrack(m.Data)
			if err != nil {
				return nil, false, err
			}
			tracks = append(tracks, t)
			gdrom = gdrom || m.Tag == MetaGDROM
		case MetaCDROMOld:
			old, err := ParseOldCD(m.Data)
			if err != nil {
				return nil, false, err
			}
			tracks = append(tracks, old...)
		}
		if len(tracks) > MaxTracks {
			return nil, false, fmt.Errorf("%w: more than %d tracks", image.ErrCorruptStructure, MaxTracks)
		}
	}
	slices.SortStableFunc(tracks, func(a, b Track) int { return a.Number - b.Number })
	return tracks, gdrom, nil
}

// cdDescriptors places tracks in the hunk data: frames of 2448 bytes,
// every track padded to a multiple of four frames unless the metadata
// gives its padding.
func cdDescriptors(tracks []Track, hunks io.ReaderAt, logicalBytes uint64) ([]offsetmap.Descriptor, bool, error) {
	var (
		descs  []offsetmap.Descriptor
		rawSub bool
		frame  uint64
	)
	limit := logicalBytes / frameSize
	for _, t := range tracks {
		typ, size, raw, err := trackFormat(t.Type)
		if err != nil {
			return nil, false, err
		}
		frames := uint64(t.Frames)
		if frames > limit || frame+frames > limit {
			return nil, false, fmt.Errorf("%w: track %d ends at frame %d, image holds %d",
				image.ErrCorruptStructure, t.Number, frame+frames, limit)
		}

		var file io.ReaderAt = hunks
		if typ == image.TrackAudio {
			file = swapReader{hunks}
		}
		d := offsetmap.Descriptor{
			File:         file,
			Type:         typ,
			Sequence:     uint32(t.Number), //nolint:gosec // parsed as non-negative
			Sectors:      frames,
			Pregap:       uint64(t.Pregap),
			PregapStored: t.PregapStored(),
			Postgap:      uint64(t.Postgap),
			Offset:       int64(frame) * frameSize, //nolint:gosec // bounded by the logical size
			SectorSize:   cdsector.CookedSize(typ),
			RawSize:      size,
			Stride:       frameSize,
			Raw:          raw,
			Session:      1,
		}
		if d.PregapStored && d.Pregap > frames {
			return nil, false, fmt.Errorf("%w: track %d stores a pregap of %d in %d frames",
				image.ErrCorruptStructure, t.Number, t.Pregap, t.Frames)
		}
		switch t.SubType {
		case "RW":
			d.RawSize, d.SubchannelSize = frameSize, cdsector.SubchannelSize
		case "RW_RAW":
			d.RawSize = frameSize
			rawSub = true
		case "NONE":
		default:
			return nil, false, fmt.Errorf("%w: subchannel type %q", image.ErrUnsupportedVariant, t.SubType)
		}
		descs = append(descs, d)

		pad := uint64((4 - t.Frames%4) % 4)
		if t.HasPad {
			pad = uint64(t.Pad)
		}
		if pad > limit {
			return nil, false, fmt.Errorf("%w: track %d padded by %d frames", image.ErrCorruptStructure, t.Number, t.Pad)
		}
		frame += frames + pad
	}
	if len(descs) == 0 {
		return nil, false, fmt.Errorf("%w: no tracks", image.ErrCorruptStructure)
	}
	return descs, rawSub, nil
}

func openDVD(f *file, log logr.Logger) (*Disc, error) {
	h := f.header
	if h.Version < 5 {
		h.UnitBytes = dvdSectorSize
	}
	if h.LogicalBytes%dvdSectorSize != 0 {
		log.Info("logical size is not a whole number of sectors", "bytes", h.LogicalBytes)
	}
	layout, err := offsetmap.Builder{Logger: log}.Build([]offsetmap.Descriptor{{
		File:       f.hunks,
		Type:       image.TrackData,
		Sequence:   1,
		Sectors:    h.LogicalBytes / dvdSectorSize,
		SectorSize: dvdSectorSize,
		Session:    1,
	}})
	if err != nil {
		return nil, image.NewFormatError(Name, "build layout", -1, err)
	}
	d := &Disc{file: f}
	d.Layout = layout
	f.info = image.Info{
		MediaType:          image.MediaDVDROM,
		Sectors:            layout.Map.Total(),
		SectorSize:         dvdSectorSize,
		ImageSize:          h.LogicalBytes,
		Application:        "MAME",
		ApplicationVersion: strconv.Itoa(int(h.Version)),
	}
	return d, nil
}

// Disk is an opened hard disk image.
type Disk struct {
	*file
	layout   *offsetmap.Layout
	geometry Geometry
}

func openDisk(f *file, log logr.Logger) (*Disk, error) {
	h := f.header
	var g Geometry
	for _, m := range f.meta {
		if m.Tag != MetaHardDisk {
			continue
		}
		var err error
		if g, err = ParseGeometry(m.Data); err != nil {
			return nil, image.NewFormatError(Name, "parse hard disk metadata", -1, err)
		}
		break
	}
	if h.Version < 5 {
		h.UnitBytes = g.BytesPerSector
	} else if h.UnitBytes != g.BytesPerSector {
		return nil, image.NewFormatError(Name, "parse hard disk metadata", -1,
			fmt.Errorf("%w: %d bytes per sector in units of %d", image.ErrCorruptStructure, g.BytesPerSector, h.UnitBytes))
	}
	sectors := h.LogicalBytes / uint64(g.BytesPerSector)
	if chs := uint64(g.Cylinders) * uint64(g.Heads) * uint64(g.Sectors); chs != sectors {
		log.Info("geometry does not match the logical size", "geometry", chs, "sectors", sectors)
	}
	layout, err := offsetmap.Builder{Logger: log}.Build([]offsetmap.Descriptor{{
		File:       f.hunks,
		Type:       image.TrackData,
		Sequence:   1,
		Sectors:    sectors,
		SectorSize: g.BytesPerSector,
	}})
	if err != nil {
		return nil, image.NewFormatError(Name, "build layout", -1, err)
	}
	f.info = image.Info{
		MediaType:          image.MediaGenericHDD,
		Sectors:            sectors,
		SectorSize:         g.BytesPerSector,
		ImageSize:          h.LogicalBytes,
		Cylinders:          g.Cylinders,
		Heads:              g.Heads,
		SectorsPerTrack:    g.Sectors,
		Application:        "MAME",
		ApplicationVersion: strconv.Itoa(int(h.Version)),
	}
	return &Disk{file: f, layout: layout, geometry: g}, nil
}

// Geometry returns the stored hard disk geometry.
func (d *Disk) Geometry() Geometry { return d.geometry }

// ReadSector implements image.Image.
func (d *Disk) ReadSector(addr uint64) ([]byte, error) {
	return d.ReadSectors(addr, 1)
}

// ReadSectors implements image.Image.
func (d *Disk) ReadSectors(addr uint64, count uint32) ([]byte, error) {
	return d.layout.Map.ReadRaw(addr, count)
}

// ReadSectorTag implements image.Image. Hard disks carry no tags.
func (d *Disk) ReadSectorTag(addr uint64, tag image.SectorTag) ([]byte, error) {
	if err := image.CheckRange(addr, 1, d.layout.Map.Total()); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", image.ErrTagNotSupported, tag)
}

// swapReader swaps the bytes of each 16-bit sample in the sector part of
// audio frames, which CHD stores big-endian.
type swapReader struct {
	r io.ReaderAt
}

func (s swapReader) ReadAt(p []byte, off int64) (int, error) {
	start := off &^ 1
	end := (off + int64(len(p)) + 1) &^ 1
	buf := make([]byte, end-start)
	n, err := s.r.ReadAt(buf, start)
	for i := 0; i+1 < n; i += 2 {
		if (start+int64(i))%frameSize < cdsector.RawSize {
			buf[i], buf[i+1] = buf[i+1], buf[i]
		}
	}
	got := max(0, min(n-int(off-start), len(p)))
	copy(p, buf[off-start:off-start+int64(got)])
	if got < len(p) {
		if err == nil {
			err = io.EOF
		}
		return got, err
	}
	return got, nil
}
