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

// Package apridisk reads ACT Apricot disk images. The file is a 128-byte
// signature block followed by a stream of records, one per stored sector,
// comment or creator string. Sector records may be run-length encoded.
package apridisk

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Name is the plugin name.
const Name = "apridisk"

// Layout constants.
const (
	SignatureSize    = 128
	RecordHeaderSize = 16
	DefaultSector    = 512
)

// Record types.
const (
	RecordDeleted = 0xE31D0000
	RecordSector  = 0xE31D0001
	RecordComment = 0xE31D0002
	RecordCreator = 0xE31D0003
)

// Compression methods.
const (
	CompressionNone = 0x9E90
	CompressionRLE  = 0x3E5A
)

// Signature starts the signature block.
const Signature = "ACT Apricot disk image\x1a\x04"

// maxDiskSize bounds the geometry a record stream may claim.
const maxDiskSize = 16 << 20

var order = binary.LittleEndian

// RecordHeader starts every record.
type RecordHeader struct {
	Type        uint32
	Compression uint16
	HeaderSize  uint16
	DataSize    uint32
	Head        uint8
	Sector      uint8
	Cylinder    uint16
}

// Plugin handles Apridisk images.
type Plugin struct{}

// New returns the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements image.Plugin.
func (*Plugin) Name() string { return Name }

// Extensions implements image.Plugin.
func (*Plugin) Extensions() []string {
	return []string{".dsk"}
}

// Identify implements image.Plugin.
func (*Plugin) Identify(src image.Source) bool {
	return src.Size() >= SignatureSize && signed(src)
}

func signed(src image.Source) bool {
	return codec.NewSignature(0, Signature).Match(codec.Prefix(src, len(Signature)))
}

type chs struct {
	cylinder uint16
	head     uint8
	sector   uint8
}

type record struct {
	offset      int64
	size        uint32
	compression uint16
}

// Open implements image.Plugin.
func (*Plugin) Open(src image.Source, opts ...image.OpenOption) (image.Image, error) {
	o := image.NewOpenOptions(opts...)
	log := o.Logger.WithName(Name)

	if !signed(src) {
		return nil, image.NewFormatError(Name, "check signature", 0, image.ErrNotThisFormat)
	}
	if src.Size() < SignatureSize {
		return nil, image.NewFormatError(Name, "read signature block", 0,
			fmt.Errorf("%w: %d of %d bytes", image.ErrTruncatedInput, src.Size(), SignatureSize))
	}

	img := &Image{src: src, owned: o.Owned, sectors: map[chs]record{}, sectorSize: DefaultSector}
	var (
		maxCyl, maxHead, maxSector int
		sized                      bool
	)
	for off := int64(SignatureSize); off < src.Size(); {
		var h RecordHeader
		if err := codec.ReadStruct(src, off, order, &h); err != nil {
			return nil, image.NewFormatError(Name, "read record", off, err)
		}
		if h.HeaderSize < RecordHeaderSize {
			return nil, image.NewFormatError(Name, "read record", off,
				fmt.Errorf("%w: header size %d", image.ErrCorruptStructure, h.HeaderSize))
		}
		dataOff := off + int64(h.HeaderSize)
		if dataOff+int64(h.DataSize) > src.Size() {
			return nil, image.NewFormatError(Name, "read record", off,
				fmt.Errorf("%w: record data of %d bytes past the end of the file", image.ErrTruncatedInput, h.DataSize))
		}

		switch h.Type {
		case RecordDeleted:
		case RecordSector:
			if h.Compression != CompressionNone && h.Compression != CompressionRLE {
				return nil, image.NewFormatError(Name, "read record", off+4,
					fmt.Errorf("%w: compression 0x%04x", image.ErrUnsupportedVariant, h.Compression))
			}
			if h.Sector == 0 {
				return nil, image.NewFormatError(Name, "read record", off+13,
					fmt.Errorf("%w: sector number 0", image.ErrCorruptStructure))
			}
			key := chs{h.Cylinder, h.Head, h.Sector}
			if _, dup := img.sectors[key]; dup {
				log.Info("duplicate sector record, keeping the last", "cylinder", h.Cylinder, "head", h.Head, "sector", h.Sector)
			}
			img.sectors[key] = record{offset: dataOff, size: h.DataSize, compression: h.Compression}
			if h.Compression == CompressionNone {
				if sized && h.DataSize != img.sectorSize {
					return nil, image.NewFormatError(Name, "read record", off+8,
						fmt.Errorf("%w: sector of %d bytes, previous sectors have %d",
							image.ErrUnsupportedVariant, h.DataSize, img.sectorSize))
				}
				img.sectorSize, sized = h.DataSize, true
			}
			maxCyl = max(maxCyl, int(h.Cylinder))
			maxHead = max(maxHead, int(h.Head))
			maxSector = max(maxSector, int(h.Sector))
		case RecordComment, RecordCreator:
			text, err := codec.ReadAt(src, dataOff, int(h.DataSize))
			if err != nil {
				return nil, image.NewFormatError(Name, "read record", dataOff, err)
			}
			if h.Type == RecordComment {
				img.info.Comments = codec.CString(text)
			} else {
				img.info.Creator = codec.CString(text)
			}
		default:
			return nil, image.NewFormatError(Name, "read record", off,
				fmt.Errorf("%w: record type 0x%08x", image.ErrCorruptStructure, h.Type))
		}
		off = dataOff + int64(h.DataSize)
	}
	if len(img.sectors) == 0 {
		return nil, image.NewFormatError(Name, "read records", -1,
			fmt.Errorf("%w: no sector records", image.ErrCorruptStructure))
	}

	img.cylinders, img.heads, img.spt = maxCyl+1, maxHead+1, maxSector
	if img.cylinders*img.heads*img.spt*int(img.sectorSize) > maxDiskSize {
		return nil, image.NewFormatError(Name, "read records", -1,
			fmt.Errorf("%w: geometry %dx%dx%d", image.ErrCorruptStructure, img.cylinders, img.heads, img.spt))
	}

	cache, err := lru.New[chs, []byte](o.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create sector cache: %w", err)
	}
	img.cache = cache

	var descs []offsetmap.Descriptor
	for c := range img.cylinders {
		for h := range img.heads {
			descs = append(descs, offsetmap.Descriptor{
				File:       &trackReader{img: img, cylinder: uint16(c), head: uint8(h)}, //nolint:gosec // bounded by the record fields
				Type:       image.TrackData,
				Sequence:   uint32(len(descs) + 1), //nolint:gosec // bounded by maxDiskSize
				Sectors:    uint64(img.spt),        //nolint:gosec // at most 255
				SectorSize: img.sectorSize,
				Cylinder:   uint16(c), //nolint:gosec // bounded by the record fields
				Head:       uint16(h), //nolint:gosec // at most 255
			})
		}
	}
	layout, err := offsetmap.Builder{Logger: log}.Build(descs)
	if err != nil {
		return nil, image.NewFormatError(Name, "build layout", -1, err)
	}
	img.layout = layout

	total := layout.Map.Total()
	img.info.MediaType = image.FloppyMediaType(uint32(img.cylinders), uint32(img.heads), uint32(img.spt), img.sectorSize) //nolint:gosec // small
	img.info.Sectors = total
	img.info.SectorSize = img.sectorSize
	img.info.ImageSize = total * uint64(img.sectorSize)
	img.info.Cylinders = uint32(img.cylinders) //nolint:gosec // small
	img.info.Heads = uint32(img.heads)         //nolint:gosec // small
	img.info.SectorsPerTrack = uint32(img.spt) //nolint:gosec // small
	img.info.Application = "ACT Apridisk"
	log.V(1).Info("opened", "records", len(img.sectors), "cylinders", img.cylinders,
		"heads", img.heads, "sectors", img.spt, "sectorSize", img.sectorSize)
	return img, nil
}

// Image is an opened Apridisk image.
type Image struct {
	src        image.Source
	sectors    map[chs]record
	cache      *lru.Cache[chs, []byte]
	layout     *offsetmap.Layout
	owned      []io.Closer
	info       image.Info
	cylinders  int
	heads      int
	spt        int
	sectorSize uint32
}

// Format implements image.Image.
func (*Image) Format() string { return Name }

// Info implements image.Image.
func (img *Image) Info() image.Info { return img.info.Clone() }

// ReadSector implements image.Image.
func (img *Image) ReadSector(addr uint64) ([]byte, error) {
	return img.ReadSectors(addr, 1)
}

// ReadSectors implements image.Image.
func (img *Image) ReadSectors(addr uint64, count uint32) ([]byte, error) {
	return img.layout.Map.ReadRaw(addr, count)
}

// ReadSectorTag implements image.Image. Apridisk stores no tags.
func (img *Image) ReadSectorTag(addr uint64, tag image.SectorTag) ([]byte, error) {
	if err := image.CheckRange(addr, 1, img.info.Sectors); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", image.ErrTagNotSupported, tag)
}

// Close implements image.Image.
func (img *Image) Close() error {
	img.cache.Purge()
	return image.CloseAll(img.owned...)
}

// sector returns the data of one sector, nil if it was never stored.
func (img *Image) sector(key chs) ([]byte, error) {
	if data, ok := img.cache.Get(key); ok {
		return data, nil
	}
	rec, ok := img.sectors[key]
	if !ok {
		return nil, nil
	}
	raw, err := codec.ReadAt(img.src, rec.offset, int(rec.size))
	if err != nil {
		return nil, err
	}
	data := raw
	if rec.compression == CompressionRLE {
		if data, err = expand(raw, int(img.sectorSize)); err != nil {
			return nil, image.NewFormatError(Name, "expand sector", rec.offset, err)
		}
	}
	img.cache.Add(key, data)
	return data, nil
}

// expand decodes {count u16, value u8} runs into exactly size bytes.
func expand(raw []byte, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for len(raw) >= 3 {
		n := int(order.Uint16(raw))
		if len(out)+n > size {
			return nil, image.Decompression(fmt.Errorf("run of %d bytes overflows a %d-byte sector", n, size))
		}
		out = append(out, slices.Repeat([]byte{raw[2]}, n)...)
		raw = raw[3:]
	}
	if len(raw) != 0 || len(out) != size {
		return nil, image.Decompression(fmt.Errorf("runs expand to %d bytes, want %d", len(out), size))
	}
	return out, nil
}

// trackReader exposes one physical track as a flat byte range.
type trackReader struct {
	img      *Image
	cylinder uint16
	head     uint8
}

func (t *trackReader) ReadAt(p []byte, off int64) (int, error) {
	size := int64(t.img.sectorSize)
	end := int64(t.img.spt) * size
	if off >= end {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && off < end {
		idx := off / size
		data, err := t.img.sector(chs{t.cylinder, t.head, uint8(idx + 1)}) //nolint:gosec // idx < spt <= 255
		if err != nil {
			return n, err
		}
		within := off % size
		var c int
		if data == nil {
			c = copy(p[n:], make([]byte, size-within))
		} else {
			c = copy(p[n:], data[within:])
		}
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
