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

// Package partclone reads partclone images: a header, a byte-per-block
// bitmap and the used blocks stored back to back, each followed by a
// four-byte checksum. Unused blocks read as zeros.
package partclone

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
)

// Name is the plugin name.
const Name = "partclone"

// Layout constants.
const (
	HeaderSize   = 4160
	ChecksumSize = 4
	Magic        = "partclone-image\x00"
	BitmapMagic  = "BiTmAgIc"
	Version      = "0001"
	maxBlockSize = 1 << 24
)

var order = binary.LittleEndian

// Header is the image header.
type Header struct {
	Magic       [16]byte
	Filesystem  [14]byte
	Version     [4]byte
	Padding     uint16
	BlockSize   uint32
	DeviceSize  uint64
	TotalBlocks uint64
	UsedBlocks  uint64
	Reserved    [4096]byte
}

// FilesystemName returns the file system the image was taken from.
func (h *Header) FilesystemName() string {
	return codec.CString(h.Filesystem[:])
}

// Plugin handles partclone images.
type Plugin struct{}

// New returns the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements image.Plugin.
func (*Plugin) Name() string { return Name }

// Extensions implements image.Plugin.
func (*Plugin) Extensions() []string {
	return []string{".pcl", ".img"}
}

// Identify implements image.Plugin.
func (*Plugin) Identify(src image.Source) bool {
	return src.Size() >= HeaderSize && codec.NewSignature(0, Magic).Match(codec.Prefix(src, len(Magic)))
}

// Open implements image.Plugin.
func (*Plugin) Open(src image.Source, opts ...image.OpenOption) (image.Image, error) {
	o := image.NewOpenOptions(opts...)
	log := o.Logger.WithName(Name)

	h := &Header{}
	if err := codec.ReadStruct(src, 0, order, h); err != nil {
		return nil, image.NewFormatError(Name, "read header", 0, err)
	}
	if string(h.Magic[:]) != Magic {
		return nil, image.NewFormatError(Name, "read header", 0, image.ErrNotThisFormat)
	}
	if string(h.Version[:]) != Version {
		return nil, image.NewFormatError(Name, "read header", 30,
			fmt.Errorf("%w: version %q", image.ErrUnsupportedVariant, h.Version[:]))
	}
	if h.BlockSize == 0 || h.BlockSize > maxBlockSize {
		return nil, image.NewFormatError(Name, "read header", 36,
			fmt.Errorf("%w: block size %d", image.ErrCorruptStructure, h.BlockSize))
	}
	avail := uint64(src.Size() - HeaderSize) //nolint:gosec // size checked by ReadStruct
	if h.TotalBlocks == 0 || h.TotalBlocks > avail || h.UsedBlocks > h.TotalBlocks {
		return nil, image.NewFormatError(Name, "read header", 48,
			fmt.Errorf("%w: %d used of %d blocks in a %d-byte file",
				image.ErrCorruptStructure, h.UsedBlocks, h.TotalBlocks, src.Size()))
	}
	if h.DeviceSize != h.TotalBlocks*uint64(h.BlockSize) {
		log.Info("device size does not match the block count", "deviceSize", h.DeviceSize,
			"blocks", h.TotalBlocks, "blockSize", h.BlockSize)
	}

	bitmap, err := codec.ReadAt(src, HeaderSize, int(h.TotalBlocks)+len(BitmapMagic)) //nolint:gosec // bounded by the file size
	if err != nil {
		return nil, image.NewFormatError(Name, "read bitmap", HeaderSize, err)
	}
	//nolint:gosec // bounded by the file size
	if string(bitmap[h.TotalBlocks:]) != BitmapMagic {
		return nil, image.NewFormatError(Name, "read bitmap", HeaderSize+int64(h.TotalBlocks),
			fmt.Errorf("%w: missing bitmap signature", image.ErrCorruptStructure))
	}
	bitmap = bitmap[:h.TotalBlocks]

	dataStart := int64(HeaderSize) + int64(len(bitmap)) + int64(len(BitmapMagic))
	stride := h.BlockSize + ChecksumSize
	descs, used := runs(src, bitmap, dataStart, h.BlockSize, stride)
	if used != h.UsedBlocks {
		return nil, image.NewFormatError(Name, "read bitmap", HeaderSize,
			fmt.Errorf("%w: bitmap marks %d blocks used, header says %d",
				image.ErrCorruptStructure, used, h.UsedBlocks))
	}
	if need := dataStart + int64(used)*int64(stride); need > src.Size() { //nolint:gosec // used <= file size
		return nil, image.NewFormatError(Name, "read data", dataStart,
			fmt.Errorf("%w: %d used blocks need %d bytes, file has %d",
				image.ErrTruncatedInput, used, need, src.Size()))
	}

	layout, err := offsetmap.Builder{Logger: log, DeclaredTotal: h.TotalBlocks}.Build(descs)
	if err != nil {
		return nil, image.NewFormatError(Name, "build layout", -1, err)
	}

	img := &Image{
		header: h,
		layout: layout,
		owned:  o.Owned,
		info: image.Info{
			MediaType:          image.MediaGenericHDD,
			Sectors:            h.TotalBlocks,
			SectorSize:         h.BlockSize,
			ImageSize:          h.TotalBlocks * uint64(h.BlockSize),
			Application:        "partclone",
			ApplicationVersion: Version,
			Comments:           h.FilesystemName(),
		},
	}
	log.V(1).Info("opened", "filesystem", h.FilesystemName(), "blocks", h.TotalBlocks,
		"used", used, "runs", len(descs))
	return img, nil
}

// runs turns the bitmap into one descriptor per run of used or unused blocks.
func runs(src io.ReaderAt, bitmap []byte, dataStart int64, blockSize, stride uint32) ([]offsetmap.Descriptor, uint64) {
	var (
		descs []offsetmap.Descriptor
		used  uint64
	)
	for i := 0; i < len(bitmap); {
		j := i
		for j < len(bitmap) && (bitmap[j] != 0) == (bitmap[i] != 0) {
			j++
		}
		d := offsetmap.Descriptor{
			Type:       image.TrackData,
			Sequence:   uint32(len(descs) + 1), //nolint:gosec // bounded by the bitmap
			Sectors:    uint64(j - i),          //nolint:gosec // positive
			SectorSize: blockSize,
		}
		if bitmap[i] != 0 {
			d.File = src
			d.Offset = dataStart + int64(used)*int64(stride) //nolint:gosec // bounded by the file size
			d.Stride = stride
			used += d.Sectors
		}
		descs = append(descs, d)
		i = j
	}
	return descs, used
}

// Image is an opened partclone image.
type Image struct {
	header *Header
	layout *offsetmap.Layout
	owned  []io.Closer
	info   image.Info
}

// Format implements image.Image.
func (*Image) Format() string { return Name }

// Info implements image.Image.
func (img *Image) Info() image.Info { return img.info.Clone() }

// Header returns a copy of the decoded header.
func (img *Image) Header() any {
	h := *img.header
	return &h
}

// ReadSector implements image.Image.
func (img *Image) ReadSector(addr uint64) ([]byte, error) {
	return img.ReadSectors(addr, 1)
}

// ReadSectors implements image.Image.
func (img *Image) ReadSectors(addr uint64, count uint32) ([]byte, error) {
	return img.layout.Map.ReadRaw(addr, count)
}

// ReadSectorTag implements image.Image. partclone stores no tags.
func (img *Image) ReadSectorTag(addr uint64, tag image.SectorTag) ([]byte, error) {
	if err := image.CheckRange(addr, 1, img.info.Sectors); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", image.ErrTagNotSupported, tag)
}

// Close implements image.Image.
func (img *Image) Close() error {
	return image.CloseAll(img.owned...)
}
