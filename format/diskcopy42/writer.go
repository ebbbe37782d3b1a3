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
)

// Create writes a complete image of the given format to w. data must hold
// every sector of the format; tags may be nil or hold 12 bytes per sector.
func Create(w io.Writer, name string, format uint8, data, tags []byte) error {
	geo, ok := geometries[format]
	if !ok {
		return fmt.Errorf("%w: disk format 0x%02x", image.ErrUnsupportedVariant, format)
	}
	want := int(geo.sectors) * SectorSize
	if len(data) != want {
		return fmt.Errorf("format 0x%02x needs %d data bytes, got %d", format, want, len(data))
	}
	if tags != nil && len(tags) != int(geo.sectors)*TagSize {
		return fmt.Errorf("format 0x%02x needs %d tag bytes, got %d", format, int(geo.sectors)*TagSize, len(tags))
	}

	h := &Header{
		DataSize:     uint32(len(data)), //nolint:gosec // bounded by the format table
		TagSize:      uint32(len(tags)), //nolint:gosec // bounded by the format table
		DataChecksum: codec.DiskCopyChecksum(data),
		TagChecksum:  TagChecksum(tags),
		Format:       format,
		FormatByte:   geo.fmtByte,
		Private:      privateMagic,
	}
	codec.EncodePascalString(name, h.Name[:maxNameLength+1])

	hdr, err := EncodeHeader(h)
	if err != nil {
		return err
	}
	for _, chunk := range [][]byte{hdr, data, tags} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
	}
	return nil
}
