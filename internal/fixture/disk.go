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

package fixture

import (
	"encoding/binary"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/format/apridisk"
	"github.com/ZaparooProject/go-mediaimage/format/partclone"
)

// ApridiskOptions tune the Apridisk builder.
type ApridiskOptions struct {
	// Missing reports sectors left out of the record stream.
	Missing func(lba int) bool
	Comment string
	Creator string
	// RLE stores even sectors run-length encoded.
	RLE bool
}

// Apridisk builds an image of 512-byte sectors where the sector at lba is
// filled with byte(lba).
func Apridisk(tb testing.TB, cylinders, heads, spt int, o ApridiskOptions) []byte {
	tb.Helper()
	out := make([]byte, apridisk.SignatureSize)
	copy(out, apridisk.Signature)

	record := func(typ uint32, compression uint16, c, h, s int, data []byte) {
		out = append(out, encode(tb, &apridisk.RecordHeader{
			Type:        typ,
			Compression: compression,
			HeaderSize:  apridisk.RecordHeaderSize,
			DataSize:    uint32(len(data)),
			Head:        uint8(h),
			Sector:      uint8(s),
			Cylinder:    uint16(c),
		})...)
		out = append(out, data...)
	}

	record(apridisk.RecordDeleted, apridisk.CompressionNone, 0, 0, 1, make([]byte, 512))
	if o.Creator != "" {
		record(apridisk.RecordCreator, apridisk.CompressionNone, 0, 0, 0, append([]byte(o.Creator), 0))
	}
	for c := range cylinders {
		for h := range heads {
			for s := 1; s <= spt; s++ {
				lba := (c*heads+h)*spt + s - 1
				if o.Missing != nil && o.Missing(lba) {
					continue
				}
				if o.RLE && lba%2 == 0 {
					var runs []byte
					for range 2 {
						runs = binary.LittleEndian.AppendUint16(runs, 256)
						runs = append(runs, byte(lba))
					}
					record(apridisk.RecordSector, apridisk.CompressionRLE, c, h, s, runs)
					continue
				}
				record(apridisk.RecordSector, apridisk.CompressionNone, c, h, s, Fill(lba, 512))
			}
		}
	}
	if o.Comment != "" {
		record(apridisk.RecordComment, apridisk.CompressionNone, 0, 0, 0, append([]byte(o.Comment), 0))
	}
	return out
}

// Fill returns n bytes of byte(lba).
func Fill(lba, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(lba)
	}
	return out
}

// Partclone builds an image of the given block size. Block i is stored
// when used[i] is set and then holds Payload(i, blockSize).
func Partclone(tb testing.TB, blockSize int, used []bool) []byte {
	tb.Helper()
	var count uint64
	for _, u := range used {
		if u {
			count++
		}
	}
	h := partclone.Header{
		BlockSize:   uint32(blockSize),
		DeviceSize:  uint64(len(used) * blockSize),
		TotalBlocks: uint64(len(used)),
		UsedBlocks:  count,
	}
	copy(h.Magic[:], partclone.Magic)
	copy(h.Filesystem[:], "EXTFS")
	copy(h.Version[:], partclone.Version)
	out := encode(tb, &h)

	for _, u := range used {
		if u {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	out = append(out, partclone.BitmapMagic...)
	for i, u := range used {
		if !u {
			continue
		}
		block := Payload(i, blockSize)
		out = append(out, block...)
		out = binary.LittleEndian.AppendUint32(out, codec.CRC32(block))
	}
	return out
}
