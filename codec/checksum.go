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

package codec

import (
	"encoding/binary"
	"hash/crc32"
)

// ChecksumFunc computes a format-defined checksum.
type ChecksumFunc func(data []byte) uint32

// ValidateChecksum reports whether sum(data) equals stored.
func ValidateChecksum(sum ChecksumFunc, data []byte, stored uint32) bool {
	return sum(data) == stored
}

// DiskCopyChecksum is the Apple Disk Copy 4.2 checksum: each big-endian
// 16-bit word is added and the accumulator rotated right by one bit.
// A trailing odd byte is ignored.
func DiskCopyChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
		sum = sum>>1 | sum<<31
	}
	return sum
}

// CRC32 is the IEEE CRC-32.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CRC16 is CRC-16/CCITT-FALSE (polynomial 0x1021, initial value 0xFFFF).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
