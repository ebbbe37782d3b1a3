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

package cdsector

import "encoding/binary"

var (
	eccF   [256]byte
	eccB   [256]byte
	edcLUT [256]uint32
)

func init() {
	for i := range 256 {
		j := i << 1
		if i&0x80 != 0 {
			j ^= 0x11D
		}
		eccF[i] = byte(j)
		eccB[i^j&0xFF] = byte(i)

		edc := uint32(i) //nolint:gosec // i < 256
		for range 8 {
			if edc&1 != 0 {
				edc = edc>>1 ^ 0xD8018001
			} else {
				edc >>= 1
			}
		}
		edcLUT[i] = edc
	}
}

// EDC computes the error detection code over data.
func EDC(data []byte) uint32 {
	var edc uint32
	for _, b := range data {
		edc = edc>>8 ^ edcLUT[(edc^uint32(b))&0xFF]
	}
	return edc
}

func eccBlock(src []byte, majorCount, minorCount, majorMult, minorInc int, dest []byte) {
	size := majorCount * minorCount
	for major := range majorCount {
		index := (major>>1)*majorMult + major&1
		var a, b byte
		for range minorCount {
			t := src[index]
			index += minorInc
			if index >= size {
				index -= size
			}
			a ^= t
			b ^= t
			a = eccF[a]
		}
		a = eccB[eccF[a]^b]
		dest[major] = a
		dest[major+majorCount] = a ^ b
	}
}

// GenerateECC writes the P and Q parity of a Mode 1 or Mode 2 Form 1
// frame. With zeroAddress the header is treated as zero, as Mode 2 requires.
func GenerateECC(frame []byte, zeroAddress bool) {
	var saved [HeaderSize]byte
	if zeroAddress {
		copy(saved[:], frame[12:16])
		clear(frame[12:16])
	}
	eccBlock(frame[12:], 86, 24, 2, 86, frame[2076:])
	eccBlock(frame[12:], 52, 43, 86, 88, frame[2248:])
	if zeroAddress {
		copy(frame[12:16], saved[:])
	}
}

// Finish fills the sync pattern, EDC and ECC of a frame whose header and
// user data are already in place.
func Finish(t Mode, frame []byte) {
	copy(frame, Sync[:])
	switch t {
	case Mode1:
		binary.LittleEndian.PutUint32(frame[2064:], EDC(frame[:2064]))
		clear(frame[2068:2076])
		GenerateECC(frame, false)
	case Mode2Form1:
		binary.LittleEndian.PutUint32(frame[2072:], EDC(frame[16:2072]))
		GenerateECC(frame, true)
	case Mode2Form2:
		binary.LittleEndian.PutUint32(frame[2348:], EDC(frame[16:2348]))
	}
}

// Mode is the data mode written in a frame header.
type Mode int

// Frame modes.
const (
	Mode1 Mode = iota + 1
	Mode2Form1
	Mode2Form2
)

// BCD encodes v (0-99) as binary-coded decimal.
func BCD(v int) byte {
	return byte(v/10<<4 | v%10) //nolint:gosec // v < 100
}

// MSF converts an absolute LBA (including the 150-sector lead-in offset)
// to BCD minute, second and frame.
func MSF(lba int) (m, s, f byte) {
	return BCD(lba / 75 / 60), BCD(lba / 75 % 60), BCD(lba % 75)
}

// NewFrame builds a complete raw frame at lba holding data.
func NewFrame(t Mode, lba int, data []byte) []byte {
	frame := make([]byte, RawSize)
	frame[12], frame[13], frame[14] = MSF(lba + 150)
	switch t {
	case Mode1:
		frame[15] = 1
		copy(frame[16:16+2048], data)
	case Mode2Form1:
		frame[15] = 2
		copy(frame[24:24+2048], data)
	case Mode2Form2:
		frame[15] = 2
		frame[18], frame[22] = 0x20, 0x20
		copy(frame[24:24+2324], data)
	}
	Finish(t, frame)
	return frame
}
