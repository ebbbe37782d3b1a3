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

package chd

import (
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
)

// Codec tags, the ASCII name read as a big-endian integer.
const (
	CodecNone   uint32 = 0
	CodecZlib   uint32 = 0x7a6c6962 // zlib
	CodecLZMA   uint32 = 0x6c7a6d61 // lzma
	CodecHuff   uint32 = 0x68756666 // huff
	CodecFLAC   uint32 = 0x666c6163 // flac
	CodecZstd   uint32 = 0x7a737464 // zstd
	CodecCDZlib uint32 = 0x63647a6c // cdzl
	CodecCDLZMA uint32 = 0x63646c7a // cdlz
	CodecCDFLAC uint32 = 0x6364666c // cdfl
	CodecCDZstd uint32 = 0x63647a73 // cdzs
)

// frameSize is a CD frame as CHD stores it: sector data then subcode.
const frameSize = cdsector.RawWithSubSize

// Codec expands one compressed hunk. dst is exactly one hunk long and
// must be filled completely.
type Codec interface {
	Decompress(dst, src []byte) error
}

// CodecFactory builds a codec for hunks of hunkBytes bytes.
type CodecFactory func(hunkBytes uint32) (Codec, error)

var (
	codecsMu sync.RWMutex
	codecs   = map[uint32]CodecFactory{}
)

// RegisterCodec makes a codec available under tag.
func RegisterCodec(tag uint32, factory CodecFactory) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[tag] = factory
}

// NewCodec builds the codec registered for tag.
func NewCodec(tag uint32, hunkBytes uint32) (Codec, error) {
	codecsMu.RLock()
	factory, ok := codecs[tag]
	codecsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: codec %s", image.ErrUnsupportedVariant, CodecName(tag))
	}
	return factory(hunkBytes)
}

// CodecName returns the four-letter name of a codec tag.
func CodecName(tag uint32) string {
	if tag == CodecNone {
		return "none"
	}
	return string([]byte{byte(tag >> 24), byte(tag >> 16), byte(tag >> 8), byte(tag)})
}

// IsCDCodec reports whether tag compresses whole CD frames.
func IsCDCodec(tag uint32) bool {
	switch tag {
	case CodecCDZlib, CodecCDLZMA, CodecCDFLAC, CodecCDZstd:
		return true
	}
	return false
}

// cdCodec splits a hunk of CD frames into sector data and subcode, each
// compressed on its own. A bitmap marks frames whose sync and ECC were
// stripped by the compressor and must be regenerated.
type cdCodec struct {
	name    string
	frames  int
	lenSize int
	base    Codec
	subcode Codec
}

func newCDCodec(name string, hunkBytes uint32, base, subcode CodecFactory) (Codec, error) {
	if hunkBytes%frameSize != 0 {
		return nil, fmt.Errorf("%w: %s hunk of %d bytes is not whole frames", image.ErrCorruptStructure, name, hunkBytes)
	}
	frames := hunkBytes / frameSize
	b, err := base(frames * cdsector.RawSize)
	if err != nil {
		return nil, err
	}
	s, err := subcode(frames * cdsector.SubchannelSize)
	if err != nil {
		return nil, err
	}
	lenSize := 2
	if hunkBytes >= 1<<16 {
		lenSize = 3
	}
	return &cdCodec{name: name, frames: int(frames), lenSize: lenSize, base: b, subcode: s}, nil
}

func (c *cdCodec) Decompress(dst, src []byte) error {
	eccBytes := (c.frames + 7) / 8
	header := eccBytes + c.lenSize
	if len(src) < header {
		return fmt.Errorf("%s: %d bytes cannot hold the frame header", c.name, len(src))
	}
	baseLen := int(src[eccBytes])<<8 | int(src[eccBytes+1])
	if c.lenSize == 3 {
		baseLen = baseLen<<8 | int(src[eccBytes+2])
	}
	if header+baseLen > len(src) {
		return fmt.Errorf("%s: sector data of %d bytes overruns the hunk", c.name, baseLen)
	}

	sectors := make([]byte, c.frames*cdsector.RawSize)
	if err := c.base.Decompress(sectors, src[header:header+baseLen]); err != nil {
		return fmt.Errorf("%s sectors: %w", c.name, err)
	}
	subcode := make([]byte, c.frames*cdsector.SubchannelSize)
	if err := c.subcode.Decompress(subcode, src[header+baseLen:]); err != nil {
		return fmt.Errorf("%s subcode: %w", c.name, err)
	}
	assembleFrames(dst, sectors, subcode, src[:eccBytes])
	return nil
}

// assembleFrames interleaves sector data and subcode into 2448-byte
// frames, regenerating sync and ECC where ecc has the frame's bit set.
func assembleFrames(dst, sectors, subcode, ecc []byte) {
	frames := len(sectors) / cdsector.RawSize
	for i := range frames {
		frame := dst[i*frameSize : (i+1)*frameSize]
		copy(frame, sectors[i*cdsector.RawSize:(i+1)*cdsector.RawSize])
		copy(frame[cdsector.RawSize:], subcode[i*cdsector.SubchannelSize:(i+1)*cdsector.SubchannelSize])
		if ecc != nil && ecc[i/8]&(1<<(i%8)) != 0 {
			copy(frame, cdsector.Sync[:])
			cdsector.GenerateECC(frame[:cdsector.RawSize], false)
		}
	}
}
