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
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/mewkiz/flac"
)

func init() {
	RegisterCodec(CodecFLAC, newFLACCodec)
	RegisterCodec(CodecCDFLAC, newCDFLACCodec)
}

const flacSampleRate = 44100

// flacHeader is a stream marker and STREAMINFO block describing 16-bit
// stereo audio; the block size and rate are patched in per codec.
var flacHeader = [42]byte{
	'f', 'L', 'a', 'C',
	0x80, 0x00, 0x00, 0x22, // last block, STREAMINFO, 34 bytes
	0x00, 0x00, 0x00, 0x00, // block size min, max
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // frame size min, max
	0x0A, 0xC4, 0x42, 0xF0, 0x00, 0x00, 0x00, 0x00, // 44100 Hz, 2 channels, 16 bits
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // MD5
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

func streamHeader(blockSize uint16, sampleRate uint32, channels uint8) []byte {
	h := flacHeader
	h[0x08], h[0x0A] = byte(blockSize>>8), byte(blockSize>>8)
	h[0x09], h[0x0B] = byte(blockSize), byte(blockSize)
	h[0x12] = byte(sampleRate >> 12)
	h[0x13] = byte(sampleRate >> 4)
	h[0x14] = byte(sampleRate<<4) | (channels-1)<<1
	return h[:]
}

// flacBlockSize halves a quarter of the data size until it fits limit.
func flacBlockSize(size, limit int) uint16 {
	n := size / 4
	for n > limit {
		n /= 2
	}
	return uint16(n) //nolint:gosec // at most limit
}

// byteReader hands out one byte per Read so the decoder never buffers past
// the end of the audio and the consumed count stays exact.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

// decodeFLAC fills dst with interleaved 16-bit stereo samples and returns
// the number of bytes of src the stream used.
func decodeFLAC(dst, src []byte, blockSize uint16, bigEndian bool) (int, error) {
	data := &byteReader{data: src}
	stream, err := flac.New(io.MultiReader(bytes.NewReader(streamHeader(blockSize, flacSampleRate, 2)), data))
	if err != nil {
		return 0, fmt.Errorf("flac stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	off := 0
	for off < len(dst) {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("flac: stream ends after %d of %d bytes", off, len(dst))
			}
			return 0, fmt.Errorf("flac frame: %w", err)
		}
		if len(frame.Subframes) != 2 {
			return 0, fmt.Errorf("flac frame with %d channels", len(frame.Subframes))
		}
		left, right := frame.Subframes[0].Samples, frame.Subframes[1].Samples
		for i := 0; i < len(left) && i < len(right) && off+4 <= len(dst); i++ {
			putSample(dst[off:], left[i], bigEndian)
			putSample(dst[off+2:], right[i], bigEndian)
			off += 4
		}
	}
	return data.pos, nil
}

func putSample(b []byte, s int32, bigEndian bool) {
	if bigEndian {
		b[0], b[1] = byte(s>>8), byte(s)
		return
	}
	b[0], b[1] = byte(s), byte(s>>8)
}

// flacCodec stores a byte order marker before the stream.
type flacCodec struct {
	blockSize uint16
}

func newFLACCodec(hunkBytes uint32) (Codec, error) {
	return flacCodec{blockSize: flacBlockSize(int(hunkBytes), 2048)}, nil
}

func (c flacCodec) Decompress(dst, src []byte) error {
	if len(src) == 0 {
		return errors.New("flac: empty hunk")
	}
	var bigEndian bool
	switch src[0] {
	case 'B':
		bigEndian = true
	case 'L':
	default:
		return fmt.Errorf("flac: byte order marker 0x%02x", src[0])
	}
	_, err := decodeFLAC(dst, src[1:], c.blockSize, bigEndian)
	return err
}

// cdFLACCodec stores big-endian CD audio as FLAC, followed by the
// deflated subcode.
type cdFLACCodec struct {
	frames    int
	blockSize uint16
	subcode   Codec
}

func newCDFLACCodec(hunkBytes uint32) (Codec, error) {
	if hunkBytes%frameSize != 0 {
		return nil, fmt.Errorf("%w: cdfl hunk of %d bytes is not whole frames", image.ErrCorruptStructure, hunkBytes)
	}
	frames := int(hunkBytes / frameSize)
	sub, err := newZlibCodec(0)
	if err != nil {
		return nil, err
	}
	return &cdFLACCodec{
		frames:    frames,
		blockSize: flacBlockSize(frames*cdsector.RawSize, cdsector.RawSize),
		subcode:   sub,
	}, nil
}

func (c *cdFLACCodec) Decompress(dst, src []byte) error {
	sectors := make([]byte, c.frames*cdsector.RawSize)
	used, err := decodeFLAC(sectors, src, c.blockSize, true)
	if err != nil {
		return fmt.Errorf("cdfl: %w", err)
	}
	subcode := make([]byte, c.frames*cdsector.SubchannelSize)
	if err := c.subcode.Decompress(subcode, src[used:]); err != nil {
		return fmt.Errorf("cdfl subcode: %w", err)
	}
	assembleFrames(dst, sectors, subcode, nil)
	return nil
}
