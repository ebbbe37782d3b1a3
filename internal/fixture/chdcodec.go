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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/format/chd"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"
)

// bitWriter writes MSB-first bit fields.
type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) write(v uint64, bits int) {
	for i := bits - 1; i >= 0; i-- {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 != 0 {
			w.buf[len(w.buf)-1] |= 0x80 >> (w.n % 8)
		}
		w.n++
	}
}

func bitsFor(v uint64) int {
	n := 0
	for ; v != 0; v >>= 1 {
		n++
	}
	return n
}

// Compress compresses one hunk the way a CHD writer does for tag.
func Compress(tb testing.TB, tag uint32, hunk []byte) []byte {
	tb.Helper()
	switch tag {
	case chd.CodecZlib:
		return deflate(tb, hunk)
	case chd.CodecLZMA:
		return lzmaRaw(tb, hunk)
	case chd.CodecZstd:
		return zstdFrame(tb, hunk)
	case chd.CodecHuff:
		return huffman(hunk)
	case chd.CodecFLAC:
		return append([]byte{'B'}, flacVerbatim(hunk, blockSize(len(hunk), 2048))...)
	case chd.CodecCDZlib, chd.CodecCDLZMA, chd.CodecCDZstd, chd.CodecCDFLAC:
		return compressCD(tb, tag, hunk)
	}
	tb.Fatalf("no compressor for %s", chd.CodecName(tag))
	return nil
}

func deflate(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		tb.Fatalf("deflate: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("deflate: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("deflate: %v", err)
	}
	return buf.Bytes()
}

// lzmaRaw returns an LZMA stream without its 13-byte header.
func lzmaRaw(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := lzma.WriterConfig{DictCap: lzma.MinDictCap, Size: int64(len(data))}.NewWriter(&buf)
	if err != nil {
		tb.Fatalf("lzma: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("lzma: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("lzma: %v", err)
	}
	return buf.Bytes()[13:]
}

func zstdFrame(tb testing.TB, data []byte) []byte {
	tb.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		tb.Fatalf("zstd: %v", err)
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, nil)
}

// huffman codes every byte as itself: the length tree is coded with a
// two-symbol tree where 1 means "eight bits".
func huffman(data []byte) []byte {
	var w bitWriter
	w.write(1, 3) // symbol 0 (runs) has one bit
	w.write(0, 3) // lengths follow from symbol 1
	for range 8 {
		w.write(0, 3)
	}
	w.write(1, 3) // symbol 9 (length 8) has one bit
	w.write(7, 3) // no further symbols
	for range 256 {
		w.write(1, 1)
	}
	for _, b := range data {
		w.write(uint64(b), 8)
	}
	return w.buf
}

func blockSize(size, limit int) int {
	n := size / 4
	for n > limit {
		n /= 2
	}
	return n
}

// flacVerbatim stores big-endian 16-bit stereo samples as verbatim FLAC
// frames.
func flacVerbatim(pcm []byte, block int) []byte {
	var out []byte
	samples := len(pcm) / 4
	for frame, first := 0, 0; first < samples; frame, first = frame+1, first+block {
		n := min(block, samples-first)
		// Sync, variable size, 44.1 kHz, stereo, 16 bits.
		f := []byte{0xFF, 0xF8, 0x79, 0x18}
		if frame < 0x80 {
			f = append(f, byte(frame))
		} else {
			f = append(f, 0xC0|byte(frame>>6), 0x80|byte(frame&0x3F))
		}
		f = binary.BigEndian.AppendUint16(f, uint16(n-1)) //nolint:gosec // block sizes are small
		f = append(f, crc8(f))
		for ch := range 2 {
			f = append(f, 0x02) // verbatim subframe
			for i := range n {
				off := (first+i)*4 + ch*2
				f = append(f, pcm[off], pcm[off+1])
			}
		}
		f = binary.BigEndian.AppendUint16(f, crc16(f))
		out = append(out, f...)
	}
	return out
}

func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// compressCD splits frames into sector data and subcode. Frames whose
// sync and ECC can be regenerated have them cleared and their bit set.
func compressCD(tb testing.TB, tag uint32, hunk []byte) []byte {
	tb.Helper()
	frames := len(hunk) / cdsector.RawWithSubSize
	sectors := make([]byte, frames*cdsector.RawSize)
	sub := make([]byte, frames*cdsector.SubchannelSize)
	ecc := make([]byte, (frames+7)/8)
	for i := range frames {
		f := hunk[i*cdsector.RawWithSubSize:]
		sec := sectors[i*cdsector.RawSize : (i+1)*cdsector.RawSize]
		copy(sec, f[:cdsector.RawSize])
		copy(sub[i*cdsector.SubchannelSize:], f[cdsector.RawSize:cdsector.RawWithSubSize])
		if tag != chd.CodecCDFLAC && eccIntact(sec) {
			ecc[i/8] |= 1 << (i % 8)
			clear(sec[:cdsector.SyncSize])
			clear(sec[2076:])
		}
	}

	var base, subcode []byte
	switch tag {
	case chd.CodecCDFLAC:
		return append(flacVerbatim(sectors, blockSize(len(sectors), cdsector.RawSize)), deflate(tb, sub)...)
	case chd.CodecCDZlib:
		base, subcode = deflate(tb, sectors), deflate(tb, sub)
	case chd.CodecCDLZMA:
		base, subcode = lzmaRaw(tb, sectors), deflate(tb, sub)
	case chd.CodecCDZstd:
		base, subcode = zstdFrame(tb, sectors), zstdFrame(tb, sub)
	}
	out := ecc
	if len(hunk) < 1<<16 {
		out = binary.BigEndian.AppendUint16(out, uint16(len(base))) //nolint:gosec // smaller than the hunk
	} else {
		out = append(out, byte(len(base)>>16), byte(len(base)>>8), byte(len(base)))
	}
	out = append(out, base...)
	return append(out, subcode...)
}

func eccIntact(sec []byte) bool {
	if !bytes.Equal(sec[:cdsector.SyncSize], cdsector.Sync[:]) {
		return false
	}
	c := bytes.Clone(sec)
	cdsector.GenerateECC(c, false)
	return bytes.Equal(c[2076:], sec[2076:])
}
