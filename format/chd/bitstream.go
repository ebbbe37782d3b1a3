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

	"github.com/ZaparooProject/go-mediaimage/image"
)

// bitReader reads MSB-first bit fields. Reading past the end yields zero
// bits and sets overflow.
type bitReader struct {
	data []byte
	pos  int // bits consumed
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (br *bitReader) peek(count int) uint32 {
	var v uint32
	for i := range count {
		bit := br.pos + i
		v <<= 1
		if idx := bit >> 3; idx < len(br.data) {
			v |= uint32(br.data[idx]>>(7-bit&7)) & 1
		}
	}
	return v
}

func (br *bitReader) remove(count int) {
	br.pos += count
}

func (br *bitReader) read(count int) uint32 {
	v := br.peek(count)
	br.remove(count)
	return v
}

func (br *bitReader) overflow() bool {
	return br.pos > len(br.data)*8
}

// huffmanDecoder decodes the canonical Huffman codes of compressed maps.
type huffmanDecoder struct {
	lookup   []uint32 // symbol<<5 | length, indexed by the next maxBits bits
	nodeBits []uint8
	numCodes int
	maxBits  int
}

func newHuffmanDecoder(numCodes, maxBits int) *huffmanDecoder {
	return &huffmanDecoder{
		numCodes: numCodes,
		maxBits:  maxBits,
		nodeBits: make([]uint8, numCodes),
		lookup:   make([]uint32, 1<<maxBits),
	}
}

// importTreeRLE reads code lengths stored with a small run-length scheme:
// a 1 escapes either a literal 1 or a length followed by a repeat count.
func (hd *huffmanDecoder) importTreeRLE(br *bitReader) error {
	var numBits int
	switch {
	case hd.maxBits >= 16:
		numBits = 5
	case hd.maxBits >= 8:
		numBits = 4
	default:
		numBits = 3
	}

	for cur := 0; cur < hd.numCodes; {
		bits := br.read(numBits)
		if bits != 1 {
			hd.nodeBits[cur] = uint8(bits) //nolint:gosec // at most 5 bits
			cur++
			continue
		}
		bits = br.read(numBits)
		if bits == 1 {
			hd.nodeBits[cur] = 1
			cur++
			continue
		}
		rep := int(br.read(numBits)) + 3
		if cur+rep > hd.numCodes {
			return fmt.Errorf("%w: huffman tree run of %d overflows %d codes", image.ErrCorruptStructure, rep, hd.numCodes)
		}
		for range rep {
			hd.nodeBits[cur] = uint8(bits) //nolint:gosec // at most 5 bits
			cur++
		}
	}
	return hd.buildLookup()
}

// buildLookup assigns canonical codes, longest lengths first, and fills
// the lookup table.
func (hd *huffmanDecoder) buildLookup() error {
	var histo [33]uint32
	for _, bits := range hd.nodeBits {
		if int(bits) > hd.maxBits {
			return fmt.Errorf("%w: huffman code of %d bits, limit %d", image.ErrCorruptStructure, bits, hd.maxBits)
		}
		histo[bits]++
	}

	var start uint32
	for length := 32; length > 0; length-- {
		next := (start + histo[length]) >> 1
		if length != 1 && next*2 != start+histo[length] {
			return fmt.Errorf("%w: huffman code lengths do not form a tree", image.ErrCorruptStructure)
		}
		histo[length] = start
		start = next
	}

	for sym, bits := range hd.nodeBits {
		if bits == 0 {
			continue
		}
		code := histo[bits]
		histo[bits]++
		shift := hd.maxBits - int(bits)
		lo, hi := int(code)<<shift, int(code+1)<<shift
		if hi > len(hd.lookup) {
			return fmt.Errorf("%w: huffman code out of range", image.ErrCorruptStructure)
		}
		value := uint32(sym)<<5 | uint32(bits) //nolint:gosec // sym < numCodes
		for i := lo; i < hi; i++ {
			hd.lookup[i] = value
		}
	}
	return nil
}

// decode reads one symbol.
func (hd *huffmanDecoder) decode(br *bitReader) uint8 {
	v := hd.lookup[br.peek(hd.maxBits)]
	br.remove(int(v & 0x1f))
	return uint8(v >> 5) //nolint:gosec // symbols of map trees fit a byte
}
