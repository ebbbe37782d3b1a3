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

func init() {
	RegisterCodec(CodecHuff, func(uint32) (Codec, error) { return huffCodec{}, nil })
}

// huffCodec is a plain byte-wise Huffman coder with a Huffman-coded tree.
type huffCodec struct{}

func (huffCodec) Decompress(dst, src []byte) error {
	br := newBitReader(src)
	hd := newHuffmanDecoder(256, 16)
	if err := hd.importTreeHuffman(br); err != nil {
		return fmt.Errorf("huff tree: %w", err)
	}
	for i := range dst {
		dst[i] = hd.decode(br)
	}
	if br.overflow() {
		return fmt.Errorf("huff: %w: input exhausted", image.ErrTruncatedInput)
	}
	return nil
}

// importTreeHuffman reads code lengths that are themselves coded with a
// small Huffman tree, with runs of the previous length.
func (hd *huffmanDecoder) importTreeHuffman(br *bitReader) error {
	small := newHuffmanDecoder(24, 6)
	small.nodeBits[0] = uint8(br.read(3))
	start := int(br.read(3)) + 1
	count := 0
	for i := 1; i < len(small.nodeBits); i++ {
		if i < start || count == 7 {
			continue
		}
		count = int(br.read(3))
		if count != 7 {
			small.nodeBits[i] = uint8(count) //nolint:gosec // three bits
		}
	}
	if err := small.buildLookup(); err != nil {
		return err
	}

	var runBits int
	for v := hd.numCodes - 9; v != 0; v >>= 1 {
		runBits++
	}

	var last uint8
	cur := 0
	for cur < hd.numCodes {
		if br.overflow() {
			return fmt.Errorf("%w: tree truncated", image.ErrTruncatedInput)
		}
		v := small.decode(br)
		if v != 0 {
			last = v - 1
			hd.nodeBits[cur] = last
			cur++
			continue
		}
		n := int(br.read(3)) + 2
		if n == 9 {
			n += int(br.read(runBits))
		}
		for ; n > 0 && cur < hd.numCodes; n-- {
			hd.nodeBits[cur] = last
			cur++
		}
	}
	return hd.buildLookup()
}
