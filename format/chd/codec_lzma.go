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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterCodec(CodecLZMA, newLZMACodec)
	RegisterCodec(CodecCDLZMA, func(hunkBytes uint32) (Codec, error) {
		return newCDCodec("cdlz", hunkBytes, newLZMACodec, newZlibCodec)
	})
}

// lzmaProperties is lc=3 lp=0 pb=2, the only setting CHD writes.
const lzmaProperties = 0x5D

// lzmaCodec decodes headerless LZMA streams. The compressor sized its
// dictionary from the hunk size, so the decoder recomputes it the same way.
type lzmaCodec struct {
	header [13]byte
}

func newLZMACodec(hunkBytes uint32) (Codec, error) {
	c := &lzmaCodec{}
	c.header[0] = lzmaProperties
	binary.LittleEndian.PutUint32(c.header[1:], lzmaDictSize(hunkBytes))
	binary.LittleEndian.PutUint64(c.header[5:], uint64(hunkBytes))
	return c, nil
}

// lzmaDictSize is the dictionary of a level 9 encoder reduced to fit
// size bytes.
func lzmaDictSize(size uint32) uint32 {
	const level9 = 1 << 26
	if size >= level9 {
		return level9
	}
	for i := 11; i <= 30; i++ {
		if size <= 2<<i {
			return 2 << i
		}
		if size <= 3<<i {
			return 3 << i
		}
	}
	return level9
}

func (c *lzmaCodec) Decompress(dst, src []byte) error {
	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(c.header[:]), bytes.NewReader(src)))
	if err != nil {
		return fmt.Errorf("lzma: %w", err)
	}
	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("lzma %d bytes: %w", len(dst), err)
	}
	return nil
}
