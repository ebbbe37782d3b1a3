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

	"github.com/klauspost/compress/zstd"
)

func init() {
	RegisterCodec(CodecZstd, newZstdCodec)
	RegisterCodec(CodecCDZstd, func(hunkBytes uint32) (Codec, error) {
		return newCDCodec("cdzs", hunkBytes, newZstdCodec, newZstdCodec)
	})
}

// A single decoder serves every image; DecodeAll is safe for concurrent use.
var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	errZstd     error
)

func sharedZstdDecoder() (*zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdDecoder, errZstd = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxHunkBytes))
	})
	return zstdDecoder, errZstd
}

type zstdCodec struct {
	dec *zstd.Decoder
}

func newZstdCodec(uint32) (Codec, error) {
	dec, err := sharedZstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return zstdCodec{dec: dec}, nil
}

func (c zstdCodec) Decompress(dst, src []byte) error {
	out, err := c.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("zstd: %w", err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("zstd: %d bytes decoded, want %d", len(out), len(dst))
	}
	if &out[0] != &dst[0] {
		copy(dst, out)
	}
	return nil
}
