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
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

func init() {
	RegisterCodec(CodecZlib, newZlibCodec)
	RegisterCodec(CodecCDZlib, func(hunkBytes uint32) (Codec, error) {
		return newCDCodec("cdzl", hunkBytes, newZlibCodec, newZlibCodec)
	})
}

// zlibCodec inflates raw deflate streams; CHD stores no zlib wrapper.
type zlibCodec struct{}

func newZlibCodec(uint32) (Codec, error) {
	return zlibCodec{}, nil
}

func (zlibCodec) Decompress(dst, src []byte) error {
	r := flate.NewReader(bytes.NewReader(src))
	defer func() { _ = r.Close() }()
	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("inflate %d bytes: %w", len(dst), err)
	}
	return nil
}
