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

// Package codec decodes and encodes the fixed-layout binary records that
// image formats are built from, and provides the signature, checksum and
// string helpers shared by the format plugins.
//
// Layouts are described as Go structs tagged for github.com/go-restruct/restruct.
// The byte order passed to Decode is the default for every field; a single
// field can override it with a `struct:"big"` or `struct:"little"` tag.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/go-restruct/restruct"
)

// SizeOf returns the encoded size of the layout v points to.
func SizeOf(v any) (int, error) {
	size, err := restruct.SizeOf(v)
	if err != nil {
		return 0, fmt.Errorf("size of %T: %w", v, err)
	}
	return size, nil
}

// Decode fills the struct v points to from the start of data.
// Short data yields ErrTruncatedInput; trailing bytes are ignored.
func Decode(data []byte, order binary.ByteOrder, v any) error {
	size, err := SizeOf(v)
	if err != nil {
		return err
	}
	if len(data) < size {
		return fmt.Errorf("%w: %T needs %d bytes, have %d", image.ErrTruncatedInput, v, size, len(data))
	}
	if err := restruct.Unpack(data[:size], order, v); err != nil {
		return fmt.Errorf("%w: unpack %T: %w", image.ErrCorruptStructure, v, err)
	}
	return nil
}

// Encode is the inverse of Decode.
func Encode(order binary.ByteOrder, v any) ([]byte, error) {
	data, err := restruct.Pack(order, v)
	if err != nil {
		return nil, fmt.Errorf("pack %T: %w", v, err)
	}
	return data, nil
}

// ReadStruct decodes the layout v points to from r at off.
func ReadStruct(r io.ReaderAt, off int64, order binary.ByteOrder, v any) error {
	size, err := SizeOf(v)
	if err != nil {
		return err
	}
	buf := make([]byte, size)
	if err := ReadFull(r, off, buf); err != nil {
		return err
	}
	return Decode(buf, order, v)
}

// ReadFull fills buf from r at off. A short read is ErrTruncatedInput.
func ReadFull(r io.ReaderAt, off int64, buf []byte) error {
	if off < 0 {
		return fmt.Errorf("%w: negative offset %d", image.ErrCorruptStructure, off)
	}
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: read %d bytes at 0x%x, got %d", image.ErrTruncatedInput, len(buf), off, n)
	}
	return fmt.Errorf("read at 0x%x: %w", off, err)
}

// ReadAt reads n bytes from r at off.
func ReadAt(r io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := ReadFull(r, off, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Prefix reads up to n bytes from the start of r, fewer if r is shorter.
func Prefix(r io.ReaderAt, n int) []byte {
	buf := make([]byte, n)
	read, _ := r.ReadAt(buf, 0)
	return buf[:read]
}
