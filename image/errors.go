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

package image

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a plugin or the registry wraps
// exactly one of these; test with errors.Is.
var (
	// ErrNotThisFormat means the input is not the format the plugin handles.
	ErrNotThisFormat = errors.New("not this format")

	// ErrTruncatedInput means the input ends before a structure is complete.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrCorruptStructure means a structure failed a consistency check.
	ErrCorruptStructure = errors.New("corrupt structure")

	// ErrUnsupportedVariant means the format is recognised but uses a
	// feature that is not implemented.
	ErrUnsupportedVariant = errors.New("unsupported variant")

	// ErrSectorAddressOutOfRange means a read fell outside the image.
	ErrSectorAddressOutOfRange = errors.New("sector address out of range")

	// ErrTagNotSupported means the image does not carry the requested tag.
	ErrTagNotSupported = errors.New("sector tag not supported")

	// ErrDecompressionFailure means a compressed payload could not be
	// expanded. It is always reported together with ErrCorruptStructure.
	ErrDecompressionFailure = errors.New("decompression failure")

	// ErrInconsistentLayout means the sector accounting of an image does
	// not add up. It is a kind of ErrCorruptStructure.
	ErrInconsistentLayout = fmt.Errorf("%w: inconsistent layout", ErrCorruptStructure)

	// ErrNoMatchingFormat means no registered plugin accepted the input.
	ErrNoMatchingFormat = errors.New("no matching format")
)

// FormatError records the format, operation and byte offset of a failure.
type FormatError struct {
	Err    error
	Format string
	Op     string
	Offset int64
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s at offset 0x%x: %v", e.Format, e.Op, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Format, e.Op, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError wraps err with its context. Offset -1 means not applicable.
func NewFormatError(format, op string, offset int64, err error) error {
	return &FormatError{Format: format, Op: op, Offset: offset, Err: err}
}

// Decompression reports a codec failure as corrupt structure.
func Decompression(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrCorruptStructure, ErrDecompressionFailure, err)
}

// CheckRange validates a read of count sectors starting at addr against an
// image of total sectors.
func CheckRange(addr uint64, count uint32, total uint64) error {
	if count == 0 || addr >= total || uint64(count) > total-addr {
		return fmt.Errorf("%w: sectors %d+%d, image has %d", ErrSectorAddressOutOfRange, addr, count, total)
	}
	return nil
}
