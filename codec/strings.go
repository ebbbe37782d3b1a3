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

package codec

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// CString converts bytes up to the first NUL to a string, trimming spaces.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// Printable keeps only printable ASCII characters (0x20-0x7E).
func Printable(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x20 && c <= 0x7E {
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}

// MacRoman decodes Mac OS Roman text.
func MacRoman(b []byte) string {
	s, err := charmap.Macintosh.NewDecoder().Bytes(b)
	if err != nil {
		return Printable(b)
	}
	return string(s)
}

// PascalString decodes a length-prefixed Mac OS Roman string stored in a
// fixed field. The length is clamped to the field.
func PascalString(field []byte) string {
	if len(field) == 0 {
		return ""
	}
	n := min(int(field[0]), len(field)-1)
	return MacRoman(field[1 : 1+n])
}

// EncodePascalString is the inverse of PascalString. Characters without a
// Mac OS Roman equivalent become '?'.
func EncodePascalString(s string, field []byte) {
	clear(field)
	if len(field) == 0 {
		return
	}
	enc, err := charmap.Macintosh.NewEncoder().Bytes([]byte(s))
	if err != nil {
		enc = []byte(strings.Map(func(r rune) rune {
			if r < 0x80 {
				return r
			}
			return '?'
		}, s))
	}
	n := min(len(enc), len(field)-1, 255)
	field[0] = byte(n)
	copy(field[1:], enc[:n])
}

// UTF16LE decodes a little-endian UTF-16 string up to the first NUL unit.
func UTF16LE(b []byte) string {
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]
			break
		}
	}
	s, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}
