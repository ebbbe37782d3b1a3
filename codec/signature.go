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

import "bytes"

// Signature is a set of accepted byte strings at a fixed offset.
type Signature struct {
	Values [][]byte
	Offset int
}

// NewSignature returns a signature accepting any of values at offset.
func NewSignature(offset int, values ...string) Signature {
	s := Signature{Offset: offset}
	for _, v := range values {
		s.Values = append(s.Values, []byte(v))
	}
	return s
}

// Match reports whether data carries one of the signature values.
func (s Signature) Match(data []byte) bool {
	return MatchAny(data, s.Offset, s.Values...)
}

// Len returns the number of bytes needed to evaluate the signature.
func (s Signature) Len() int {
	longest := 0
	for _, v := range s.Values {
		longest = max(longest, len(v))
	}
	return s.Offset + longest
}

// MatchAny reports whether any of magics appears in data at offset.
func MatchAny(data []byte, offset int, magics ...[]byte) bool {
	if offset < 0 {
		return false
	}
	for _, m := range magics {
		if offset+len(m) <= len(data) && bytes.Equal(data[offset:offset+len(m)], m) {
			return true
		}
	}
	return false
}
