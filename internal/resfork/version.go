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

package resfork

import (
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
)

// Release stages of a 'vers' resource.
const (
	StageDevelopment = 0x20
	StageAlpha       = 0x40
	StageBeta        = 0x60
	StageFinal       = 0x80
)

// VersionHeader is the fixed part of a 'vers' resource. Major and NonRelease
// are BCD; MinorBug holds the minor and bug-fix revisions as BCD nibbles.
type VersionHeader struct {
	Major      uint8
	MinorBug   uint8
	Stage      uint8
	NonRelease uint8
	Region     uint16
}

const versionHeaderSize = 6

// Version is a decoded 'vers' resource.
type Version struct {
	VersionHeader
	// Short is the version string shown in the Finder, Long the one shown
	// by Get Info.
	Short string
	Long  string
}

// DecodeVersion decodes a 'vers' resource.
func DecodeVersion(data []byte) (*Version, error) {
	v := &Version{}
	if err := codec.Decode(data, order, &v.VersionHeader); err != nil {
		return nil, err
	}
	rest := data[versionHeaderSize:]
	short, rest, err := pascal(rest)
	if err != nil {
		return nil, err
	}
	long, _, err := pascal(rest)
	if err != nil {
		return nil, err
	}
	v.Short, v.Long = short, long
	return v, nil
}

func pascal(b []byte) (string, []byte, error) {
	if len(b) == 0 {
		return "", nil, fmt.Errorf("%w: missing version string", image.ErrTruncatedInput)
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", nil, fmt.Errorf("%w: version string of %d bytes, have %d", image.ErrTruncatedInput, n, len(b)-1)
	}
	return codec.MacRoman(b[1 : 1+n]), b[1+n:], nil
}

// String formats the numeric version the way the Finder does, 4.2 or
// 7.5.3b2.
func (v *Version) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%x.%x", v.Major, v.MinorBug>>4)
	if bug := v.MinorBug & 0x0F; bug != 0 {
		fmt.Fprintf(&sb, ".%x", bug)
	}
	switch v.Stage {
	case StageDevelopment:
		fmt.Fprintf(&sb, "d%x", v.NonRelease)
	case StageAlpha:
		fmt.Fprintf(&sb, "a%x", v.NonRelease)
	case StageBeta:
		fmt.Fprintf(&sb, "b%x", v.NonRelease)
	}
	return sb.String()
}
