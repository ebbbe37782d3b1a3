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

// SectorTag names a per-sector metadata region that is not user data.
type SectorTag string

// Sector tags and the size in bytes of each.
const (
	TagAppleSony     SectorTag = "AppleSonyTag"
	TagCDSync        SectorTag = "CdSectorSync"
	TagCDHeader      SectorTag = "CdSectorHeader"
	TagCDSubHeader   SectorTag = "CdSectorSubHeader"
	TagCDEDC         SectorTag = "CdSectorEdc"
	TagCDECC         SectorTag = "CdSectorEcc"
	TagCDECCP        SectorTag = "CdSectorEccP"
	TagCDECCQ        SectorTag = "CdSectorEccQ"
	TagCDSubchannel  SectorTag = "CdSectorSubchannel"
	TagCDSubchannelQ SectorTag = "CdSectorSubchannelQ"
)

var tagSizes = map[SectorTag]int{
	TagAppleSony:     12,
	TagCDSync:        12,
	TagCDHeader:      4,
	TagCDSubHeader:   8,
	TagCDEDC:         4,
	TagCDECC:         276,
	TagCDECCP:        172,
	TagCDECCQ:        104,
	TagCDSubchannel:  96,
	TagCDSubchannelQ: 12,
}

// Size returns the number of bytes a tag occupies, or 0 for unknown tags.
func (t SectorTag) Size() int {
	return tagSizes[t]
}

// CDTags is the set of tags readable from a raw data track.
var CDTags = []SectorTag{
	TagCDSync, TagCDHeader, TagCDSubHeader, TagCDEDC,
	TagCDECC, TagCDECCP, TagCDECCQ,
}
