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
	"slices"
	"time"
)

// MediaType is the kind of physical medium an image was taken from.
type MediaType string

// Media types recognised by the bundled formats.
const (
	MediaUnknown       MediaType = "Unknown"
	MediaAppleSonySS   MediaType = "AppleSonySS"
	MediaAppleSonyDS   MediaType = "AppleSonyDS"
	MediaDOS35SSDD9    MediaType = "DOS_35_SS_DD_9"
	MediaDOS35DSDD9    MediaType = "DOS_35_DS_DD_9"
	MediaDOS35HD       MediaType = "DOS_35_HD"
	MediaDMF           MediaType = "DMF"
	MediaApricot35     MediaType = "Apricot_35"
	MediaCD            MediaType = "CD"
	MediaCDDA          MediaType = "CDDA"
	MediaCDROM         MediaType = "CDROM"
	MediaCDR           MediaType = "CDR"
	MediaCDRW          MediaType = "CDRW"
	MediaGDROM         MediaType = "GDROM"
	MediaDVDROM        MediaType = "DVDROM"
	MediaDVDR          MediaType = "DVDR"
	MediaGenericHDD    MediaType = "GENERIC_HDD"
	MediaGenericFloppy MediaType = "GENERIC_FLOPPY"
)

type floppyGeometry struct {
	cylinders, heads, sectors, size uint32
}

var floppyMedia = map[floppyGeometry]MediaType{
	{70, 1, 9, 512}:  MediaApricot35,
	{80, 1, 9, 512}:  MediaDOS35SSDD9,
	{80, 2, 9, 512}:  MediaDOS35DSDD9,
	{80, 2, 18, 512}: MediaDOS35HD,
	{80, 2, 21, 512}: MediaDMF,
}

// FloppyMediaType guesses the medium of a fixed-geometry floppy image.
func FloppyMediaType(cylinders, heads, sectorsPerTrack, sectorSize uint32) MediaType {
	if mt, ok := floppyMedia[floppyGeometry{cylinders, heads, sectorsPerTrack, sectorSize}]; ok {
		return mt
	}
	return MediaGenericFloppy
}

// Info is the descriptive metadata of an opened image.
type Info struct {
	MediaType  MediaType `json:"mediaType"`
	Sectors    uint64    `json:"sectors"`
	SectorSize uint32    `json:"sectorSize"`
	// ImageSize is the number of user data bytes the image holds.
	ImageSize uint64 `json:"imageSize"`

	Cylinders       uint32 `json:"cylinders,omitempty"`
	Heads           uint32 `json:"heads,omitempty"`
	SectorsPerTrack uint32 `json:"sectorsPerTrack,omitempty"`

	Application        string    `json:"application,omitempty"`
	ApplicationVersion string    `json:"applicationVersion,omitempty"`
	Creator            string    `json:"creator,omitempty"`
	Comments           string    `json:"comments,omitempty"`
	MediaTitle         string    `json:"mediaTitle,omitempty"`
	CreationTime       time.Time `json:"creationTime,omitzero"`
	ModificationTime   time.Time `json:"modificationTime,omitzero"`

	HasPartitions      bool        `json:"hasPartitions"`
	HasSessions        bool        `json:"hasSessions"`
	ReadableSectorTags []SectorTag `json:"readableSectorTags,omitempty"`
}

// HasTag reports whether tag can be read from the image.
func (i Info) HasTag(tag SectorTag) bool {
	return slices.Contains(i.ReadableSectorTags, tag)
}

// Clone returns a copy that shares no slices with i.
func (i Info) Clone() Info {
	i.ReadableSectorTags = slices.Clone(i.ReadableSectorTags)
	return i
}

// TrackType is the sector layout of a track.
type TrackType string

// Track types.
const (
	TrackData          TrackType = "Data"
	TrackAudio         TrackType = "Audio"
	TrackMode1         TrackType = "Mode1"
	TrackMode2Formless TrackType = "Mode2"
	TrackMode2Form1    TrackType = "Mode2Form1"
	TrackMode2Form2    TrackType = "Mode2Form2"
)

// Track describes one contiguous run of sectors in the logical address space.
type Track struct {
	Sequence uint32    `json:"sequence"`
	Session  uint16    `json:"session"`
	Type     TrackType `json:"type"`
	// Start and End are inclusive logical addresses and include the gaps.
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
	Pregap  uint64 `json:"pregap"`
	Postgap uint64 `json:"postgap"`

	// SectorSize is the number of user data bytes per sector.
	SectorSize uint32 `json:"sectorSize"`
	// RawSize is the number of stored bytes per sector in the backing file.
	RawSize uint32 `json:"rawSize"`
	// Raw is set when stored sectors are full 2352-byte frames.
	Raw bool `json:"raw"`
	// SubchannelSize is the size of the interleaved subchannel stored
	// after the frame data of each sector, or zero.
	SubchannelSize uint32 `json:"subchannelSize,omitempty"`
	FileOffset     int64  `json:"fileOffset"`

	Cylinder uint16 `json:"cylinder,omitempty"`
	Head     uint16 `json:"head,omitempty"`
}

// Sectors returns the number of addresses the track covers.
func (t Track) Sectors() uint64 {
	return t.End - t.Start + 1
}

// Contains reports whether addr falls inside the track.
func (t Track) Contains(addr uint64) bool {
	return addr >= t.Start && addr <= t.End
}

// Session groups consecutive tracks.
type Session struct {
	Sequence   uint16 `json:"sequence"`
	StartTrack uint32 `json:"startTrack"`
	EndTrack   uint32 `json:"endTrack"`
	Start      uint64 `json:"start"`
	End        uint64 `json:"end"`
}
