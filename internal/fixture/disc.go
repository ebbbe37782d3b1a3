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

package fixture

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/format/alcohol"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
)

// sessionGap is the distance between the end of a session and the first
// track of the next: lead-out, lead-in and pregap.
const sessionGap = 6750 + 4500 + 150

// Track describes one track of a synthetic disc.
type Track struct {
	Type    image.TrackType
	Sectors int
	// Session numbers start at 1; zero continues the previous track's.
	Session int
}

type placed struct {
	Track
	seq    int
	start  int // declared address
	stored int // index of the first frame in the data file
}

type session struct {
	seq         int
	first, last int
	start, end  int // end is the lead-out address
	tracks      []placed
}

func place(tracks []Track) []session {
	var (
		out     []session
		lba     int
		stored  int
		current int
	)
	for i, t := range tracks {
		s := t.Session
		if s == 0 {
			s = max(current, 1)
		}
		if s != current {
			if len(out) > 0 {
				lba += sessionGap
			}
			out = append(out, session{seq: s, first: i + 1, start: lba})
			current = s
		}
		ss := &out[len(out)-1]
		ss.tracks = append(ss.tracks, placed{Track: t, seq: i + 1, start: lba, stored: stored})
		ss.last = i + 1
		lba += t.Sectors
		stored += t.Sectors
		ss.end = lba
	}
	return out
}

// Frame returns the stored 2352-byte frame of a track type at lba. Data
// tracks carry Payload(lba) as user data.
func Frame(t image.TrackType, lba int) []byte {
	switch t {
	case image.TrackMode1:
		return cdsector.NewFrame(cdsector.Mode1, lba, Payload(lba, 2048))
	case image.TrackMode2Form1:
		return cdsector.NewFrame(cdsector.Mode2Form1, lba, Payload(lba, 2048))
	case image.TrackMode2Form2:
		return cdsector.NewFrame(cdsector.Mode2Form2, lba, Payload(lba, 2324))
	}
	return Payload(lba, cdsector.RawSize)
}

// CloneCD builds base.ccd, base.img and, with sub set, base.sub.
func CloneCD(base string, tracks []Track, sub bool) Files {
	sessions := place(tracks)
	var (
		ccd      strings.Builder
		img, sbs []byte
		entries  []string
	)
	for _, s := range sessions {
		firstCtl := control(s.tracks[0].Type)
		entries = append(entries,
			entry(s.seq, 0xA0, firstCtl, -150, s.first, 0, 0),
			entry(s.seq, 0xA1, firstCtl, -150, s.last, 0, 0),
		)
		m, sec, f := msf(s.end + 150)
		entries = append(entries, entry(s.seq, 0xA2, firstCtl, -150, m, sec, f)+fmt.Sprintf("PLBA=%d\n", s.end))
		for _, t := range s.tracks {
			m, sec, f := msf(t.start + 150)
			entries = append(entries, entry(s.seq, t.seq, control(t.Type), -150, m, sec, f)+fmt.Sprintf("PLBA=%d\n", t.start))
			for i := range t.Sectors {
				img = append(img, Frame(t.Type, t.start+i)...)
				if sub {
					sbs = append(sbs, Sub(t.start+i)...)
				}
			}
		}
	}

	ccd.WriteString("[CloneCD]\nVersion=3\n")
	fmt.Fprintf(&ccd, "[Disc]\nTocEntries=%d\nSessions=%d\nDataTracksScrambled=0\nCDTextLength=0\n", len(entries), len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(&ccd, "[Session %d]\nPreGapMode=%d\nPreGapSubC=0\n", s.seq, ccdMode(s.tracks[0].Type))
	}
	for i, e := range entries {
		fmt.Fprintf(&ccd, "[Entry %d]\n%s", i, e)
	}
	for _, s := range sessions {
		for _, t := range s.tracks {
			fmt.Fprintf(&ccd, "[TRACK %d]\nMODE=%d\n", t.seq, ccdMode(t.Type))
			if t.seq == 1 {
				ccd.WriteString("INDEX 0=-150\n")
			}
			fmt.Fprintf(&ccd, "INDEX 1=%d\n", t.start)
		}
	}

	files := Files{base + ".ccd": []byte(ccd.String()), base + ".img": img}
	if sub {
		files[base+".sub"] = sbs
	}
	return files
}

func entry(sess, point, ctl, alba, pmin, psec, pframe int) string {
	s := fmt.Sprintf("Session=%d\nPoint=0x%02x\nADR=0x01\nControl=0x%02x\nTrackNo=0\nAMin=0\nASec=0\nAFrame=0\nALBA=%d\nZero=0\nPMin=%d\nPSec=%d\nPFrame=%d\n",
		sess, point, ctl, alba, pmin, psec, pframe)
	if point == 0xA0 || point == 0xA1 {
		s += fmt.Sprintf("PLBA=%d\n", (pmin*60)*75-150)
	}
	return s
}

func msf(lba int) (m, s, f int) {
	return lba / 75 / 60, lba / 75 % 60, lba % 75
}

func control(t image.TrackType) int {
	if t == image.TrackAudio {
		return 0x00
	}
	return 0x04
}

func ccdMode(t image.TrackType) int {
	switch t {
	case image.TrackAudio:
		return 0
	case image.TrackMode1:
		return 1
	}
	return 2
}

// AlcoholOptions tune the Alcohol 120% builder.
type AlcoholOptions struct {
	// DataName is the file name stored in the footer; "*.mdf" if empty.
	DataName string
	Wide     bool
	// Sub stores 2448-byte frames with interleaved subchannel.
	Sub    bool
	Medium uint16
}

// Alcohol builds base.mds and its data file. A DVD medium takes a single
// TrackData track of 2048-byte sectors.
func Alcohol(tb testing.TB, base string, tracks []Track, o AlcoholOptions) Files {
	tb.Helper()
	sessions := place(tracks)
	dvd := o.Medium == alcohol.MediumDVDROM || o.Medium == alcohol.MediumDVDR

	unit := cdsector.RawSize
	switch {
	case dvd:
		unit = 2048
	case o.Sub:
		unit = cdsector.RawWithSubSize
	}

	var mdf []byte
	for _, s := range sessions {
		for _, t := range s.tracks {
			for i := range t.Sectors {
				lba := t.start + i
				switch {
				case dvd:
					mdf = append(mdf, Payload(lba, 2048)...)
				case o.Sub:
					mdf = append(mdf, Frame(t.Type, lba)...)
					mdf = append(mdf, cdsector.Interleave(Sub(lba))...)
				default:
					mdf = append(mdf, Frame(t.Type, lba)...)
				}
			}
		}
	}

	// Blocks are laid out in order: header, sessions, track blocks, extras,
	// footer, file name.
	off := uint32(alcohol.HeaderSize + len(sessions)*alcohol.SessionSize)
	trackOffsets := make([]uint32, len(sessions))
	for i, s := range sessions {
		trackOffsets[i] = off
		off += uint32((3 + len(s.tracks)) * alcohol.TrackSize)
	}
	extraOffset := off
	off += uint32(len(tracks) * alcohol.ExtraSize)
	footerOffset := off
	off += alcohol.FooterSize
	nameOffset := off

	h := alcohol.Header{
		VersionMajor:   1,
		VersionMinor:   5,
		MediumType:     o.Medium,
		Sessions:       uint16(len(sessions)),
		SessionsOffset: alcohol.HeaderSize,
	}
	copy(h.Signature[:], alcohol.Signature)
	out := encode(tb, &h)

	for i, s := range sessions {
		out = append(out, encode(tb, &alcohol.Session{
			Start:          int32(s.start - 150),
			End:            int32(s.end),
			Sequence:       uint16(s.seq),
			AllBlocks:      uint8(3 + len(s.tracks)),
			NonTrackBlocks: 3,
			FirstTrack:     uint16(s.first),
			LastTrack:      uint16(s.last),
			TrackOffset:    trackOffsets[i],
		})...)
	}

	n := 0
	for _, s := range sessions {
		for _, point := range []uint8{0xA0, 0xA1, 0xA2} {
			out = append(out, encode(tb, &alcohol.Track{Point: point})...)
		}
		for _, t := range s.tracks {
			mode := uint8(alcohol.ModeAudio)
			switch t.Type {
			case image.TrackMode1:
				mode = alcohol.ModeMode1
			case image.TrackMode2Formless:
				mode = alcohol.ModeMode2
			case image.TrackMode2Form1:
				mode = alcohol.ModeForm1
			case image.TrackMode2Form2:
				mode = alcohol.ModeForm2
			case image.TrackData:
				mode = alcohol.ModeDVD
			}
			var subMode uint8
			if o.Sub {
				subMode = 0x08
			}
			out = append(out, encode(tb, &alcohol.Track{
				Mode:         mode,
				SubMode:      subMode,
				ADRCtl:       uint8(0x10 | control(t.Type)),
				Point:        uint8(t.seq),
				ExtraOffset:  extraOffset + uint32(n*alcohol.ExtraSize),
				SectorSize:   uint16(unit),
				StartLBA:     uint32(t.start),
				StartOffset:  uint64(t.stored * unit),
				Files:        1,
				FooterOffset: footerOffset,
			})...)
			n++
		}
	}
	for _, s := range sessions {
		for _, t := range s.tracks {
			var pregap uint32
			if t.seq == 1 {
				pregap = 150
			}
			out = append(out, encode(tb, &alcohol.Extra{Pregap: pregap, Sectors: uint32(t.Sectors)})...)
		}
	}
	var wide uint32
	if o.Wide {
		wide = 1
	}
	out = append(out, encode(tb, &alcohol.Footer{FilenameOffset: nameOffset, WideChar: wide})...)

	name := o.DataName
	if name == "" {
		name = "*.mdf"
	}
	if o.Wide {
		for _, r := range name {
			out = binary.LittleEndian.AppendUint16(out, uint16(r)) //nolint:gosec // BMP only
		}
		out = append(out, 0, 0)
	} else {
		out = append(append(out, name...), 0)
	}

	dataName := o.DataName
	if dataName == "" {
		dataName = base + ".mdf"
	}
	return Files{base + ".mds": out, dataName: mdf}
}

func encode(tb testing.TB, v any) []byte {
	tb.Helper()
	b, err := codec.Encode(binary.LittleEndian, v)
	if err != nil {
		tb.Fatalf("encode %T: %v", v, err)
	}
	return b
}
