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

package offsetmap

import (
	"fmt"
	"io"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/go-logr/logr"
)

// Descriptor is one track as a format parser reads it.
//
// Sectors counts the sectors stored in File from Offset, including the
// pregap when PregapStored is set. An unstored pregap and the postgap are
// placed around the stored sectors and read as zeros.
type Descriptor struct {
	File       io.ReaderAt
	Type       image.TrackType
	Sequence   uint32
	Sectors    uint64
	Pregap     uint64
	Postgap    uint64
	Offset     int64
	SectorSize uint32
	// RawSize is the number of stored bytes per sector; SectorSize if zero.
	RawSize uint32
	// Stride is the distance between stored sectors; RawSize if zero.
	Stride         uint32
	SubchannelSize uint32
	// Session starts a new session when it differs from the previous
	// descriptor's. Zero continues the current session.
	Session uint16
	// Start is the address the format declares for the first sector of the
	// track, checked against the running total when HasStart is set.
	Start        uint64
	HasStart     bool
	PregapStored bool
	Raw          bool
	Cylinder     uint16
	Head         uint16
}

func (d Descriptor) length() uint64 {
	n := d.Sectors + d.Postgap
	if !d.PregapStored {
		n += d.Pregap
	}
	return n
}

// Layout is the result of a build.
type Layout struct {
	Map      *Map
	Tracks   []image.Track
	Sessions []image.Session
}

// TrackAt returns the track containing addr.
func (l *Layout) TrackAt(addr uint64) (image.Track, bool) {
	e, ok := l.Map.Find(addr)
	if !ok {
		return image.Track{}, false
	}
	return l.Tracks[e.Track], true
}

// Builder assembles a Layout from descriptors.
type Builder struct {
	Logger logr.Logger
	// DeclaredTotal is the sector count the container declares; zero
	// disables the check.
	DeclaredTotal uint64
}

// Build places the descriptors in order. Logical addresses are running
// totals from zero: every track begins where the previous one ended, in
// and across sessions. Declared starts may use any origin, but inside a
// session each must continue exactly where the previous track ended; the
// first track of a later session may declare a start past the end of the
// previous session (the lead-out gap is not part of the address space)
// but never before it. Descriptors without sectors are
// dropped with a warning. Cylinder or head numbers that wrap around do not
// start a session; only an explicit Session change does.
func (b Builder) Build(descs []Descriptor) (*Layout, error) {
	log := b.Logger
	layout := &Layout{}
	var (
		entries      []Entry
		running      uint64
		session      uint16
		shift        uint64
		prevCylinder uint16
		prevHead     uint16
	)
	for i, d := range descs {
		length := d.length()
		if length == 0 {
			log.Info("dropping empty track", "index", i, "sequence", d.Sequence)
			continue
		}
		if d.SectorSize == 0 {
			return nil, fmt.Errorf("%w: track %d has no sector size", image.ErrInconsistentLayout, d.Sequence)
		}

		sess := d.Session
		if sess == 0 {
			sess = max(session, 1)
		}
		newSession := sess != session
		if newSession && sess < session {
			return nil, fmt.Errorf("%w: track %d goes back from session %d to %d",
				image.ErrInconsistentLayout, d.Sequence, session, sess)
		}
		if !newSession && len(layout.Tracks) > 0 && (d.Cylinder < prevCylinder ||
			d.Cylinder == prevCylinder && d.Head < prevHead) {
			log.V(1).Info("track numbering wraps around inside a session",
				"sequence", d.Sequence, "cylinder", d.Cylinder, "head", d.Head)
		}

		if d.HasStart {
			switch {
			case len(layout.Tracks) == 0:
				shift = d.Start
			case !newSession:
				if d.Start != running+shift {
					return nil, fmt.Errorf("%w: track %d declares start %d, previous track ends at %d",
						image.ErrInconsistentLayout, d.Sequence, d.Start, running+shift)
				}
			case d.Start < running+shift:
				return nil, fmt.Errorf("%w: session %d starts at %d, inside the previous session ending at %d",
					image.ErrInconsistentLayout, sess, d.Start, running+shift)
			default:
				shift = d.Start - running
			}
		}

		track := image.Track{
			Sequence:       d.Sequence,
			Session:        sess,
			Type:           d.Type,
			Start:          running,
			End:            running + length - 1,
			Pregap:         d.Pregap,
			Postgap:        d.Postgap,
			SectorSize:     d.SectorSize,
			RawSize:        d.rawSize(),
			Raw:            d.Raw,
			SubchannelSize: d.SubchannelSize,
			FileOffset:     d.Offset,
			Cylinder:       d.Cylinder,
			Head:           d.Head,
		}
		idx := len(layout.Tracks)
		layout.Tracks = append(layout.Tracks, track)

		zero := Entry{Stride: d.rawSize(), Size: d.rawSize(), Track: idx}
		if !d.PregapStored && d.Pregap > 0 {
			zero.Start, zero.Count = running, d.Pregap
			entries = append(entries, zero)
			running += d.Pregap
		}
		if d.Sectors > 0 {
			entries = append(entries, Entry{
				File:   d.File,
				Start:  running,
				Count:  d.Sectors,
				Offset: d.Offset,
				Stride: d.stride(),
				Size:   d.rawSize(),
				Track:  idx,
			})
			running += d.Sectors
		}
		if d.Postgap > 0 {
			zero.Start, zero.Count = running, d.Postgap
			entries = append(entries, zero)
			running += d.Postgap
		}

		if newSession {
			layout.Sessions = append(layout.Sessions, image.Session{
				Sequence:   sess,
				StartTrack: d.Sequence,
				Start:      track.Start,
			})
			session = sess
		}
		s := &layout.Sessions[len(layout.Sessions)-1]
		s.EndTrack = d.Sequence
		s.End = track.End

		prevCylinder, prevHead = d.Cylinder, d.Head
		log.V(1).Info("placed track", "sequence", d.Sequence, "session", sess,
			"start", track.Start, "end", track.End, "type", d.Type)
	}

	if running == 0 {
		return nil, fmt.Errorf("%w: no sectors", image.ErrInconsistentLayout)
	}
	if b.DeclaredTotal != 0 && running != b.DeclaredTotal {
		return nil, fmt.Errorf("%w: tracks cover %d sectors, image declares %d",
			image.ErrInconsistentLayout, running, b.DeclaredTotal)
	}

	m, err := NewMap(entries)
	if err != nil {
		return nil, err
	}
	layout.Map = m
	return layout, nil
}

func (d Descriptor) rawSize() uint32 {
	if d.RawSize == 0 {
		return d.SectorSize
	}
	return d.RawSize
}

func (d Descriptor) stride() uint32 {
	if d.Stride == 0 {
		return d.rawSize()
	}
	return d.Stride
}
